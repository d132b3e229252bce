// Package recipe loads frameworks declared as YAML step lists.
package recipe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/mpataki/padeploy/internal/classify"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Data is what step templates are rendered against.
type Data struct {
	DomainName      string
	SourceDirectory string
	VirtualenvPath  string
	Settings        string
	ConsoleID       string
}

// Recipe is a parsed recipe with its step templates compiled.
type Recipe struct {
	*models.Recipe
	Path string

	steps []*template.Template
}

func Parse(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read recipe file")
	}

	var m models.Recipe
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse recipe YAML")
	}

	// Use recipe name from file, or filename without extension
	if m.Name == "" {
		base := filepath.Base(path)
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	m.Name = strings.ToLower(strings.TrimSpace(m.Name))

	r, err := Compile(&m)
	if err != nil {
		return nil, err
	}
	r.Path = path
	return r, nil
}

// Compile parses every step's run template.
func Compile(m *models.Recipe) (*Recipe, error) {
	r := &Recipe{Recipe: m}
	for i, step := range m.Steps {
		if step == nil {
			return nil, fmt.Errorf("step %d is empty", i+1)
		}
		tmpl, err := template.New(fmt.Sprintf("%s.step%d", m.Name, i+1)).
			Funcs(sprig.TxtFuncMap()).
			Option("missingkey=error").
			Parse(step.Run)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d has an invalid run template", i+1)
		}
		r.steps = append(r.steps, tmpl)
	}
	return r, nil
}

// LoadAll reads every *.yaml and *.yml file in dirs. Missing directories are
// skipped. A recipe in a later directory replaces one of the same name.
func LoadAll(dirs []string) (map[string]*Recipe, error) {
	recipes := make(map[string]*Recipe)

	for _, dir := range dirs {
		if err := loadFromDir(dir, recipes); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return recipes, nil
}

func loadFromDir(dir string, recipes map[string]*Recipe) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		r, err := Parse(path)
		if err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}
		if err := Validate(r); err != nil {
			return errors.Wrapf(err, "invalid recipe %s", path)
		}

		recipes[r.Name] = r
	}

	return nil
}

func Validate(r *Recipe) error {
	if r.Name == "" {
		return fmt.Errorf("recipe must have a name")
	}

	if strings.ContainsAny(r.Name, " \t\n") {
		return fmt.Errorf("recipe name %q must not contain whitespace", r.Name)
	}

	if len(r.Steps) == 0 {
		return fmt.Errorf("recipe must define at least one step")
	}

	for i, step := range r.Steps {
		if strings.TrimSpace(step.Run) == "" {
			return fmt.Errorf("step %d must have a 'run' field", i+1)
		}
	}

	if len(r.steps) != len(r.Steps) {
		return fmt.Errorf("recipe %q was not compiled", r.Name)
	}

	return nil
}

// RegisterAll adds each recipe to reg under its name and returns the names
// registered.
func RegisterAll(reg *framework.Registry, recipes map[string]*Recipe) []string {
	names := make([]string, 0, len(recipes))
	for name, r := range recipes {
		reg.Register(name, r.Strategy())
		names = append(names, name)
	}
	return names
}

// Strategy returns a constructor for the recipe's strategy.
func (r *Recipe) Strategy() framework.Constructor {
	return func(env framework.Env) framework.Strategy {
		return &strategy{recipe: r, env: env}
	}
}

type strategy struct {
	recipe *Recipe
	env    framework.Env
}

func (s *strategy) Run(ctx context.Context, session models.Console, app models.WebApp) error {
	data := Data{
		DomainName:      app.DomainName,
		SourceDirectory: app.SourceDirectory,
		VirtualenvPath:  app.VirtualenvPath,
		Settings:        s.env.Options.Settings,
		ConsoleID:       session.ID.String(),
	}

	for i, step := range s.recipe.Steps {
		var cmd bytes.Buffer
		if err := s.recipe.steps[i].Execute(&cmd, data); err != nil {
			return errors.Wrapf(err, "failed to render step %d", i+1)
		}

		label := step.Label
		if label == "" {
			label = fmt.Sprintf("Step %d completed.", i+1)
		}

		if err := s.env.Console.Send(ctx, session.ID, cmd.String(), label); err != nil {
			return err
		}

		if !step.Check && step.FailOn == "" {
			continue
		}

		snap, err := s.env.Console.LatestOutput(ctx, session.ID, fmt.Sprintf("Step %d output fetched.", i+1))
		if err != nil {
			return err
		}
		if classify.Contains(snap.Output, step.FailOn) {
			s.env.Log.Info(snap.Output)
			return fmt.Errorf("step %d failed: output contains %q", i+1, step.FailOn)
		}
	}

	return nil
}
