package main

import (
	"sort"
	"strings"

	"github.com/mpataki/padeploy/internal/config"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/mpataki/padeploy/internal/lua"
	"github.com/mpataki/padeploy/internal/recipe"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// loadFrameworks registers the built-in frameworks, then YAML recipes, then
// Lua scripts. A later registration replaces an earlier one of the same name.
func loadFrameworks(cfg *config.Config, log *zap.SugaredLogger) (*framework.Registry, error) {
	registry := framework.NewRegistry()
	dirs := cfg.FrameworkDirs()

	recipes, err := recipe.LoadAll(dirs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load framework recipes")
	}
	for name := range recipes {
		warnOverride(registry, "recipe", name, log)
	}
	if names := recipe.RegisterAll(registry, recipes); len(names) > 0 {
		sort.Strings(names)
		log.Debugf("Registered framework recipes: %s", strings.Join(names, ", "))
	}

	scripts, err := lua.LoadAll(dirs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load framework scripts")
	}
	for name := range scripts {
		warnOverride(registry, "script", name, log)
	}
	if names := lua.RegisterAll(registry, scripts); len(names) > 0 {
		sort.Strings(names)
		log.Debugf("Registered framework scripts: %s", strings.Join(names, ", "))
	}

	return registry, nil
}

func warnOverride(registry *framework.Registry, kind, name string, log *zap.SugaredLogger) {
	if registry.Has(name) {
		log.Warnf("Framework %s %q replaces an already registered framework", kind, name)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
