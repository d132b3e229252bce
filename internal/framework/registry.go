package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mpataki/padeploy/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrUnsupported = errors.New("unsupported framework")

type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("framework type %q not supported", e.Name)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Registry maps case-insensitive framework names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns a registry with the built-in frameworks.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register(Django, NewDjango)
	r.Register(Flask, NewFlask)
	return r
}

// Register adds or replaces a framework.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[strings.ToLower(strings.TrimSpace(name))] = ctor
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the strategy registered under name. Failures of the returned
// strategy name the framework they came from.
func (r *Registry) New(name string, env Env) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	ctor, ok := r.ctors[key]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedError{Name: key}
	}

	if env.Log == nil {
		env.Log = zap.NewNop().Sugar()
	}
	return &named{name: DisplayName(key), inner: ctor(env)}, nil
}

// DisplayName capitalizes a framework key for messages.
func DisplayName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

type named struct {
	name  string
	inner Strategy
}

func (n *named) Run(ctx context.Context, session models.Console, app models.WebApp) error {
	if err := n.inner.Run(ctx, session, app); err != nil {
		return errors.Wrapf(err, "error during console commands for %s", n.name)
	}
	return nil
}
