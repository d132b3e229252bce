// Package framework holds the per-framework command sequences run after the
// source is pulled, and the registry that resolves them by name.
package framework

import (
	"context"
	"fmt"
	"path"

	"github.com/mpataki/padeploy/internal/console"
	"github.com/mpataki/padeploy/internal/models"
	"go.uber.org/zap"
)

// Console is what a strategy uses to talk to the session.
type Console interface {
	Send(ctx context.Context, id models.ConsoleID, command, label string) error
	LatestOutput(ctx context.Context, id models.ConsoleID, label string) (console.Snapshot, error)
}

// Strategy runs a framework's setup commands against one session and app.
type Strategy interface {
	Run(ctx context.Context, session models.Console, app models.WebApp) error
}

type StrategyFunc func(ctx context.Context, session models.Console, app models.WebApp) error

func (f StrategyFunc) Run(ctx context.Context, session models.Console, app models.WebApp) error {
	return f(ctx, session, app)
}

type Options struct {
	// Settings is the Django settings module override, if any.
	Settings string
}

type Env struct {
	Console Console
	Log     *zap.SugaredLogger
	Options Options
}

type Constructor func(env Env) Strategy

func ActivateCommand(app models.WebApp) string {
	return fmt.Sprintf("source %s/bin/activate", app.VirtualenvPath)
}

func InstallCommand(app models.WebApp) string {
	return fmt.Sprintf("pip install -r %s/requirements.txt", app.SourceDirectory)
}

func MigrateCommand(app models.WebApp, settings string) string {
	cmd := fmt.Sprintf("python %s/manage.py migrate", app.SourceDirectory)
	if settings != "" {
		cmd += " --settings=" + settings
	}
	return cmd
}

func FindCommand(dir, name string) string {
	return fmt.Sprintf("find %s -type f -name '%s' -print", dir, name)
}

// UpgradeCommand runs alembic from the directory holding configPath.
func UpgradeCommand(configPath string) string {
	return fmt.Sprintf("cd %s && alembic upgrade head", path.Dir(configPath))
}

// prepare activates the virtualenv and installs requirements, the shared
// prefix of the built-in strategies.
func prepare(ctx context.Context, c Console, session models.Console, app models.WebApp) error {
	if err := c.Send(ctx, session.ID, ActivateCommand(app), "Virtual Environment Activated."); err != nil {
		return err
	}
	return c.Send(ctx, session.ID, InstallCommand(app), "Dependencies Installed.")
}
