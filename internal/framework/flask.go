package framework

import (
	"context"

	"github.com/mpataki/padeploy/internal/classify"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/pkg/errors"
)

const (
	Flask = "flask"

	alembicConfig = "alembic.ini"
)

var ErrMigrationFailed = errors.New("alembic migration failed. Check your configuration.")

type flask struct {
	env Env
}

func NewFlask(env Env) Strategy {
	return &flask{env: env}
}

// Run migrates with alembic only when the source tree has an alembic.ini.
func (f *flask) Run(ctx context.Context, session models.Console, app models.WebApp) error {
	c := f.env.Console
	if err := prepare(ctx, c, session, app); err != nil {
		return err
	}

	if err := c.Send(ctx, session.ID, FindCommand(app.SourceDirectory, alembicConfig), "Checking for alembic.ini..."); err != nil {
		return err
	}
	found, err := c.LatestOutput(ctx, session.ID, "Alembic check completed.")
	if err != nil {
		return err
	}

	tool := classify.Tool(found.Output, alembicConfig)
	if !tool.Present {
		f.env.Log.Info("No Alembic configuration found, skipping migrations.")
		return nil
	}

	f.env.Log.Infof("Alembic configuration found at %s, running migrations...", tool.Path)
	if err := c.Send(ctx, session.ID, UpgradeCommand(tool.Path), "Executing 'alembic upgrade head'..."); err != nil {
		return err
	}
	upgraded, err := c.LatestOutput(ctx, session.ID, "Alembic migration completed.")
	if err != nil {
		return err
	}

	if classify.UpgradeFailed(upgraded.Output) {
		f.env.Log.Info(upgraded.Output)
		return ErrMigrationFailed
	}
	f.env.Log.Info("Alembic migrations completed successfully.")
	return nil
}
