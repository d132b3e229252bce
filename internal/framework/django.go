package framework

import (
	"context"

	"github.com/mpataki/padeploy/internal/models"
)

const Django = "django"

type django struct {
	env Env
}

func NewDjango(env Env) Strategy {
	return &django{env: env}
}

func (d *django) Run(ctx context.Context, session models.Console, app models.WebApp) error {
	if err := prepare(ctx, d.env.Console, session, app); err != nil {
		return err
	}
	return d.env.Console.Send(ctx, session.ID, MigrateCommand(app, d.env.Options.Settings), "Database Migrations Completed.")
}
