package gateway

import (
	"context"

	"github.com/mpataki/padeploy/internal/metrics"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/uber-go/tally/v4"
)

// Instrumented records latency and success/error counts per endpoint.
type Instrumented struct {
	Endpoints
	scope tally.Scope
}

func NewInstrumented(e Endpoints, scope tally.Scope) *Instrumented {
	return &Instrumented{
		Endpoints: e,
		scope:     scope.SubScope("gateway"),
	}
}

func (i *Instrumented) observe(name string, call func() error) error {
	scope := i.scope.SubScope(name)
	sw := scope.Timer(metrics.ExecutionTimeMetric).Start()
	defer sw.Stop()

	err := call()
	if err != nil {
		scope.Counter(metrics.ExecutionErrorMetric).Inc(1)
		return err
	}
	scope.Counter(metrics.ExecutionSuccessMetric).Inc(1)
	return nil
}

func (i *Instrumented) Consoles(ctx context.Context) ([]models.Console, error) {
	var consoles []models.Console
	err := i.observe("consoles", func() (err error) {
		consoles, err = i.Endpoints.Consoles(ctx)
		return err
	})
	return consoles, err
}

func (i *Instrumented) LatestOutput(ctx context.Context, id models.ConsoleID) (string, error) {
	var output string
	err := i.observe("latest_output", func() (err error) {
		output, err = i.Endpoints.LatestOutput(ctx, id)
		return err
	})
	return output, err
}

func (i *Instrumented) SendInput(ctx context.Context, id models.ConsoleID, input string) error {
	return i.observe("send_input", func() error {
		return i.Endpoints.SendInput(ctx, id, input)
	})
}

func (i *Instrumented) WebApps(ctx context.Context) ([]models.WebApp, error) {
	var apps []models.WebApp
	err := i.observe("webapps", func() (err error) {
		apps, err = i.Endpoints.WebApps(ctx)
		return err
	})
	return apps, err
}

func (i *Instrumented) ReloadWebApp(ctx context.Context, domainName string) error {
	return i.observe("reload", func() error {
		return i.Endpoints.ReloadWebApp(ctx, domainName)
	})
}
