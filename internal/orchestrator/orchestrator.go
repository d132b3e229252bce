// Package orchestrator runs a deployment: it picks the console session and
// web app, uploads the .env file, pulls, runs the framework commands and
// reloads the app, stopping at the first failure.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mpataki/padeploy/internal/classify"
	"github.com/mpataki/padeploy/internal/envfile"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/mpataki/padeploy/internal/metrics"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

// API is the part of the remote API the orchestrator calls directly. Console
// input and output go through a framework.Console instead.
type API interface {
	Consoles(ctx context.Context) ([]models.Console, error)
	WebApps(ctx context.Context) ([]models.WebApp, error)
	ReloadWebApp(ctx context.Context, domainName string) error
}

// History persists deployments and their console invocations.
type History interface {
	CreateDeployment(d *models.Deployment) (int64, error)
	UpdateDeployment(d *models.Deployment) error
	CreateInvocation(inv *models.Invocation) (int64, error)
	UpdateInvocation(inv *models.Invocation) error
}

type Request struct {
	// Domain selects the web app. Empty means the first one listed.
	Domain    string
	Framework string
	Settings  string
	// Envs is raw KEY=VALUE text written to <source>/.env when it has pairs.
	Envs string
}

type Orchestrator struct {
	api        API
	console    framework.Console
	frameworks *framework.Registry
	log        *zap.SugaredLogger
	history    History
	scope      tally.Scope
}

type Option func(*Orchestrator)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithHistory records every deployment. A nil History disables recording.
func WithHistory(h History) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

func WithScope(scope tally.Scope) Option {
	return func(o *Orchestrator) {
		o.scope = scope
	}
}

func New(api API, console framework.Console, frameworks *framework.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:        api,
		console:    console,
		frameworks: frameworks,
		log:        zap.NewNop().Sugar(),
		scope:      tally.NoopScope,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.scope = o.scope.SubScope("deploy")
	return o
}

// run is the state of one deployment.
type run struct {
	d       *models.Deployment
	console framework.Console
	scope   tally.Scope
	start   time.Time
}

// Deploy performs one deployment. The returned deployment is non-nil even on
// failure and carries the state reached. The framework is resolved once the
// session and web app are known, before any console command is sent.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (*models.Deployment, error) {
	name := strings.ToLower(strings.TrimSpace(req.Framework))
	if name == "" {
		name = framework.Django
	}

	r := o.begin(name, req.Domain)

	session, err := o.selectSession(ctx)
	if err != nil {
		return r.d, o.abort(r, err)
	}
	r.d.ConsoleID = session.ID
	o.advance(r, models.StateSessionSelected)

	app, err := o.selectWebApp(ctx, req.Domain)
	if err != nil {
		return r.d, o.abort(r, err)
	}
	r.d.DomainName = app.DomainName
	o.advance(r, models.StateAppSelected)

	strategy, err := o.frameworks.New(name, framework.Env{
		Console: r.console,
		Log:     o.log,
		Options: framework.Options{Settings: req.Settings},
	})
	if err != nil {
		return r.d, o.abort(r, err)
	}

	if strings.TrimSpace(req.Envs) != "" {
		uploaded, err := o.uploadEnv(ctx, r.console, session, app, req.Envs)
		if err != nil {
			o.continueAfter(r, "Error processing 'envs' input", err)
		} else if uploaded {
			o.advance(r, models.StateEnvUploaded)
		}
	}

	if err := o.pull(ctx, r.console, session, app); err != nil {
		return r.d, o.abort(r, err)
	}
	o.advance(r, models.StatePulled)

	o.log.Infof("Executing commands for the %s framework...", framework.DisplayName(name))
	if err := strategy.Run(ctx, session, app); err != nil {
		return r.d, o.abort(r, err)
	}
	o.advance(r, models.StateFrameworkCommandsRun)

	o.log.Infof("Reloading web app: %s...", app.DomainName)
	if err := o.api.ReloadWebApp(ctx, app.DomainName); err != nil {
		return r.d, o.abort(r, err)
	}
	o.advance(r, models.StateReloaded)
	o.log.Info("Web application reloaded successfully.")

	o.complete(r)
	return r.d, nil
}

func (o *Orchestrator) selectSession(ctx context.Context) (models.Console, error) {
	o.log.Info("Setting up console...")
	consoles, err := o.api.Consoles(ctx)
	if err != nil {
		return models.Console{}, err
	}

	for _, c := range consoles {
		if c.IsShell() {
			o.log.Infof("Console found with ID: %s", c.ID)
			return c, nil
		}
	}
	return models.Console{}, ErrNoConsole
}

func (o *Orchestrator) selectWebApp(ctx context.Context, domain string) (models.WebApp, error) {
	o.log.Info("Setting up web app...")
	apps, err := o.api.WebApps(ctx)
	if err != nil {
		return models.WebApp{}, err
	}
	if len(apps) == 0 {
		return models.WebApp{}, ErrNoWebApps
	}

	app := apps[0]
	if domain != "" {
		found := false
		for _, a := range apps {
			if a.DomainName == domain {
				app, found = a, true
				break
			}
		}
		if !found {
			return models.WebApp{}, noMatchingWebApp(domain)
		}
	} else {
		o.log.Infof("No domain name specified. Using the first web app: %s", app.DomainName)
	}

	o.log.Infof("Web app '%s' selected.", app.DomainName)
	return app, nil
}

// uploadEnv writes the parsed pairs to <source>/.env. It reports false with
// no error when the text holds no pairs.
func (o *Orchestrator) uploadEnv(ctx context.Context, c framework.Console, session models.Console, app models.WebApp, text string) (bool, error) {
	vars := envfile.Parse(text)
	if vars.Len() == 0 {
		o.log.Info("Input 'envs' provided, but no valid KEY=VALUE pairs found. Skipping .env file upload.")
		return false, nil
	}

	o.log.Info("Uploading .env file with provided environment variables...")
	if err := c.Send(ctx, session.ID, envfile.UploadCommand(app.SourceDirectory, vars), "'.env' file uploaded successfully."); err != nil {
		return false, err
	}
	o.log.Info("Environment variables written to .env file.")
	return true, nil
}

func (o *Orchestrator) pull(ctx context.Context, c framework.Console, session models.Console, app models.WebApp) error {
	cmd := fmt.Sprintf("git -C %s pull", app.SourceDirectory)
	if err := c.Send(ctx, session.ID, cmd, "Checking repository status..."); err != nil {
		return err
	}
	snap, err := c.LatestOutput(ctx, session.ID, "Git Pull completed.")
	if err != nil {
		return err
	}

	outcome := classify.Pull(snap.Output)
	if !outcome.OK() {
		return &PullError{Outcome: outcome, SourceDirectory: app.SourceDirectory}
	}
	o.log.Info("Repository updated successfully.")
	return nil
}

func (o *Orchestrator) begin(name, domain string) *run {
	r := &run{
		d: &models.Deployment{
			RunID:      uuid.NewString(),
			CreatedAt:  time.Now(),
			DomainName: domain,
			Framework:  name,
			State:      models.StateStart,
			Status:     models.DeployStatusRunning,
		},
		console: o.console,
		scope:   o.scope.Tagged(map[string]string{metrics.FrameworkTag: name}),
		start:   time.Now(),
	}
	o.log.Debugf("Starting deployment %s", r.d.RunID)

	if o.history == nil {
		return r
	}
	id, err := o.history.CreateDeployment(r.d)
	if err != nil {
		o.log.Warnf("Failed to record deployment, history disabled for this run: %v", err)
		return r
	}
	r.d.ID = id
	r.console = &recorder{
		inner:        o.console,
		history:      o.history,
		deploymentID: id,
		log:          o.log,
	}
	return r
}

func (o *Orchestrator) advance(r *run, state models.DeployState) {
	r.d.State = state
	o.save(r)
}

// continueAfter reports a best-effort step's failure and lets the deployment
// go on.
func (o *Orchestrator) continueAfter(r *run, what string, err error) {
	r.scope.Counter(metrics.EnvUploadErrorMetric).Inc(1)
	o.log.Errorf("%s: %v", what, err)
}

// abort ends the deployment as failed and returns err unchanged.
func (o *Orchestrator) abort(r *run, err error) error {
	now := time.Now()
	r.d.State = models.StateFailed
	r.d.Status = models.DeployStatusFailed
	r.d.Error = err.Error()
	r.d.CompletedAt = &now
	o.save(r)

	r.scope.Tagged(map[string]string{metrics.OutcomeTag: failureOutcome(err)}).
		Counter(metrics.DeployFailureMetric).Inc(1)
	r.scope.Timer(metrics.DeployLatencyMetric).Record(time.Since(r.start))
	return err
}

func (o *Orchestrator) complete(r *run) {
	now := time.Now()
	r.d.State = models.StateDone
	r.d.Status = models.DeployStatusComplete
	r.d.CompletedAt = &now
	o.save(r)

	r.scope.Counter(metrics.DeploySuccessMetric).Inc(1)
	r.scope.Timer(metrics.DeployLatencyMetric).Record(time.Since(r.start))
}

func (o *Orchestrator) save(r *run) {
	if o.history == nil || r.d.ID == 0 {
		return
	}
	if err := o.history.UpdateDeployment(r.d); err != nil {
		o.log.Warnf("Failed to record deployment state %s: %v", r.d.State, err)
	}
}
