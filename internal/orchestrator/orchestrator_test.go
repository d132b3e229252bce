package orchestrator_test

import (
	"context"
	"testing"

	"github.com/mpataki/padeploy/internal/console"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/mpataki/padeploy/internal/orchestrator"
	"github.com/mpataki/padeploy/internal/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeRemote serves both the orchestrator API and the console transport.
type fakeRemote struct {
	consoles []models.Console
	apps     []models.WebApp

	// outputs are returned by successive LatestOutput calls.
	outputs []string
	sent    []string
	reloads []string

	sendErr error
}

func (f *fakeRemote) Consoles(context.Context) ([]models.Console, error) {
	return f.consoles, nil
}

func (f *fakeRemote) WebApps(context.Context) ([]models.WebApp, error) {
	return f.apps, nil
}

func (f *fakeRemote) ReloadWebApp(_ context.Context, domainName string) error {
	f.reloads = append(f.reloads, domainName)
	return nil
}

func (f *fakeRemote) SendInput(_ context.Context, _ models.ConsoleID, input string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, input)
	return nil
}

func (f *fakeRemote) LatestOutput(context.Context, models.ConsoleID) (string, error) {
	if len(f.outputs) == 0 {
		return "", nil
	}
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return out, nil
}

func newRemote(outputs ...string) *fakeRemote {
	return &fakeRemote{
		consoles: []models.Console{{ID: "1", Executable: "bash"}},
		apps: []models.WebApp{{
			DomainName:      "a.example.com",
			SourceDirectory: "/home/u/a",
			VirtualenvPath:  "/home/u/.v/a",
		}},
		outputs: outputs,
	}
}

func newOrchestrator(remote *fakeRemote, opts ...orchestrator.Option) (*orchestrator.Orchestrator, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()
	driver := console.New(remote, console.WithLogger(log))
	opts = append([]orchestrator.Option{orchestrator.WithLogger(log)}, opts...)
	return orchestrator.New(remote, driver, framework.NewRegistry(), opts...), logs
}

const (
	pull     = "git -C /home/u/a pull\n"
	activate = "source /home/u/.v/a/bin/activate\n"
	install  = "pip install -r /home/u/a/requirements.txt\n"
	migrate  = "python /home/u/a/manage.py migrate\n"
)

func TestDeploy_Django(t *testing.T) {
	remote := newRemote("Already up to date.")
	o, logs := newOrchestrator(remote)

	d, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "django"})
	require.NoError(t, err)

	assert.Equal(t, []string{pull, activate, install, migrate}, remote.sent)
	assert.Equal(t, []string{"a.example.com"}, remote.reloads)
	assert.Equal(t, models.StateDone, d.State)
	assert.Equal(t, models.DeployStatusComplete, d.Status)
	assert.Equal(t, models.ConsoleID("1"), d.ConsoleID)
	assert.NotEmpty(t, d.RunID)
	assert.Equal(t, 1, logs.FilterMessage("No domain name specified. Using the first web app: a.example.com").Len())
	assert.Equal(t, 1, logs.FilterMessage("Web application reloaded successfully.").Len())
}

func TestDeploy_GenericGitError(t *testing.T) {
	remote := newRemote("error: failed to pull")
	o, _ := newOrchestrator(remote)

	d, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "django"})
	require.Error(t, err)

	assert.Equal(t, "git pull failed: generic git error in /home/u/a. Check your repository configuration and try again.", err.Error())
	var pullErr *orchestrator.PullError
	require.True(t, errors.As(err, &pullErr))
	assert.Equal(t, []string{pull}, remote.sent)
	assert.Empty(t, remote.reloads)
	assert.Equal(t, models.StateFailed, d.State)
	assert.Equal(t, err.Error(), d.Error)
}

func TestDeploy_PullConflicts(t *testing.T) {
	cases := []struct {
		output string
		err    string
	}{
		{
			"error: Your local changes to the following files would be overwritten by merge:\n\tapp.py",
			"git pull failed: local changes detected in /home/u/a. Please commit, stash, or reset your changes.",
		},
		{
			"error: The following untracked working tree files would be overwritten by merge:\n\tnew.py",
			"git pull failed: untracked files detected in /home/u/a. Please add or remove the files.",
		},
	}
	for _, c := range cases {
		t.Run(c.err, func(t *testing.T) {
			remote := newRemote(c.output)
			o, _ := newOrchestrator(remote)

			_, err := o.Deploy(context.Background(), orchestrator.Request{})
			assert.EqualError(t, err, c.err)
			assert.Len(t, remote.sent, 1)
		})
	}
}

func TestDeploy_FlaskWithoutAlembic(t *testing.T) {
	remote := newRemote("Already up to date.", "")
	o, _ := newOrchestrator(remote)

	_, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "Flask"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		pull,
		activate,
		install,
		"find /home/u/a -type f -name 'alembic.ini' -print\n",
	}, remote.sent)
	for _, cmd := range remote.sent {
		assert.NotContains(t, cmd, "alembic upgrade head")
	}
	assert.Equal(t, []string{"a.example.com"}, remote.reloads)
}

func TestDeploy_UnsupportedFramework(t *testing.T) {
	remote := newRemote()
	o, _ := newOrchestrator(remote)

	d, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "unsupported"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, framework.ErrUnsupported))
	assert.Contains(t, err.Error(), `"unsupported"`)
	assert.Empty(t, remote.sent)
	assert.Empty(t, remote.reloads)
	assert.Equal(t, models.StateFailed, d.State)
	assert.Equal(t, "a.example.com", d.DomainName)
}

func TestDeploy_UnsupportedFrameworkWithoutConsole(t *testing.T) {
	remote := newRemote()
	remote.consoles = nil
	o, _ := newOrchestrator(remote)

	_, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "unsupported"})

	assert.True(t, errors.Is(err, orchestrator.ErrNoConsole))
	assert.Empty(t, remote.sent)
}

func TestDeploy_FrameworkFailureAborts(t *testing.T) {
	remote := newRemote("Already up to date.", "/home/u/a/alembic.ini", "FAILED: bad revision")
	o, _ := newOrchestrator(remote)

	_, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "flask"})
	assert.EqualError(t, err, "error during console commands for Flask: alembic migration failed. Check your configuration.")
	assert.Empty(t, remote.reloads)
}

func TestDeploy_SessionSelection(t *testing.T) {
	remote := newRemote("Already up to date.")
	remote.consoles = []models.Console{
		{ID: "7", Executable: "python3.10"},
		{ID: "8", Executable: "sh"},
		{ID: "9", Executable: "bash"},
	}
	o, _ := newOrchestrator(remote)

	d, err := o.Deploy(context.Background(), orchestrator.Request{})
	require.NoError(t, err)
	assert.Equal(t, models.ConsoleID("8"), d.ConsoleID)
}

func TestDeploy_NoConsole(t *testing.T) {
	for _, consoles := range [][]models.Console{nil, {{ID: "7", Executable: "python3.10"}}} {
		remote := newRemote()
		remote.consoles = consoles
		o, _ := newOrchestrator(remote)

		d, err := o.Deploy(context.Background(), orchestrator.Request{})
		assert.Equal(t, orchestrator.ErrNoConsole, err)
		assert.Equal(t, models.StateFailed, d.State)
	}
}

func TestDeploy_WebAppSelection(t *testing.T) {
	remote := newRemote("Already up to date.")
	remote.apps = append(remote.apps, models.WebApp{
		DomainName:      "b.example.com",
		SourceDirectory: "/home/u/b",
		VirtualenvPath:  "/home/u/.v/b",
	})
	o, _ := newOrchestrator(remote)

	d, err := o.Deploy(context.Background(), orchestrator.Request{Domain: "b.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", d.DomainName)
	assert.Equal(t, "git -C /home/u/b pull\n", remote.sent[0])
	assert.Equal(t, []string{"b.example.com"}, remote.reloads)
}

func TestDeploy_WebAppErrors(t *testing.T) {
	remote := newRemote()
	remote.apps = nil
	o, _ := newOrchestrator(remote)
	_, err := o.Deploy(context.Background(), orchestrator.Request{})
	assert.Equal(t, orchestrator.ErrNoWebApps, err)

	remote = newRemote()
	o, _ = newOrchestrator(remote)
	_, err = o.Deploy(context.Background(), orchestrator.Request{Domain: "missing.example.com"})
	assert.EqualError(t, err, "no matching web application found for domain: missing.example.com")
	assert.True(t, errors.Is(err, orchestrator.ErrNoMatchingWebApp))
	assert.Empty(t, remote.sent)
}

func TestDeploy_EnvUpload(t *testing.T) {
	remote := newRemote("Already up to date.")
	o, _ := newOrchestrator(remote)

	d, err := o.Deploy(context.Background(), orchestrator.Request{Envs: "# comment\nSECRET=it's\n\nDEBUG = 0\n"})
	require.NoError(t, err)

	require.Len(t, remote.sent, 5)
	assert.Equal(t, "cat > /home/u/a/.env << 'EOF'\nSECRET='it'\\''s'\nDEBUG='0'\nEOF\n", remote.sent[0])
	assert.Equal(t, pull, remote.sent[1])
	assert.Equal(t, models.StateDone, d.State)
}

func TestDeploy_EnvWithoutPairs(t *testing.T) {
	remote := newRemote("Already up to date.")
	o, logs := newOrchestrator(remote)

	_, err := o.Deploy(context.Background(), orchestrator.Request{Envs: "# nothing\nnot a pair\n"})
	require.NoError(t, err)
	assert.Equal(t, pull, remote.sent[0])
	assert.Equal(t, 1, logs.FilterMessage("Input 'envs' provided, but no valid KEY=VALUE pairs found. Skipping .env file upload.").Len())
}

// sendFailsOnce fails the first SendInput only, which is the env upload.
type sendFailsOnce struct {
	*fakeRemote
	failed bool
}

func (s *sendFailsOnce) SendInput(ctx context.Context, id models.ConsoleID, input string) error {
	if !s.failed {
		s.failed = true
		return errors.New("API Error: 500 - boom")
	}
	return s.fakeRemote.SendInput(ctx, id, input)
}

func TestDeploy_EnvUploadFailureContinues(t *testing.T) {
	remote := newRemote("Already up to date.")
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core).Sugar()
	scope := tally.NewTestScope("", nil)
	driver := console.New(&sendFailsOnce{fakeRemote: remote}, console.WithLogger(log))
	o := orchestrator.New(remote, driver, framework.NewRegistry(), orchestrator.WithLogger(log), orchestrator.WithScope(scope))

	d, err := o.Deploy(context.Background(), orchestrator.Request{Envs: "A=1"})
	require.NoError(t, err)

	assert.Equal(t, []string{pull, activate, install, migrate}, remote.sent)
	assert.Equal(t, models.StateDone, d.State)
	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Equal(t, "Error processing 'envs' input: API Error: 500 - boom", errs[0].Message)
	assert.EqualValues(t, 1, counter(scope, "deploy.env_upload_error"))
}

func TestDeploy_Metrics(t *testing.T) {
	scope := tally.NewTestScope("", nil)

	o, _ := newOrchestrator(newRemote("Already up to date."), orchestrator.WithScope(scope))
	_, err := o.Deploy(context.Background(), orchestrator.Request{})
	require.NoError(t, err)

	o, _ = newOrchestrator(newRemote("error: nope"), orchestrator.WithScope(scope))
	_, err = o.Deploy(context.Background(), orchestrator.Request{})
	require.Error(t, err)

	assert.EqualValues(t, 1, counter(scope, "deploy.success"))
	assert.EqualValues(t, 1, counter(scope, "deploy.failure"))
	for _, c := range scope.Snapshot().Counters() {
		switch c.Name() {
		case "deploy.success":
			assert.Equal(t, "django", c.Tags()["framework"])
		case "deploy.failure":
			assert.Equal(t, "generic_git_error", c.Tags()["outcome"])
		}
	}
}

func TestDeploy_FailureOutcomeTag(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	remote := newRemote()
	remote.apps = nil
	o, _ := newOrchestrator(remote, orchestrator.WithScope(scope))

	_, err := o.Deploy(context.Background(), orchestrator.Request{})
	require.Error(t, err)

	counters := scope.Snapshot().Counters()
	require.Len(t, counters, 1)
	for _, c := range counters {
		assert.Equal(t, "deploy.failure", c.Name())
		assert.Equal(t, "no_web_app", c.Tags()["outcome"])
	}
}

func counter(scope tally.TestScope, name string) int64 {
	var total int64
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name {
			total += c.Value()
		}
	}
	return total
}

func TestDeploy_RecordsHistory(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	remote := newRemote("Already up to date.")
	o, _ := newOrchestrator(remote, orchestrator.WithHistory(store))

	d, err := o.Deploy(context.Background(), orchestrator.Request{Framework: "django", Settings: "site.prod"})
	require.NoError(t, err)
	require.NotZero(t, d.ID)

	saved, err := store.GetDeployment(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, saved.State)
	assert.Equal(t, models.DeployStatusComplete, saved.Status)
	assert.Equal(t, "a.example.com", saved.DomainName)
	assert.Equal(t, d.RunID, saved.RunID)
	require.NotNil(t, saved.CompletedAt)

	invs, err := store.GetInvocations(d.ID)
	require.NoError(t, err)
	require.Len(t, invs, 5)
	assert.Equal(t, models.InvocationSend, invs[0].Kind)
	assert.Equal(t, "git -C /home/u/a pull", invs[0].Command)
	assert.Equal(t, models.InvocationFetch, invs[1].Kind)
	assert.Equal(t, "Already up to date.", invs[1].Output)
	assert.Equal(t, "python /home/u/a/manage.py migrate --settings=site.prod", invs[4].Command)
	for i, inv := range invs {
		assert.Equal(t, i+1, inv.SequenceNum)
		assert.Equal(t, models.InvocationComplete, inv.Status)
	}
}

type brokenHistory struct{}

func (brokenHistory) CreateDeployment(*models.Deployment) (int64, error) {
	return 0, errors.New("disk full")
}
func (brokenHistory) UpdateDeployment(*models.Deployment) error          { return nil }
func (brokenHistory) CreateInvocation(*models.Invocation) (int64, error) { return 0, nil }
func (brokenHistory) UpdateInvocation(*models.Invocation) error          { return nil }

func TestDeploy_HistoryFailureIsNotFatal(t *testing.T) {
	remote := newRemote("Already up to date.")
	o, logs := newOrchestrator(remote, orchestrator.WithHistory(brokenHistory{}))

	d, err := o.Deploy(context.Background(), orchestrator.Request{})
	require.NoError(t, err)
	assert.Zero(t, d.ID)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}
