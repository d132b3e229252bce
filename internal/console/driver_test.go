package console_test

import (
	"context"
	"testing"
	"time"

	"github.com/mpataki/padeploy/internal/console"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeAPI fails LatestOutput for the first failures calls.
type fakeAPI struct {
	inputs    []string
	sendErr   error
	failures  int
	fetches   int
	output    string
	fetchErrs []error
}

func (f *fakeAPI) SendInput(_ context.Context, _ models.ConsoleID, input string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.inputs = append(f.inputs, input)
	return nil
}

func (f *fakeAPI) LatestOutput(_ context.Context, _ models.ConsoleID) (string, error) {
	f.fetches++
	if f.fetches <= f.failures {
		err := errors.Errorf("API Error: 503 - attempt %d", f.fetches)
		f.fetchErrs = append(f.fetchErrs, err)
		return "", err
	}
	return f.output, nil
}

type fakeTimer struct {
	c      chan time.Time
	delays []time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func TestDriver_Send(t *testing.T) {
	api := &fakeAPI{}
	core, logs := observer.New(zapcore.InfoLevel)
	scope := tally.NewTestScope("test", nil)
	d := console.New(api, console.WithLogger(zap.New(core).Sugar()), console.WithScope(scope))

	err := d.Send(context.Background(), "1", "git -C /home/u/a pull", "Checking repository status...")

	require.NoError(t, err)
	assert.Equal(t, []string{"git -C /home/u/a pull\n"}, api.inputs)
	messages := []string{}
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	assert.Equal(t, []string{"Running command: git -C /home/u/a pull", "Checking repository status..."}, messages)
	assert.Equal(t, int64(1), scope.Snapshot().Counters()["test.console.commands_sent+"].Value())
}

func TestDriver_SendError(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("API Error: 400 - bad console")}
	d := console.New(api)

	err := d.Send(context.Background(), "1", "ls", "listed")

	assert.EqualError(t, err, "API Error: 400 - bad console")
}

func TestDriver_LatestOutput_FirstAttempt(t *testing.T) {
	api := &fakeAPI{output: "Already up to date."}
	timer := newFakeTimer()
	d := console.New(api, console.WithTimer(timer))

	snap, err := d.LatestOutput(context.Background(), "1", "Git Pull completed.")

	require.NoError(t, err)
	assert.Equal(t, "Already up to date.", snap.Output)
	assert.Equal(t, 1, api.fetches)
	assert.Empty(t, timer.delays)
}

func TestDriver_LatestOutput_RecoversOnThirdAttempt(t *testing.T) {
	api := &fakeAPI{failures: 2, output: "third time lucky"}
	timer := newFakeTimer()
	scope := tally.NewTestScope("test", nil)
	core, logs := observer.New(zapcore.InfoLevel)
	d := console.New(api,
		console.WithTimer(timer),
		console.WithScope(scope),
		console.WithLogger(zap.New(core).Sugar()))

	snap, err := d.LatestOutput(context.Background(), "1", "Alembic check completed.")

	require.NoError(t, err)
	assert.Equal(t, "third time lucky", snap.Output)
	assert.Equal(t, 3, api.fetches)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, timer.delays)
	assert.Equal(t, int64(2), scope.Snapshot().Counters()["test.console.fetch_retries+"].Value())
	assert.Equal(t, 1, logs.FilterMessage("Attempt 1 failed to get console output. Retrying in 5s...").Len())
	assert.Equal(t, 1, logs.FilterMessage("Alembic check completed.").Len())
}

func TestDriver_LatestOutput_GivesUpAfterFiveAttempts(t *testing.T) {
	api := &fakeAPI{failures: 100}
	timer := newFakeTimer()
	d := console.New(api, console.WithTimer(timer))

	_, err := d.LatestOutput(context.Background(), "1", "never logged")

	require.Error(t, err)
	assert.Equal(t, 5, api.fetches)
	assert.Len(t, timer.delays, 4)
	assert.EqualError(t, err, "Failed to get console output after 5 attempts: API Error: 503 - attempt 5")
	assert.Equal(t, api.fetchErrs[4], errors.Cause(err))
}

func TestDriver_LatestOutput_CustomPolicy(t *testing.T) {
	api := &fakeAPI{failures: 100}
	timer := newFakeTimer()
	d := console.New(api, console.WithTimer(timer), console.WithFetchPolicy(2, time.Millisecond))

	_, err := d.LatestOutput(context.Background(), "1", "")

	assert.EqualError(t, err, "Failed to get console output after 2 attempts: API Error: 503 - attempt 2")
	assert.Equal(t, []time.Duration{time.Millisecond}, timer.delays)
}
