// Package console drives one remote console session: it types commands and
// polls the latest output. The remote side acknowledges input but never
// reports completion, so whether a command worked is decided later by
// classifying a fetched snapshot.
package console

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mpataki/padeploy/internal/metrics"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/mpataki/padeploy/internal/retry"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

const (
	DefaultFetchAttempts = 5
	DefaultFetchDelay    = 5 * time.Second
)

// Transport is the part of the API the driver needs.
type Transport interface {
	SendInput(ctx context.Context, id models.ConsoleID, input string) error
	LatestOutput(ctx context.Context, id models.ConsoleID) (string, error)
}

// Snapshot is the most recent output of a session. It may predate the last
// command sent.
type Snapshot struct {
	Output string
}

type Driver struct {
	api    Transport
	log    *zap.SugaredLogger
	scope  tally.Scope
	policy retry.Policy
}

type Option func(*Driver)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(d *Driver) {
		d.log = log
	}
}

func WithScope(scope tally.Scope) Option {
	return func(d *Driver) {
		d.scope = scope
	}
}

// WithFetchPolicy overrides the attempt count and delay between fetches.
func WithFetchPolicy(attempts int, delay time.Duration) Option {
	return func(d *Driver) {
		d.policy.MaxAttempts = attempts
		d.policy.Delay = delay
	}
}

// WithTimer replaces the timer used between fetch attempts, for tests.
func WithTimer(t backoff.Timer) Option {
	return func(d *Driver) {
		d.policy.Timer = t
	}
}

func New(api Transport, opts ...Option) *Driver {
	d := &Driver{
		api:   api,
		log:   zap.NewNop().Sugar(),
		scope: tally.NoopScope,
		policy: retry.Policy{
			MaxAttempts: DefaultFetchAttempts,
			Delay:       DefaultFetchDelay,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.scope = d.scope.SubScope("console")
	return d
}

// Send types command followed by a newline into the session. Success means
// the API accepted the input, not that the command ran.
func (d *Driver) Send(ctx context.Context, id models.ConsoleID, command, label string) error {
	d.log.Infof("Running command: %s", command)
	if err := d.api.SendInput(ctx, id, command+"\n"); err != nil {
		return err
	}
	d.scope.Counter(metrics.CommandsSentMetric).Inc(1)
	d.log.Info(label)
	return nil
}

// LatestOutput fetches the session's output, retrying any API failure with a
// fixed delay. The output itself never triggers a retry.
func (d *Driver) LatestOutput(ctx context.Context, id models.ConsoleID, label string) (Snapshot, error) {
	policy := d.policy
	policy.Notify = func(attempt int, err error, next time.Duration) {
		d.scope.Counter(metrics.FetchRetriesMetric).Inc(1)
		d.log.Infof("Attempt %d failed to get console output. Retrying in %s...", attempt, next)
		d.log.Debugf("console output fetch error: %s", err)
	}

	var output string
	attempts, err := policy.Do(ctx, func(int) error {
		d.scope.Counter(metrics.FetchAttemptsMetric).Inc(1)
		var err error
		output, err = d.api.LatestOutput(ctx, id)
		return err
	})
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "Failed to get console output after %d attempts", attempts)
	}

	d.log.Info(label)
	return Snapshot{Output: output}, nil
}
