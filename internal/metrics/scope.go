package metrics

import (
	"io"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	tallystatsd "github.com/uber-go/tally/v4/statsd"
)

const prefix = "padeploy"

// NewScope builds the root metrics scope. Without a statsd address metrics
// are still collected but never reported.
func NewScope(statsdAddr string) (tally.Scope, io.Closer, error) {
	reporter, err := newReporter(statsdAddr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stats reporter")
	}

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   prefix,
		Reporter: reporter,
	}, time.Second)
	return scope, closer, nil
}

func newReporter(addr string) (tally.StatsReporter, error) {
	if addr == "" {
		return nil, nil
	}

	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: addr,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initializing statsd client")
	}

	return tallystatsd.NewReporter(client, tallystatsd.Options{}), nil
}
