package deployment

import (
	"context"
	"log/slog"
	"time"
)

// Poller repeatedly evaluates a remote status predicate at a fixed interval
// until it holds or the timeout elapses. Cloud provisioning APIs are
// eventually consistent, so a single check is unreliable and probe errors are
// treated as transient.
type Poller struct {
	Timeout  time.Duration
	Interval time.Duration
	Log      *slog.Logger
}

// WaitUntil invokes probe at the poller's interval until it returns true, the
// timeout elapses, or ctx is cancelled. It returns true the moment the
// condition holds and false otherwise; it never returns an error. Errors from
// probe are swallowed and the poll retried.
func (p Poller) WaitUntil(ctx context.Context, probe func(context.Context) (bool, error)) bool {
	start := time.Now()
	for time.Since(start) < p.Timeout {
		ok, err := probe(ctx)
		if err != nil {
			if p.Log != nil {
				p.Log.Debug("Status probe failed, retrying", "err", err)
			}
		} else if ok {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.Interval):
		}
	}
	return false
}
