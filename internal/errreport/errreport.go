// Package errreport reports the daemon's structural error classes
// (cluster misconfigured, role changed, minority partition) to Sentry when a
// DSN is configured. It never changes exit-code or propagation behavior —
// it is observability only.
package errreport

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter captures fatal daemon errors to Sentry. The zero value is a
// no-op reporter, so callers can construct it unconditionally and only pay
// for Sentry when a DSN is configured.
type Reporter struct {
	enabled bool
}

// New initializes the Sentry client for the given DSN. An empty DSN yields a
// disabled reporter whose Capture calls are no-ops.
func New(dsn string) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return nil, err
	}

	return &Reporter{enabled: true}, nil
}

// Capture reports err with the given tags (e.g. "kind": "role_changed") and
// blocks briefly for the event to flush, since the daemon typically exits
// immediately after a structural error.
func (r *Reporter) Capture(err error, tags map[string]string) {
	if r == nil || !r.enabled || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})

	sentry.Flush(2 * time.Second)
}
