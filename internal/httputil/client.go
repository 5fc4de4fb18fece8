// Package httputil holds the shared HTTP client and circuit breaker
// configuration used by every upstream provider.
package httputil

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// NewBreaker returns a circuit breaker for one upstream provider. The
// breaker opens after five consecutive failures and probes again after
// a minute, so a dead upstream does not stall every ingest cycle on
// full retry loops.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
