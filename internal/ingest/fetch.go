// Package ingest fetches weather and pollutant observations from upstream
// providers, merges them with what the store already holds, and persists
// the per-date result atomically.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/lox/aqicast/internal/metrics"
)

// FetchResult carries fetch telemetry for ingest-run auditing.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
}

// fetchJSON GETs url with retries behind the provider's circuit breaker.
// 429 and 5xx responses are retried with exponential backoff; other non-200
// statuses fail immediately, as does an open breaker.
func fetchJSON(client *http.Client, cb *gobreaker.CircuitBreaker, source, endpoint, url string) ([]byte, *FetchResult, error) {
	result := &FetchResult{}
	var body []byte

	operation := func() error {
		start := time.Now()
		raw, err := cb.Execute(func() (interface{}, error) {
			resp, err := client.Get(url)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			result.HTTPStatus = resp.StatusCode
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return nil, backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
			}

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			return b, nil
		})
		metrics.ProviderLatency.WithLabelValues(source, endpoint).Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("circuit open for %s: %w", source, err))
			}
			return err
		}

		body = raw.([]byte)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	err := backoff.Retry(operation, bo)

	metrics.ProviderCallsTotal.WithLabelValues(source, endpoint, strconv.Itoa(result.HTTPStatus)).Inc()
	if err != nil {
		return nil, result, err
	}

	result.ResponseSize = len(body)
	return body, result, nil
}
