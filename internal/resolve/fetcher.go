package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	fetchTimeout  = 8 * time.Second
	maxBodyBytes  = 2 << 20 // 2MB
	browserUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	breakerName   = "scrape"
	breakerFails  = 5
	breakerReopen = 60 * time.Second
)

// Fetcher retrieves raw page bytes for a URL. The pipeline consumes it
// as a black box so tests can substitute canned pages.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches pages over HTTP with a browser User-Agent, a hard
// timeout, and a circuit breaker so a dead upstream fails fast during
// the startup sweep instead of burning the full timeout per warrant.
type HTTPFetcher struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewHTTPFetcher creates a fetcher with the default scrape timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = fetchTimeout
	}

	st := gobreaker.Settings{Name: breakerName}
	st.Timeout = breakerReopen
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= breakerFails
	}

	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// Get fetches the URL and returns the body. Non-2xx statuses, transport
// errors, and an open breaker all surface as errors; the pipeline treats
// any of them as a resolution failure for that source.
func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	body, err := f.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: create request: %w", err)
		}
		req.Header.Set("User-Agent", browserUA)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: read body: %w", url, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}
