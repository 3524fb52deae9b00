package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultFetchDelay is the flat pause after every fetch.
const DefaultFetchDelay = time.Second

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration)

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithSleep replaces the delay implementation. Tests use it to observe pacing.
func WithSleep(fn SleepFunc) FetcherOption {
	return func(f *Fetcher) { f.sleep = fn }
}

// Fetcher downloads raw file content one URL at a time.
type Fetcher struct {
	client *http.Client
	delay  time.Duration
	sleep  SleepFunc
	log    *slog.Logger
}

// NewFetcher creates a Fetcher that waits delay after every request.
func NewFetcher(client *http.Client, delay time.Duration, log *slog.Logger, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{client: client, delay: delay, sleep: contextSleep, log: log}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs url and returns the body. Any transport failure or non-2xx status
// is returned as a *NetworkError. The configured delay is applied afterwards
// regardless of the outcome.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	defer f.sleep(ctx, f.delay)

	f.log.Info("fetching content", "url", url)
	body, err := f.get(ctx, url)
	if err != nil {
		f.log.Error("fetch failed", "url", url, "error", err)
		return nil, err
	}
	f.log.Info("fetched content", "url", url, "bytes", len(body))
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { //nolint:errcheck // response body close errors are non-actionable after reading
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func contextSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
