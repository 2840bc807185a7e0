package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
)

// Fetcher retrieves the entry artifact published at a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (federation.Manifest, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, location string) (federation.Manifest, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, location string) (federation.Manifest, error) {
	return f(ctx, location)
}

// HTTPFetcherOptions configures an HTTPFetcher.
type HTTPFetcherOptions struct {
	// Client is the HTTP client, http.DefaultClient when nil
	Client *http.Client

	// Timeout bounds each attempt
	Timeout time.Duration

	// Retries is the number of extra attempts after a transient failure
	Retries uint64

	// InitialBackoff is the first retry delay
	InitialBackoff time.Duration

	Logger *zap.Logger
}

// HTTPFetcher fetches JSON manifests over HTTP.
type HTTPFetcher struct {
	opts HTTPFetcherOptions
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(opts HTTPFetcherOptions) *HTTPFetcher {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &HTTPFetcher{opts: opts}
}

// Fetch retrieves and decodes the manifest at location. Server errors and
// transport failures are retried; client errors and malformed manifests
// are not.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) (federation.Manifest, error) {
	var manifest federation.Manifest
	attempt := 0

	op := func() error {
		attempt++
		m, err := f.fetchOnce(ctx, location)
		if err != nil {
			f.opts.Logger.Debug("manifest fetch attempt failed",
				zap.String("location", location),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		manifest = m
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.opts.InitialBackoff
	b := backoff.WithContext(backoff.WithMaxRetries(policy, f.opts.Retries), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return federation.Manifest{}, err
	}
	return manifest, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, location string) (federation.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return federation.Manifest{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return federation.Manifest{}, fmt.Errorf("request %s: %w", location, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return federation.Manifest{}, fmt.Errorf("request %s: status %d", location, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return federation.Manifest{}, backoff.Permanent(fmt.Errorf("request %s: status %d", location, resp.StatusCode))
	}

	m, err := federation.DecodeManifest(resp.Body)
	if err != nil {
		return federation.Manifest{}, backoff.Permanent(err)
	}
	return m, nil
}

// StaticFetcher serves manifests of remotes compiled into the same binary.
// It is used when the shell runs with embedded remotes and in tests.
type StaticFetcher struct {
	mu        sync.RWMutex
	manifests map[string]federation.Manifest
}

// NewStaticFetcher creates an empty static fetcher.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{manifests: make(map[string]federation.Manifest)}
}

// Serve publishes m at location.
func (f *StaticFetcher) Serve(location string, m federation.Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[location] = m
}

// Fetch returns the manifest served at location.
func (f *StaticFetcher) Fetch(ctx context.Context, location string) (federation.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return federation.Manifest{}, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	m, ok := f.manifests[location]
	if !ok {
		return federation.Manifest{}, fmt.Errorf("no remote served at %s", location)
	}
	return m, nil
}
