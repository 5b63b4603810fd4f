// Package source contains the HTTP adapters for the external ad-insight and order providers.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/domain/workflow"
)

// defaultMaxResponseSize caps provider response bodies (20MB)
const defaultMaxResponseSize = 20 * 1024 * 1024

// DefaultRetryBackoff is the wait before each retry of a retryable failure
var DefaultRetryBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// Observer receives fetch outcomes, e.g. for metrics
type Observer interface {
	FetchRetried(ctx context.Context, provider integration.ProviderCode, status int)
	FetchFailed(ctx context.Context, provider integration.ProviderCode, status int)
}

type nopObserver struct{}

func (nopObserver) FetchRetried(context.Context, integration.ProviderCode, int) {}
func (nopObserver) FetchFailed(context.Context, integration.ProviderCode, int)  {}

// ClientOptions configures the shared HTTP behaviour of every adapter
type ClientOptions struct {
	HTTPClient      *http.Client
	Timeout         time.Duration
	RetryBackoff    []time.Duration
	MaxResponseSize int64
	Observer        Observer
	Logger          *zap.Logger
	// Sleep waits between retries; tests replace it to avoid real delays
	Sleep func(ctx context.Context, d time.Duration) error
}

// retryingDoer executes requests with the fixed backoff schedule
type retryingDoer struct {
	provider integration.ProviderCode
	http     *http.Client
	backoff  []time.Duration
	maxBody  int64
	observer Observer
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func newRetryingDoer(provider integration.ProviderCode, opts ClientOptions) *retryingDoer {
	d := &retryingDoer{
		provider: provider,
		http:     opts.HTTPClient,
		backoff:  opts.RetryBackoff,
		maxBody:  opts.MaxResponseSize,
		observer: opts.Observer,
		logger:   opts.Logger,
		sleep:    opts.Sleep,
	}
	if d.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		d.http = &http.Client{Timeout: timeout}
	}
	if d.backoff == nil {
		d.backoff = DefaultRetryBackoff
	}
	if d.maxBody <= 0 {
		d.maxBody = defaultMaxResponseSize
	}
	if d.observer == nil {
		d.observer = nopObserver{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.sleep == nil {
		d.sleep = sleepContext
	}
	d.logger = d.logger.Named("source").With(zap.String("provider", string(provider)))
	return d
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do performs a GET of url, retrying 429, 5xx and network errors.
// Exhausted or non-retryable failures are returned as *integration.FetchError.
func (d *retryingDoer) do(ctx context.Context, url, entityID string, date time.Time) ([]byte, error) {
	fe := &integration.FetchError{
		Provider: d.provider,
		EntityID: entityID,
		Date:     date.Format(workflow.DateLayout),
	}

	for attempt := 0; ; attempt++ {
		fe.Attempts = attempt + 1
		body, status, err := d.once(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fe.StatusCode = status
		fe.Err = err
		fe.Retryable = status == 0 || integration.IsRetryableStatus(status)
		if !fe.Retryable || attempt >= len(d.backoff) {
			d.observer.FetchFailed(ctx, d.provider, status)
			return nil, fe
		}

		d.observer.FetchRetried(ctx, d.provider, status)
		d.logger.Warn("retrying provider request",
			zap.String("entity_id", entityID),
			zap.Int("attempt", fe.Attempts),
			zap.Int("status", status),
			zap.Duration("backoff", d.backoff[attempt]),
			zap.Error(err))
		if err := d.sleep(ctx, d.backoff[attempt]); err != nil {
			return nil, err
		}
	}
}

// once performs a single request. status is 0 for transport failures.
func (d *retryingDoer) once(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", integration.ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", integration.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", integration.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, integration.ErrProviderRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, integration.ErrAuthFailed
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, fmt.Errorf("%w: HTTP %d", integration.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, fmt.Errorf("%w: HTTP %d: %s", integration.ErrRequestFailed, resp.StatusCode, truncate(body, 200))
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// resolveCredentials maps resolver failures to entity-level auth errors
func resolveCredentials(ctx context.Context, resolver integration.CredentialResolver, ref string) (*integration.Credentials, error) {
	creds, err := resolver.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, integration.ErrCredentialNotFound) || errors.Is(err, integration.ErrInvalidCredential) {
			return nil, fmt.Errorf("%w: %v", integration.ErrAuthFailed, err)
		}
		return nil, err
	}
	return creds, nil
}
