package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/retry"
)

var ErrStatus = errors.New("sources: unexpected status")

// fetcher is the HTTP plumbing shared by the adapters.
type fetcher struct {
	name        string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
}

func newFetcher(name string, httpClient *http.Client, timeout time.Duration, perMinute int) *fetcher {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}

	return &fetcher{
		name:       name,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		retryConfig: retry.Config{
			Name:           "source." + name,
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// getJSON GETs rawURL and decodes the body into dest with UseNumber.
func (f *fetcher) getJSON(ctx context.Context, rawURL string, dest any) error {
	return retry.Do(ctx, f.retryConfig, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to build %s request: %w", f.name, err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "marketpulse/1.0")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", f.name, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", f.name, err)
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode, f.name)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(statusErr)
			}
			return statusErr
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(dest); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode %s response: %w", f.name, err))
		}
		return nil
	})
}
