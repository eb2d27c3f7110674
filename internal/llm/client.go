package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/pkg/circuitbreaker"
	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/retry"
)

var ErrEmptyCompletion = errors.New("llm: empty completion")

// Generator produces free-form text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider is one vendor backend. Implementations make a single attempt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Timeout time.Duration
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// Client wraps a Provider with a per-call timeout, retries and a circuit
// breaker.
type Client struct {
	provider    Provider
	timeout     time.Duration
	cb          *circuitbreaker.Breaker
	retryConfig retry.Config
}

func NewClient(provider Provider, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Config{
			MaxAttempts:    2,
			InitialDelay:   time.Second,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		}
	}
	opts.Retry.Name = "llm." + provider.Name()
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger.GetLogger()
	}

	breaker := opts.Breaker
	if breaker.FailureThreshold == 0 {
		breaker.FailureThreshold = 3
	}
	if breaker.OpenTimeout == 0 {
		breaker.OpenTimeout = time.Minute
	}
	if breaker.Logger == nil {
		breaker.Logger = logger.GetLogger()
	}
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(name string, from, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		}
	}

	logger.Info("LLM client initialized", zap.String("provider", provider.Name()))

	return &Client{
		provider:    provider,
		timeout:     opts.Timeout,
		cb:          circuitbreaker.New("llm."+provider.Name(), breaker),
		retryConfig: opts.Retry,
	}
}

func (c *Client) Provider() string {
	return c.provider.Name()
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var text string
	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			out, err := c.provider.Complete(ctx, prompt)
			if err != nil {
				return err
			}
			if strings.TrimSpace(out) == "" {
				return ErrEmptyCompletion
			}
			text = out
			return nil
		})
	})
	metrics.ObserveOracle("generate", start, err)

	if err != nil {
		return "", fmt.Errorf("%s generation failed: %w", c.provider.Name(), err)
	}

	logger.Debug("LLM completion generated",
		zap.String("provider", c.provider.Name()),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
