package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/backend/internal/metrics"
	"github.com/marketpulse/backend/pkg/circuitbreaker"
	"github.com/marketpulse/backend/pkg/logger"
	"github.com/marketpulse/backend/pkg/retry"
)

var (
	ErrEmptyResponse     = errors.New("inference: empty response")
	ErrMalformedResponse = errors.New("inference: malformed response")
)

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference: unexpected status %d: %s", e.Code, e.Body)
}

// Label is one ranked classification result.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Config struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retry      retry.Config
}

// Client calls hosted text-classification and zero-shot models over HTTP.
type Client struct {
	endpoint    string
	token       string
	timeout     time.Duration
	httpClient  *http.Client
	cb          *circuitbreaker.Breaker
	retryConfig retry.Config
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		}
	}
	cfg.Retry.Name = "huggingface"
	cfg.Retry.Logger = logger.GetLogger()

	cb := circuitbreaker.New("huggingface", circuitbreaker.Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Client{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		token:       cfg.Token,
		timeout:     cfg.Timeout,
		httpClient:  cfg.HTTPClient,
		cb:          cb,
		retryConfig: cfg.Retry,
	}
}

// TextClassification returns the model's labels ranked by score, highest
// first.
func (c *Client) TextClassification(ctx context.Context, model, text string) ([]Label, error) {
	body, err := c.post(ctx, "text_classification", model, map[string]any{"inputs": text})
	if err != nil {
		return nil, err
	}

	labels, err := decodeRanked(body)
	if err != nil {
		return nil, err
	}
	return labels, nil
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

// ZeroShot scores text against the candidate labels, highest first.
func (c *Client) ZeroShot(ctx context.Context, model, text string, candidates []string) ([]Label, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("inference: zero-shot requires candidate labels")
	}

	body, err := c.post(ctx, "zero_shot", model, zeroShotRequest{
		Inputs:     text,
		Parameters: zeroShotParameters{CandidateLabels: candidates, MultiLabel: false},
	})
	if err != nil {
		return nil, err
	}

	var parallel struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(body, &parallel); err == nil && parallel.Labels != nil {
		if len(parallel.Labels) != len(parallel.Scores) {
			return nil, fmt.Errorf("%w: %d labels but %d scores", ErrMalformedResponse, len(parallel.Labels), len(parallel.Scores))
		}
		if len(parallel.Labels) == 0 {
			return nil, ErrEmptyResponse
		}
		labels := make([]Label, len(parallel.Labels))
		for i := range parallel.Labels {
			labels[i] = Label{Label: parallel.Labels[i], Score: parallel.Scores[i]}
		}
		sortRanked(labels)
		return labels, nil
	}

	return decodeRanked(body)
}

func (c *Client) post(ctx context.Context, task, model string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", task, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var body []byte
	err = c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			var err error
			body, err = c.do(ctx, model, data)
			return err
		})
	})
	metrics.ObserveOracle(task, start, err)

	if err != nil {
		logger.Warn("Inference request failed",
			zap.String("task", task),
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, model string, data []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/models/%s", c.endpoint, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(statusErr)
		}
		return nil, statusErr
	}

	return body, nil
}

// decodeRanked accepts [[{label,score}]] and [{label,score}].
func decodeRanked(body []byte) ([]Label, error) {
	var nested [][]Label
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 || len(nested[0]) == 0 {
			return nil, ErrEmptyResponse
		}
		labels := append([]Label(nil), nested[0]...)
		sortRanked(labels)
		return labels, nil
	}

	var flat []Label
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(flat) == 0 {
		return nil, ErrEmptyResponse
	}
	sortRanked(flat)
	return flat, nil
}

func sortRanked(labels []Label) {
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Score > labels[j].Score })
}

func truncateBody(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
