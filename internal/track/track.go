package track

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"canopy/internal/metrics"
)

// RunConfig is the metadata bundle recorded when a run is initialized.
type RunConfig struct {
	Project   string         `json:"project"`
	Entity    string         `json:"entity,omitempty"`
	Name      string         `json:"name"`
	Dataset   string         `json:"dataset"`
	Model     string         `json:"model"`
	Bands     []string       `json:"bands"`
	Label     string         `json:"label"`
	BatchSize int            `json:"batch_size"`
	LearnRate float64        `json:"learn_rate"`
	Epochs    int            `json:"epochs"`
	NTrain    int            `json:"n_train"`
	NVal      int            `json:"n_val"`
	Augmenter string         `json:"augmenter,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	// AllowDuplicate lets the service accept a run whose config matches an
	// existing one instead of rejecting it.
	AllowDuplicate bool `json:"allow_duplicate"`
}

// Tracker is the experiment tracking surface the orchestrator uses.
type Tracker interface {
	InitRun(ctx context.Context, cfg RunConfig) error
	LogMetrics(ctx context.Context, step int, vals map[string]float64) error
	LogImage(ctx context.Context, name string, png []byte) error
	UpdateSummary(ctx context.Context, summary map[string]any) error
	Alert(ctx context.Context, title, text string) error
	Finish(ctx context.Context, status string) error
}

// Client is a bearer-token HTTP client for the tracking service.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration

	runID string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 10),
		maxAttempts: 4,
		baseBackoff: 300 * time.Millisecond,
	}
}

// RunID returns the identifier of the active run, empty before InitRun.
func (c *Client) RunID() string { return c.runID }

// InitRun registers a new run with its metadata bundle. The run ID is
// generated client-side so retries stay idempotent.
func (c *Client) InitRun(ctx context.Context, cfg RunConfig) error {
	id := uuid.NewString()
	if err := c.postJSON(ctx, "/api/runs", map[string]any{"id": id, "config": cfg}); err != nil {
		return err
	}
	c.runID = id
	return nil
}

// LogMetrics records per-epoch metric values at a step.
func (c *Client) LogMetrics(ctx context.Context, step int, vals map[string]float64) error {
	if c.runID == "" {
		return errors.New("track: no active run")
	}
	return c.postJSON(ctx, "/api/runs/"+c.runID+"/metrics", map[string]any{"step": step, "metrics": vals})
}

// LogImage uploads a PNG artifact under the given name.
func (c *Client) LogImage(ctx context.Context, name string, png []byte) error {
	if c.runID == "" {
		return errors.New("track: no active run")
	}
	u := c.baseURL + "/api/runs/" + c.runID + "/files/" + name
	return c.do(ctx, http.MethodPost, u, "image/png", png)
}

// UpdateSummary merges one-shot end-of-run values into the run summary.
func (c *Client) UpdateSummary(ctx context.Context, summary map[string]any) error {
	if c.runID == "" {
		return errors.New("track: no active run")
	}
	return c.postJSON(ctx, "/api/runs/"+c.runID+"/summary", summary)
}

// Alert sends a human-readable notification tied to the run.
func (c *Client) Alert(ctx context.Context, title, text string) error {
	if c.runID == "" {
		return errors.New("track: no active run")
	}
	return c.postJSON(ctx, "/api/alerts", map[string]any{"run_id": c.runID, "title": title, "text": text})
}

// Finish marks the run complete with a terminal status.
func (c *Client) Finish(ctx context.Context, status string) error {
	if c.runID == "" {
		return errors.New("track: no active run")
	}
	return c.postJSON(ctx, "/api/runs/"+c.runID+"/finish", map[string]any{"status": status})
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, "application/json", b)
}

func (c *Client) do(ctx context.Context, method, u, contentType string, body []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry("track")
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("Content-Type", contentType)
		resp, err := c.httpClient.Do(req)
		if err == nil {
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			if !retryable {
				defer resp.Body.Close()
				if resp.StatusCode >= 400 {
					var raw struct {
						Error string `json:"error"`
					}
					_ = json.NewDecoder(resp.Body).Decode(&raw)
					if raw.Error != "" {
						return fmt.Errorf("track: status %d: %s", resp.StatusCode, raw.Error)
					}
					return fmt.Errorf("track: status %d", resp.StatusCode)
				}
				return nil
			}
			lastErr = fmt.Errorf("track: status %d", resp.StatusCode)
			_ = resp.Body.Close()
		} else {
			lastErr = err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("track: request failed after %d attempts: %v", c.maxAttempts, lastErr)
}
