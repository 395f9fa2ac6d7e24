package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"canopy/internal/metrics"
)

// Evaluator executes a deferred image expression and returns its raster
// result.
type Evaluator interface {
	Evaluate(ctx context.Context, img Image) (*Raster, error)
}

// Client is a bearer-token HTTP client for the imagery/query backend.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

// NewClient builds a Client for the backend at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("EE_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("EE_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}

// Evaluate posts the expression to the backend and decodes the raster
// result. Expression construction is free; this call is where cost and
// failures surface, including unknown asset names.
func (c *Client) Evaluate(ctx context.Context, img Image) (*Raster, error) {
	body, err := json.Marshal(map[string]any{"expression": img.Expr()})
	if err != nil {
		return nil, err
	}
	u := c.baseURL + "/v1/evaluate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	metrics.QueryEvaluations.WithLabelValues(img.Expr().Op).Inc()
	resp, err := c.doWithRetry(ctx, req, bytes.NewReader(body))
	if err != nil {
		metrics.QueryErrors.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	metrics.ObserveQueryDuration(start)
	if resp.StatusCode >= 400 {
		metrics.QueryErrors.Inc()
		var raw struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&raw)
		if raw.Error != "" {
			return nil, fmt.Errorf("backend status %d: %s", resp.StatusCode, raw.Error)
		}
		return nil, fmt.Errorf("backend status %d", resp.StatusCode)
	}
	var out Raster
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body *bytes.Reader) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry("earthengine")
		}
		_, _ = body.Seek(0, 0)
		r := req.Clone(ctx)
		r.Body = http.NoBody
		if body.Len() > 0 {
			r.Body = noopCloser{body}
		}
		resp, err := c.httpClient.Do(r)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

type noopCloser struct{ *bytes.Reader }

func (noopCloser) Close() error { return nil }

// newDefaultLimiter creates a rate limiter using env overrides if present.
func newDefaultLimiter() *rate.Limiter {
	rps := 2.0
	burst := 10
	if v := os.Getenv("EE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	if v := os.Getenv("EE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
