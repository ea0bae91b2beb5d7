package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	apiKeyHeader = "x-api-key"
	maxBody      = 1 << 20
)

var ErrMalformedResponse = errors.New("malformed render response")

// HTTPError is returned for any non-2xx answer from the render service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("render service: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is on the service side.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Job status values reported by the render service.
const (
	StatusQueued    = "queued"
	StatusFetching  = "fetching"
	StatusRendering = "rendering"
	StatusSaving    = "saving"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// JobStatus is the state of one render job.
type JobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Settled reports whether the job reached a terminal state.
func (s JobStatus) Settled() bool {
	return s.Status == StatusDone || s.Status == StatusFailed
}

// Client talks to a Shotstack-style render endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(baseURL, apiKey string, log logrus.FieldLogger) *Client {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.WithField("component", "render"),
	}
}

// Submit queues edit for rendering and returns the job id.
func (c *Client) Submit(ctx context.Context, edit Edit) (string, error) {
	body, err := json.Marshal(edit)
	if err != nil {
		return "", fmt.Errorf("marshal edit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out submitResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.Response == nil || out.Response.ID == "" {
		return "", fmt.Errorf("%w: missing job id", ErrMalformedResponse)
	}

	c.log.WithFields(logrus.Fields{
		"job_id": out.Response.ID,
		"tracks": len(edit.Timeline.Tracks),
	}).Info("render submitted")
	return out.Response.ID, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, id string) (JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/render/"+url.PathEscape(id), nil)
	if err != nil {
		return JobStatus{}, fmt.Errorf("create request: %w", err)
	}

	var out statusResponse
	if err := c.do(req, &out); err != nil {
		return JobStatus{}, err
	}
	if out.Response == nil || out.Response.Status == "" {
		return JobStatus{}, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}

	r := out.Response
	return JobStatus{ID: id, Status: r.Status, URL: r.URL, Error: r.Error}, nil
}

func (c *Client) do(req *http.Request, v any) error {
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read render response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
