package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// Client talks to a running scheduler's operator API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// APIError is a non-2xx response from the scheduler
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scheduler returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the scheduler at baseURL
func NewClient(baseURL string, logger arbor.ILogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// CreateSession submits a new batch
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Session fetches the full session snapshot
func (c *Client) Session(ctx context.Context) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, "/session", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Summary fetches the progress view
func (c *Client) Summary(ctx context.Context) (*models.SessionSummary, error) {
	var summary models.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/session?view=summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// SessionAction runs start, pause or reset
func (c *Client) SessionAction(ctx context.Context, action string) (*models.SessionSummary, error) {
	var summary models.SessionSummary
	if err := c.do(ctx, http.MethodPost, "/session/"+action, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Clear drops the session
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/session", nil, nil)
}

// WorkerAction runs pause, resume or reset on one worker
func (c *Client) WorkerAction(ctx context.Context, workerID, action string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/workers/%s/%s", workerID, action), nil, nil)
}

// JobAction runs retry or reset on one job
func (c *Client) JobAction(ctx context.Context, jobID, action string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%s/%s", jobID, action), nil, nil)
}

// RetryFailed requeues every failed job
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	var resp struct {
		Requeued int `json:"requeued"`
	}
	if err := c.do(ctx, http.MethodPost, "/jobs/retry-failed", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Requeued, nil
}

// FailedJobs lists failed jobs
func (c *Client) FailedJobs(ctx context.Context) ([]models.FailedJob, error) {
	var failed []models.FailedJob
	if err := c.do(ctx, http.MethodGet, "/jobs/failed", nil, &failed); err != nil {
		return nil, err
	}
	return failed, nil
}

// SendSignal posts an observer signal and returns accepted or duplicate
func (c *Client) SendSignal(ctx context.Context, signal models.Signal) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/signals", signal, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// AttachChannel binds a channel to the worker at index
func (c *Client) AttachChannel(ctx context.Context, workerIndex int, channelID string) error {
	return c.do(ctx, http.MethodPost, "/channels/attach", models.AttachChannelRequest{
		WorkerIndex: workerIndex,
		ChannelID:   channelID,
	}, nil)
}

// Health returns the scheduler's health and stats
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var health map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

// Watch streams events from the scheduler until ctx is done or the
// connection drops.
func (c *Client) Watch(ctx context.Context, handle func(eventType string, event models.Event)) error {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/events/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg struct {
			Type    string       `json:"type"`
			Payload models.Event `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		handle(msg.Type, msg.Payload)
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach scheduler: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(bodyBytes))
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("Scheduler request")

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
