// Package client is the Go client for the scenarioflow REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"scenarioflow/pkg/api/dto"
)

var (
	// ErrRequestInFlight is returned when a cancel or retry for the same
	// entry is already on the wire. These operations are single-flight:
	// the UI disables the control instead of queueing duplicates.
	ErrRequestInFlight = errors.New("request already in flight for this entry")
)

// APIError is a non-2xx response decoded into its error body
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// GraphValidationError is a 400 carrying the full list of graph findings
type GraphValidationError struct {
	Errors []dto.GraphErrorDTO
}

func (e *GraphValidationError) Error() string {
	return fmt.Sprintf("scenario graph rejected with %d findings", len(e.Errors))
}

// Client talks to the scenarioflow REST API. It is safe for concurrent
// use.
type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[string]bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the API at baseURL, authenticating with the
// given bearer credential.
func New(baseURL, credential string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		inflight:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListScenarios fetches the caller's scenarios
func (c *Client) ListScenarios(ctx context.Context) ([]dto.ScenarioResponse, error) {
	var resp dto.ScenarioListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/scenarios", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Scenarios, nil
}

// GetScenario fetches one scenario by ID
func (c *Client) GetScenario(ctx context.Context, id string) (*dto.ScenarioResponse, error) {
	var resp dto.ScenarioResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/scenarios/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateScenario validates and saves a new scenario. A rejected graph
// surfaces as *GraphValidationError with every finding.
func (c *Client) CreateScenario(ctx context.Context, req dto.SaveScenarioRequest) (*dto.ScenarioResponse, error) {
	var resp dto.ScenarioResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/scenarios", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReplaceScenario saves the full document over an existing scenario
func (c *Client) ReplaceScenario(ctx context.Context, id string, req dto.SaveScenarioRequest) (*dto.ScenarioResponse, error) {
	var resp dto.ScenarioResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/scenarios/"+id, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteScenario removes a scenario
func (c *Client) DeleteScenario(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/scenarios/"+id, nil, nil)
}

// SetScenarioActive toggles scenario automation. This is the one
// control the UI may flip optimistically; on error the caller reverts.
func (c *Client) SetScenarioActive(ctx context.Context, id string, active bool) (*dto.ScenarioResponse, error) {
	var resp dto.ScenarioResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/scenarios/"+id+"/active", dto.SetActiveRequest{IsActive: active}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunScenario starts a run immediately, ignoring the schedule
func (c *Client) RunScenario(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/scenarios/"+id+"/run", nil, nil)
}

// TaskHistory fetches one page of the caller's task history
func (c *Client) TaskHistory(ctx context.Context, page, pageSize int) (*dto.TaskHistoryListResponse, error) {
	path := "/api/v1/tasks?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)
	var resp dto.TaskHistoryListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LaunchAction runs one action outside any scenario
func (c *Client) LaunchAction(ctx context.Context, req dto.LaunchActionRequest) (*dto.TaskHistoryEntryResponse, error) {
	var resp dto.TaskHistoryEntryResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelTask requests a cancel for the entry. The entry's displayed
// status only changes when the resulting push event arrives; a second
// cancel while one is on the wire returns ErrRequestInFlight.
func (c *Client) CancelTask(ctx context.Context, entryID string) (*dto.TaskHistoryEntryResponse, error) {
	return c.singleFlight(ctx, "cancel", entryID)
}

// RetryTask requests a retry of a failed entry, with the same
// single-flight guard as CancelTask.
func (c *Client) RetryTask(ctx context.Context, entryID string) (*dto.TaskHistoryEntryResponse, error) {
	return c.singleFlight(ctx, "retry", entryID)
}

// Notifications fetches the notification list and unread count
func (c *Client) Notifications(ctx context.Context) (*dto.NotificationListResponse, error) {
	var resp dto.NotificationListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkNotificationsRead marks every notification read
func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications/read", nil, nil)
}

func (c *Client) singleFlight(ctx context.Context, op, entryID string) (*dto.TaskHistoryEntryResponse, error) {
	key := op + ":" + entryID

	c.mu.Lock()
	if c.inflight[key] {
		c.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	c.inflight[key] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	var resp dto.TaskHistoryEntryResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+entryID+"/"+op, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	if status == http.StatusBadRequest {
		var v dto.ValidationErrorResponse
		if err := json.Unmarshal(data, &v); err == nil && len(v.Errors) > 0 {
			return &GraphValidationError{Errors: v.Errors}
		}
	}
	var e dto.ErrorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return &APIError{StatusCode: status, Code: e.Code, Message: e.Message}
	}
	return &APIError{StatusCode: status, Message: string(data)}
}
