package mindstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.mindstudio.ai"
	runPath        = "/developer/v2/agents/run"
)

// Worker calls exceeding this are aborted. Full analyses are long-running
// jobs on the worker side, so the ceiling is generous.
const defaultTimeout = 300 * time.Second

var (
	// ErrTimeout marks an outbound call aborted by its deadline.
	ErrTimeout = errors.New("mindstudio request timeout")
	// ErrUnavailable marks a non-success status or an unreachable worker.
	ErrUnavailable = errors.New("mindstudio unavailable")
)

// Dispatcher abstracts the external analysis worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResponse, error)
}

// DispatchRequest describes one worker invocation. An empty CallbackURL
// requests a synchronous reply embedded in the response instead of a later
// callback.
type DispatchRequest struct {
	WorkerID    string
	Workflow    string
	Variables   map[string]any
	CallbackURL string
}

// DispatchResponse is the worker's immediate reply. Result is set for
// synchronous dispatches; ThreadID identifies the job either way.
type DispatchResponse struct {
	ThreadID string
	Result   json.RawMessage
	Cost     json.RawMessage
}

// Client implements Dispatcher against the MindStudio HTTP API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a MindStudio client.
func NewClient(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("MINDSTUDIO_API_KEY is required")
	}
	timeout := defaultTimeout
	if raw := strings.TrimSpace(os.Getenv("MINDSTUDIO_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	baseURL := strings.TrimSpace(os.Getenv("MINDSTUDIO_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type runRequest struct {
	AppID       string         `json:"appId"`
	Workflow    string         `json:"workflow"`
	Variables   map[string]any `json:"variables"`
	CallbackURL string         `json:"callbackUrl,omitempty"`
}

type runResponse struct {
	ThreadID    string          `json:"threadId"`
	Result      json.RawMessage `json:"result,omitempty"`
	Thread      json.RawMessage `json:"thread,omitempty"`
	BillingCost json.RawMessage `json:"billingCost,omitempty"`
	Error       *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Dispatch invokes a worker workflow.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResponse, error) {
	if strings.TrimSpace(req.WorkerID) == "" {
		return DispatchResponse{}, fmt.Errorf("worker id is required")
	}

	payload, err := json.Marshal(runRequest{
		AppID:       req.WorkerID,
		Workflow:    req.Workflow,
		Variables:   req.Variables,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return DispatchResponse{}, fmt.Errorf("marshal dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runPath, bytes.NewReader(payload))
	if err != nil {
		return DispatchResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return DispatchResponse{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return DispatchResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return DispatchResponse{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DispatchResponse{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(body), 300))
	}

	var parsed runResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Some worker replies are the bare result payload.
		return DispatchResponse{Result: json.RawMessage(body)}, nil
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return DispatchResponse{}, fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error.Message)
	}

	out := DispatchResponse{
		ThreadID: parsed.ThreadID,
		Result:   parsed.Result,
		Cost:     parsed.BillingCost,
	}
	if len(out.Result) == 0 && len(parsed.Thread) > 0 {
		out.Result = parsed.Thread
	}
	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ Dispatcher = (*Client)(nil)
