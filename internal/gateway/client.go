// Package gateway implements the streaming request/response client for
// the remote workflow gateway.
//
// The gateway speaks a split-channel protocol: a long-lived, one-way
// event stream carries results, while requests are POSTed to a
// session-scoped submission URL announced as the stream's first
// control event. A call therefore is: open stream, wait for the
// endpoint event, POST one JSON-RPC request, then keep reading the
// stream until an event whose correlation id matches, or the deadline
// passes. The submission POST must never be issued before the endpoint
// event has been observed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds a full call: stream open, endpoint discovery,
// submission and result wait all share this one deadline.
const DefaultTimeout = 25 * time.Second

// Sentinel errors. ErrTimeout is distinguished from other transport
// failures so callers can phrase "this took too long" rather than
// "this is broken".
var (
	ErrTimeout     = errors.New("gateway: call timed out")
	ErrStreamEnded = errors.New("gateway: stream ended before result")
)

// Result is the matched response for one call.
type Result struct {
	CorrelationID string
	// Raw is the decoded JSON-RPC result value, shape unknown.
	Raw any
	// FallbackText carries any plain-text content found next to the
	// structured result, for the normalizer's text fallback.
	FallbackText string
}

// Config contains the parameters for a gateway Client.
type Config struct {
	// BaseURL is the stream endpoint (GET).
	BaseURL string
	// AuthHeader / AuthValue are the deployment-configured
	// authentication header. Empty AuthHeader disables auth.
	AuthHeader string
	AuthValue  string
	// Timeout bounds one whole call. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues correlated tool calls over the gateway stream. The
// client itself is stateless and safe for concurrent use; each Call
// owns its own stream.
type Client struct {
	baseURL    string
	authHeader string
	authValue  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a gateway client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		authHeader: cfg.AuthHeader,
		authValue:  cfg.AuthValue,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// rpcRequest is the JSON-RPC shaped submission body.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call invokes toolName with args and blocks until the correlated
// result arrives on the stream, the stream ends, or the timeout
// elapses. A fresh correlation id is generated per physical call, even
// for logically identical retries.
//
// The stream body is closed on every exit path; the context deadline
// aborts both the read loop and the underlying connection.
func (c *Client) Call(ctx context.Context, toolName string, args map[string]any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	correlationID := uuid.NewString()
	start := time.Now()

	stream, err := c.openStream(ctx)
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("failed to open session: %w", err))
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			c.logger.Debug("closing gateway stream", "error", cerr)
		}
	}()

	reader := newEventReader(stream)

	// The gateway announces the session-scoped submission path as the
	// first control event. Submitting before it arrives is undefined
	// behavior on the gateway side.
	submitURL, err := c.awaitEndpoint(ctx, reader)
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	if err := c.submit(ctx, submitURL, correlationID, toolName, args); err != nil {
		return nil, c.classify(ctx, err)
	}

	res, err := c.awaitResult(ctx, reader, correlationID)
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	c.logger.Debug("gateway call completed",
		"tool", toolName,
		"correlation_id", correlationID,
		"elapsed", time.Since(start))
	return res, nil
}

// openStream opens the one-way event stream.
func (c *Client) openStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("open stream: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// awaitEndpoint reads events until the endpoint announcement and
// resolves the advertised path against the base URL.
func (c *Client) awaitEndpoint(_ context.Context, reader *eventReader) (string, error) {
	for {
		ev, err := reader.next()
		if err != nil {
			return "", fmt.Errorf("reading stream before endpoint event: %w", err)
		}
		switch ev.name {
		case eventEndpoint:
			base, err := url.Parse(c.baseURL)
			if err != nil {
				return "", fmt.Errorf("parse base URL: %w", err)
			}
			ref, err := url.Parse(strings.TrimSpace(ev.data))
			if err != nil {
				return "", fmt.Errorf("parse endpoint path %q: %w", ev.data, err)
			}
			return base.ResolveReference(ref).String(), nil
		case eventError:
			return "", fmt.Errorf("gateway error before endpoint: %s", ev.data)
		case eventDone:
			return "", ErrStreamEnded
		default:
			// Unrelated events before the endpoint announcement are
			// ignored; arrival order of non-control events is not
			// guaranteed.
		}
	}
}

// submit POSTs the JSON-RPC request to the session submission URL. The
// response body is an acknowledgement only (often empty); the real
// result arrives on the stream.
func (c *Client) submit(ctx context.Context, submitURL, correlationID, toolName string, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      correlationID,
		Method:  "tools/call",
		Params:  rpcParams{Name: toolName, Arguments: args},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("submit request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// awaitResult consumes the stream until the event whose JSON-RPC id
// matches correlationID. Unrelated messages are skipped: arrival order
// does not reflect request order.
func (c *Client) awaitResult(_ context.Context, reader *eventReader, correlationID string) (*Result, error) {
	for {
		ev, err := reader.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrStreamEnded
			}
			return nil, fmt.Errorf("reading stream: %w", err)
		}

		switch ev.name {
		case eventMessage:
			var resp rpcResponse
			if err := json.Unmarshal([]byte(ev.data), &resp); err != nil {
				c.logger.Debug("skipping malformed stream message", "error", err)
				continue
			}
			if resp.ID != correlationID {
				continue
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("gateway tool error %d: %s", resp.Error.Code, resp.Error.Message)
			}
			return decodeResult(correlationID, resp.Result)
		case eventError:
			return nil, fmt.Errorf("gateway stream error: %s", ev.data)
		case eventDone:
			return nil, ErrStreamEnded
		}
	}
}

// decodeResult unpacks the raw JSON-RPC result and collects any plain
// text sitting next to the structured payload for the normalizer's
// fallback path.
func decodeResult(correlationID string, raw json.RawMessage) (*Result, error) {
	res := &Result{CorrelationID: correlationID}
	if len(raw) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(raw, &res.Raw); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	res.FallbackText = fallbackText(res.Raw)
	return res, nil
}

func fallbackText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		content, ok := val["content"].([]any)
		if !ok {
			return ""
		}
		var parts []string
		for _, item := range content {
			if obj, ok := item.(map[string]any); ok {
				if text, ok := obj["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// classify maps a failure to the timeout sentinel when the deadline
// was the cause, preserving the original error in the chain.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
