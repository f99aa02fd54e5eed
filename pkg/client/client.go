// Package client provides the Go SDK for the AI Action Ledger API: event
// submission, chain verification, event listing, and the content-hashing
// helper callers use to commit to payloads before submission.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ZeroDigest is the canonical "absent content" sentinel: submit it (or leave
// the field empty) when an event has no input or no output yet.
const ZeroDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// apiPrefix is the mount point of the authenticated ledger endpoints.
// /health sits outside it.
const apiPrefix = "/api/v1"

// Event is one stored ledger record as returned by the API. The server
// assigns EventID, SequenceNumber, Timestamp and LinkHash.
type Event struct {
	EventID        string    `json:"event_id"`
	AgentID        string    `json:"agent_id"`
	SequenceNumber int64     `json:"sequence_number"`
	ActionType     string    `json:"action_type"`
	InputHash      string    `json:"input_hash"`
	OutputHash     string    `json:"output_hash"`
	ToolName       string    `json:"tool_name,omitempty"`
	Environment    string    `json:"environment,omitempty"`
	ModelVersion   string    `json:"model_version,omitempty"`
	PromptVersion  string    `json:"prompt_version,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	LinkHash       string    `json:"link_hash"`
}

// EventSubmission is the payload for LogEvent. AgentID and ActionType are
// required; empty digests mean "not applicable".
type EventSubmission struct {
	AgentID       string `json:"agent_id"`
	ActionType    string `json:"action_type"`
	InputHash     string `json:"input_hash,omitempty"`
	OutputHash    string `json:"output_hash,omitempty"`
	ToolName      string `json:"tool_name,omitempty"`
	Environment   string `json:"environment,omitempty"`
	ModelVersion  string `json:"model_version,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
}

// VerificationResult reports the outcome of VerifyChain.
type VerificationResult struct {
	AgentID              string `json:"agent_id"`
	IsValid              bool   `json:"is_valid"`
	EventsChecked        int    `json:"events_checked"`
	FirstInvalidSequence *int64 `json:"first_invalid_sequence,omitempty"`
}

// EventPage is one page of ListEvents results.
type EventPage struct {
	Events   []Event `json:"events"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// ChainHead is an agent's chain tip as returned by Head.
type ChainHead struct {
	AgentID        string `json:"agent_id"`
	SequenceNumber int64  `json:"sequence_number"`
	LinkHash       string `json:"link_hash"`
}

// ListOptions filters ListEvents. Zero values mean "no filter" and server
// defaults for pagination.
type ListOptions struct {
	AgentID    string
	ActionType string
	Page       int
	PageSize   int
}

// APIError is returned when the ledger responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the failure is transient: the append was not
// committed and the caller may safely resubmit.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is the Action Ledger SDK entry point. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding the default timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the ledger at baseURL, authenticating with apiKey.
//
//	c, err := client.New("http://localhost:8080", "your-api-key")
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL, apiKey string, opts ...Option) *Client {
	c, err := New(baseURL, apiKey, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// HashContent returns the 64-character lowercase hex SHA-256 digest of s.
// Use it to commit to raw payloads before submission; the raw content itself
// never leaves the process.
func HashContent(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// LogEvent appends one event to the caller's chain and returns the stored
// record, including the assigned sequence number and link hash.
func (c *Client) LogEvent(ctx context.Context, sub EventSubmission) (*Event, error) {
	var e Event
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/events", nil, sub, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// VerifyChain replays the agent's stored chain server-side and reports
// integrity. An unknown agent is trivially valid.
func (c *Client) VerifyChain(ctx context.Context, agentID string) (*VerificationResult, error) {
	q := url.Values{"agent_id": {agentID}}
	var res VerificationResult
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/verify", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListEvents returns events matching opts, ordered by sequence number.
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) (*EventPage, error) {
	q := url.Values{}
	if opts.AgentID != "" {
		q.Set("agent_id", opts.AgentID)
	}
	if opts.ActionType != "" {
		q.Set("action_type", opts.ActionType)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	var page EventPage
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/events", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Head returns the agent's chain tip.
func (c *Client) Head(ctx context.Context, agentID string) (*ChainHead, error) {
	var head ChainHead
	path := apiPrefix + "/agents/" + url.PathEscape(agentID) + "/head"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &head); err != nil {
		return nil, err
	}
	return &head, nil
}

// Agents returns the distinct agent IDs present in the ledger.
func (c *Client) Agents(ctx context.Context) ([]string, error) {
	var resp struct {
		Agents []string `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/agents", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// Health checks ledger liveness. It requires no API key.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ledger unhealthy: status %q", resp.Status)
	}
	return nil
}

// do performs one JSON request/response round trip. reqBody and respBody may
// be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody, respBody any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		buf, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
