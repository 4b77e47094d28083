// Package ashby is the authenticated RPC client for the upstream ATS API.
//
// Every method is a POST of a JSON body to {base_url}/{method}. A call is
// successful only if the transport succeeds and the body is a JSON object
// carrying success=true; everything else becomes an *APIError that keeps
// the upstream status, message, and parsed body intact for the caller.
package ashby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures the client. APIKey is sent as the Basic auth username
// with an empty password, per the upstream convention.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration

	// RateLimit is the maximum requests per second. Zero disables limiting.
	RateLimit float64

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client issues RPC calls. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// CallOptions carries per-call options.
type CallOptions struct {
	// WriteConfirmation, when non-empty, is injected into the payload as
	// the writeConfirmation field. The write gate validates it; the client
	// only transmits it.
	WriteConfirmation string
}

// New creates a client from config.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.RequestTimeout,
		http:    httpClient,
		limiter: limiter,
		log:     log,
	}
}

// NormalizeMethod trims whitespace and leading slashes from a method name.
func NormalizeMethod(method string) string {
	return strings.TrimLeft(strings.TrimSpace(method), "/")
}

// Call issues one RPC. Empty/nil payload fields are omitted from the wire.
func (c *Client) Call(ctx context.Context, method string, payload map[string]any, audit AuditContext, opts *CallOptions) (*Response, error) {
	method = NormalizeMethod(method)
	if method == "" {
		return nil, ErrEmptyMethod
	}

	body := prunePayload(payload)
	if opts != nil && opts.WriteConfirmation != "" {
		body["writeConfirmation"] = opts.WriteConfirmation
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, "")
	if audit.RequestID != "" {
		req.Header.Set("X-Request-ID", audit.RequestID)
	}
	if audit.RunID != "" {
		req.Header.Set("X-Relay-Run-ID", audit.RunID)
	}
	if audit.ActionID != "" {
		req.Header.Set("X-Relay-Action-ID", audit.ActionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{
			Method:  method,
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{
			Method:  method,
			Status:  statusOrDefault(resp.StatusCode),
			Message: fmt.Sprintf("read response: %v", err),
			Err:     err,
		}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if decodeErr != nil || env.Success == nil || !*env.Success {
		apiErr := buildAPIError(method, resp.StatusCode, raw, &env, decodeErr)
		c.log.Debug("upstream call failed",
			zap.String("method", method),
			zap.Int("status", apiErr.Status),
			zap.String("request_id", audit.RequestID),
			zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	return &Response{
		Raw:               json.RawMessage(raw),
		Results:           env.Results,
		MoreDataAvailable: env.MoreDataAvailable,
		NextCursor:        env.NextCursor,
		SyncToken:         env.SyncToken,
	}, nil
}

// ListCandidates fetches one page of the paginated candidate feed.
func (c *Client) ListCandidates(ctx context.Context, opts ListOptions, audit AuditContext) (*CandidatePage, error) {
	payload := map[string]any{
		"cursor":    opts.Cursor,
		"limit":     opts.Limit,
		"syncToken": opts.SyncToken,
	}
	resp, err := c.Call(ctx, MethodCandidateList, payload, audit, nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &rows); err != nil {
			return nil, fmt.Errorf("decode candidate.list results: %w", err)
		}
	}
	return &CandidatePage{
		Rows:              rows,
		MoreDataAvailable: resp.MoreDataAvailable,
		NextCursor:        resp.NextCursor,
		SyncToken:         resp.SyncToken,
	}, nil
}

// SearchCandidates runs a name/email search and returns the raw result rows.
func (c *Client) SearchCandidates(ctx context.Context, q SearchQuery, audit AuditContext) ([]json.RawMessage, error) {
	payload := map[string]any{
		"email": q.Email,
		"name":  q.Name,
	}
	resp, err := c.Call(ctx, MethodCandidateSearch, payload, audit, nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if len(resp.Results) > 0 {
		if err := json.Unmarshal(resp.Results, &rows); err != nil {
			return nil, fmt.Errorf("decode candidate.search results: %w", err)
		}
	}
	return rows, nil
}

func buildAPIError(method string, status int, raw []byte, env *envelope, decodeErr error) *APIError {
	apiErr := &APIError{
		Method: method,
		Status: statusOrDefault(status),
		Raw:    string(raw),
	}

	var body map[string]any
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Body = body
	}

	switch {
	case decodeErr == nil && env.ErrorInfo.Message != "":
		apiErr.Message = env.ErrorInfo.Message
	case decodeErr == nil && len(env.Errors) > 0:
		apiErr.Message = strings.Join(env.Errors, "; ")
	case decodeErr == nil && env.Message != "":
		apiErr.Message = env.Message
	case len(strings.TrimSpace(string(raw))) > 0:
		apiErr.Message = strings.TrimSpace(string(raw))
	default:
		apiErr.Message = fmt.Sprintf("request failed with status %d", apiErr.Status)
	}

	return apiErr
}

// statusOrDefault maps "no usable status" onto 400. A 200 that failed the
// envelope check has no meaningful status either.
func statusOrDefault(status int) int {
	if status == 0 || (status >= 200 && status < 300) {
		return http.StatusBadRequest
	}
	return status
}

// prunePayload copies payload without nil values, empty strings, and empty
// slices/maps. The upstream treats absent and empty differently for some
// fields, and absent is always the safe form.
func prunePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
		default:
			rv := reflect.ValueOf(v)
			if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map) && rv.Len() == 0 {
				continue
			}
		}
		out[k] = v
	}
	return out
}
