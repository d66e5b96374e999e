package visa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viego-wallet/viego-backend/internal/clock"
)

// maxResponseSize bounds response body reads. Vendor envelopes are a few KB.
const maxResponseSize int64 = 4 << 20

// Client maps one (method, path, body) to one vendor round trip. It does not
// retry; retry policy belongs to the caller.
type Client struct {
	baseURL   string
	transport *Transport
	clock     clock.Clock
	logger    *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClock injects the clock used for x-pay-token timestamps.
func WithClock(c clock.Clock) ClientOption {
	return func(client *Client) { client.clock = c }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) { client.logger = l }
}

// NewClient returns a gateway for baseURL. The URL must use HTTPS.
func NewClient(baseURL string, transport *Transport, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, &ConfigError{Field: "VISA_BASE_URL", Err: fmt.Errorf("HTTPS required (got %q)", baseURL)}
	}
	if transport == nil {
		return nil, &ConfigError{Field: "transport"}
	}
	c := &Client{
		baseURL:   baseURL,
		transport: transport,
		clock:     clock.Real(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type requestOptions struct {
	payToken bool
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// WithPayToken signs the request with the x-pay-token header.
func WithPayToken() RequestOption {
	return func(o *requestOptions) { o.payToken = true }
}

// validator is implemented by response types with required fields.
type validator interface {
	validate() error
}

// Do executes the request and decodes a 2xx JSON body into out (which may
// be nil). Non-2xx responses return *APIError, undecodable 2xx bodies
// return *DecodeError, and failures to reach the vendor return
// *TransportError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("visa: encoding %s body: %w", path, err)
		}
		payload = encoded
	}

	query := ""
	if ro.payToken {
		query = "apikey=" + url.QueryEscape(c.transport.apiKey)
	}

	target := c.baseURL + path
	if query != "" {
		target += "?" + query
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("visa: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.transport.Authorization())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ro.payToken {
		token, err := c.transport.PayToken(path, query, payload, c.clock.Now())
		if err != nil {
			return err
		}
		req.Header.Set("x-pay-token", token)
	}

	start := time.Now()
	resp, err := c.transport.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("visa request failed", "method", method, "path", path, "error", err)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.Debug("visa request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &DecodeError{StatusCode: resp.StatusCode, Path: path, Err: fmt.Errorf("empty response body")}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{StatusCode: resp.StatusCode, Path: path, Body: string(raw), Err: err}
	}
	if v, ok := out.(validator); ok {
		if err := v.validate(); err != nil {
			return &DecodeError{StatusCode: resp.StatusCode, Path: path, Body: string(raw), Err: err}
		}
	}
	return nil
}

// vendorErrorBody covers the error envelopes the sandbox returns.
type vendorErrorBody struct {
	ResponseStatus *struct {
		Status   int    `json:"status"`
		Code     string `json:"code"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
		Info     string `json:"info"`
	} `json:"responseStatus"`
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
	Reason       string `json:"reason"`
}

func parseAPIError(method, path string, status int, raw []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Body:       string(raw),
		Method:     method,
		Path:       path,
	}

	var parsed vendorErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.ResponseStatus != nil && parsed.ResponseStatus.Message != "":
			apiErr.Message = parsed.ResponseStatus.Message
			apiErr.Reason = parsed.ResponseStatus.Code
		case parsed.ErrorMessage != "":
			apiErr.Message = parsed.ErrorMessage
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		}
		if apiErr.Reason == "" {
			apiErr.Reason = parsed.Reason
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
