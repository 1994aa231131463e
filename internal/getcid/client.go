// Package getcid talks to the GetCID activation service, which answers
// GET {base}/{iid}/{token} with a plain-text confirmation id or an error
// text. Errors may arrive with HTTP 200, so the body is always inspected.
package getcid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "GetCID-Landing/1.0"
	maxBodyBytes     = 64 * 1024
	maxDetailBytes   = 256
)

var ErrMissingInstallationID = errors.New("installation id is empty")

// Outcome is the classified result of one activation call.
type Outcome struct {
	Kind Kind
	// Code is the confirmation id when Kind is Confirmed.
	Code string
	// Status is the upstream HTTP status, zero when no response arrived.
	Status int
	// Body is the trimmed upstream body.
	Body string
	// Rule names the classification rule that matched.
	Rule string
	// Err is set on transport failures and timeouts.
	Err error
	// Duration of the upstream call.
	Duration time.Duration
}

func (o Outcome) Confirmed() bool {
	return o.Kind == Confirmed
}

// Detail is an operator-facing description of a failed outcome, suitable
// for the usage ledger.
func (o Outcome) Detail() string {
	switch o.Kind {
	case Confirmed:
		return ""
	case InvalidInstallationID:
		return "wrong IID"
	case BlockedInstallationID:
		return "blocked IID"
	case UpstreamAuthFailure:
		return "upstream rejected API token"
	case UpstreamQuotaExceeded:
		return "upstream token limit reached"
	case UpstreamBusy:
		return "upstream server busy"
	}
	if o.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", o.Err)
	}
	if o.Status < 200 || o.Status > 299 {
		return fmt.Sprintf("upstream HTTP %d: %s", o.Status, clip(o.Body))
	}
	return fmt.Sprintf("upstream error response: %s", clip(o.Body))
}

type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

type OptFunc func(*Client)

func WithTimeout(d time.Duration) OptFunc {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithUserAgent(userAgent string) OptFunc {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

func WithHTTPClient(httpClient *http.Client) OptFunc {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(baseURL, token string, opts ...OptFunc) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Activate exchanges an installation id for a confirmation id. It never
// returns an error; transport failures are folded into an
// UpstreamGenericError outcome.
func (c *Client) Activate(ctx context.Context, iid string) Outcome {
	start := time.Now()
	out := c.activate(ctx, iid)
	out.Duration = time.Since(start)
	return out
}

func (c *Client) activate(ctx context.Context, iid string) Outcome {
	if iid == "" {
		return Outcome{Kind: UpstreamGenericError, Err: ErrMissingInstallationID}
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(iid), url.PathEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Outcome{Kind: UpstreamGenericError, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Kind: UpstreamGenericError, Err: redact(err, c.token)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Outcome{Kind: UpstreamGenericError, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	body := strings.TrimSpace(string(raw))
	kind, rule := Classify(resp.StatusCode, body)

	out := Outcome{Kind: kind, Status: resp.StatusCode, Body: body, Rule: rule}
	if kind == Confirmed {
		out.Code = body
	}
	return out
}

// redact keeps the API token out of url.Error messages, which embed the
// request URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return &redactedError{
		msg: strings.ReplaceAll(err.Error(), url.PathEscape(token), "***"),
		err: err,
	}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func clip(s string) string {
	if len(s) > maxDetailBytes {
		return s[:maxDetailBytes] + " (truncated)"
	}
	return s
}
