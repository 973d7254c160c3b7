// Package remote talks to the translation-management backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
	"github.com/lexiaoyao20/i18n-app/internal/config"
)

const (
	manifestPath = "/api/At.Locazy/user/i18n/long-polling"
	uploadPath   = "/api/At.Locazy/cli/terms/upload"

	headerPreview   = "preview"
	headerRequestID = "X-Request-Id"

	defaultTimeout = 30 * time.Second
)

var errInvalidJSON = errors.New("response contained invalid JSON")

// Client issues the backend calls for one project configuration.
// It is safe for concurrent use.
type Client struct {
	cfg     config.Config
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit caps the number of requests per second. Zero or less
// disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New returns a client for the backend at cfg.Host.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	c.cfg.Host = strings.TrimRight(c.cfg.Host, "/")
	return c
}

// FetchManifest asks the backend which files it holds for the configured
// subsystem and version.
func (c *Client) FetchManifest(ctx context.Context) (*Manifest, error) {
	payload, err := json.Marshal(struct {
		VersionNo     string `json:"versionNo"`
		ProductCode   string `json:"productCode"`
		SubSystemName string `json:"subSystemName"`
	}{c.cfg.VersionNo, c.cfg.ProductCode, c.cfg.SubSystemName})
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, http.MethodPost, c.cfg.Host+manifestPath, payload, true)
	if err != nil {
		return nil, err
	}
	data, err := envelopeData(status, body)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if data.IsObject() {
		if err := json.Unmarshal([]byte(data.Raw), &m); err != nil {
			return nil, fmt.Errorf("%w: decoding manifest: %w", apperr.ErrRemoteFailure, err)
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("task_hash", m.TaskHash).
		Int("groups", len(m.FileGroups)).
		Msg("Fetched manifest")

	return &m, nil
}

// DownloadURL returns the address of the newest file of a group.
func (c *Client) DownloadURL(group FileGroup) (string, error) {
	name, ok := group.Newest()
	if !ok {
		return "", fmt.Errorf("%w: no files published for %s", apperr.ErrRemoteFailure, group.LanguageCode)
	}
	var b strings.Builder
	b.WriteString(c.cfg.Host)
	if prefix := strings.Trim(group.PathPrefix, "/"); prefix != "" {
		b.WriteString("/")
		b.WriteString(prefix)
	}
	b.WriteString("/")
	b.WriteString(strings.TrimLeft(name, "/"))
	return b.String(), nil
}

// Download fetches the newest file of a group and returns the body as served.
func (c *Client) Download(ctx context.Context, group FileGroup) ([]byte, error) {
	url, err := c.DownloadURL(group)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, http.MethodGet, url, nil, true)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, newAPIError(status, gjson.ParseBytes(body))
	}
	return body, nil
}

// Upload sends one language changeset.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return UploadResult{}, err
	}

	status, body, err := c.do(ctx, http.MethodPost, c.cfg.Host+uploadPath, payload, false)
	if err != nil {
		return UploadResult{}, err
	}
	data, err := envelopeData(status, body)
	if err != nil {
		return UploadResult{}, err
	}

	res := UploadResult{Success: data.Get("success").Bool()}
	if data.Exists() && data.Type != gjson.Null {
		res.Data = json.RawMessage(data.Raw)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte, preview bool) (int, []byte, error) {
	logger := zerolog.Ctx(ctx)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("%w: %s %s: %w", apperr.ErrUnreachable, method, url, err)
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", apperr.ErrUnreachable, method, url, err)
	}

	requestID := uuid.NewString()
	req.Header.Set(headerRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if preview {
		req.Header.Set(headerPreview, c.cfg.Preview())
	}

	logger.Debug().
		Str("request_id", requestID).
		Msg(curlCommand(req, payload))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", apperr.ErrUnreachable, method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading response of %s %s: %w", apperr.ErrUnreachable, method, url, err)
	}

	logger.Debug().
		Str("sys", "http").
		Str("request_id", requestID).
		Str("method", method).
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("Backend responded")

	return resp.StatusCode, body, nil
}

// envelopeData checks the {code, message, data} envelope and returns data.
func envelopeData(status int, body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		if status >= http.StatusBadRequest {
			return gjson.Result{}, &APIError{StatusCode: status, Message: strings.TrimSpace(string(body)), Err: apperr.ErrRemoteFailure}
		}
		return gjson.Result{}, &APIError{StatusCode: status, Message: errInvalidJSON.Error(), Err: apperr.ErrRemoteFailure}
	}

	result := gjson.ParseBytes(body)
	if status >= http.StatusBadRequest || result.Get("code").Int() != 0 {
		return gjson.Result{}, newAPIError(status, result)
	}
	return result.Get("data"), nil
}

func newAPIError(status int, result gjson.Result) *APIError {
	return &APIError{
		StatusCode: status,
		Code:       result.Get("code").Int(),
		Message:    result.Get("message").String(),
		Err:        apperr.ErrRemoteFailure,
	}
}

// curlCommand renders a request as a shell command reproducing it.
func curlCommand(req *http.Request, payload []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s '%s'", req.Method, req.URL.String())
	for _, name := range []string{"Content-Type", headerPreview, headerRequestID} {
		if v := req.Header.Get(name); v != "" {
			fmt.Fprintf(&b, " -H '%s: %s'", name, v)
		}
	}
	if payload != nil {
		fmt.Fprintf(&b, " -d '%s'", strings.ReplaceAll(string(payload), "'", `'\''`))
	}
	return b.String()
}
