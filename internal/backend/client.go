// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tastesync/internal/config"
	"github.com/tomtom215/tastesync/internal/logging"
	"github.com/tomtom215/tastesync/internal/metrics"
	"github.com/tomtom215/tastesync/internal/models"
)

// maxErrorBodySize limits how much of a non-JSON error body is kept.
const maxErrorBodySize = 64 * 1024 // 64KB

// maxResponseSize limits how much of any response body is read.
const maxResponseSize = 8 * 1024 * 1024 // 8MB

// readBodyForError reads at most maxErrorBodySize of an error body.
func readBodyForError(body []byte) string {
	if len(body) > maxErrorBodySize {
		return string(body[:maxErrorBodySize]) + "\n... (truncated)"
	}
	return string(body)
}

// Client handles communication with the recommendation backend.
//
// Thread Safety: Safe for concurrent use. Each call builds its own request.
//
// Example:
//
//	client := backend.NewClient(&cfg.Backend)
//	page, err := client.GetRankedRecommendations(ctx, models.RankedQuery{
//	    DeviceToken: token, Page: 1, Limit: 20,
//	})
type Client struct {
	baseURL        string
	client         *http.Client
	timeout        time.Duration
	maxRetries     int           // Maximum retries after HTTP 429
	retryBaseDelay time.Duration // Base delay for exponential backoff
	limiter        *rate.Limiter // nil when rate limiting is disabled
}

// NewClient creates a backend client from cfg.
func NewClient(cfg *config.BackendConfig) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		client:         &http.Client{},
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = time.Second
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// apiRequest holds parameters for one backend call.
type apiRequest struct {
	op     string
	method string
	path   string
	params url.Values
	body   interface{}
}

// newAPIRequest creates a request for op.
func newAPIRequest(op, method, path string) *apiRequest {
	return &apiRequest{
		op:     op,
		method: method,
		path:   path,
		params: url.Values{},
	}
}

// addParam adds a query parameter when value is non-empty.
func (r *apiRequest) addParam(key, value string) *apiRequest {
	if value != "" {
		r.params.Set(key, value)
	}
	return r
}

// addIntParam adds an integer query parameter when value > 0.
func (r *apiRequest) addIntParam(key string, value int) *apiRequest {
	if value > 0 {
		r.params.Set(key, strconv.Itoa(value))
	}
	return r
}

// addIdentity adds the device token and session id parameters.
func (r *apiRequest) addIdentity(id models.Identity) *apiRequest {
	return r.addParam("device_token", id.DeviceToken).addParam("session_id", id.SessionID)
}

// withBody sets a JSON request body.
func (r *apiRequest) withBody(body interface{}) *apiRequest {
	r.body = body
	return r
}

// buildURL constructs the full URL with all parameters.
func (r *apiRequest) buildURL(baseURL string) string {
	if len(r.params) == 0 {
		return baseURL + r.path
	}
	return baseURL + r.path + "?" + r.params.Encode()
}

// doRequestWithRateLimit performs one call, waiting on the outbound limiter
// and retrying HTTP 429 with exponential backoff (base, 2x, 4x, ...). A
// Retry-After header in seconds overrides the computed delay. The whole call,
// retries included, is bounded by the client timeout.
func (c *Client) doRequestWithRateLimit(ctx context.Context, req *apiRequest) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", req.op, err)
		}
	}
	reqURL := req.buildURL(c.baseURL)

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return 0, nil, wrapTransport(req.op, err)
			}
		}

		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: create request: %w", req.op, err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return 0, nil, wrapTransport(req.op, err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		_ = resp.Body.Close()
		if err != nil {
			return 0, nil, wrapTransport(req.op, err)
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.maxRetries {
			return resp.StatusCode, data, nil
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}
		metrics.BackendRetries.WithLabelValues(req.op).Inc()
		logging.Ctx(ctx).Debug().Str("op", req.op).Int("attempt", attempt+1).Dur("delay", delay).Msg("Backend rate limited, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, nil, wrapTransport(req.op, ctx.Err())
		}
	}
}

// fetchEnvelope executes req and returns the decoded envelope of a
// successful response.
func (c *Client) fetchEnvelope(ctx context.Context, req *apiRequest) (*models.Envelope, error) {
	status, body, err := c.doRequestWithRateLimit(ctx, req)
	if err != nil {
		return nil, err
	}

	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		msg := strings.TrimSpace(readBodyForError(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		if status >= 200 && status < 300 {
			msg = "malformed response: " + err.Error()
		}
		return nil, &RejectionError{Op: req.op, StatusCode: status, Message: msg}
	}

	if status < 200 || status >= 300 || !env.Success {
		return nil, &RejectionError{Op: req.op, StatusCode: status, Message: env.ErrorMessage()}
	}
	return &env, nil
}

// decodeEnvelope decodes the data of a successful envelope into T.
func decodeEnvelope[T any](op string, env *models.Envelope) (*T, error) {
	out, err := models.DecodeData[T](env)
	if err != nil {
		return nil, &RejectionError{Op: op, StatusCode: http.StatusOK, Message: err.Error()}
	}
	return out, nil
}

// executeAPIRequest is the generic helper behind every enveloped endpoint:
// it runs the request, checks the envelope and decodes data into T.
func executeAPIRequest[T any](ctx context.Context, c *Client, req *apiRequest) (*T, error) {
	start := time.Now()
	env, err := c.fetchEnvelope(ctx, req)
	if err != nil {
		return nil, c.finish(ctx, req.op, start, err)
	}
	out, err := decodeEnvelope[T](req.op, env)
	return out, c.finish(ctx, req.op, start, err)
}

// finish records metrics and a debug log line for one call and returns err.
func (c *Client) finish(ctx context.Context, op string, start time.Time, err error) error {
	duration := time.Since(start)
	outcome := Outcome(err)
	metrics.RecordBackendRequest(op, outcome, duration)

	event := logging.Ctx(ctx).Debug()
	if err != nil {
		event = logging.Ctx(ctx).Warn().Err(err)
	}
	event.Str("op", op).Str("outcome", outcome).Dur("duration", duration).Msg("Backend call")
	return err
}
