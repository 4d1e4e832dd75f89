// Package client is a typed HTTP client for the backend API (C4), used by
// the worker manager (C6) to authenticate, announce countries, fetch
// pending work, and report results.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
)

// Client talks to the backend API surface over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
}

// New constructs a Client against baseURL, retrying failed requests up to
// retries times with linear backoff (interval × attempt_number).
func New(baseURL string, timeout time.Duration, retries int, backoff time.Duration) *Client {
	return &Client{
		baseURL:    trimRightSlash(baseURL),
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		backoff:    backoff,
	}
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// AuthenticateResponse is POST /auth/authenticate's body.
type AuthenticateResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticate performs the handshake: it presents the signed challenge
// headers and returns the minted bearer token.
func (c *Client) Authenticate(ctx context.Context, message, signatureB64 string) (*AuthenticateResponse, error) {
	var out AuthenticateResponse
	err := c.doWithRetry(ctx, http.MethodPost, "/auth/authenticate", nil, "", func(req *http.Request) {
		req.Header.Set("X-SSHAuth-Message", message)
		req.Header.Set("X-SSHAuth-Signature", signatureB64)
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PutWorkerCountries calls PUT /workers/{id}/countries.
func (c *Client) PutWorkerCountries(ctx context.Context, token, workerID string, countryCodes []string) error {
	body, err := json.Marshal(map[string]interface{}{"country_codes": countryCodes})
	if err != nil {
		return fmt.Errorf("marshal country codes: %w", err)
	}
	path := "/workers/" + url.PathEscape(workerID) + "/countries"
	return c.doWithRetry(ctx, http.MethodPut, path, bytes.NewReader(body), token, nil, nil)
}

// testsPage is the envelope GET /tests returns.
type testsPage struct {
	Tests    []models.Test        `json:"tests"`
	Metadata models.PageMetadata `json:"metadata"`
}

// ListPendingTests pages through GET /tests?worker_id={id}&status=PENDING
// until exhausted, returning every Test found.
func (c *Client) ListPendingTests(ctx context.Context, token, workerID string) ([]models.Test, error) {
	var out []models.Test
	pageNum := 1
	for {
		path := fmt.Sprintf("/tests?worker_id=%s&status=PENDING&page_num=%d", url.QueryEscape(workerID), pageNum)
		var page testsPage
		if err := c.doWithRetry(ctx, http.MethodGet, path, nil, token, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Tests...)
		if page.Metadata.TotalRecords == 0 || pageNum >= page.Metadata.LastPage {
			break
		}
		pageNum++
	}
	return out, nil
}

// PatchTest calls PATCH /tests/{id} with a partial update payload.
func (c *Client) PatchTest(ctx context.Context, token, testID string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal test patch: %w", err)
	}
	path := "/tests/" + url.PathEscape(testID)
	return c.doWithRetry(ctx, http.MethodPatch, path, bytes.NewReader(body), token, nil, nil)
}

// doWithRetry executes an HTTP request, retrying transport/5xx failures up
// to c.retries additional times with linear backoff. decodeInto, if
// non-nil, receives the decoded JSON response body on success.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body io.Reader, token string, mutate func(*http.Request), decodeInto interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if mutate != nil {
			mutate(req)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = apperrors.NewUpstreamFetch("backend api", err)
			if attempt <= c.retries {
				time.Sleep(c.backoff * time.Duration(attempt))
				continue
			}
			return lastErr
		}

		respErr := decodeResponse(resp, decodeInto)
		resp.Body.Close()
		if respErr == nil {
			return nil
		}
		lastErr = respErr
		if !isRetryableStatus(resp.StatusCode) || attempt > c.retries {
			return lastErr
		}
		time.Sleep(c.backoff * time.Duration(attempt))
	}
	return lastErr
}

func decodeResponse(resp *http.Response, decodeInto interface{}) error {
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.Error.Message
		if msg == "" {
			msg = "backend api returned " + strconv.Itoa(resp.StatusCode)
		}
		return apperrors.NewUpstreamFetch("backend api", fmt.Errorf("%s (status %d)", msg, resp.StatusCode))
	}
	if decodeInto == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(decodeInto)
}

func isRetryableStatus(code int) bool {
	return code >= 500
}
