package api

// Package api implements the signed REST client for the JScrambler code API.
// Every request carries an HMAC-SHA256 signature over its canonical parameters:
// GET and DELETE requests sign their query string, POST requests send the
// signed parameters as a JSON document.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Client is the HTTP client wrapper for communicating with the code API.
type Client struct {
	Endpoint    Endpoint
	Credentials Credentials
	HTTPClient  *http.Client // underlying http.Client with transport tuned for long downloads

	// Now supplies the signed timestamp. Defaults to time.Now.
	Now func() time.Time

	logger *slog.Logger
}

// NewClient creates a new API client. A zero timeout means no overall request
// deadline; callers bound long operations through the request context instead.
func NewClient(endpoint Endpoint, creds Credentials, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Endpoint:    endpoint.WithDefaults(),
		Credentials: creds,
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second, // Close idle connections after 90s
				TLSHandshakeTimeout: 10 * time.Second, // Don't hang forever if TLS fails
			},
		},
		Now:    time.Now,
		logger: logger,
	}
}

// Get issues a signed GET request and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, params map[string]any) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, params)
}

// Post issues a signed POST request and returns the raw response body.
func (c *Client) Post(ctx context.Context, path string, params map[string]any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, params)
}

// Delete issues a signed DELETE request and returns the raw response body.
func (c *Client) Delete(ctx context.Context, path string, params map[string]any) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, params)
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]any) ([]byte, error) {
	signed, err := SignedParams(method, path, c.Endpoint.Host, params, c.Credentials, c.now())
	if err != nil {
		return nil, err
	}

	reqURL := c.Endpoint.BaseURL() + path
	var (
		body        io.Reader
		contentType string
	)
	if method == http.MethodPost {
		payload, ct, err := multipartPayload(signed)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", path, err)
		}
		body, contentType = payload, ct
	} else {
		reqURL += "?" + encodeQuery(signed, sortedKeys(signed))
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("Sending request", "method", method, "path", path)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{
			Method:  method,
			URL:     redactURL(reqURL),
			Code:    "connection",
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Method:     method,
			URL:        redactURL(reqURL),
			StatusCode: resp.StatusCode,
			Code:       "read_body",
			Message:    err.Error(),
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &TransportError{
			Method:     method,
			URL:        redactURL(reqURL),
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("http_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	return respBody, nil
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// multipartPayload frames the JSON document as a single file part, the upload
// form the service accepts for signed POST bodies.
func multipartPayload(signed map[string]any) (*bytes.Buffer, string, error) {
	doc, err := json.Marshal(signed)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="0"; filename="params.json"`)
	h.Set("Content-Type", "application/json")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// redactURL drops the query string so signatures and keys stay out of errors and logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
