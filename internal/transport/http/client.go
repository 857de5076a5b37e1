// Package httptransport sends JSON requests to the collection API and maps
// responses onto typed errors.
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
)

const (
	DefaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

// StatusError is returned for non-2xx responses. Message is the server's
// "error" field when present.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Client posts JSON documents over a shared http.Client.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient wraps hc. A nil hc gets a client with DefaultTimeout.
func NewClient(hc *http.Client, userAgent string) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{http: hc, userAgent: userAgent}
}

type errorBody struct {
	Error string `json:"error"`
}

// PostJSON encodes body, posts it to url and decodes a 2xx response into out.
// With a non-nil out an empty 2xx body is a decode error; with a nil out the
// body is ignored.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.KindValidation, "http.post", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.KindTransport, "http.post", "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "http.post", "send request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errors.Wrap(errors.KindTransport, "http.post", "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if len(raw) > 0 {
			_ = sonic.Unmarshal(raw, &eb)
		}
		return &StatusError{Status: resp.StatusCode, Message: eb.Error}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New(errors.KindTransport, "http.post", "decode response: empty body")
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.KindTransport, "http.post", "decode response", err)
	}
	return nil
}
