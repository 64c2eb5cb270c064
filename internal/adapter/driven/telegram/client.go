// Package telegram builds Bot API operations for the dispatcher. It is the
// narrow upstream collaborator: one operation performs one Bot API call with
// whichever credential the pool hands out, and classifies the outcome into
// the rate-limit / transient / permanent taxonomy the executor understands.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// maxResponseBytes caps how much of a Bot API response body is read.
// Metadata responses are small; anything larger is not ours to handle.
const maxResponseBytes = 4 << 20

// Client builds driven.Operation values for Bot API methods. It holds no
// credential itself: tokens are supplied per call by the pool.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Client against the production Bot API endpoint.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.telegram.org",
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// apiResponse mirrors the Bot API response envelope.
type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters"`
}

// responseParameters carries the optional retry hint on 429 responses.
type responseParameters struct {
	RetryAfter int `json:"retry_after"`
}

// Invoke returns an operation that calls the named Bot API method with the
// given parameters. The result payload is the raw JSON of the "result"
// field. HTTP 429 with ok=false maps to driven.RateLimitError (carrying
// parameters.retry_after when present), 5xx and transport errors stay plain
// (transient), and any other API error maps to driven.PermanentError.
func (c *Client) Invoke(method string, params url.Values) driven.Operation {
	return func(ctx context.Context, token string) ([]byte, error) {
		endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, token, method)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// url.Error's message embeds the full request URL, token
			// included. Unwrap one level so logs stay token-free.
			var uerr *url.Error
			if errors.As(err, &uerr) {
				err = uerr.Err
			}
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", method, err)
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%s: upstream returned %s", method, resp.Status)
		}

		var api apiResponse
		if err := json.Unmarshal(body, &api); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", method, err)
		}

		if api.OK {
			return api.Result, nil
		}

		if api.ErrorCode == http.StatusTooManyRequests {
			rl := &driven.RateLimitError{Description: api.Description}
			if api.Parameters != nil && api.Parameters.RetryAfter > 0 {
				rl.RetryAfter = time.Duration(api.Parameters.RetryAfter) * time.Second
			}
			return nil, rl
		}

		return nil, &driven.PermanentError{
			Err: fmt.Errorf("%s: api error %d: %s", method, api.ErrorCode, api.Description),
		}
	}
}

// GetMe returns an operation that fetches the bot's own identity. Mostly
// useful as a cheap credential validity probe.
func (c *Client) GetMe() driven.Operation {
	return c.Invoke("getMe", nil)
}

// GetChat returns an operation that fetches metadata for a chat or channel.
func (c *Client) GetChat(chatID string) driven.Operation {
	params := url.Values{}
	params.Set("chat_id", chatID)
	return c.Invoke("getChat", params)
}

// GetFile returns an operation that resolves a file_id to its download path.
func (c *Client) GetFile(fileID string) driven.Operation {
	params := url.Values{}
	params.Set("file_id", fileID)
	return c.Invoke("getFile", params)
}

// SendMessage returns an operation that posts text to a chat. Not an
// idempotent read: run it with an empty dispatch key so it bypasses the
// result cache.
func (c *Client) SendMessage(chatID, text string) driven.Operation {
	params := url.Values{}
	params.Set("chat_id", chatID)
	params.Set("text", text)
	return c.Invoke("sendMessage", params)
}
