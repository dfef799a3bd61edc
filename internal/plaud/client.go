// Package plaud wraps the Plaud consumer API, the source of voice
// recordings.
package plaud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.plaud.ai"

const defaultTimeout = 30 * time.Second

// Recording is one entry from the Plaud file listing. Duration and
// StartTime are in milliseconds, as the API reports them.
type Recording struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Duration  int64  `json:"duration"`
	StartTime int64  `json:"start_time"`
}

// ConnResult is the outcome of a connectivity test, shaped for direct
// display.
type ConnResult struct {
	OK             bool   `json:"ok"`
	Message        string `json:"message"`
	RecordingCount int    `json:"recording_count"`
}

// Client talks to the Plaud API. Regional endpoints (api-euc1, api-use1) may
// answer status=-302 with a replacement domain; the client follows that
// redirect once and retries against the new base.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(token, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	token = strings.TrimSpace(token)
	// Tokens copied from the web app's localStorage already carry the
	// "bearer " prefix.
	if token != "" && !strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = "bearer " + token
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the current API base, which may have been rewritten by a
// region redirect.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type listEnvelope struct {
	Status   int         `json:"status"`
	Msg      string      `json:"msg"`
	Files    []Recording `json:"data_file_list"`
	Total    int         `json:"data_file_total"`
	Redirect struct {
		Domains struct {
			API string `json:"api"`
		} `json:"domains"`
	} `json:"data"`
}

// handleRegionRedirect rewrites the base URL when the envelope carries a
// -302 redirect. Reports whether a retry should happen.
func (c *Client) handleRegionRedirect(env *listEnvelope) bool {
	if env.Status != -302 {
		return false
	}
	newURL := strings.TrimRight(env.Redirect.Domains.API, "/")
	if newURL == "" {
		return false
	}
	log.Printf("[plaud] region redirect: %s -> %s", c.baseURL, newURL)
	c.baseURL = newURL
	return true
}

func (c *Client) listURL(limit int) string {
	q := url.Values{}
	q.Set("skip", "0")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("is_trash", "0")
	q.Set("sort_by", "edit_time")
	q.Set("is_desc", "true")
	return c.baseURL + "/file/simple/web?" + q.Encode()
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	return c.httpClient.Do(req)
}

// ListRecordings returns recording metadata, newest edits first.
func (c *Client) ListRecordings(ctx context.Context, limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.listRecordings(ctx, limit, false)
}

func (c *Client) listRecordings(ctx context.Context, limit int, redirected bool) ([]Recording, error) {
	resp, err := c.get(ctx, c.listURL(limit))
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list recordings: status %d", resp.StatusCode)
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode recordings: %w", err)
	}

	if !redirected && c.handleRegionRedirect(&env) {
		return c.listRecordings(ctx, limit, true)
	}
	if env.Status != 0 {
		return nil, fmt.Errorf("list recordings: api status %d: %s", env.Status, env.Msg)
	}
	return env.Files, nil
}

// DownloadRecording fetches one recording's bytes into destPath.
func (c *Client) DownloadRecording(ctx context.Context, id, destPath string) error {
	resp, err := c.get(ctx, c.baseURL+"/file/download/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", id, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}

	log.Printf("[plaud] downloaded %s (%.1f MB)", destPath, float64(written)/(1024*1024))
	return nil
}

// TestConnection verifies the token against the file listing. Network and
// auth failures come back as a result, not an error.
func (c *Client) TestConnection(ctx context.Context) ConnResult {
	return c.testConnection(ctx, false)
}

func (c *Client) testConnection(ctx context.Context, redirected bool) ConnResult {
	resp, err := c.get(ctx, c.listURL(200))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ConnResult{Message: "Connection timed out"}
		}
		return ConnResult{Message: fmt.Sprintf("Cannot reach %s", c.baseURL)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ConnResult{Message: "Token rejected (401) - expired or invalid"}
	case http.StatusForbidden:
		return ConnResult{Message: "Access denied (403)"}
	default:
		return ConnResult{Message: fmt.Sprintf("Unexpected status %d", resp.StatusCode)}
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return ConnResult{Message: "Invalid response from API"}
	}

	if !redirected && c.handleRegionRedirect(&env) {
		return c.testConnection(ctx, true)
	}
	if env.Status != 0 {
		msg := env.Msg
		if msg == "" {
			msg = "unknown"
		}
		return ConnResult{Message: fmt.Sprintf("API error: %s", msg)}
	}

	count := env.Total
	if count == 0 {
		count = len(env.Files)
	}
	return ConnResult{
		OK:             true,
		Message:        fmt.Sprintf("Connected to Plaud. %d recordings available", count),
		RecordingCount: count,
	}
}
