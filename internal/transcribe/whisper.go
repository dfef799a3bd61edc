// Package transcribe turns audio files into timestamped transcripts via a
// whisper-asr-webservice instance and caches the results on disk.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// MaxAudioFileSize caps the input file; larger files are rejected before the
// engine sees them.
const MaxAudioFileSize = 500 * 1024 * 1024

// DefaultTimeout is the per-request HTTP timeout. Transcription of long
// recordings can take minutes.
const DefaultTimeout = 15 * time.Minute

// Segment is one timestamped slice of engine output. Start and End are in
// seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the engine's output: segments when available, otherwise a single
// text blob.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Engine transcribes a local audio file.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// WhisperClient implements Engine against a whisper-asr-webservice.
type WhisperClient struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

type WhisperOption func(*WhisperClient)

func WithTimeout(d time.Duration) WhisperOption {
	return func(c *WhisperClient) {
		c.httpClient.Timeout = d
	}
}

func WithLanguage(lang string) WhisperOption {
	return func(c *WhisperClient) {
		c.language = lang
	}
}

func WithHTTPClient(client *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		c.httpClient = client
	}
}

func NewWhisperClient(baseURL string, opts ...WhisperOption) *WhisperClient {
	c := &WhisperClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe posts the audio file as multipart form data and parses the JSON
// response. Files over MaxAudioFileSize are rejected without a request.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio file: %w", err)
	}
	if info.Size() > MaxAudioFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), MaxAudioFileSize)
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL, err := c.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("transcription API: status %d: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &result, nil
}

func (c *WhisperClient) buildURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/asr"
	}
	q := u.Query()
	q.Set("output", "json")
	if c.language != "" && c.language != "auto" {
		q.Set("language", c.language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
