// Package llm wraps the Anthropic Messages API for tool-calling completions.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// connectionTestModel is a small fast model used only for credential checks.
const connectionTestModel = "claude-haiku-4-5-20251001"

// Tool describes one tool offered to the model. InputSchema is a JSON Schema
// object.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one completion call.
type Request struct {
	Model     string
	System    string
	MaxTokens int64
	Messages  []anthropic.MessageParam
	Tools     []Tool
}

// ConnResult reports the outcome of a credential check.
type ConnResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Client calls the Anthropic API.
type Client struct {
	api anthropic.Client
}

// NewClient builds a client for the given API key. Extra request options are
// applied after the key, so tests can redirect the base URL.
func NewClient(apiKey string, opts ...option.RequestOption) *Client {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{api: anthropic.NewClient(all...)}
}

// Complete runs one Messages call and returns the raw response message.
func (c *Client) Complete(ctx context.Context, req Request) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  req.Messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, tool := range req.Tools {
		schema, err := toolInputSchema(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", tool.Name, err)
		}
		param := anthropic.ToolParam{Name: tool.Name, InputSchema: schema}
		if tool.Description != "" {
			param.Description = anthropic.String(tool.Description)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &param})
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages call: %w", err)
	}
	return msg, nil
}

// TestConnection sends a one-token request on a small model to verify the
// API key. It reports the outcome instead of returning an error.
func (c *Client) TestConnection(ctx context.Context) ConnResult {
	_, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     connectionTestModel,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		log.Printf("[llm] connection test failed: %v", err)
		msg := err.Error()
		switch {
		case strings.Contains(msg, "401"):
			msg = "invalid API key"
		case strings.Contains(msg, "429"):
			msg = "rate limited, key is valid"
			return ConnResult{OK: true, Message: msg}
		}
		return ConnResult{OK: false, Message: msg}
	}
	return ConnResult{OK: true, Message: "API key valid"}
}

// toolInputSchema converts a JSON Schema map into the SDK's schema param by
// round-tripping through JSON.
func toolInputSchema(schema map[string]any) (anthropic.ToolInputSchemaParam, error) {
	var out anthropic.ToolInputSchemaParam
	if schema == nil {
		return out, fmt.Errorf("schema is required")
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
