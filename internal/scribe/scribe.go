// Package scribe turns a transcript into a structured document by running an
// LLM tool-calling loop over document tools.
package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/voxscribe/voxscribe/internal/docgen"
	"github.com/voxscribe/voxscribe/internal/llm"
)

// DefaultMaxRounds bounds the tool loop. A model that keeps calling tools
// past this is treated as failed, not retried.
const DefaultMaxRounds = 20

const maxToolTitleLength = 200

// ToolName identifies a document tool offered to the model.
type ToolName string

const (
	ToolCreateDocument ToolName = "create_document"
	ToolListDocuments  ToolName = "list_documents"
)

// Completer runs one completion call.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*anthropic.Message, error)
}

// DocumentStore writes and lists rendered documents.
type DocumentStore interface {
	CreateDocument(title, content string) (*docgen.DocInfo, error)
	ListDocuments() ([]docgen.DocEntry, error)
}

// Mirror copies a written document to remote storage. Mirror failures never
// fail the analysis.
type Mirror interface {
	MirrorDocument(ctx context.Context, path string) error
}

// Options configures one Scribe.
type Options struct {
	Model     string
	Prompt    string
	MaxTokens int64
	MaxRounds int
	Mirror    Mirror
}

// Scribe drives the analysis loop.
type Scribe struct {
	client Completer
	docs   DocumentStore
	opts   Options
}

func New(client Completer, docs DocumentStore, opts Options) *Scribe {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 16384
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	return &Scribe{client: client, docs: docs, opts: opts}
}

type toolHandler func(ctx context.Context, input json.RawMessage) (string, error)

// Analyze feeds the transcript to the model and loops over tool calls until
// the model stops. Success requires that the model created a document; an
// end_turn without one is an error.
func (s *Scribe) Analyze(ctx context.Context, transcript string) (*docgen.DocInfo, error) {
	var created *docgen.DocInfo

	handlers := map[ToolName]toolHandler{
		ToolCreateDocument: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", fmt.Errorf("parse input: %w", err)
			}
			title := strings.TrimSpace(args.Title)
			if title == "" {
				return "", fmt.Errorf("title is required")
			}
			if runes := []rune(title); len(runes) > maxToolTitleLength {
				title = string(runes[:maxToolTitleLength])
			}
			if strings.TrimSpace(args.Content) == "" {
				return "", fmt.Errorf("content is required")
			}
			info, err := s.docs.CreateDocument(title, args.Content)
			if err != nil {
				return "", err
			}
			created = info
			if s.opts.Mirror != nil {
				if err := s.opts.Mirror.MirrorDocument(ctx, info.Path); err != nil {
					log.Printf("[scribe] document mirror failed: %v", err)
				}
			}
			return fmt.Sprintf("Document created: %s", info.Filename), nil
		},
		ToolListDocuments: func(ctx context.Context, input json.RawMessage) (string, error) {
			docs, err := s.docs.ListDocuments()
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(docs))
			for _, doc := range docs {
				names = append(names, doc.Name)
			}
			data, err := json.Marshal(names)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
	}

	for round := 1; round <= s.opts.MaxRounds; round++ {
		msg, err := s.client.Complete(ctx, llm.Request{
			Model:     s.opts.Model,
			System:    s.opts.Prompt,
			MaxTokens: s.opts.MaxTokens,
			Messages:  messages,
			Tools:     toolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("analysis round %d: %w", round, err)
		}

		switch string(msg.StopReason) {
		case "tool_use":
			results, err := s.runTools(ctx, msg, handlers)
			if err != nil {
				return nil, err
			}
			messages = append(messages, msg.ToParam())
			messages = append(messages, anthropic.NewUserMessage(results...))
		case "end_turn":
			if created == nil {
				return nil, fmt.Errorf("model finished without creating a document")
			}
			return created, nil
		default:
			return nil, fmt.Errorf("unexpected stop reason %q", msg.StopReason)
		}
	}

	return nil, fmt.Errorf("tool loop exceeded %d rounds", s.opts.MaxRounds)
}

// runTools executes every tool_use block in the message and returns the
// result blocks in call order. Handler errors become is_error tool results
// so the model can recover; only unknown tools abort.
func (s *Scribe) runTools(ctx context.Context, msg *anthropic.Message, handlers map[ToolName]toolHandler) ([]anthropic.ContentBlockParamUnion, error) {
	var results []anthropic.ContentBlockParamUnion
	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		handler, ok := handlers[ToolName(block.Name)]
		if !ok {
			return nil, fmt.Errorf("model called unknown tool %q", block.Name)
		}
		log.Printf("[scribe] tool call: %s", block.Name)
		output, err := handler(ctx, block.Input)
		if err != nil {
			log.Printf("[scribe] tool %s failed: %v", block.Name, err)
			results = append(results, anthropic.NewToolResultBlock(block.ID, err.Error(), true))
			continue
		}
		results = append(results, anthropic.NewToolResultBlock(block.ID, output, false))
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("tool_use stop with no tool_use blocks")
	}
	return results, nil
}

func toolDefinitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        string(ToolCreateDocument),
			Description: "Create a formatted document from markdown content. Supports headings (#, ##, ###), bullet lists (-), numbered lists, blockquotes (>), horizontal rules, tables, bold, italic, and links.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Document title, used as the filename",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full document body in markdown",
					},
				},
				"required": []string{"title", "content"},
			},
		},
		{
			Name:        string(ToolListDocuments),
			Description: "List the names of documents that already exist in the output folder.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
