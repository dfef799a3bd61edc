package scribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/voxscribe/voxscribe/internal/docgen"
	"github.com/voxscribe/voxscribe/internal/llm"
)

type fakeCompleter struct {
	responses []*anthropic.Message
	requests  []llm.Request
	err       error
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*anthropic.Message, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	msg := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return msg, nil
}

type createdDoc struct {
	title, content string
}

type fakeDocs struct {
	created   []createdDoc
	createErr error
}

func (f *fakeDocs) CreateDocument(title, content string) (*docgen.DocInfo, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createdDoc{title, content})
	return &docgen.DocInfo{Title: title, Filename: title + ".html", Path: "/out/" + title + ".html"}, nil
}

func (f *fakeDocs) ListDocuments() ([]docgen.DocEntry, error) {
	return []docgen.DocEntry{{Name: "old.html"}}, nil
}

type fakeMirror struct {
	paths []string
	err   error
}

func (f *fakeMirror) MirrorDocument(ctx context.Context, path string) error {
	f.paths = append(f.paths, path)
	return f.err
}

func msgFromJSON(t *testing.T, raw string) *anthropic.Message {
	t.Helper()
	var msg anthropic.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return &msg
}

func toolUseMsg(t *testing.T, name, input string) *anthropic.Message {
	t.Helper()
	return msgFromJSON(t, fmt.Sprintf(`{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "m",
		"stop_reason": "tool_use",
		"content": [{"type": "tool_use", "id": "tu_1", "name": %q, "input": %s}],
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`, name, input))
}

func endTurnMsg(t *testing.T) *anthropic.Message {
	t.Helper()
	return msgFromJSON(t, `{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "m",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "done"}],
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`)
}

func TestAnalyze_CreatesDocument(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{
		toolUseMsg(t, "create_document", `{"title": "Standup", "content": "# Standup\n\n- done"}`),
		endTurnMsg(t),
	}}
	docs := &fakeDocs{}
	s := New(completer, docs, Options{Model: "m", Prompt: "summarize"})

	info, err := s.Analyze(context.Background(), "[00:00] hello")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if info.Filename != "Standup.html" {
		t.Errorf("info = %+v", info)
	}
	if len(docs.created) != 1 || docs.created[0].title != "Standup" {
		t.Errorf("created = %+v", docs.created)
	}

	if len(completer.requests) != 2 {
		t.Fatalf("requests = %d", len(completer.requests))
	}
	first := completer.requests[0]
	if first.System != "summarize" {
		t.Errorf("system = %q", first.System)
	}
	if len(first.Tools) != 2 {
		t.Errorf("tools = %d, want create_document and list_documents", len(first.Tools))
	}
	// Second round carries the transcript, the assistant turn, and the tool
	// result turn.
	if got := len(completer.requests[1].Messages); got != 3 {
		t.Errorf("second round messages = %d, want 3", got)
	}
}

func TestAnalyze_EndTurnWithoutDocumentFails(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{endTurnMsg(t)}}
	s := New(completer, &fakeDocs{}, Options{Model: "m"})

	if _, err := s.Analyze(context.Background(), "text"); err == nil {
		t.Error("end_turn without a document must fail")
	}
}

func TestAnalyze_UnknownToolFails(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{
		toolUseMsg(t, "delete_everything", `{}`),
	}}
	s := New(completer, &fakeDocs{}, Options{Model: "m"})

	_, err := s.Analyze(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("err = %v", err)
	}
}

func TestAnalyze_RoundCap(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{
		toolUseMsg(t, "list_documents", `{}`),
	}}
	s := New(completer, &fakeDocs{}, Options{Model: "m", MaxRounds: 3})

	_, err := s.Analyze(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "3 rounds") {
		t.Errorf("err = %v", err)
	}
	if len(completer.requests) != 3 {
		t.Errorf("requests = %d, want exactly the round cap", len(completer.requests))
	}
}

func TestAnalyze_ToolErrorIsRecoverable(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{
		toolUseMsg(t, "create_document", `{"title": "", "content": "x"}`),
		toolUseMsg(t, "create_document", `{"title": "Fixed", "content": "# ok"}`),
		endTurnMsg(t),
	}}
	docs := &fakeDocs{}
	s := New(completer, docs, Options{Model: "m"})

	info, err := s.Analyze(context.Background(), "text")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if info.Title != "Fixed" {
		t.Errorf("info = %+v", info)
	}
	if len(docs.created) != 1 {
		t.Errorf("created = %+v, invalid call must not create", docs.created)
	}
}

func TestAnalyze_TitleTruncated(t *testing.T) {
	long := strings.Repeat("ü", 250)
	completer := &fakeCompleter{responses: []*anthropic.Message{
		toolUseMsg(t, "create_document", fmt.Sprintf(`{"title": %q, "content": "x"}`, long)),
		endTurnMsg(t),
	}}
	docs := &fakeDocs{}
	s := New(completer, docs, Options{Model: "m"})

	if _, err := s.Analyze(context.Background(), "text"); err != nil {
		t.Fatal(err)
	}
	if len(docs.created) != 1 {
		t.Fatalf("created = %+v", docs.created)
	}
	title := docs.created[0].title
	if !utf8.ValidString(title) {
		t.Error("truncation split a rune")
	}
	if n := utf8.RuneCountInString(title); n != maxToolTitleLength {
		t.Errorf("title runes = %d, want %d", n, maxToolTitleLength)
	}
}

func TestAnalyze_MirrorFailureIsBestEffort(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{
		toolUseMsg(t, "create_document", `{"title": "Memo", "content": "x"}`),
		endTurnMsg(t),
	}}
	mirror := &fakeMirror{err: errors.New("drive down")}
	s := New(completer, &fakeDocs{}, Options{Model: "m", Mirror: mirror})

	info, err := s.Analyze(context.Background(), "text")
	if err != nil {
		t.Fatalf("mirror failure must not fail analysis: %v", err)
	}
	if info == nil || len(mirror.paths) != 1 {
		t.Errorf("info = %+v, mirror paths = %v", info, mirror.paths)
	}
}

func TestAnalyze_UnexpectedStopReason(t *testing.T) {
	completer := &fakeCompleter{responses: []*anthropic.Message{
		msgFromJSON(t, `{
			"id": "msg_3", "type": "message", "role": "assistant", "model": "m",
			"stop_reason": "max_tokens",
			"content": [{"type": "text", "text": "trunc"}],
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`),
	}}
	s := New(completer, &fakeDocs{}, Options{Model: "m"})

	_, err := s.Analyze(context.Background(), "text")
	if err == nil || !strings.Contains(err.Error(), "max_tokens") {
		t.Errorf("err = %v", err)
	}
}
