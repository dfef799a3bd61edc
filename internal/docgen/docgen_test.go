package docgen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_Blocks(t *testing.T) {
	content := "# Title\n\n## Section\n\n- item one\n- item two\n\n1. first\n2. second\n\n> a quote\n\n---\n\nplain paragraph"
	blocks := Parse(content)

	want := []BlockKind{
		BlockHeading, BlockHeading,
		BlockBullet, BlockBullet,
		BlockNumber, BlockNumber,
		BlockQuote, BlockRule, BlockParagraph,
	}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d: %+v", len(blocks), len(want), blocks)
	}
	for i, kind := range want {
		if blocks[i].Kind != kind {
			t.Errorf("block %d kind = %d, want %d", i, blocks[i].Kind, kind)
		}
	}
	if blocks[0].Level != 1 || blocks[1].Level != 2 {
		t.Errorf("heading levels = %d, %d", blocks[0].Level, blocks[1].Level)
	}
	if blocks[4].Text != "first" {
		t.Errorf("numbered item text = %q", blocks[4].Text)
	}
}

func TestParse_Table(t *testing.T) {
	content := "| Name | Count |\n|------|-------|\n| a | 1 |\n| b | 2 |\n\nafter"
	blocks := Parse(content)

	if len(blocks) != 2 {
		t.Fatalf("got %d blocks: %+v", len(blocks), blocks)
	}
	table := blocks[0]
	if table.Kind != BlockTable {
		t.Fatalf("first block kind = %d", table.Kind)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("rows = %d, separator must be dropped: %v", len(table.Rows), table.Rows)
	}
	if table.Rows[0][0] != "Name" || table.Rows[2][1] != "2" {
		t.Errorf("rows = %v", table.Rows)
	}
}

func TestParse_TableFlushesAtEnd(t *testing.T) {
	blocks := Parse("| a | b |")
	if len(blocks) != 1 || blocks[0].Kind != BlockTable {
		t.Fatalf("blocks = %+v", blocks)
	}
}

func TestParseInline_BoldAndItalic(t *testing.T) {
	spans := ParseInline("**bold** and *italic*")
	if len(spans) != 3 {
		t.Fatalf("spans = %+v", spans)
	}
	if !spans[0].Bold || spans[0].Text != "bold" {
		t.Errorf("span 0 = %+v", spans[0])
	}
	if spans[1].Bold || spans[1].Italic || spans[1].Text != " and " {
		t.Errorf("span 1 = %+v", spans[1])
	}
	if !spans[2].Italic || spans[2].Text != "italic" {
		t.Errorf("span 2 = %+v", spans[2])
	}
}

func TestParseInline_NestedItalicInBold(t *testing.T) {
	spans := ParseInline("**outer *inner* done**")
	if len(spans) != 3 {
		t.Fatalf("spans = %+v", spans)
	}
	for _, s := range spans {
		if !s.Bold {
			t.Errorf("span %+v should be bold", s)
		}
	}
	if !spans[1].Italic || spans[1].Text != "inner" {
		t.Errorf("nested span = %+v", spans[1])
	}
}

func TestParseInline_Links(t *testing.T) {
	spans := ParseInline("see [docs](https://example.com/docs) or https://example.org.")
	if len(spans) != 5 {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[1].Text != "docs" || spans[1].Link != "https://example.com/docs" {
		t.Errorf("link span = %+v", spans[1])
	}
	if spans[3].Link != "https://example.org" {
		t.Errorf("bare URL span = %+v, trailing period must not join the URL", spans[3])
	}
	if spans[4].Text != "." {
		t.Errorf("trailing span = %+v", spans[4])
	}
}

func TestRoundTrip(t *testing.T) {
	content := "# Title\n\n- item one\n- item two\n\n**bold** and *italic*"
	blocks := Parse(content)

	if len(blocks) != 4 {
		t.Fatalf("got %d blocks: %+v", len(blocks), blocks)
	}
	if blocks[0].Kind != BlockHeading || blocks[0].Level != 1 || blocks[0].Text != "Title" {
		t.Errorf("heading = %+v", blocks[0])
	}
	if blocks[1].Kind != BlockBullet || blocks[1].Text != "item one" {
		t.Errorf("bullet 1 = %+v", blocks[1])
	}
	if blocks[2].Kind != BlockBullet || blocks[2].Text != "item two" {
		t.Errorf("bullet 2 = %+v", blocks[2])
	}
	if blocks[3].Kind != BlockParagraph {
		t.Errorf("paragraph = %+v", blocks[3])
	}
	spans := ParseInline(blocks[3].Text)
	if len(spans) != 3 || !spans[0].Bold || spans[1].Text != " and " || !spans[2].Italic {
		t.Errorf("paragraph spans = %+v", spans)
	}
}

func TestRenderHTML(t *testing.T) {
	page := RenderHTML("My <Doc>", Parse("# Head\n\n- a\n- b\n\n**x** & y"))

	for _, want := range []string{
		"<title>My &lt;Doc&gt;</title>",
		"<h1>Head</h1>",
		"<ul>\n<li>a</li>\n<li>b</li>\n</ul>",
		"<strong>x</strong>",
		"&amp; y",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`Meeting: Q3 <Plan>`, "Meeting Q3 Plan"},
		{"trailing dots...", "trailing dots"},
		{`///\\\`, "untitled"},
		{"", "untitled"},
		{strings.Repeat("a", 300), strings.Repeat("a", 200)},
		{strings.Repeat("ü", 300), strings.Repeat("ü", 200)},
	}
	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStore_CreateAndList(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "docs"))

	info, err := store.CreateDocument("Standup Notes", "# Standup\n\n- done")
	if err != nil {
		t.Fatalf("CreateDocument error: %v", err)
	}
	if !strings.HasPrefix(info.Filename, "Standup Notes_") || !strings.HasSuffix(info.Filename, ".html") {
		t.Errorf("filename = %q, want title plus timestamp", info.Filename)
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<h1>Standup</h1>") {
		t.Error("document content not rendered")
	}

	docs, err := store.ListDocuments()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Name != info.Filename {
		t.Errorf("docs = %+v", docs)
	}
}

func TestStore_NoOverwrite(t *testing.T) {
	store := NewStore(t.TempDir())

	first, err := store.CreateDocument("Memo", "a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.CreateDocument("Memo", "b")
	if err != nil {
		t.Fatal(err)
	}
	if second.Filename == first.Filename {
		t.Errorf("second filename %q must differ from first", second.Filename)
	}
	data, _ := os.ReadFile(first.Path)
	if !strings.Contains(string(data), "<p>a</p>") {
		t.Error("first document was overwritten")
	}
}

func TestStore_ListEmptyDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"))
	docs, err := store.ListDocuments()
	if err != nil || docs != nil {
		t.Errorf("docs = %v, err = %v", docs, err)
	}
}
