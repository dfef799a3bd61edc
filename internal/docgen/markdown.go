// Package docgen renders markdown-like content into structured HTML
// documents. Parsing and rendering are pure; the only side effect lives in
// CreateDocument, which writes one file.
package docgen

import (
	"regexp"
	"strings"
)

type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockBullet
	BlockNumber
	BlockQuote
	BlockRule
	BlockTable
)

// Block is one parsed content block. Level is set for headings (1-3), Text
// for everything except tables, Rows for tables.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string
	Rows  [][]string
}

// Span is one inline run. Link carries the target URL for links; bare URLs
// become links whose text equals the target.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	Link   string
}

var (
	numberedRe  = regexp.MustCompile(`^(\d+)\.\s+(.*)$`)
	ruleRe      = regexp.MustCompile(`^(-{3,}|_{3,}|\*{3,})$`)
	separatorRe = regexp.MustCompile(`^:?-+:?$`)

	// Bold before italic so ** wins at the same position; bare URLs are
	// validated against their preceding character in parseInline (RE2 has
	// no lookbehind).
	inlineRe = regexp.MustCompile(`\*\*(.+?)\*\*|\*(.+?)\*|\[([^\]]+)\]\(([^)]+)\)|https?://[^\s<>")]+`)
)

// Parse splits content into blocks by line prefix. Table rows accumulate
// across contiguous lines and flush on the first non-table line or at end of
// input; separator rows (pure dash/colon cells) are dropped.
func Parse(content string) []Block {
	var blocks []Block
	var tableBuf [][]string

	flushTable := func() {
		if len(tableBuf) > 0 {
			blocks = append(blocks, Block{Kind: BlockTable, Rows: tableBuf})
			tableBuf = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "|") {
			if row, ok := parseTableRow(stripped); ok {
				tableBuf = append(tableBuf, row)
			}
			continue
		}
		flushTable()

		switch {
		case stripped == "":
		case strings.HasPrefix(stripped, "### "):
			blocks = append(blocks, Block{Kind: BlockHeading, Level: 3, Text: stripped[4:]})
		case strings.HasPrefix(stripped, "## "):
			blocks = append(blocks, Block{Kind: BlockHeading, Level: 2, Text: stripped[3:]})
		case strings.HasPrefix(stripped, "# "):
			blocks = append(blocks, Block{Kind: BlockHeading, Level: 1, Text: stripped[2:]})
		case strings.HasPrefix(stripped, "- "):
			blocks = append(blocks, Block{Kind: BlockBullet, Text: stripped[2:]})
		case strings.HasPrefix(stripped, "> "):
			blocks = append(blocks, Block{Kind: BlockQuote, Text: stripped[2:]})
		case ruleRe.MatchString(stripped):
			blocks = append(blocks, Block{Kind: BlockRule})
		default:
			if m := numberedRe.FindStringSubmatch(stripped); m != nil {
				blocks = append(blocks, Block{Kind: BlockNumber, Text: m[2]})
			} else {
				blocks = append(blocks, Block{Kind: BlockParagraph, Text: stripped})
			}
		}
	}
	flushTable()

	return blocks
}

// parseTableRow splits a pipe-delimited line into trimmed cells. Separator
// rows like |---|:---:| report ok=false.
func parseTableRow(line string) ([]string, bool) {
	trimmed := strings.Trim(line, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	separator := true
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
		if !separatorRe.MatchString(cells[i]) {
			separator = false
		}
	}
	return cells, !separator
}

// ParseInline splits text into styled runs: **bold**, *italic*, [text](url)
// links, and bare URLs. Bold and italic nest through recursion.
func ParseInline(text string) []Span {
	return parseInline(text, false, false)
}

func parseInline(text string, bold, italic bool) []Span {
	var spans []Span
	pos := 0

	appendPlain := func(s string) {
		if s != "" {
			spans = append(spans, Span{Text: s, Bold: bold, Italic: italic})
		}
	}

	for pos < len(text) {
		m := inlineRe.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[0], pos+m[1]
		match := text[start:end]

		// Bare URL: reject when glued to a preceding word character or
		// opening paren (it is then part of a markdown link already
		// handled, or mid-identifier).
		if strings.HasPrefix(match, "http") && m[2] < 0 && m[4] < 0 && m[6] < 0 {
			if start > 0 {
				prev := text[start-1]
				if prev == '(' || isWordByte(prev) {
					appendPlain(text[pos:end])
					pos = end
					continue
				}
			}
			url := strings.TrimRight(match, `.,;:!?)_"`)
			appendPlain(text[pos:start])
			spans = append(spans, Span{Text: url, Link: url, Bold: bold, Italic: italic})
			pos = start + len(url)
			continue
		}

		appendPlain(text[pos:start])
		switch {
		case m[2] >= 0: // **bold**
			spans = append(spans, parseInline(text[pos+m[2]:pos+m[3]], true, italic)...)
		case m[4] >= 0: // *italic*
			spans = append(spans, parseInline(text[pos+m[4]:pos+m[5]], bold, true)...)
		case m[6] >= 0: // [text](url)
			spans = append(spans, Span{
				Text:   text[pos+m[6] : pos+m[7]],
				Link:   text[pos+m[8] : pos+m[9]],
				Bold:   bold,
				Italic: italic,
			})
		}
		pos = end
	}
	appendPlain(text[pos:])

	return spans
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
