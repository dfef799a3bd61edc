package docgen

import (
	"fmt"
	"html"
	"strings"
)

const pageStyle = `body { font-family: Georgia, 'Times New Roman', serif; max-width: 46em; margin: 2em auto; padding: 0 1em; line-height: 1.5; color: #1a1a1a; }
h1 { font-size: 1.6em; border-bottom: 1px solid #ccc; padding-bottom: 0.2em; }
h2 { font-size: 1.3em; }
h3 { font-size: 1.1em; }
blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1em; color: #555; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #999; padding: 0.3em 0.6em; text-align: left; }
hr { border: none; border-top: 1px solid #ccc; margin: 1.5em 0; }`

// RenderHTML renders parsed blocks as a standalone HTML page. Consecutive
// bullet and numbered blocks merge into one list element.
func RenderHTML(title string, blocks []Block) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<style>\n%s\n</style>\n</head>\n<body>\n", pageStyle)

	listTag := ""
	closeList := func() {
		if listTag != "" {
			fmt.Fprintf(&b, "</%s>\n", listTag)
			listTag = ""
		}
	}
	openList := func(tag string) {
		if listTag != tag {
			closeList()
			fmt.Fprintf(&b, "<%s>\n", tag)
			listTag = tag
		}
	}

	for _, block := range blocks {
		switch block.Kind {
		case BlockHeading:
			closeList()
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", block.Level, renderSpans(block.Text), block.Level)
		case BlockBullet:
			openList("ul")
			fmt.Fprintf(&b, "<li>%s</li>\n", renderSpans(block.Text))
		case BlockNumber:
			openList("ol")
			fmt.Fprintf(&b, "<li>%s</li>\n", renderSpans(block.Text))
		case BlockQuote:
			closeList()
			fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", renderSpans(block.Text))
		case BlockRule:
			closeList()
			b.WriteString("<hr>\n")
		case BlockTable:
			closeList()
			writeTable(&b, block.Rows)
		default:
			closeList()
			fmt.Fprintf(&b, "<p>%s</p>\n", renderSpans(block.Text))
		}
	}
	closeList()

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// writeTable renders the first row as a header row.
func writeTable(b *strings.Builder, rows [][]string) {
	b.WriteString("<table>\n")
	for i, row := range rows {
		tag := "td"
		if i == 0 {
			tag = "th"
		}
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(b, "<%s>%s</%s>", tag, renderSpans(cell), tag)
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n")
}

func renderSpans(text string) string {
	var b strings.Builder
	for _, span := range ParseInline(text) {
		inner := html.EscapeString(span.Text)
		if span.Bold {
			inner = "<strong>" + inner + "</strong>"
		}
		if span.Italic {
			inner = "<em>" + inner + "</em>"
		}
		if span.Link != "" {
			inner = fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(span.Link), inner)
		}
		b.WriteString(inner)
	}
	return b.String()
}
