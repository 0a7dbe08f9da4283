// Package htmlstrip extracts readable text from an HTML email body. It is
// used to synthesize a plain-text body when a message carries only HTML.
package htmlstrip

import (
	"strings"

	"golang.org/x/net/html"
)

// discardContent lists elements whose text never belongs in the output.
var discardContent = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"title":    true,
}

// lineBreakTags lists elements that end a line of text.
var lineBreakTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true,
}

// Text converts an HTML document to plain text. Block boundaries become
// newlines, inline whitespace collapses, and script/style content is
// dropped. Malformed HTML never fails: the tokenizer emits what it can.
func Text(document string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(document))

	var out strings.Builder
	discardDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(out.String())

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if discardContent[tag] {
				discardDepth++
			}
			if lineBreakTags[tag] {
				breakLine(&out)
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if discardContent[tag] && discardDepth > 0 {
				discardDepth--
			}
			if lineBreakTags[tag] {
				breakLine(&out)
			}

		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if lineBreakTags[string(name)] {
				breakLine(&out)
			}

		case html.TextToken:
			if discardDepth > 0 {
				continue
			}
			writeCollapsed(&out, tokenizer.Text())
		}
	}
}

func breakLine(out *strings.Builder) {
	s := out.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") {
		out.WriteByte('\n')
	}
}

// writeCollapsed appends text with runs of whitespace collapsed to one
// space, without introducing leading spaces after a line break.
func writeCollapsed(out *strings.Builder, text []byte) {
	for _, field := range strings.Fields(string(text)) {
		s := out.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			out.WriteByte(' ')
		}
		out.WriteString(field)
	}
}
