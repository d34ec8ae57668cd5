package subtitle

import (
	"regexp"
	"strconv"
	"strings"
)

// Text is an event's text in three forms: as written, split into override
// tag blocks and text runs, and as plain text with tags and drawings removed.
type Text struct {
	Raw      string     `json:"raw"`
	Parsed   []Fragment `json:"parsed"`
	Combined string     `json:"combined"`
}

// Fragment is a run of text preceded by the override tags that apply to it.
// Tags holds the contents of each {...} block without braces. Drawing is
// set while a \p scale above zero is active, in which case Text holds
// vector commands rather than visible text.
type Fragment struct {
	Tags    []string `json:"tags"`
	Text    string   `json:"text"`
	Drawing bool     `json:"drawing"`
}

var drawingTag = regexp.MustCompile(`\\p(\d+)`)

// ParseText splits raw event text into fragments and derives its plain
// form. Line break escapes (\N, \n, \h) are kept in Combined.
func ParseText(raw string) Text {
	var (
		fragments []Fragment
		combined  strings.Builder
		tags      []string
		drawing   bool
	)

	flush := func(text string) {
		if text == "" && len(tags) == 0 {
			return
		}
		fragments = append(fragments, Fragment{Tags: tags, Text: text, Drawing: drawing})
		if !drawing {
			combined.WriteString(text)
		}
		tags = nil
	}

	rest := raw
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			flush(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			// An unterminated brace is literal text.
			flush(rest)
			break
		}
		end += open

		if open > 0 {
			flush(rest[:open])
		}

		block := rest[open+1 : end]
		tags = append(tags, block)
		if m := drawingTag.FindAllStringSubmatch(block, -1); m != nil {
			scale, _ := strconv.Atoi(m[len(m)-1][1])
			drawing = scale > 0
		}
		rest = rest[end+1:]
	}
	if len(tags) > 0 {
		flush("")
	}

	if fragments == nil {
		fragments = []Fragment{}
	}
	return Text{Raw: raw, Parsed: fragments, Combined: combined.String()}
}

var lineBreaks = strings.NewReplacer(`\N`, " ", `\n`, " ", `\h`, " ")

// PlainText replaces subtitle line break escapes with single spaces.
func PlainText(s string) string {
	return lineBreaks.Replace(s)
}
