// Package plandoc extracts presentation metadata from plan markdown:
// the document title for listings and the heading outline for
// navigation. It never alters the plan content.
package plandoc

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Heading is one entry of a document outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// maxTitleLength caps the fallback title taken from the first text
// line.
const maxTitleLength = 80

// Title returns the plan's display title: the text of the first heading
// when the document has one, otherwise the first non-empty line,
// truncated.
func Title(content string) string {
	outline := Outline(content)
	if len(outline) > 0 {
		return outline[0].Text
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxTitleLength {
			runes := []rune(line)
			if len(runes) > maxTitleLength {
				line = string(runes[:maxTitleLength])
			}
		}
		return line
	}

	return "Untitled plan"
}

// Outline parses the markdown and returns its headings in document
// order.
func Outline(content string) []Heading {
	source := []byte(content)

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var outline []Heading
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		outline = append(outline, Heading{
			Level: heading.Level,
			Text:  headingText(heading, source),
		})
		return ast.WalkSkipChildren, nil
	})

	return outline
}

// headingText concatenates the literal text of a heading's children.
func headingText(heading *ast.Heading, source []byte) string {
	var sb strings.Builder
	for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}
