package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown gera uma seção por título; o conteúdo antes do primeiro
// título vira uma seção sem heading.
func extractMarkdown(_ context.Context, path string) (*Extraction, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s: %w", path, err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	out := &Extraction{Format: "markdown"}

	var (
		heading string
		body    []string
	)
	flush := func() {
		if len(body) > 0 {
			out.Sections = append(out.Sections, Section{
				Text:    strings.Join(body, "\n"),
				Heading: heading,
				Kind:    "section",
			})
		}
		body = nil
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			flush()
			heading = inlineText(node, source)
			if out.Title == "" && node.Level == 1 {
				out.Title = heading
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if code := strings.TrimSpace(linesText(n, source)); code != "" {
				body = append(body, code)
			}
		case *ast.ThematicBreak, *ast.HTMLBlock:
			// sem texto útil
		default:
			if t := blockText(n, source); t != "" {
				body = append(body, t)
			}
		}
	}
	flush()

	if out.Title == "" && len(out.Sections) > 0 {
		out.Title = out.Sections[0].Heading
	}
	return out, nil
}

// blockText percorre parágrafos, listas e citações juntando o texto inline.
func blockText(n ast.Node, source []byte) string {
	var parts []string
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			line := inlineText(c, source)
			if _, isItem := c.Parent().(*ast.ListItem); isItem {
				line = "- " + line
			}
			if line != "" {
				parts = append(parts, line)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			parts = append(parts, strings.TrimSpace(linesText(c, source)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(parts, "\n")
}

func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(buf.String()), " ")
}

func linesText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}
