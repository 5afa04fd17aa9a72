package extract

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTextFromStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "simple Tj",
			stream: "BT\n/F1 12 Tf\n72 720 Td\n(Hello World) Tj\nET",
			want:   "Hello World",
		},
		{
			name:   "TJ array with kerning",
			stream: "BT [(Hel) -20 (lo) 15 ( there)] TJ ET",
			want:   "Hello there",
		},
		{
			name:   "T star breaks lines",
			stream: "BT (first) Tj T* (second) Tj ET",
			want:   "first\nsecond",
		},
		{
			name:   "quote operator",
			stream: "BT (one) Tj (two) ' ET",
			want:   "one\ntwo",
		},
		{
			name:   "escapes and nested parens",
			stream: `BT (a \(b\) c \\ d (e)) Tj ET`,
			want:   `a (b) c \ d (e)`,
		},
		{
			name:   "octal escape",
			stream: `BT (caf\351) Tj ET`,
			want:   "café",
		},
		{
			name:   "hex string",
			stream: "BT <48656C6C6F> Tj ET",
			want:   "Hello",
		},
		{
			name:   "dictionary operand ignored",
			stream: "/P << /MCID 0 >> BDC BT (text) Tj ET EMC",
			want:   "text",
		},
		{
			name:   "no text operators",
			stream: "q 1 0 0 1 0 0 cm Q",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanText(textFromStream([]byte(tt.stream)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanText(t *testing.T) {
	got := cleanText("  a\x00b   c \n\n\t d  \n")
	assert.Equal(t, "a b c\nd", got)
}

func TestExtractPDF(t *testing.T) {
	path := writeFile(t, "doc.pdf", string(buildTextPDF("Hello World from the control table")))

	out, err := NewRegistry().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "pdf", out.Format)
	assert.Equal(t, 1, out.PageCount)
	require.Len(t, out.Sections, 1)
	assert.Equal(t, 1, out.Sections[0].Page)
	assert.Equal(t, "page", out.Sections[0].Kind)
	assert.Contains(t, out.Sections[0].Text, "Hello World")
	assert.Equal(t, out.Sections[0].Text, out.Title)
}

func TestExtractPDF_Invalid(t *testing.T) {
	path := writeFile(t, "broken.pdf", "not a pdf at all")

	_, err := NewRegistry().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdfcpu")
}

func TestExtractMarkdown(t *testing.T) {
	md := `Intro paragraph before any heading.

# Pipeline Guide

The orchestrator polls the **control table**.

## Stages

- extract
- chunk

` + "```\ncode sample\n```\n"

	path := writeFile(t, "guide.md", md)
	out, err := NewRegistry().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "markdown", out.Format)
	assert.Equal(t, "Pipeline Guide", out.Title)
	require.Len(t, out.Sections, 3)

	assert.Equal(t, "", out.Sections[0].Heading)
	assert.Equal(t, "Intro paragraph before any heading.", out.Sections[0].Text)

	assert.Equal(t, "Pipeline Guide", out.Sections[1].Heading)
	assert.Equal(t, "The orchestrator polls the control table.", out.Sections[1].Text)

	assert.Equal(t, "Stages", out.Sections[2].Heading)
	assert.Contains(t, out.Sections[2].Text, "- extract")
	assert.Contains(t, out.Sections[2].Text, "- chunk")
	assert.Contains(t, out.Sections[2].Text, "code sample")
}

func TestExtractText(t *testing.T) {
	path := writeFile(t, "notes.txt", "First line title\ncontinues here\r\n\r\nSecond   paragraph.\n\n\n")

	out, err := NewRegistry().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "txt", out.Format)
	assert.Equal(t, "First line title", out.Title)
	require.Len(t, out.Sections, 2)
	assert.Equal(t, "First line title continues here", out.Sections[0].Text)
	assert.Equal(t, "Second paragraph.", out.Sections[1].Text)
	assert.Equal(t, 7, out.WordCount())
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := r.Extract(context.Background(), "/tmp/file.docx")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.False(t, r.Supports("/tmp/file.docx"))
		assert.True(t, r.Supports("/tmp/FILE.PDF"))
	})

	t.Run("empty text", func(t *testing.T) {
		path := writeFile(t, "empty.txt", "  \n\n \t\n")
		_, err := r.Extract(context.Background(), path)
		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := r.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.md"))
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		path := writeFile(t, "a.txt", "text")
		_, err := r.Extract(ctx, path)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRegistry_CustomExtractor(t *testing.T) {
	r := NewRegistry()
	r.Register(".CSV", ExtractorFunc(func(_ context.Context, path string) (*Extraction, error) {
		return &Extraction{Sections: []Section{{Text: "a,b"}, {Text: " "}}}, nil
	}))

	out, err := r.Extract(context.Background(), "/data/table.csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", out.Format)
	assert.Len(t, out.Sections, 1)
}

// buildTextPDF monta um PDF mínimo de uma página com offsets de xref corretos.
func buildTextPDF(text string) []byte {
	escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		"<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n" + stream + "\nendstream",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		b.WriteString(strconv.Itoa(i+1) + " 0 obj\n" + obj + "\nendobj\n")
	}

	xref := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(len(objects)+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		s := strconv.Itoa(off)
		b.WriteString(strings.Repeat("0", 10-len(s)) + s + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(len(objects)+1) + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}
