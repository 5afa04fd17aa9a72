package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// extractText divide texto puro em parágrafos separados por linhas em branco.
func extractText(_ context.Context, path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s: %w", path, err)
	}

	text := strings.ToValidUTF8(string(data), "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	out := &Extraction{Format: "txt", Title: firstLine(text, 200)}
	for _, p := range splitParagraphs(text) {
		out.Sections = append(out.Sections, Section{Text: p, Kind: "paragraph"})
	}
	return out, nil
}

func splitParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
