package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF lê o PDF com pdfcpu e gera uma seção por página com texto.
func extractPDF(ctx context.Context, path string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("extract: pdfcpu read: %w", err)
	}

	out := &Extraction{Format: "pdf", PageCount: pdfCtx.PageCount}
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := pageText(pdfCtx, pageNr)
		if text == "" {
			continue
		}
		if out.Title == "" {
			out.Title = firstLine(text, 200)
		}
		out.Sections = append(out.Sections, Section{Text: text, Page: pageNr, Kind: "page"})
	}
	return out, nil
}

func pageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return cleanText(textFromStream(data))
}

// textFromStream interpreta os operadores de texto de um content stream
// (Tj, TJ, ', ", Td, TD, T*) e ignora o resto.
func textFromStream(data []byte) string {
	var (
		sb      strings.Builder
		strs    []string // operandos string pendentes
		inArray bool
	)

	emit := func(s string) { sb.WriteString(s) }
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '(':
			s, next := readLiteral(data, i)
			strs = append(strs, s)
			i = next
			continue
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
			continue
		case c == '<':
			s, next := readHex(data, i)
			strs = append(strs, s)
			i = next
			continue
		case c == '[':
			inArray = true
			strs = strs[:0]
		case c == ']':
			inArray = false
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
			continue
		case isOperatorStart(c):
			j := i
			for j < len(data) && isOperatorChar(data[j]) {
				j++
			}
			op := string(data[i:j])
			i = j
			if inArray {
				continue
			}
			switch op {
			case "Tj", "TJ":
				for _, s := range strs {
					emit(s)
				}
			case "'", "\"":
				newline()
				for _, s := range strs {
					emit(s)
				}
			case "Td", "TD":
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
			case "T*", "ET":
				newline()
			}
			strs = strs[:0]
			continue
		}
		i++
	}
	return sb.String()
}

func isOperatorStart(c byte) bool {
	return c == '\'' || c == '"' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isOperatorChar(c byte) bool {
	return isOperatorStart(c) || c == '*'
}

// readLiteral lê uma string (...) a partir de data[start], respeitando
// parênteses aninhados e escapes.
func readLiteral(data []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(data) {
		c := data[i]
		switch c {
		case '\\':
			i++
			if i >= len(data) {
				return sb.String(), i
			}
			e := data[i]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
				// sem efeito no texto
			case '\r', '\n':
				// continuação de linha
			default:
				if e >= '0' && e <= '7' {
					v := 0
					n := 0
					for n < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7' {
						v = v*8 + int(data[i]-'0')
						i++
						n++
					}
					sb.WriteRune(rune(v & 0xff))
					continue
				}
				sb.WriteByte(e)
			}
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
		i++
	}
	return sb.String(), i
}

// readHex lê uma string <...>; bytes fora do ASCII imprimível são descartados.
func readHex(data []byte, start int) (string, int) {
	i := start + 1
	var digits []byte
	for i < len(data) && data[i] != '>' {
		if isHexDigit(data[i]) {
			digits = append(digits, data[i])
		}
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var sb strings.Builder
	for k := 0; k < len(digits); k += 2 {
		b := hexVal(digits[k])<<4 | hexVal(digits[k+1])
		if b >= 0x20 && b < 0x7f {
			sb.WriteByte(b)
		}
	}
	return sb.String(), i + 1
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// cleanText remove caracteres de controle e normaliza espaços por linha.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return ' '
		}
		return r
	}, s)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
