package storage

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"cv-evaluation-service/internal/domain"
)

// TextExtractor pulls plain text out of an uploaded file. PDF is the only
// supported format; .txt files pass through for local testing.
type TextExtractor interface {
	ExtractText(filePath string) (string, error)
}

type pdfExtractor struct{}

func NewPDFExtractor() TextExtractor {
	return &pdfExtractor{}
}

func (p *pdfExtractor) ExtractText(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", domain.ErrParseFailure, err)
	}
	defer f.Close()

	var b strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// unreadable page, keep what the rest of the document gives
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	text := normalizeText(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text content found in pdf", domain.ErrParseFailure)
	}
	return text, nil
}

// normalizeText collapses runs of blank lines and trims each line; extracted
// PDF text tends to carry layout artifacts the model does not need.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
