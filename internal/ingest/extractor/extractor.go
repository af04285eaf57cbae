package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNotPDF reports that the payload does not carry a PDF header. The
// download path sometimes hands back an HTML error page saved as .pdf.
var ErrNotPDF = errors.New("extractor: data is not a pdf")

// Page is one page of extracted plain text. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

var captionRe = regexp.MustCompile(`^(Figure|Table)\s+\d+[:.]`)

// ExtractPages converts PDF bytes into per-page plain text. Figure/Table
// caption lines are re-appended to their page so captions stay retrievable
// next to the page content. Pages that fail text extraction yield empty
// text rather than failing the whole document.
func ExtractPages(data []byte) ([]Page, error) {
	if !isPDF(data) {
		return nil, fmt.Errorf("%w: head=%q", ErrNotPDF, head(data, 8))
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf reader: %w", err)
	}

	total := r.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		text := ""
		if !p.V.IsNull() {
			if t, err := p.GetPlainText(nil); err == nil {
				text = t
			}
		}

		caps := captionLines(text)
		if len(caps) > 0 {
			text = text + "\n" + strings.Join(caps, "\n")
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

// FullText joins page texts in order; this is the input to the document
// content hash, so it must be deterministic for identical PDFs.
func FullText(pages []Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

func captionLines(pageText string) []string {
	var caps []string
	for _, ln := range strings.Split(pageText, "\n") {
		if captionRe.MatchString(strings.TrimSpace(ln)) {
			caps = append(caps, ln)
		}
	}
	return caps
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && bytes.HasPrefix(data, []byte("%PDF-"))
}

func head(data []byte, n int) string {
	if len(data) < n {
		n = len(data)
	}
	return string(data[:n])
}
