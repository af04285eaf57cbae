// Package extractortest builds tiny but structurally valid PDFs for tests
// that need to exercise the real extraction path.
package extractortest

import (
	"bytes"
	"fmt"
	"strings"
)

// MinimalPDF renders one page per entry of pageTexts, each as a single line
// of Helvetica text. The output carries a correct xref table, so any
// conforming parser accepts it.
func MinimalPDF(pageTexts ...string) []byte {
	if len(pageTexts) == 0 {
		pageTexts = []string{"empty fixture page"}
	}

	// Object layout: 1 catalog, 2 page tree, 3 font, then for page i
	// (0-based): 4+2i page, 5+2i content stream.
	numObjects := 3 + 2*len(pageTexts)

	var buf bytes.Buffer
	offsets := make([]int, numObjects+1)

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pageTexts))
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pageTexts)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, text := range pageTexts {
		pageNum := 4 + 2*i
		contentNum := 5 + 2*i

		writeObj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentNum))

		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escapeString(text))
		writeObj(contentNum, fmt.Sprintf(
			"<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", numObjects+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= numObjects; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		numObjects+1, xrefOffset)

	return buf.Bytes()
}

func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
