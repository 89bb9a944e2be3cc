package pdfextract

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractFile extracts plain text page by page, one page per line group.
// Pages without a content stream are skipped. Returns empty string and nil
// error if the PDF has no extractable text.
func ExtractFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return pages(r)
}

func pages(r *pdf.Reader) (string, error) {
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
