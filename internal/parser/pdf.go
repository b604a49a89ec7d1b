package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts text from a PDF buffer page by page.
//
// The pdf library panics on some malformed files instead of returning an
// error, so the whole extraction runs under a recover guard that converts a
// panic into a ParseError.
func parsePDF(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", &ParseError{Format: FormatPDF, Reason: ReasonEmpty}
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ParseError{
				Format: FormatPDF,
				Reason: ReasonCorrupt,
				Err:    fmt.Errorf("reader panic: %v", r),
			}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ParseError{Format: FormatPDF, Reason: ReasonCorrupt, Err: err}
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			// A single unreadable page does not invalidate the rest
			// of the document; skip it.
			continue
		}
		if content == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(content)
	}

	return b.String(), nil
}
