package parser

import (
	"archive/zip"
	"bytes"
)

// docxDocumentPart is the archive member holding the document body.
const docxDocumentPart = "word/document.xml"

// parseDOCX extracts text from a DOCX buffer. A DOCX file is a ZIP archive;
// the visible text lives in word/document.xml.
func parseDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ParseError{Format: FormatDOCX, Reason: ReasonEmpty}
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ParseError{Format: FormatDOCX, Reason: ReasonCorrupt, Err: err}
	}

	for _, file := range archive.File {
		if file.Name != docxDocumentPart {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", &ParseError{Format: FormatDOCX, Reason: ReasonCorrupt, Err: err}
		}
		text, err := ooxmlText(rc)
		rc.Close()
		if err != nil {
			return "", &ParseError{Format: FormatDOCX, Reason: ReasonUnsupported, Err: err}
		}
		return text, nil
	}

	// A ZIP without word/document.xml is not a Word document.
	return "", &ParseError{Format: FormatDOCX, Reason: ReasonUnsupported}
}
