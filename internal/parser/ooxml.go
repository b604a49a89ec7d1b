package parser

import (
	"encoding/xml"
	"io"
	"strings"
)

// ooxmlText extracts the readable text from a single OOXML part
// (word/document.xml, ppt/slides/slideN.xml). Both WordprocessingML and
// DrawingML keep visible text in <t> elements grouped under <p> paragraphs,
// so a namespace-agnostic token scan covers both formats without modeling
// the full schemas.
func ooxmlText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}
