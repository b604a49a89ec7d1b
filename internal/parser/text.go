package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// parseText handles plain-text uploads. It never fails: an empty buffer is
// an empty document. NUL bytes are stripped because PostgreSQL rejects them
// in text columns, and invalid UTF-8 is replaced so the content survives
// JSON encoding in vector payloads.
func parseText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	data = bytes.ReplaceAll(data, []byte{0}, nil)
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
