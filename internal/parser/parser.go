// Package parser extracts plain text from uploaded document buffers.
//
// Dispatch is by the caller-declared format, never by content sniffing; the
// upload surface has already validated the extension.
//
// Every variant converts its library's failures into a *ParseError carrying
// the detected cause; raw library errors never escape this package. An empty
// extraction result is valid output, not an error; the pipeline handles
// zero-chunk documents downstream.
package parser

import (
	"errors"
	"fmt"
)

// Format identifies a supported document format. Values match the
// file_type column in the relational store.
type Format string

// Supported formats.
const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatPPT  Format = "ppt"
	FormatTXT  Format = "txt"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatPDF, FormatDOCX, FormatPPT, FormatTXT:
		return true
	}
	return false
}

// Reason classifies why parsing failed.
type Reason string

const (
	// ReasonCorrupt means the buffer could not be read as the declared
	// format at all (truncated upload, wrong file renamed, bit rot).
	ReasonCorrupt Reason = "corrupt"

	// ReasonUnsupported means the container opened but its internal
	// structure is not one this parser understands.
	ReasonUnsupported Reason = "unsupported structure"

	// ReasonEmpty means the buffer was empty where the format requires
	// at least a header.
	ReasonEmpty Reason = "empty file"
)

// ParseError is returned for any parsing failure. It is user-correctable
// and terminal for the affected document: the recovery path is re-upload.
type ParseError struct {
	Format Format
	Reason Reason
	Err    error // underlying cause, may be nil
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("parsing %s: %s", e.Format, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse extracts plain text from data according to the declared format.
// The result may be empty; an empty result is not an error.
func Parse(data []byte, format Format) (string, error) {
	switch format {
	case FormatPDF:
		return parsePDF(data)
	case FormatDOCX:
		return parseDOCX(data)
	case FormatPPT:
		return parsePPTX(data)
	case FormatTXT:
		return parseText(data)
	default:
		return "", &ParseError{Format: format, Reason: ReasonUnsupported}
	}
}
