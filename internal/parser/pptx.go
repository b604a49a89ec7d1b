package parser

import (
	"archive/zip"
	"os"
	"regexp"
	"sort"
	"strconv"
)

// slidePartPattern matches slide parts inside a PPTX archive and captures
// the slide number for ordering.
var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// parsePPTX extracts text from a PPTX buffer, slide by slide in deck order.
//
// The buffer is staged in a temporary file and opened with zip.OpenReader;
// the file is removed on every exit path. If the process dies between
// creation and removal, OS temp-dir cleanup is the backstop.
func parsePPTX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ParseError{Format: FormatPPT, Reason: ReasonEmpty}
	}

	tmp, err := os.CreateTemp("", "studybuddy-pptx-*.zip")
	if err != nil {
		return "", &ParseError{Format: FormatPPT, Reason: ReasonCorrupt, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", &ParseError{Format: FormatPPT, Reason: ReasonCorrupt, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &ParseError{Format: FormatPPT, Reason: ReasonCorrupt, Err: err}
	}

	archive, err := zip.OpenReader(tmpName)
	if err != nil {
		return "", &ParseError{Format: FormatPPT, Reason: ReasonCorrupt, Err: err}
	}
	defer func() {
		_ = archive.Close()
	}()

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range archive.File {
		m := slidePartPattern.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: file})
	}
	if len(slides) == 0 {
		return "", &ParseError{Format: FormatPPT, Reason: ReasonUnsupported}
	}

	// Archive member order is arbitrary; slide numbers define deck order.
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var out string
	for _, s := range slides {
		rc, openErr := s.file.Open()
		if openErr != nil {
			return "", &ParseError{Format: FormatPPT, Reason: ReasonCorrupt, Err: openErr}
		}
		text, textErr := ooxmlText(rc)
		rc.Close()
		if textErr != nil {
			return "", &ParseError{Format: FormatPPT, Reason: ReasonUnsupported, Err: textErr}
		}
		if text == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += text
	}

	return out, nil
}
