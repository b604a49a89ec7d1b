// Package chunker splits extracted document text into bounded overlapping
// windows, the unit of embedding and retrieval.
//
// The windowing is character (rune) based, never byte based: a window
// boundary can never split a multibyte encoding, so every chunk is valid
// UTF-8. Chunk indices persisted in the relational store and in vector
// payloads must stay stable across re-ingestion, so the arithmetic here is
// part of the storage contract.
package chunker

const (
	// DefaultSize is the default chunk window size in characters.
	DefaultSize = 500

	// DefaultOverlap is the default number of characters shared between
	// consecutive windows.
	DefaultOverlap = 50
)

// Split cuts text into overlapping windows of at most size characters.
// Window i starts at character offset i*(size-overlap); the last window may
// be shorter. Empty text yields no chunks.
//
// Degenerate configuration: when overlap >= size the stride would be zero
// or negative, so exactly one window is emitted regardless of input length.
//
// Split is a pure function: same inputs, same output, safe to re-run.
func Split(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))

		// A non-positive stride can never advance; emit the single
		// window and stop instead of looping forever.
		if overlap >= size {
			break
		}
		start += size - overlap
	}
	return chunks
}

// Count returns the number of windows Split produces for a text of n
// characters without materializing them. It mirrors Split's arithmetic
// exactly.
func Count(n, size, overlap int) int {
	if n == 0 {
		return 0
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap >= size {
		return 1
	}
	if overlap < 0 {
		overlap = 0
	}
	stride := size - overlap
	return (n + stride - 1) / stride
}
