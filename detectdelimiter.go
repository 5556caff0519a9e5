package exprnorm

import (
	"bytes"
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file. Falls back to tab.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 && len(delimiters[0]) > 0 {
		return rune(delimiters[0][0])
	}

	return '\t'
}

// DetermineDelimiterBytes is DetermineDelimiter for data already in memory.
// Only the first few kilobytes are consulted.
func DetermineDelimiterBytes(data []byte) rune {
	const sniffBytes = 64 * 1024
	if len(data) > sniffBytes {
		data = data[:sniffBytes]
	}

	// A tab in the header line settles it; commas turn up in free-text meta
	// columns.
	if nl := bytes.IndexByte(data, '\n'); nl > 0 && bytes.IndexByte(data[:nl], '\t') >= 0 {
		return '\t'
	}

	return DetermineDelimiter(bytes.NewReader(data))
}
