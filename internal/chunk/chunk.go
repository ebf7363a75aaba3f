// Package chunk splits file text into line-aligned, character-budgeted
// spans and tokenizes text for indexing.
package chunk

import "fmt"

// Default chunking parameters.
const (
	DefaultMaxChars = 1200
	DefaultOverlap  = 150

	// approxCharsPerLine converts a character overlap budget into an
	// approximate line count.
	approxCharsPerLine = 80
)

// Span is one chunk of a file. Lines are 1-based inclusive.
type Span struct {
	StartLine int
	EndLine   int
	Text      string
}

// ID returns the deterministic chunk identifier for this span within a
// file whose content hash is fileHash.
func (s Span) ID(fileHash string) string {
	return fmt.Sprintf("%s:%d:%d", fileHash, s.StartLine, s.EndLine)
}

// Split performs greedy line accumulation: whole lines are added to the
// current chunk while the running length stays within maxChars. A single
// line longer than maxChars is emitted alone, truncated. After closing a
// chunk the next one starts overlap/80 lines earlier, but never at or
// before the previous chunk's start, so starts are strictly increasing
// and every line of the file is covered.
func Split(text string, maxChars, overlap int) []Span {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}

	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	overlapLines := overlap / approxCharsPerLine

	var spans []Span
	start := 0
	for start < len(lines) {
		length := 0
		i := start
		for i < len(lines) && length+len(lines[i])+1 <= maxChars {
			length += len(lines[i]) + 1
			i++
		}

		var chunkText string
		if i == start {
			// Single oversized line: emit alone, truncated.
			chunkText = lines[start][:maxChars]
			i = start + 1
		} else {
			chunkText = joinLines(lines[start:i])
		}

		spans = append(spans, Span{
			StartLine: start + 1,
			EndLine:   i,
			Text:      chunkText,
		})

		if i >= len(lines) {
			break
		}

		next := i - overlapLines
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return spans
}

// splitLines splits on "\n" the way line numbering expects: a trailing
// newline does not produce an extra empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	begin := 0
	for idx := 0; idx < len(text); idx++ {
		if text[idx] == '\n' {
			line := text[begin:idx]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			begin = idx + 1
		}
	}
	if begin < len(text) {
		lines = append(lines, text[begin:])
	}
	return lines
}

func joinLines(lines []string) string {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	buf := make([]byte, 0, n)
	for idx, l := range lines {
		if idx > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, l...)
	}
	return string(buf)
}
