package marks

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LineInfo describes one 1-based line: its byte extent and any marks that
// fall within it.
type LineInfo struct {
	Line      int
	ByteStart int64
	ByteEnd   int64
	Length    int64
	MarkNames []string
}

// GetLineCount returns the total number of lines (always at least 1, even
// for an empty buffer).
func (m *Manager) GetLineCount() int {
	m.ensureLines()
	return len(m.lineStarts)
}

// LineCharToBytePosition converts a 1-based (line, char) pair to an absolute
// byte position. char is a UTF-8 code-unit offset within the line, not a
// grapheme offset; grapheme-aware positioning is out of scope here. Both
// inputs are clamped rather than rejected: a line past the end of the
// buffer clamps to totalSize, and a char past the end of its line clamps to
// the line's end.
func (m *Manager) LineCharToBytePosition(line, char int) (int64, error) {
	m.ensureLines()
	if line < 1 {
		return 0, fmt.Errorf("marks: line %d < 1", line)
	}
	total := m.src.TotalSize()
	if line > len(m.lineStarts) {
		return total, nil
	}
	lineStart := m.lineStarts[line-1]
	lineEnd := total
	if line < len(m.lineStarts) {
		lineEnd = m.lineStarts[line] - 1 // exclude the line's own \n
	}
	if char < 1 {
		char = 1
	}
	pos := lineStart + int64(char-1)
	if pos > lineEnd {
		pos = lineEnd
	}
	return pos, nil
}

// ByteToLineCharPosition converts an absolute byte position to a 1-based
// (line, char) pair, clamping pos into [0, totalSize].
func (m *Manager) ByteToLineCharPosition(pos int64) (line, char int) {
	m.ensureLines()
	total := m.src.TotalSize()
	if pos < 0 {
		pos = 0
	}
	if pos > total {
		pos = total
	}
	// Last line start <= pos.
	i := sort.Search(len(m.lineStarts), func(i int) bool { return m.lineStarts[i] > pos })
	idx := i - 1
	if idx < 0 {
		idx = 0
	}
	return idx + 1, int(pos-m.lineStarts[idx]) + 1
}

// GetLineInfo returns the byte extent of a 1-based line, plus the names of
// any marks within it.
func (m *Manager) GetLineInfo(line int) (LineInfo, error) {
	m.ensureLines()
	if line < 1 || line > len(m.lineStarts) {
		return LineInfo{}, fmt.Errorf("marks: line %d out of range [1,%d]", line, len(m.lineStarts))
	}
	total := m.src.TotalSize()
	start := m.lineStarts[line-1]
	end := total
	if line < len(m.lineStarts) {
		end = m.lineStarts[line] - 1
	}

	var names []string
	for _, ref := range m.ExtractMarksInRange(start, end+1) {
		names = append(names, ref.Name)
	}
	sort.Strings(names)

	length := end - start + 1
	if line == len(m.lineStarts) {
		length = end - start // last line: only what lies between start and the buffer's end
	}

	return LineInfo{Line: line, ByteStart: start, ByteEnd: end, Length: length, MarkNames: names}, nil
}

// DetectBOM reports whether data begins with a UTF-8, UTF-16LE, or UTF-16BE
// byte-order mark, and how many bytes it occupies. This is a load-time
// annotation only: callers record it and leave the bytes untouched, so the
// buffer's byte-for-byte round-trip invariant still holds.
func DetectBOM(data []byte) (present bool, width int) {
	if len(data) == 0 {
		return false, 0
	}
	out, n, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil || n != len(data) || bytes.Equal(out, data) {
		return false, 0
	}
	// BOMOverride only departs from the Nop fallback when the input opens
	// with a BOM: three bytes for UTF-8, two for either UTF-16 byte order.
	if data[0] == 0xEF {
		return true, 3
	}
	return true, 2
}
