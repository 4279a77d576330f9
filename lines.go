package pagedbuffer

import "github.com/SimonWaldherr/pagedbuffer/internal/vpm"

// LineInfo describes one logical line. See internal/vpm.LineInfo.
type LineInfo = vpm.LineInfo

// LineCount returns the total number of lines. exact is false if the count
// rests on a page-boundary approximation for a page never loaded since
// initialization.
func (b *Buffer) LineCount() (count int64, exact bool) {
	return b.vpm.LineCount()
}

// LineInfo resolves the byte range of line n (1-based).
func (b *Buffer) LineInfo(n int64) (LineInfo, error) {
	return b.vpm.LineInfo(n)
}

// MultipleLines resolves every line in [from, to] (inclusive, 1-based).
func (b *Buffer) MultipleLines(from, to int64) ([]LineInfo, error) {
	return b.vpm.MultipleLines(from, to)
}

// ByteToLineCol converts an absolute byte position to its 1-based (line, col).
func (b *Buffer) ByteToLineCol(pos int64) (line, col int64, err error) {
	return b.vpm.ByteToLineCol(pos)
}

// LineColToByte converts a 1-based (line, col) to an absolute byte position.
func (b *Buffer) LineColToByte(line, col int64) (int64, error) {
	return b.vpm.LineColToByte(line, col)
}
