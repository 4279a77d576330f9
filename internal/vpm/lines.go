package vpm

import "fmt"

// LineInfo describes one logical line: its 1-based number and the half-open
// byte range [Start, End) it spans, excluding the terminating newline.
// IsExact is false when the result rests on a page-boundary approximation
// rather than a loaded newline index, per §4.3.1.
type LineInfo struct {
	Number  int64
	Start   int64
	End     int64
	IsExact bool
}

// descriptorNewlineCount returns d's newline count without loading its body,
// if known: from a resident PageInfo, or from the descriptor's cached count
// left behind at eviction.
func (m *Manager) descriptorNewlineCount(d *PageDescriptor) (count int64, known bool) {
	if pi, ok := m.cache[d.PageID]; ok {
		if !pi.newlineBuilt {
			pi.buildNewlineIndex()
		}
		return int64(len(pi.NewlineOffsets)), true
	}
	if d.LineInfoValid {
		return int64(d.NewlineCount), true
	}
	return 0, false
}

// LineCount returns the total number of lines (newline count + 1). exact is
// false if any descriptor's newline count had to be approximated rather than
// read from a loaded or previously-cached index.
func (m *Manager) LineCount() (count int64, exact bool) {
	exact = true
	var newlines int64
	for _, d := range m.idx.All() {
		n, known := m.descriptorNewlineCount(d)
		if !known {
			exact = false
			continue
		}
		newlines += n
	}
	return newlines + 1, exact
}

// LineInfo resolves the byte range of line n (1-based). Pages whose newline
// count is unknown and fall strictly before n are approximated as a single
// line each (so the walk need not load every preceding page), which flags
// the result IsExact = false; the page the walk stops at is always loaded
// and the line is resolved from its newline index.
func (m *Manager) LineInfo(n int64) (LineInfo, error) {
	if n < 1 {
		return LineInfo{}, fmt.Errorf("vpm: line numbers start at 1, got %d", n)
	}

	exact := true
	var lineStart int64
	curLine := int64(1)

	descs := m.idx.All()
	for _, d := range descs {
		cnt, known := m.descriptorNewlineCount(d)
		if known && curLine+cnt < n {
			curLine += cnt
			lineStart = d.VirtualStart + d.VirtualSize
			continue
		}
		if !known && curLine < n {
			exact = false
			curLine++
			lineStart = d.VirtualStart + d.VirtualSize
			continue
		}

		pi, err := m.ensureLoaded(d)
		if err != nil {
			return LineInfo{}, err
		}
		if !pi.newlineBuilt {
			pi.buildNewlineIndex()
		}
		idx := int(n - curLine)
		if idx < 0 || idx > len(pi.NewlineOffsets) {
			// the approximation undershot: this page doesn't actually reach
			// line n, resume the exact walk from here.
			curLine += int64(len(pi.NewlineOffsets))
			lineStart = d.VirtualStart + d.VirtualSize
			continue
		}

		start := lineStart
		if idx > 0 {
			start = d.VirtualStart + int64(pi.NewlineOffsets[idx-1]) + 1
		}
		var end int64
		if idx < len(pi.NewlineOffsets) {
			end = d.VirtualStart + int64(pi.NewlineOffsets[idx])
		} else {
			end, err = m.lineEndAfter(d, start)
			if err != nil {
				return LineInfo{}, err
			}
		}
		return LineInfo{Number: n, Start: start, End: end, IsExact: exact}, nil
	}

	if n == curLine {
		return LineInfo{Number: n, Start: lineStart, End: m.TotalSize(), IsExact: exact}, nil
	}
	return LineInfo{}, fmt.Errorf("vpm: line %d out of range", n)
}

// lineEndAfter finds the byte offset of the next newline at or after start,
// searching descriptors strictly after from. Returns TotalSize() if the
// buffer ends before one is found (the last line has no trailing newline).
func (m *Manager) lineEndAfter(from *PageDescriptor, start int64) (int64, error) {
	afterFrom := false
	for _, d := range m.idx.All() {
		if !afterFrom {
			if d.PageID == from.PageID {
				afterFrom = true
			}
			continue
		}
		pi, err := m.ensureLoaded(d)
		if err != nil {
			return 0, err
		}
		if !pi.newlineBuilt {
			pi.buildNewlineIndex()
		}
		if len(pi.NewlineOffsets) > 0 {
			return d.VirtualStart + int64(pi.NewlineOffsets[0]), nil
		}
	}
	return m.TotalSize(), nil
}

// MultipleLines resolves every line in [a, b] (inclusive, 1-based), stopping
// early if the buffer ends first.
func (m *Manager) MultipleLines(a, b int64) ([]LineInfo, error) {
	if a < 1 || b < a {
		return nil, fmt.Errorf("vpm: invalid line range [%d,%d]", a, b)
	}
	out := make([]LineInfo, 0, b-a+1)
	for n := a; n <= b; n++ {
		li, err := m.LineInfo(n)
		if err != nil {
			break
		}
		out = append(out, li)
		if li.End >= m.TotalSize() {
			break
		}
	}
	return out, nil
}

// ByteToLineCol converts an absolute byte position to its 1-based (line,
// col). Always exact: every descriptor up to and including the one holding
// pos is loaded to count newlines precisely.
func (m *Manager) ByteToLineCol(pos int64) (line, col int64, err error) {
	if pos < 0 || pos > m.TotalSize() {
		return 0, 0, fmt.Errorf("vpm: position %d out of range", pos)
	}
	target, _, ferr := m.idx.FindPageAt(pos)
	if ferr != nil {
		return 0, 0, ferr
	}

	curLine := int64(1)
	var lineStart int64
	for _, d := range m.idx.All() {
		pi, lerr := m.ensureLoaded(d)
		if lerr != nil {
			return 0, 0, lerr
		}
		if !pi.newlineBuilt {
			pi.buildNewlineIndex()
		}
		if d.PageID == target.PageID {
			within := pos - d.VirtualStart
			for _, off := range pi.NewlineOffsets {
				o64 := int64(off)
				if o64 >= within {
					break
				}
				curLine++
				lineStart = d.VirtualStart + o64 + 1
			}
			break
		}
		curLine += int64(len(pi.NewlineOffsets))
		if n := len(pi.NewlineOffsets); n > 0 {
			lineStart = d.VirtualStart + int64(pi.NewlineOffsets[n-1]) + 1
		}
	}
	return curLine, pos - lineStart + 1, nil
}

// LineColToByte converts a 1-based (line, col) to an absolute byte position,
// clamped to the line's range.
func (m *Manager) LineColToByte(line, col int64) (int64, error) {
	li, err := m.LineInfo(line)
	if err != nil {
		return 0, err
	}
	pos := li.Start + (col - 1)
	if pos < li.Start {
		pos = li.Start
	}
	if pos > li.End {
		pos = li.End
	}
	return pos, nil
}
