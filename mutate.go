package pagedbuffer

import (
	"fmt"

	"github.com/SimonWaldherr/pagedbuffer/internal/undo"
)

// InsertBytes splices data into the buffer at pos. pos == TotalSize() is a
// valid append.
func (b *Buffer) InsertBytes(pos int64, data []byte) error {
	if pos < 0 || pos > b.TotalSize() {
		return fmt.Errorf("pagedbuffer: insert position %d out of [0,%d]", pos, b.TotalSize())
	}
	preMarks := b.Marks().Snapshot()
	if err := b.vpm.InsertAt(pos, data); err != nil {
		return err
	}
	b.recordMutation(undo.OpInsert, pos, pos+int64(len(data)), data, nil, preMarks)
	b.state = Modified
	return nil
}

// DeleteBytes removes [lo, hi) and returns the removed bytes.
func (b *Buffer) DeleteBytes(lo, hi int64) ([]byte, error) {
	if lo < 0 || hi > b.TotalSize() || hi < lo {
		return nil, fmt.Errorf("pagedbuffer: delete range [%d,%d) out of [0,%d]", lo, hi, b.TotalSize())
	}
	preMarks := b.Marks().Snapshot()
	removed, err := b.vpm.DeleteRange(lo, hi)
	if err != nil {
		return nil, err
	}
	b.recordMutation(undo.OpDelete, lo, lo, nil, removed, preMarks)
	b.state = Modified
	return removed, nil
}

// OverwriteBytes replaces the bytes starting at pos with data, returning
// the original bytes that were overwritten (and, if data is longer or
// shorter, extended or truncated relative to them).
func (b *Buffer) OverwriteBytes(pos int64, data []byte) ([]byte, error) {
	if pos < 0 || pos > b.TotalSize() {
		return nil, fmt.Errorf("pagedbuffer: overwrite position %d out of [0,%d]", pos, b.TotalSize())
	}
	preMarks := b.Marks().Snapshot()
	original, err := b.vpm.Overwrite(pos, data)
	if err != nil {
		return nil, err
	}
	b.recordMutation(undo.OpOverwrite, pos, pos+int64(len(data)), data, original, preMarks)
	b.state = Modified
	return original, nil
}

// recordMutation records op with the undo engine, if enabled, using a
// monotonic sequence number and the buffer's clock.
func (b *Buffer) recordMutation(t undo.OpType, pre, post int64, data, original []byte, preMarks map[string]int64) {
	if !b.undoEnabled {
		return
	}
	op := undo.Operation{
		Type:             t,
		PreExecPosition:  pre,
		PostExecPosition: post,
		Data:             append([]byte(nil), data...),
		OriginalData:     append([]byte(nil), original...),
		Timestamp:        b.clock(),
		Sequence:         b.undo.NextSequence(),
	}
	b.undo.Record(op, preMarks)
}
