package pagedbuffer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SimonWaldherr/pagedbuffer/internal/pagestore"
	"github.com/SimonWaldherr/pagedbuffer/internal/vpm"
)

func newTestBuffer(t *testing.T, clock func() time.Time) *Buffer {
	t.Helper()
	return New(Config{VPM: vpm.DefaultConfig(), Storage: pagestore.NewMemoryBackend(), Now: clock})
}

func bytesOf(t *testing.T, b *Buffer) string {
	t.Helper()
	got, err := b.GetBytes(0, b.TotalSize())
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	return string(got)
}

// TestMergeWindowDistanceZero reproduces spec §8 scenario 1: five
// single-character inserts at positions 0..4 under a shared merge window
// fuse into one undo group.
func TestMergeWindowDistanceZero(t *testing.T) {
	base := time.Now()
	clock := func() time.Time { return base }
	b := newTestBuffer(t, clock)
	if err := b.LoadContent([]byte("Initial content")); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	b.EnableUndo(UndoConfig{MergeTimeWindow: 10 * time.Second, MergePositionWindow: 0, MaxUndoLevels: 1000})

	for i, c := range []string{"H", "e", "l", "l", "o"} {
		if err := b.InsertBytes(int64(i), []byte(c)); err != nil {
			t.Fatalf("InsertBytes(%d): %v", i, err)
		}
	}
	if got, want := bytesOf(t, b), "HelloInitial content"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
	if !b.CanUndo() {
		t.Fatal("expected CanUndo true")
	}
	if err := b.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got, want := bytesOf(t, b), "Initial content"; got != want {
		t.Fatalf("after one undo: %q, want %q", got, want)
	}
	if b.CanUndo() {
		t.Fatal("expected a second undo to find nothing left")
	}
}

// TestMergeWindowDistanceOne reproduces spec §8 scenario 2: inserting "A" at
// 0 then "B" at 2 with mergePositionWindow=0 keeps two distinct groups.
func TestMergeWindowDistanceOne(t *testing.T) {
	base := time.Now()
	clock := func() time.Time { return base }
	b := newTestBuffer(t, clock)
	if err := b.LoadContent([]byte("Initial content")); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	b.EnableUndo(UndoConfig{MergeTimeWindow: 10 * time.Second, MergePositionWindow: 0, MaxUndoLevels: 1000})

	if err := b.InsertBytes(0, []byte("A")); err != nil {
		t.Fatalf("InsertBytes A: %v", err)
	}
	if err := b.InsertBytes(2, []byte("B")); err != nil {
		t.Fatalf("InsertBytes B: %v", err)
	}
	if got, want := bytesOf(t, b), "AIBnitial content"; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
	if err := b.Undo(); err != nil {
		t.Fatalf("first Undo: %v", err)
	}
	if got, want := bytesOf(t, b), "AInitial content"; got != want {
		t.Fatalf("after first undo: %q, want %q", got, want)
	}
	if err := b.Undo(); err != nil {
		t.Fatalf("second Undo: %v", err)
	}
	if got, want := bytesOf(t, b), "Initial content"; got != want {
		t.Fatalf("after second undo: %q, want %q", got, want)
	}
}

// TestMarksShiftUnderInsertAndDelete reproduces spec §8 scenario 3.
func TestMarksShiftUnderInsertAndDelete(t *testing.T) {
	b := newTestBuffer(t, nil)
	if err := b.LoadContent([]byte("Hello World\nSecond line\nThird line")); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	if err := b.SetMark("before", 5); err != nil {
		t.Fatalf("SetMark before: %v", err)
	}
	if err := b.SetMark("at", 12); err != nil {
		t.Fatalf("SetMark at: %v", err)
	}
	if err := b.SetMark("after", 20); err != nil {
		t.Fatalf("SetMark after: %v", err)
	}

	if err := b.InsertBytes(12, []byte("INSERTED ")); err != nil {
		t.Fatalf("InsertBytes: %v", err)
	}
	checkMark(t, b, "before", 5)
	checkMark(t, b, "at", 12)
	checkMark(t, b, "after", 29)

	if _, err := b.DeleteBytes(12, 20); err != nil {
		t.Fatalf("DeleteBytes: %v", err)
	}
	// "at" sat inside [12,20) and collapses to the deletion start; "before"
	// precedes the deletion and is unchanged.
	checkMark(t, b, "before", 5)
	checkMark(t, b, "at", 12)
}

func checkMark(t *testing.T, b *Buffer, name string, want int64) {
	t.Helper()
	got, ok := b.GetMark(name)
	if !ok {
		t.Fatalf("mark %q missing", name)
	}
	if got != want {
		t.Fatalf("mark %q = %d, want %d", name, got, want)
	}
}

// TestPageSplitPreservesMarks reproduces spec §8 scenario 4.
func TestPageSplitPreservesMarks(t *testing.T) {
	b := New(Config{VPM: vpm.Config{PageSize: 64, MaxLoadedPages: 100}, Storage: pagestore.NewMemoryBackend()})
	content := repeatByte('A', 50) + repeatByte('B', 50) + repeatByte('C', 50) + repeatByte('D', 50)
	if err := b.LoadContent([]byte(content)); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	if err := b.SetMark("early", 10); err != nil {
		t.Fatalf("SetMark early: %v", err)
	}
	if err := b.SetMark("split_point", 64); err != nil {
		t.Fatalf("SetMark split_point: %v", err)
	}
	if err := b.SetMark("late", 120); err != nil {
		t.Fatalf("SetMark late: %v", err)
	}

	if err := b.InsertBytes(70, []byte(repeatByte('X', 100))); err != nil {
		t.Fatalf("InsertBytes: %v", err)
	}

	checkMark(t, b, "early", 10)
	checkMark(t, b, "split_point", 64)
	checkMark(t, b, "late", 220)
	if got, want := b.TotalSize(), int64(300); got != want {
		t.Fatalf("TotalSize = %d, want %d", got, want)
	}
	if err := b.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
}

func repeatByte(c byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = c
	}
	return string(out)
}

// TestDetachmentOnSourceTruncation reproduces spec §8 scenario 5.
func TestDetachmentOnSourceTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.txt")
	if err := os.WriteFile(path, []byte("some file content that spans a single page"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	b := newTestBuffer(t, nil)
	if err := b.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if err := b.SaveFile(DefaultSaveOptions()); err == nil {
		t.Fatal("expected SaveFile to refuse saving over a truncated source")
	}

	newPath := filepath.Join(dir, "out.txt")
	if err := b.SaveAs(newPath, DefaultSaveOptions()); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected SaveAs to write %s: %v", newPath, err)
	}
}

// TestTransactionRollbackRestoresMarks reproduces spec §8 scenario 6.
func TestTransactionRollbackRestoresMarks(t *testing.T) {
	b := newTestBuffer(t, nil)
	if err := b.LoadContent([]byte("0123456789abcdefghij")); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	b.EnableUndo(DefaultUndoConfig())

	if err := b.SetMark("t", 8); err != nil {
		t.Fatalf("SetMark: %v", err)
	}
	before := bytesOf(t, b)

	if err := b.BeginTransaction("x"); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := b.InsertBytes(5, []byte("TEMP ")); err != nil {
		t.Fatalf("InsertBytes: %v", err)
	}
	if err := b.SetMark("temp", 15); err != nil {
		t.Fatalf("SetMark temp: %v", err)
	}
	checkMark(t, b, "t", 13)

	if err := b.RollbackTransaction(); err != nil {
		t.Fatalf("RollbackTransaction: %v", err)
	}
	checkMark(t, b, "t", 8)
	if _, ok := b.GetMark("temp"); ok {
		t.Fatal("mark set inside the rolled-back transaction should be gone")
	}
	if got := bytesOf(t, b); got != before {
		t.Fatalf("bytes after rollback = %q, want %q", got, before)
	}
	if b.CanUndo() {
		t.Fatal("a rolled-back transaction must not add undo history")
	}
}

// TestRedoAfterUndoIsNoOpOnBytes checks the spec §8 round-trip law
// redo();undo() == no-op on buffer bytes.
func TestRedoAfterUndoIsNoOpOnBytes(t *testing.T) {
	b := newTestBuffer(t, nil)
	if err := b.LoadContent([]byte("abcdef")); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	b.EnableUndo(DefaultUndoConfig())
	if err := b.InsertBytes(3, []byte("XYZ")); err != nil {
		t.Fatalf("InsertBytes: %v", err)
	}
	mid := bytesOf(t, b)

	if err := b.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if err := b.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if err := b.Undo(); err != nil {
		t.Fatalf("second Undo: %v", err)
	}
	if got, want := bytesOf(t, b), "abcdef"; got != want {
		t.Fatalf("bytes after redo;undo = %q, want %q", got, want)
	}
	_ = mid
}

// TestMarksPersistenceRoundTrip checks the spec §8 export/import law.
func TestMarksPersistenceRoundTrip(t *testing.T) {
	b := newTestBuffer(t, nil)
	if err := b.LoadContent([]byte("0123456789")); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	if err := b.SetMark("a", 2); err != nil {
		t.Fatalf("SetMark a: %v", err)
	}
	if err := b.SetMark("b", 7); err != nil {
		t.Fatalf("SetMark b: %v", err)
	}

	data, err := b.MarksJSON()
	if err != nil {
		t.Fatalf("MarksJSON: %v", err)
	}

	b2 := newTestBuffer(t, nil)
	if err := b2.LoadContent([]byte("0123456789")); err != nil {
		t.Fatalf("LoadContent b2: %v", err)
	}
	if err := b2.LoadMarksJSON(data); err != nil {
		t.Fatalf("LoadMarksJSON: %v", err)
	}
	checkMark(t, b2, "a", 2)
	checkMark(t, b2, "b", 7)
}

// TestEmptyBufferBoundaries checks the spec §8 empty-buffer boundary laws.
func TestEmptyBufferBoundaries(t *testing.T) {
	b := newTestBuffer(t, nil)
	if err := b.LoadContent(nil); err != nil {
		t.Fatalf("LoadContent(nil): %v", err)
	}
	count, _ := b.LineCount()
	if count != 1 {
		t.Fatalf("LineCount = %d, want 1", count)
	}
	info, err := b.LineInfo(1)
	if err != nil {
		t.Fatalf("LineInfo(1): %v", err)
	}
	if info.Start != 0 || info.End != 0 {
		t.Fatalf("LineInfo(1) = %+v, want start=0 end=0", info)
	}
	if err := b.InsertBytes(0, []byte("x")); err != nil {
		t.Fatalf("InsertBytes(0): %v", err)
	}
	if removed, err := b.DeleteBytes(0, 0); err != nil || len(removed) != 0 {
		t.Fatalf("DeleteBytes(0,0) = (%v,%v), want (empty,nil)", removed, err)
	}
}

// TestCheckFileChangesDetectsExternalEdit exercises the facade's
// file-change probe and its interaction with the configured strategy.
func TestCheckFileChangesDetectsExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := newTestBuffer(t, nil)
	if err := b.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	// Ensure the mtime actually advances on filesystems with coarse
	// resolution before rewriting the file out from under the buffer.
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("changed on disk!!"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	result, err := b.CheckFileChanges()
	if err != nil {
		t.Fatalf("CheckFileChanges: %v", err)
	}
	if !result.Changed || !result.SizeChanged {
		t.Fatalf("result = %+v, want Changed and SizeChanged", result)
	}
}
