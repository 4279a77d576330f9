package vpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/pagedbuffer/internal/notify"
	"github.com/SimonWaldherr/pagedbuffer/internal/pagestore"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	return New(cfg, pagestore.NewMemoryBackend(), notify.NewBus(nil))
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestInitFromMemoryAndReadRange(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("hello world")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if got := m.TotalSize(); got != 11 {
		t.Fatalf("TotalSize = %d, want 11", got)
	}
	got, err := m.ReadRange(6, 11)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("ReadRange = %q, want %q", got, "world")
	}
}

func TestInitFromFileChunksByPageSize(t *testing.T) {
	path := writeTempFile(t, "abcdefghij")
	m := newManager(t, Config{PageSize: 4, MaxLoadedPages: 100})
	if err := m.InitFromFile(path); err != nil {
		t.Fatalf("InitFromFile: %v", err)
	}
	if got := m.TotalSize(); got != 10 {
		t.Fatalf("TotalSize = %d, want 10", got)
	}
	descs := m.Descriptors()
	if len(descs) != 3 {
		t.Fatalf("got %d descriptors, want 3 (4+4+2)", len(descs))
	}
	got, err := m.ReadRange(0, 10)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if string(got) != "abcdefghij" {
		t.Fatalf("ReadRange = %q, want original content", got)
	}
}

func TestInsertAtAndDeleteRangeRoundTrip(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("helloworld")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if err := m.InsertAt(5, []byte(" ")); err != nil {
		t.Fatalf("InsertAt: %v", err)
	}
	got, _ := m.ReadRange(0, m.TotalSize())
	if string(got) != "hello world" {
		t.Fatalf("after insert: %q, want %q", got, "hello world")
	}
	removed, err := m.DeleteRange(5, 6)
	if err != nil {
		t.Fatalf("DeleteRange: %v", err)
	}
	if string(removed) != " " {
		t.Fatalf("removed = %q, want %q", removed, " ")
	}
	got, _ = m.ReadRange(0, m.TotalSize())
	if string(got) != "helloworld" {
		t.Fatalf("after delete: %q, want %q", got, "helloworld")
	}
}

func TestOverwrite(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("0123456789")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	original, err := m.Overwrite(2, []byte("XY"))
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	if string(original) != "23" {
		t.Fatalf("original = %q, want %q", original, "23")
	}
	got, _ := m.ReadRange(0, m.TotalSize())
	if string(got) != "01XY456789" {
		t.Fatalf("after overwrite: %q", got)
	}
}

// TestOverwriteSameLengthPreservesMarks checks spec §9's second Open
// Question: a same-length overwrite keeps marks inside the overwritten
// region pinned at their original relative offsets, rather than collapsing
// them to the overwrite's start.
func TestOverwriteSameLengthPreservesMarks(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("0123456789")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if err := m.Marks().SetMark("mid", 3, m.TotalSize()); err != nil {
		t.Fatalf("SetMark: %v", err)
	}
	if _, err := m.Overwrite(2, []byte("XY")); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	addr, ok := m.Marks().GetMark("mid")
	if !ok || addr != 3 {
		t.Fatalf("mid mark = %d,%v, want 3,true", addr, ok)
	}
}

// TestOverwriteLengthChangingExtractsMarks checks the companion half of
// spec §9's second Open Question: a length-changing overwrite (here,
// truncated by the buffer's end) extracts marks inside the replaced region
// rather than silently preserving stale offsets.
func TestOverwriteLengthChangingExtractsMarks(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("01234")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if err := m.Marks().SetMark("tail", 4, m.TotalSize()); err != nil {
		t.Fatalf("SetMark: %v", err)
	}
	if _, err := m.Overwrite(2, []byte("XYZABC")); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	if _, ok := m.Marks().GetMark("tail"); ok {
		t.Fatalf("tail mark should have been extracted by the length-changing overwrite")
	}
}

// TestSplitOnOversizedInsert checks that exceeding the configured maximum
// page size (2x PageSize) triggers a split, and the split preserves content.
func TestSplitOnOversizedInsert(t *testing.T) {
	m := newManager(t, Config{PageSize: 8, MaxLoadedPages: 100})
	if err := m.InitFromMemory([]byte("abcdefgh")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	before := len(m.Descriptors())
	if err := m.InsertAt(4, []byte("1234567890")); err != nil {
		t.Fatalf("InsertAt: %v", err)
	}
	after := len(m.Descriptors())
	if after <= before {
		t.Fatalf("expected split to increase descriptor count: before=%d after=%d", before, after)
	}
	got, _ := m.ReadRange(0, m.TotalSize())
	if string(got) != "abcd1234567890efgh" {
		t.Fatalf("content after split = %q", got)
	}
	if err := m.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity after split: %v", err)
	}
}

// TestMergeOnUndersizedDelete checks that shrinking a page below the minimum
// (PageSize/4) triggers a merge with a neighbor, one pair per mutation call.
func TestMergeOnUndersizedDelete(t *testing.T) {
	m := newManager(t, Config{PageSize: 16, MaxLoadedPages: 100})
	if err := m.InitFromMemory([]byte("0123456789abcdefghijklmnopqrstuv")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	before := len(m.Descriptors())
	if before < 2 {
		t.Fatalf("need at least 2 pages to exercise merge, got %d", before)
	}
	if _, err := m.DeleteRange(1, 15); err != nil {
		t.Fatalf("DeleteRange: %v", err)
	}
	if err := m.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity after merge: %v", err)
	}
	got, _ := m.ReadRange(0, m.TotalSize())
	expect := "0" + "fghijklmnopqrstuv"
	if string(got) != expect {
		t.Fatalf("content after merge-triggering delete = %q, want %q", got, expect)
	}
}

func TestInsertAtEndAnchor(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("abc")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if err := m.InsertAt(3, []byte("def")); err != nil {
		t.Fatalf("InsertAt at end: %v", err)
	}
	got, _ := m.ReadRange(0, m.TotalSize())
	if string(got) != "abcdef" {
		t.Fatalf("got %q, want %q", got, "abcdef")
	}
}

func TestEmptyBufferInsert(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory(nil); err != nil {
		t.Fatalf("InitFromMemory(empty): %v", err)
	}
	if m.TotalSize() != 0 {
		t.Fatalf("TotalSize = %d, want 0", m.TotalSize())
	}
	if err := m.InsertAt(0, []byte("x")); err != nil {
		t.Fatalf("InsertAt(0) on empty buffer: %v", err)
	}
	got, _ := m.ReadRange(0, m.TotalSize())
	if string(got) != "x" {
		t.Fatalf("got %q, want %q", got, "x")
	}
}

func TestOutOfBoundsInsertRejected(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("abc")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if err := m.InsertAt(-1, nil); err == nil {
		t.Fatal("expected error for negative position")
	}
	if err := m.InsertAt(100, nil); err == nil {
		t.Fatal("expected error for out-of-range position")
	}
}

func TestEvictionRespectsMaxLoadedPages(t *testing.T) {
	path := writeTempFile(t, string(make([]byte, 100)))
	m := newManager(t, Config{PageSize: 10, MaxLoadedPages: 2})
	if err := m.InitFromFile(path); err != nil {
		t.Fatalf("InitFromFile: %v", err)
	}
	// Touch several pages via ReadRange to force loads beyond the cap.
	for i := int64(0); i < 100; i += 10 {
		if _, err := m.ReadRange(i, i+10); err != nil {
			t.Fatalf("ReadRange(%d): %v", i, err)
		}
	}
	if m.loadedCount > m.cfg.MaxLoadedPages {
		t.Fatalf("loadedCount = %d, exceeds MaxLoadedPages = %d", m.loadedCount, m.cfg.MaxLoadedPages)
	}
}

func TestCheckIntegrityOnFreshBuffer(t *testing.T) {
	m := newManager(t, DefaultConfig())
	if err := m.InitFromMemory([]byte("some content")); err != nil {
		t.Fatalf("InitFromMemory: %v", err)
	}
	if err := m.CheckIntegrity(); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
}
