// Package vpm implements the Virtual Page Manager: address translation
// between logical (virtual) byte positions and the paged storage that backs
// them, lazy loading from a source file or overflow store, LRU eviction, and
// page split/merge under mutation.
//
// The manager owns a MarksManager (internal/marks) as a plain embedded
// field rather than exposing a back-reference from marks to the manager,
// which would create a cyclic dependency between the two packages.
package vpm

import (
	"time"

	"github.com/google/uuid"
)

// PageID uniquely identifies a page for the lifetime of a buffer.
type PageID string

// NewPageID mints a globally-unique page identifier.
func NewPageID() PageID {
	return PageID(uuid.NewString())
}

// SourceKind tags where a page's body originates.
type SourceKind uint8

const (
	// SourceOriginal means the page body is (or was) a byte range of the
	// backing file, read lazily on first access.
	SourceOriginal SourceKind = iota
	// SourceOverflow means the page body was evicted to PageStorage and
	// must be reloaded from there.
	SourceOverflow
	// SourceMemory means the page body lives only in RAM until evicted
	// (e.g. created by an insert, or by a split).
	SourceMemory
)

func (k SourceKind) String() string {
	switch k {
	case SourceOriginal:
		return "original"
	case SourceOverflow:
		return "overflow"
	case SourceMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// PageDescriptor is the always-resident metadata for one page. The body
// (PageInfo) is resident only while the page is loaded.
type PageDescriptor struct {
	PageID       PageID
	VirtualStart int64
	VirtualSize  int64

	Source SourceKind

	// Valid when Source == SourceOriginal.
	FileOffset   int64
	OriginalSize int64

	// Valid when Source == SourceOverflow (or a Memory page that has been
	// evicted at least once, per §4.2.3 "Memory" load dispatch).
	StorageKey string

	IsDirty    bool
	IsLoaded   bool
	LastAccess int64 // logical LRU clock, not wall time
	Generation int
	ParentID   PageID

	NewlineCount  int
	LineInfoValid bool
}

// Snapshot is an immutable, externally-consumable copy of a PageDescriptor,
// used by the safe-save planner so it never mutates manager-owned state.
type Snapshot struct {
	PageID       PageID
	VirtualStart int64
	VirtualSize  int64
	Source       SourceKind
	FileOffset   int64
	OriginalSize int64
	IsDirty      bool
}

func snapshotOf(d *PageDescriptor) Snapshot {
	return Snapshot{
		PageID:       d.PageID,
		VirtualStart: d.VirtualStart,
		VirtualSize:  d.VirtualSize,
		Source:       d.Source,
		FileOffset:   d.FileOffset,
		OriginalSize: d.OriginalSize,
		IsDirty:      d.IsDirty,
	}
}

// PageInfo is a page's resident body: its bytes, a lazily-built newline
// index, and a shadow of the marks that fall within it.
//
// page_marks duplicates data that is authoritative in the MarksManager's
// global map (see internal/marks). It exists purely as a rebuild-on-load
// convenience cache — it is never consulted as a source of truth, only
// rebuilt from the global map when a page loads, splits or merges and after
// every insert or delete. Setting or removing a mark does not update it.
type PageInfo struct {
	Data           []byte
	NewlineOffsets []int
	newlineBuilt   bool
	PageMarks      map[string]int64 // name -> offset within page

	prev, next *PageInfo // LRU links
	id         PageID
}

func newPageInfo(id PageID, data []byte) *PageInfo {
	return &PageInfo{
		Data:      data,
		PageMarks: make(map[string]int64),
		id:        id,
	}
}

// buildNewlineIndex lazily scans Data for '\n' and caches the offsets.
func (pi *PageInfo) buildNewlineIndex() {
	if pi.newlineBuilt {
		return
	}
	pi.NewlineOffsets = pi.NewlineOffsets[:0]
	for i, b := range pi.Data {
		if b == '\n' {
			pi.NewlineOffsets = append(pi.NewlineOffsets, i)
		}
	}
	pi.newlineBuilt = true
}

// invalidateNewlines forces buildNewlineIndex to rescan on next use. Called
// whenever a page's body is mutated.
func (pi *PageInfo) invalidateNewlines() {
	pi.newlineBuilt = false
}

// MissingRange records a byte range that could not be recovered after a
// load failure (§7, detachment).
type MissingRange struct {
	Lo, Hi    int64
	Reason    string
	Detected  time.Time
}
