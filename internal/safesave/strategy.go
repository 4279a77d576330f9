// Package safesave implements the SafeFileWriter: saving a buffer's paged
// content back to disk by a strategy chosen from the descriptor layout, so
// an in-place save never reads stale bytes out from under itself.
//
// Grounded on storage.backend_disk.go's temp-file-then-rename discipline
// (Sync's manifest write, SaveTable's GOB write) for the AtomicTemp and
// PartialTemp strategies, generalized from "always write through a temp
// file" to "write through a temp file only when a plain sequential write
// would conflict with a still-unread original region."
package safesave

import "github.com/SimonWaldherr/pagedbuffer/internal/vpm"

// Strategy is one of five ways to lay out a save.
type Strategy int

const (
	// NewFile writes every page in address order to a target distinct from
	// (or with no) source file — there is no in-place conflict to avoid.
	NewFile Strategy = iota
	// SafeInPlace writes sequentially over the source file because the
	// descriptor walk found no read/write conflicts.
	SafeInPlace
	// ReverseOrder writes high-offset pages first because every
	// modification only grows or preserves page size, so later regions are
	// safely read before an earlier write could reach them.
	ReverseOrder
	// PartialTemp pre-reads only the conflicting original ranges into
	// memory, then writes forward consulting those buffers where needed.
	PartialTemp
	// AtomicTemp writes to a temp file alongside the target and renames it
	// into place, for conflict patterns too large to pre-read.
	AtomicTemp
)

func (s Strategy) String() string {
	switch s {
	case NewFile:
		return "new_file"
	case SafeInPlace:
		return "safe_in_place"
	case ReverseOrder:
		return "reverse_order"
	case PartialTemp:
		return "partial_temp"
	case AtomicTemp:
		return "atomic_temp"
	default:
		return "unknown"
	}
}

// Options tunes strategy selection and execution.
type Options struct {
	// PartialTempBound is the largest total conflict-region size (bytes)
	// PartialTemp will pre-read before falling back to AtomicTemp.
	PartialTempBound int64
	// MakeBackup, when true and the chosen strategy is SafeInPlace, copies
	// the source file to a timestamped backup path before overwriting it.
	MakeBackup bool
}

// DefaultOptions matches the spec's documented 50 MiB partial-temp bound.
func DefaultOptions() Options {
	return Options{PartialTempBound: 50 * 1024 * 1024}
}

// SelectStrategy picks a Strategy for writing descs to targetPath, given the
// buffer's current sourcePath ("" if none). Conflicts is non-nil only for
// strategies that had to reason about them.
func SelectStrategy(targetPath, sourcePath string, descs []vpm.Snapshot, opts Options) (Strategy, []Conflict) {
	if sourcePath == "" || targetPath != sourcePath {
		return NewFile, nil
	}
	conflicts := DetectConflicts(descs)
	if len(conflicts) == 0 {
		return SafeInPlace, nil
	}
	if allExpansionOrUnchanged(descs) {
		return ReverseOrder, conflicts
	}
	if conflictRegionSize(conflicts) <= opts.PartialTempBound {
		return PartialTemp, conflicts
	}
	return AtomicTemp, conflicts
}

// allExpansionOrUnchanged reports whether every originally-sourced
// descriptor's current size is at least its original size.
func allExpansionOrUnchanged(descs []vpm.Snapshot) bool {
	for _, d := range descs {
		if d.Source == vpm.SourceOriginal && d.VirtualSize < d.OriginalSize {
			return false
		}
	}
	return true
}

func conflictRegionSize(conflicts []Conflict) int64 {
	var total int64
	for _, c := range conflicts {
		total += c.ReadRange[1] - c.ReadRange[0]
	}
	return total
}
