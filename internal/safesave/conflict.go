package safesave

import "github.com/SimonWaldherr/pagedbuffer/internal/vpm"

// Conflict records that descriptor index Read would, if read from the
// original file after descriptor index Write lands, see bytes already
// overwritten by Write's save.
type Conflict struct {
	Write, Read int
	WriteRange  [2]int64
	ReadRange   [2]int64
	Severity    float64 // intersection size / read source size
}

// DetectConflicts walks descs in address order. A descriptor's target range
// on disk when written sequentially is [VirtualStart, VirtualStart+VirtualSize)
// — this already equals "original_offset + cumulative_shift" for any
// descriptor whose original position is unchanged or shifted only by
// preceding size deltas, so no separate running shift needs tracking. For
// every later descriptor still sourced unmodified from the original file,
// an intersection between that write range and the later descriptor's
// untouched source range [FileOffset, FileOffset+OriginalSize) is a
// conflict: writing here would corrupt a read not yet performed.
func DetectConflicts(descs []vpm.Snapshot) []Conflict {
	var conflicts []Conflict
	for i, d := range descs {
		writeLo, writeHi := d.VirtualStart, d.VirtualStart+d.VirtualSize
		for j := i + 1; j < len(descs); j++ {
			later := descs[j]
			if later.Source != vpm.SourceOriginal || later.IsDirty {
				continue
			}
			readLo, readHi := later.FileOffset, later.FileOffset+later.OriginalSize
			lo, hi := max64(writeLo, readLo), min64(writeHi, readHi)
			if hi <= lo {
				continue
			}
			sev := 1.0
			if later.OriginalSize > 0 {
				sev = float64(hi-lo) / float64(later.OriginalSize)
			}
			conflicts = append(conflicts, Conflict{
				Write: i, Read: j,
				WriteRange: [2]int64{writeLo, writeHi},
				ReadRange:  [2]int64{readLo, readHi},
				Severity:   sev,
			})
		}
	}
	return conflicts
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
