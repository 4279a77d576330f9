package safesave

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SimonWaldherr/pagedbuffer/internal/vpm"
)

// PageReader returns the current bytes for a descriptor, via whatever
// lazy-load path the caller's VPM uses.
type PageReader func(d vpm.Snapshot) ([]byte, error)

// Result reports what a Write call actually did.
type Result struct {
	Strategy     Strategy
	BytesWritten int64
	BackupPath   string
}

// Write saves descs to targetPath, choosing and executing a Strategy based
// on targetPath, sourcePath (the buffer's current backing file, "" if
// none), and the descriptor layout.
func Write(targetPath, sourcePath string, descs []vpm.Snapshot, read PageReader, opts Options) (Result, error) {
	strat, conflicts := SelectStrategy(targetPath, sourcePath, descs, opts)
	var (
		n   int64
		err error
		bak string
	)
	switch strat {
	case NewFile:
		n, err = writeSequentialFresh(targetPath, descs, read)
	case SafeInPlace:
		if opts.MakeBackup {
			if bak, err = makeBackup(sourcePath); err != nil {
				return Result{}, err
			}
		}
		n, err = writeInPlaceSequential(targetPath, descs, read)
	case ReverseOrder:
		n, err = writeReverse(targetPath, descs, read)
	case PartialTemp:
		n, err = writePartialTemp(targetPath, descs, read, conflicts)
	default: // AtomicTemp
		n, err = writeAtomicTemp(targetPath, descs, read)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Strategy: strat, BytesWritten: n, BackupPath: bak}, nil
}

func totalSize(descs []vpm.Snapshot) int64 {
	var total int64
	for _, d := range descs {
		total += d.VirtualSize
	}
	return total
}

// writeSequentialFresh writes descs in order to a brand-new or
// distinct-from-source target file.
func writeSequentialFresh(path string, descs []vpm.Snapshot, read PageReader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("safesave: create %s: %w", path, err)
	}
	defer f.Close()
	return writeForwardTo(f, descs, read)
}

func writeForwardTo(f *os.File, descs []vpm.Snapshot, read PageReader) (int64, error) {
	var n int64
	for _, d := range descs {
		data, err := read(d)
		if err != nil {
			return n, fmt.Errorf("safesave: read page %s: %w", d.PageID, err)
		}
		if _, err := f.Write(data); err != nil {
			return n, fmt.Errorf("safesave: write page %s: %w", d.PageID, err)
		}
		n += int64(len(data))
	}
	return n, nil
}

// writeInPlaceSequential writes descs over the existing target file at
// their new offsets (which equal VirtualStart), truncating to the final
// size afterward. Safe only when DetectConflicts found nothing.
func writeInPlaceSequential(path string, descs []vpm.Snapshot, read PageReader) (int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("safesave: open %s: %w", path, err)
	}
	defer f.Close()

	var n int64
	for _, d := range descs {
		data, err := read(d)
		if err != nil {
			return n, fmt.Errorf("safesave: read page %s: %w", d.PageID, err)
		}
		if _, err := f.WriteAt(data, d.VirtualStart); err != nil {
			return n, fmt.Errorf("safesave: write page %s: %w", d.PageID, err)
		}
		n += int64(len(data))
	}
	if err := f.Truncate(totalSize(descs)); err != nil {
		return n, fmt.Errorf("safesave: truncate %s: %w", path, err)
	}
	return n, nil
}

// writeReverse reads and writes descs from the last to the first, so a
// write at a high offset never overwrites an original region a
// lower-offset, not-yet-read descriptor still depends on.
func writeReverse(path string, descs []vpm.Snapshot, read PageReader) (int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("safesave: open %s: %w", path, err)
	}
	defer f.Close()

	var n int64
	for i := len(descs) - 1; i >= 0; i-- {
		d := descs[i]
		data, err := read(d)
		if err != nil {
			return n, fmt.Errorf("safesave: read page %s: %w", d.PageID, err)
		}
		if _, err := f.WriteAt(data, d.VirtualStart); err != nil {
			return n, fmt.Errorf("safesave: write page %s: %w", d.PageID, err)
		}
		n += int64(len(data))
	}
	if err := f.Truncate(totalSize(descs)); err != nil {
		return n, fmt.Errorf("safesave: truncate %s: %w", path, err)
	}
	return n, nil
}

// writePartialTemp pre-reads every descriptor flagged as a conflict's read
// side before any write begins, then writes forward using those cached
// bytes in place of a (by-then-unsafe) live re-read.
func writePartialTemp(path string, descs []vpm.Snapshot, read PageReader, conflicts []Conflict) (int64, error) {
	protected := make(map[int][]byte, len(conflicts))
	for _, c := range conflicts {
		if _, ok := protected[c.Read]; ok {
			continue
		}
		data, err := read(descs[c.Read])
		if err != nil {
			return 0, fmt.Errorf("safesave: pre-read page %s: %w", descs[c.Read].PageID, err)
		}
		protected[c.Read] = data
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("safesave: open %s: %w", path, err)
	}
	defer f.Close()

	var n int64
	for i, d := range descs {
		data, ok := protected[i]
		if !ok {
			data, err = read(d)
			if err != nil {
				return n, fmt.Errorf("safesave: read page %s: %w", d.PageID, err)
			}
		}
		if _, err := f.WriteAt(data, d.VirtualStart); err != nil {
			return n, fmt.Errorf("safesave: write page %s: %w", d.PageID, err)
		}
		n += int64(len(data))
	}
	if err := f.Truncate(totalSize(descs)); err != nil {
		return n, fmt.Errorf("safesave: truncate %s: %w", path, err)
	}
	return n, nil
}

// writeAtomicTemp writes descs forward to a sibling temp file, then
// renames it over path, the same temp-then-rename discipline
// storage.backend_disk.go uses for its manifest and table writes.
func writeAtomicTemp(path string, descs []vpm.Snapshot, read PageReader) (int64, error) {
	tmp := fmt.Sprintf("%s.tmp.%d.%d", path, time.Now().UnixNano(), os.Getpid())
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("safesave: create temp %s: %w", tmp, err)
	}
	n, werr := writeForwardTo(f, descs, read)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp)
		return n, werr
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("safesave: rename %s to %s: %w", tmp, path, err)
	}
	return n, nil
}

// makeBackup copies sourcePath to a timestamped sibling before an in-place
// overwrite.
func makeBackup(sourcePath string) (string, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", fmt.Errorf("safesave: read %s for backup: %w", sourcePath, err)
	}
	bak := fmt.Sprintf("%s.bak.%s", sourcePath, time.Now().Format("20060102T150405"))
	dir := filepath.Dir(bak)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("safesave: prepare backup dir: %w", err)
	}
	if err := os.WriteFile(bak, data, 0o644); err != nil {
		return "", fmt.Errorf("safesave: write backup %s: %w", bak, err)
	}
	return bak, nil
}
