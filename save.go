package pagedbuffer

import (
	"fmt"
	"os"

	"github.com/SimonWaldherr/pagedbuffer/internal/notify"
	"github.com/SimonWaldherr/pagedbuffer/internal/safesave"
	"github.com/SimonWaldherr/pagedbuffer/internal/vpm"
)

// SaveFile writes the buffer back to its current source file. Refused on a
// Detached buffer (use SaveAs), and refused if the source has shrunk below
// a descriptor's originally-read extent unless opts.ForcePartialSave is set.
func (b *Buffer) SaveFile(opts SaveOptions) error {
	path := b.vpm.SourcePath()
	if path == "" {
		return fmt.Errorf("pagedbuffer: no source file loaded; use SaveAs")
	}
	return b.save(path, opts)
}

// SaveAs writes the buffer to path, adopting it as the new source file on
// success. Works even on a Detached buffer.
func (b *Buffer) SaveAs(path string, opts SaveOptions) error {
	return b.save(path, opts)
}

func (b *Buffer) save(targetPath string, opts SaveOptions) error {
	if b.state == Detached && targetPath == b.vpm.SourcePath() {
		return fmt.Errorf("pagedbuffer: buffer is detached; save_file is refused, use SaveAs")
	}

	if err := b.checkShrinkage(targetPath, opts); err != nil {
		return err
	}

	descs := b.vpm.Descriptors()
	b.emitPartialSaveDiagnostics(descs)
	safeOpts := safesave.Options{
		PartialTempBound: opts.PartialTempBound,
		MakeBackup:       opts.MakeBackup,
	}
	if safeOpts.PartialTempBound <= 0 {
		safeOpts.PartialTempBound = safesave.DefaultOptions().PartialTempBound
	}

	b.bus.Emit(notify.TypeSaveAnalysisComplete, notify.SeverityDebug, "save strategy selected", nil)

	result, err := safesave.Write(targetPath, b.vpm.SourcePath(), descs, b.readPage, safeOpts)
	if err != nil {
		return fmt.Errorf("pagedbuffer: save %s: %w", targetPath, err)
	}
	if result.BackupPath != "" {
		b.bus.Emit(notify.TypeBackupCreated, notify.SeverityInfo, "backup created", map[string]any{"path": result.BackupPath})
	}

	if err := b.vpm.InitFromFile(targetPath); err != nil {
		return fmt.Errorf("pagedbuffer: reopen %s after save: %w", targetPath, err)
	}
	b.state = Clean
	b.bus.Emit(notify.TypeSaveCompleted, notify.SeverityInfo, "save completed", map[string]any{
		"path": targetPath, "strategy": result.Strategy.String(), "bytes": result.BytesWritten,
	})
	return nil
}

// emitPartialSaveDiagnostics reports, page by page, which descriptors fall
// within a detached MissingRange before a save goes on to read them. A page
// fully inside a missing range is about to be written back zero-filled
// (page_skipped); a page only partially inside one still carries whatever
// original bytes survived (detached_page_used).
func (b *Buffer) emitPartialSaveDiagnostics(descs []vpm.Snapshot) {
	missing := b.MissingRanges()
	if len(missing) == 0 {
		return
	}
	for _, d := range descs {
		pageLo, pageHi := d.VirtualStart, d.VirtualStart+d.VirtualSize
		for _, r := range missing {
			lo, hi := max64(pageLo, r.Lo), min64(pageHi, r.Hi)
			if hi <= lo {
				continue
			}
			meta := map[string]any{"page_id": string(d.PageID), "reason": r.Reason}
			if lo <= pageLo && hi >= pageHi {
				b.bus.Emit(notify.TypePageSkipped, notify.SeverityWarning, "page entirely within a missing range; writing zero-filled content", meta)
			} else {
				b.bus.Emit(notify.TypeDetachedPageUsed, notify.SeverityWarning, "page partially within a missing range; writing surviving bytes only", meta)
			}
			break
		}
	}
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

// RestoreBackup copies backupPath (as produced by a prior SafeInPlace save
// with MakeBackup set) back over the buffer's source file and reloads the
// buffer from it, undoing an in-place save whose result turned out to be
// unwanted. Refused if the buffer has no source file.
func (b *Buffer) RestoreBackup(backupPath string) error {
	path := b.vpm.SourcePath()
	if path == "" {
		return fmt.Errorf("pagedbuffer: no source file to restore over; use LoadFile first")
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("pagedbuffer: read backup %s: %w", backupPath, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pagedbuffer: restore backup over %s: %w", path, err)
	}
	if err := b.LoadFile(path); err != nil {
		return fmt.Errorf("pagedbuffer: reload %s after backup restore: %w", path, err)
	}
	b.bus.Emit(notify.TypeBackupRestored, notify.SeverityInfo, "backup restored", map[string]any{
		"backup_path": backupPath, "path": path,
	})
	return nil
}

// readPage adapts the VPM's lazy loader to safesave.PageReader.
func (b *Buffer) readPage(d vpm.Snapshot) ([]byte, error) {
	return b.vpm.ReadRange(d.VirtualStart, d.VirtualStart+d.VirtualSize)
}

// checkShrinkage refuses a save that would silently discard a still-live
// Original region whose backing file has shrunk underneath it, unless the
// caller opted into ForcePartialSave. Per spec §4.5, this refusal only
// applies to an in-place save (targetPath == the source file): SaveAs to a
// different path is always allowed to write whatever bytes remain
// recoverable, per the worked scenario in spec §8/#5.
func (b *Buffer) checkShrinkage(targetPath string, opts SaveOptions) error {
	path := b.vpm.SourcePath()
	if path == "" || targetPath != path {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to shrink relative to; a fresh file will be written.
		}
		return fmt.Errorf("pagedbuffer: stat %s: %w", path, err)
	}
	currentSize := fi.Size()
	for _, d := range b.vpm.Descriptors() {
		if d.Source != vpm.SourceOriginal {
			continue
		}
		if currentSize < d.FileOffset+d.OriginalSize {
			if opts.ForcePartialSave {
				b.bus.Emit(notify.TypePartialDataDetected, notify.SeverityWarning, "saving despite truncated source region", map[string]any{"page_id": string(d.PageID)})
				return nil
			}
			b.bus.Emit(notify.TypePartialDataDetected, notify.SeverityError, "save refused: source file shrunk under a live page", map[string]any{"page_id": string(d.PageID)})
			return fmt.Errorf("pagedbuffer: source file shrunk below page extent; set ForcePartialSave to proceed")
		}
	}
	return nil
}
