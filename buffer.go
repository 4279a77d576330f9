// Package pagedbuffer implements a paged byte-buffer engine for editing
// files of arbitrary size with bounded working-set memory: byte-addressable
// read/insert/delete/overwrite over a logical buffer backed partly by a
// file and partly by in-memory edits, a content-anchored mark registry, and
// a group-structured undo/redo history with transactions.
//
// Grounded on SimonWaldherr-tinySQL's db.go facade: one struct wiring
// together the address-translation layer (here internal/vpm), a recovery
// log (here internal/undo), and a storage backend (here
// internal/pagestore), exposing a single public surface over all three.
package pagedbuffer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/SimonWaldherr/pagedbuffer/internal/marks"
	"github.com/SimonWaldherr/pagedbuffer/internal/notify"
	"github.com/SimonWaldherr/pagedbuffer/internal/pagestore"
	"github.com/SimonWaldherr/pagedbuffer/internal/safesave"
	"github.com/SimonWaldherr/pagedbuffer/internal/undo"
	"github.com/SimonWaldherr/pagedbuffer/internal/vpm"
)

// State is the buffer's lifecycle state.
type State int

const (
	// Clean means the buffer's content matches the last load or save.
	Clean State = iota
	// Modified means the buffer has been mutated since the last load/save.
	Modified
	// Detached means at least one page of data is unrecoverable: a load
	// failed and no overflow copy existed. Only SaveAs is permitted.
	Detached
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Modified:
		return "modified"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// ChangeDecision is how the buffer reacts to an externally-modified source
// file, per scenario.
type ChangeDecision int

const (
	Ignore ChangeDecision = iota
	Warn
	Rebase
	Detach
)

// ChangeStrategy maps each external-change scenario to a decision.
type ChangeStrategy struct {
	NoEdits     ChangeDecision
	WithEdits   ChangeDecision
	SizeChanged ChangeDecision
}

// DefaultChangeStrategy warns on any detected change and never auto-rebases
// or force-detaches, leaving the caller to decide.
func DefaultChangeStrategy() ChangeStrategy {
	return ChangeStrategy{NoEdits: Warn, WithEdits: Warn, SizeChanged: Warn}
}

// Buffer is the public paged byte-buffer facade.
type Buffer struct {
	vpm   *vpm.Manager
	undo  *undo.Engine
	bus   *notify.Bus
	clock func() time.Time

	state          State
	changeStrategy ChangeStrategy
	undoEnabled    bool

	sourceChecksum string
}

// Config configures a new Buffer.
type Config struct {
	VPM     vpm.Config
	Storage pagestore.PageStorage
	Now     func() time.Time // injectable clock, defaults to time.Now
}

// New constructs an empty, unloaded Buffer.
func New(cfg Config) *Buffer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	bus := notify.NewBus(cfg.Now)
	return &Buffer{
		vpm:            vpm.New(cfg.VPM, cfg.Storage, bus),
		bus:            bus,
		clock:          cfg.Now,
		changeStrategy: DefaultChangeStrategy(),
	}
}

// Notifications subscribes handler to every notification the buffer emits.
func (b *Buffer) Notifications(handler notify.Handler) { b.bus.Subscribe(handler) }

// State reports the buffer's current lifecycle state.
func (b *Buffer) State() State { return b.state }

// SetChangeStrategy replaces the buffer's external-change policy.
func (b *Buffer) SetChangeStrategy(s ChangeStrategy) { b.changeStrategy = s }

// TotalSize returns the logical buffer length in bytes.
func (b *Buffer) TotalSize() int64 { return b.vpm.TotalSize() }

// LoadFile opens path, computes its size/mtime/checksum, and initializes
// the buffer as Original-backed. State becomes Clean.
func (b *Buffer) LoadFile(path string) error {
	sum, err := checksumFile(path)
	if err != nil {
		return fmt.Errorf("pagedbuffer: checksum %s: %w", path, err)
	}
	if err := b.vpm.InitFromFile(path); err != nil {
		return err
	}
	b.sourceChecksum = sum
	b.state = Clean
	return nil
}

// LoadContent replaces the buffer's content with data, detaching it from
// any backing file. State becomes Clean.
func (b *Buffer) LoadContent(data []byte) error {
	if err := b.vpm.InitFromMemory(data); err != nil {
		return err
	}
	b.sourceChecksum = ""
	b.state = Clean
	return nil
}

// GetBytes returns a copy of the logical range [lo, hi).
func (b *Buffer) GetBytes(lo, hi int64) ([]byte, error) {
	return b.vpm.ReadRange(lo, hi)
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckResult reports the outcome of CheckFileChanges.
type CheckResult struct {
	Changed      bool
	SizeChanged  bool
	MtimeChanged bool
	Deleted      bool
	NewSize      int64
}

// CheckFileChanges compares the backing file's current stat against the
// cached size/mtime from the last load or save.
func (b *Buffer) CheckFileChanges() (CheckResult, error) {
	path := b.vpm.SourcePath()
	if path == "" {
		return CheckResult{}, nil
	}
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		b.bus.Emit(notify.TypeFileModifiedOnDisk, notify.SeverityWarning, "source file deleted", map[string]any{"path": path})
		return CheckResult{Changed: true, Deleted: true}, nil
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("pagedbuffer: stat %s: %w", path, err)
	}
	sizeChanged := fi.Size() != b.vpm.SourceSize()
	mtimeChanged := !fi.ModTime().Equal(b.vpm.SourceModTime())
	result := CheckResult{
		Changed:      sizeChanged || mtimeChanged,
		SizeChanged:  sizeChanged,
		MtimeChanged: mtimeChanged,
		NewSize:      fi.Size(),
	}
	if result.Changed {
		b.bus.Emit(notify.TypeFileModifiedOnDisk, notify.SeverityWarning, "source file changed on disk", map[string]any{
			"path": path, "size_changed": sizeChanged, "mtime_changed": mtimeChanged,
		})
		b.applyChangeStrategy(result)
	}
	return result, nil
}

func (b *Buffer) applyChangeStrategy(r CheckResult) {
	decision := b.changeStrategy.NoEdits
	if b.state == Modified {
		decision = b.changeStrategy.WithEdits
	}
	if r.SizeChanged {
		decision = b.changeStrategy.SizeChanged
	}
	if decision == Detach {
		b.state = Detached
		b.bus.Emit(notify.TypeBufferDetached, notify.SeverityError, "buffer detached by change strategy", nil)
	}
}

// Marks returns the buffer's mark manager, for the marks API in marks.go.
func (b *Buffer) Marks() *marks.Manager { return b.vpm.Marks() }

// SaveOptions bundles SaveFile/SaveAs behavior.
type SaveOptions struct {
	ForcePartialSave bool
	MakeBackup       bool
	PartialTempBound int64
}

// DefaultSaveOptions matches safesave's own defaults.
func DefaultSaveOptions() SaveOptions {
	opts := safesave.DefaultOptions()
	return SaveOptions{PartialTempBound: opts.PartialTempBound}
}
