package vpm

import (
	"fmt"
	"os"
	"time"

	"github.com/SimonWaldherr/pagedbuffer/internal/marks"
	"github.com/SimonWaldherr/pagedbuffer/internal/notify"
	"github.com/SimonWaldherr/pagedbuffer/internal/pagestore"
)

// Config configures page sizing and cache pressure.
type Config struct {
	PageSize       int64 // default 64 KiB
	MaxLoadedPages int   // default 100
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{PageSize: 64 * 1024, MaxLoadedPages: 100}
}

func (c Config) minPageSize() int64 { return c.PageSize / 4 }
func (c Config) maxPageSize() int64 { return c.PageSize * 2 }

// Manager is the Virtual Page Manager: address translation, lazy load,
// LRU eviction, and page split/merge. It owns a MarksManager as a plain
// field, per the spec's Design Notes on resolving the cyclic reference
// between buffer, VPM and marks.
type Manager struct {
	cfg     Config
	idx     *AddressIndex
	storage pagestore.PageStorage
	marks   *marks.Manager
	bus     *notify.Bus

	cache       map[PageID]*PageInfo
	lruHead     *PageInfo // most recently used
	lruTail     *PageInfo // least recently used
	loadedCount int
	clock       int64

	sourcePath    string
	sourceFile    *os.File
	sourceSize    int64
	sourceModTime time.Time

	detached      bool
	missingRanges []MissingRange
}

// New constructs an empty Manager. Call InitFromFile or InitFromMemory
// before use.
func New(cfg Config, storage pagestore.PageStorage, bus *notify.Bus) *Manager {
	if cfg.PageSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.MaxLoadedPages <= 0 {
		cfg.MaxLoadedPages = 100
	}
	return &Manager{
		cfg:     cfg,
		idx:     NewAddressIndex(),
		storage: storage,
		marks:   marks.New(),
		bus:     bus,
		cache:   make(map[PageID]*PageInfo),
	}
}

// Marks returns the owned marks manager, for the buffer facade's mark API.
func (m *Manager) Marks() *marks.Manager { return m.marks }

// TotalSize returns the logical buffer length.
func (m *Manager) TotalSize() int64 { return m.idx.Total() }

// Detached reports whether the buffer has suffered unrecoverable data loss.
func (m *Manager) Detached() bool { return m.detached }

// MissingRanges lists byte ranges lost to detachment.
func (m *Manager) MissingRanges() []MissingRange { return append([]MissingRange(nil), m.missingRanges...) }

// SourcePath returns the backing file path, or "" if none.
func (m *Manager) SourcePath() string { return m.sourcePath }

// SourceSize returns the cached backing-file size at load time.
func (m *Manager) SourceSize() int64 { return m.sourceSize }

// SourceModTime returns the cached backing-file mtime at load time.
func (m *Manager) SourceModTime() time.Time { return m.sourceModTime }

// Descriptors returns read-only snapshots of every descriptor in address
// order, for the safe-save planner.
func (m *Manager) Descriptors() []Snapshot {
	all := m.idx.All()
	out := make([]Snapshot, len(all))
	for i, d := range all {
		out[i] = snapshotOf(d)
	}
	return out
}

// CheckIntegrity validates the address index's invariants.
func (m *Manager) CheckIntegrity() error { return m.idx.CheckIntegrity() }

func (m *Manager) emit(typ string, sev notify.Severity, msg string, meta map[string]any) {
	if m.bus != nil {
		m.bus.Emit(typ, sev, msg, meta)
	}
}

// InitFromFile builds an Original-page descriptor sequence covering
// [0, size) of path, each page at most cfg.PageSize bytes.
func (m *Manager) InitFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vpm: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("vpm: stat %s: %w", path, err)
	}

	m.sourceFile = f
	m.sourcePath = path
	m.sourceSize = fi.Size()
	m.sourceModTime = fi.ModTime()

	m.idx = NewAddressIndex()
	var pos int64
	size := fi.Size()
	for pos < size {
		n := m.cfg.PageSize
		if pos+n > size {
			n = size - pos
		}
		d := &PageDescriptor{
			PageID:       NewPageID(),
			VirtualStart: pos,
			VirtualSize:  n,
			Source:       SourceOriginal,
			FileOffset:   pos,
			OriginalSize: n,
		}
		m.idx.InsertPage(d)
		pos += n
	}
	if size == 0 {
		// Empty file: a single empty memory page anchors insert-at-end.
		d := &PageDescriptor{PageID: NewPageID(), VirtualStart: 0, VirtualSize: 0, Source: SourceMemory, IsDirty: false}
		m.idx.InsertPage(d)
		m.preloadEmpty(d)
	}
	return nil
}

// InitFromMemory builds Memory descriptors from data, chunked by page size,
// and preloads them, then enforces MaxLoadedPages.
func (m *Manager) InitFromMemory(data []byte) error {
	m.idx = NewAddressIndex()
	m.cache = make(map[PageID]*PageInfo)
	m.lruHead, m.lruTail = nil, nil
	m.loadedCount = 0

	if len(data) == 0 {
		d := &PageDescriptor{PageID: NewPageID(), VirtualStart: 0, VirtualSize: 0, Source: SourceMemory}
		m.idx.InsertPage(d)
		m.preloadEmpty(d)
		m.emit(notify.TypeBufferContentLoaded, notify.SeverityInfo, "buffer loaded from memory", nil)
		return nil
	}

	var pos int64
	for pos < int64(len(data)) {
		n := m.cfg.PageSize
		if pos+n > int64(len(data)) {
			n = int64(len(data)) - pos
		}
		d := &PageDescriptor{
			PageID:       NewPageID(),
			VirtualStart: pos,
			VirtualSize:  n,
			Source:       SourceMemory,
			IsDirty:      false,
		}
		m.idx.InsertPage(d)
		body := make([]byte, n)
		copy(body, data[pos:pos+n])
		pi := newPageInfo(d.PageID, body)
		m.insertIntoCache(d, pi)
		pos += n
	}
	if err := m.maybeEvict(); err != nil {
		return err
	}
	m.emit(notify.TypeBufferContentLoaded, notify.SeverityInfo, "buffer loaded from memory", nil)
	return nil
}

func (m *Manager) preloadEmpty(d *PageDescriptor) {
	pi := newPageInfo(d.PageID, nil)
	m.insertIntoCache(d, pi)
}

// TranslateAddress returns the descriptor covering pos and the offset
// within it, ensuring the page is loaded. pos == TotalSize() is a valid
// insert-at-end anchor.
func (m *Manager) TranslateAddress(pos int64) (*PageDescriptor, int64, error) {
	d, _, err := m.idx.FindPageAt(pos)
	if err != nil {
		return nil, 0, err
	}
	if _, err := m.ensureLoaded(d); err != nil {
		return nil, 0, err
	}
	return d, pos - d.VirtualStart, nil
}

// ReadRange returns a copy of [lo, hi), clamped to the buffer. On a load
// failure the buffer detaches and the unavailable portion is zero-filled so
// the result is always len(result) == hi-lo (after clamping).
func (m *Manager) ReadRange(lo, hi int64) ([]byte, error) {
	if lo < 0 {
		lo = 0
	}
	if hi > m.TotalSize() {
		hi = m.TotalSize()
	}
	if hi < lo {
		hi = lo
	}
	out := make([]byte, hi-lo)
	for _, d := range m.idx.PagesInRange(lo, hi) {
		end := d.VirtualStart + d.VirtualSize
		segLo := max64(lo, d.VirtualStart)
		segHi := min64(hi, end)
		if segHi <= segLo {
			continue
		}
		pi, err := m.ensureLoaded(d)
		if err != nil {
			// Already detached by ensureLoaded; leave this slice zeroed.
			continue
		}
		copy(out[segLo-lo:segHi-lo], pi.Data[segLo-d.VirtualStart:segHi-d.VirtualStart])
	}
	return out, nil
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

// InsertAt splices data into the buffer at pos.
func (m *Manager) InsertAt(pos int64, data []byte) error {
	if len(data) == 0 {
		if pos < 0 || pos > m.TotalSize() {
			return fmt.Errorf("position %d out of bounds [0,%d]", pos, m.TotalSize())
		}
		return nil
	}
	atBufferEnd := pos == m.TotalSize()
	d, rel, err := m.TranslateAddress(pos)
	if err != nil {
		return err
	}
	pi, err := m.ensureLoaded(d)
	if err != nil {
		return err
	}
	newData := make([]byte, 0, len(pi.Data)+len(data))
	newData = append(newData, pi.Data[:rel]...)
	newData = append(newData, data...)
	newData = append(newData, pi.Data[rel:]...)
	pi.Data = newData
	pi.invalidateNewlines()
	if err := m.idx.UpdatePageSize(d.PageID, int64(len(data))); err != nil {
		return err
	}
	d.LineInfoValid = false
	d.IsDirty = true

	m.marks.UpdateAfterModification(pos, 0, int64(len(data)), atBufferEnd)
	m.refreshAllShadows()

	if d.VirtualSize > m.cfg.maxPageSize() {
		if err := m.splitPage(d); err != nil {
			return err
		}
	}
	if err := m.mergeScan(); err != nil {
		return err
	}
	return nil
}

// DeleteRange removes [lo, hi) and returns the removed bytes.
func (m *Manager) DeleteRange(lo, hi int64) ([]byte, error) {
	total := m.TotalSize()
	if lo < 0 {
		lo = 0
	}
	if hi > total {
		hi = total
	}
	if hi <= lo {
		return nil, nil
	}

	descs := m.idx.PagesInRange(lo, hi)
	removed := make([]byte, hi-lo)

	// Iterate in reverse so earlier positions stay valid while we splice.
	var emptied []PageID
	for i := len(descs) - 1; i >= 0; i-- {
		d := descs[i]
		end := d.VirtualStart + d.VirtualSize
		segLo := max64(lo, d.VirtualStart)
		segHi := min64(hi, end)
		if segHi <= segLo {
			continue
		}
		pi, err := m.ensureLoaded(d)
		if err != nil {
			return nil, err
		}
		relLo := segLo - d.VirtualStart
		relHi := segHi - d.VirtualStart
		copy(removed[segLo-lo:segHi-lo], pi.Data[relLo:relHi])

		newData := make([]byte, 0, len(pi.Data)-(relHi-relLo))
		newData = append(newData, pi.Data[:relLo]...)
		newData = append(newData, pi.Data[relHi:]...)
		pi.Data = newData
		pi.invalidateNewlines()
		if err := m.idx.UpdatePageSize(d.PageID, -(relHi - relLo)); err != nil {
			return nil, err
		}
		d.LineInfoValid = false
		d.IsDirty = true
		if d.VirtualSize == 0 {
			emptied = append(emptied, d.PageID)
		}
	}

	for _, id := range emptied {
		m.dropPage(id)
	}

	m.marks.UpdateAfterModification(lo, hi-lo, 0, false)
	m.refreshAllShadows()

	if err := m.mergeScan(); err != nil {
		return removed, err
	}
	return removed, nil
}

// dropPage removes a descriptor (emptied by delete, or absorbed by merge).
// Any marks that landed exactly at its (now-vanished) start already sit at
// the correct global address and need no transfer — only the cache/LRU
// bookkeeping for the emptied page needs cleanup.
func (m *Manager) dropPage(id PageID) {
	if pi, ok := m.cache[id]; ok {
		m.unlinkLRU(pi)
		delete(m.cache, id)
		m.loadedCount--
	}
	m.idx.RemovePage(id)
}

// Overwrite is delete(pos,pos+len(data)) followed by insert(pos,data), with
// the removed bytes returned as the "original" content. Per spec §9's
// second Open Question, a same-length overwrite (the replaced region is
// exactly len(data) bytes, i.e. not truncated by the buffer's end) preserves
// marks that fall inside the overwritten range at their original relative
// offsets; a length-changing overwrite (truncated at the buffer's end)
// removes them from the mark registry. The removed marks are not returned.
func (m *Manager) Overwrite(pos int64, data []byte) ([]byte, error) {
	hi := pos + int64(len(data))
	if hi > m.TotalSize() {
		hi = m.TotalSize()
	}
	sameLength := hi-pos == int64(len(data))
	extracted := m.marks.ExtractMarksFromRange(pos, hi)
	original, err := m.DeleteRange(pos, hi)
	if err != nil {
		return nil, err
	}
	if err := m.InsertAt(pos, data); err != nil {
		return original, err
	}
	if sameLength && len(extracted) > 0 {
		m.marks.InsertMarksFromRelative(pos, extracted)
		m.refreshAllShadows()
	}
	return original, nil
}

// refreshAllShadows rebuilds every loaded page's PageMarks cache from the
// authoritative global map. Loaded pages are bounded by MaxLoadedPages, so
// this stays cheap, and it is simpler than targeted per-mark shadow updates
// while remaining equally correct.
func (m *Manager) refreshAllShadows() {
	for id, pi := range m.cache {
		d, ok := m.idx.FindPageByID(id)
		if !ok {
			continue
		}
		for k := range pi.PageMarks {
			delete(pi.PageMarks, k)
		}
		for _, mk := range m.marks.MarksInRange(d.VirtualStart, d.VirtualStart+d.VirtualSize+1) {
			if mk.Address <= d.VirtualStart+d.VirtualSize {
				pi.PageMarks[mk.Name] = mk.Address - d.VirtualStart
			}
		}
	}
}
