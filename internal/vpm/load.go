package vpm

import (
	"fmt"
	"io"
	"time"

	"github.com/SimonWaldherr/pagedbuffer/internal/notify"
)

// ensureLoaded returns the resident PageInfo for desc, loading it from its
// source if necessary.
func (m *Manager) ensureLoaded(desc *PageDescriptor) (*PageInfo, error) {
	if pi, ok := m.cache[desc.PageID]; ok {
		m.touch(pi)
		return pi, nil
	}

	var body []byte
	var err error
	switch desc.Source {
	case SourceOriginal:
		body, err = m.loadOriginal(desc)
	case SourceOverflow:
		body, err = m.loadOverflow(desc)
	case SourceMemory:
		body, err = m.loadOverflow(desc) // evicted memory page: same overflow path
		if err == nil {
			desc.Source = SourceOverflow
		}
	default:
		err = fmt.Errorf("vpm: unknown source kind %v", desc.Source)
	}
	if err != nil {
		m.detach(desc, err)
		return nil, err
	}

	pi := newPageInfo(desc.PageID, body)
	for _, mk := range m.marks.MarksInRange(desc.VirtualStart, desc.VirtualStart+desc.VirtualSize+1) {
		if mk.Address <= desc.VirtualStart+desc.VirtualSize {
			pi.PageMarks[mk.Name] = mk.Address - desc.VirtualStart
		}
	}
	m.insertIntoCache(desc, pi)
	if err := m.maybeEvict(); err != nil {
		return pi, err
	}
	return pi, nil
}

func (m *Manager) loadOriginal(desc *PageDescriptor) ([]byte, error) {
	if m.sourceFile == nil {
		return nil, fmt.Errorf("vpm: no source file open for original page %s", desc.PageID)
	}
	fi, err := m.sourceFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("vpm: stat source file: %w", err)
	}
	currentSize := fi.Size()
	if currentSize < desc.FileOffset+desc.OriginalSize {
		return nil, fmt.Errorf("vpm: source file truncated: need %d bytes at offset %d, file is %d bytes",
			desc.OriginalSize, desc.FileOffset, currentSize)
	}
	buf := make([]byte, desc.OriginalSize)
	n, err := m.sourceFile.ReadAt(buf, desc.FileOffset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("vpm: read original page %s: %w", desc.PageID, err)
	}
	if int64(n) < desc.OriginalSize {
		if desc.FileOffset+int64(n) != currentSize {
			return nil, fmt.Errorf("vpm: short read on page %s: got %d of %d bytes", desc.PageID, n, desc.OriginalSize)
		}
		buf = buf[:n]
	}
	return buf, nil
}

func (m *Manager) loadOverflow(desc *PageDescriptor) ([]byte, error) {
	if m.storage == nil {
		return nil, fmt.Errorf("vpm: no overflow storage configured for page %s", desc.PageID)
	}
	if desc.StorageKey == "" {
		return nil, fmt.Errorf("vpm: page %s has no storage key", desc.PageID)
	}
	return m.storage.Load(desc.StorageKey)
}

// detach records a missing-data range and transitions the buffer to
// Detached, per spec §7.
func (m *Manager) detach(desc *PageDescriptor, cause error) {
	m.missingRanges = append(m.missingRanges, MissingRange{
		Lo:       desc.VirtualStart,
		Hi:       desc.VirtualStart + desc.VirtualSize,
		Reason:   cause.Error(),
		Detected: time.Now(),
	})
	m.emit(notify.TypePageDataUnavailable, notify.SeverityError, cause.Error(), map[string]any{"page_id": string(desc.PageID)})
	if !m.detached {
		m.detached = true
		m.emit(notify.TypeBufferDetached, notify.SeverityError, "buffer detached: unrecoverable page data loss", nil)
	}
}

// insertIntoCache registers a freshly-built PageInfo as loaded and MRU.
func (m *Manager) insertIntoCache(desc *PageDescriptor, pi *PageInfo) {
	desc.IsLoaded = true
	m.cache[desc.PageID] = pi
	m.loadedCount++
	m.pushFront(pi)
}

// touch marks pi as most-recently-used.
func (m *Manager) touch(pi *PageInfo) {
	m.clock++
	m.unlinkLRU(pi)
	m.pushFront(pi)
}

func (m *Manager) pushFront(pi *PageInfo) {
	pi.prev = nil
	pi.next = m.lruHead
	if m.lruHead != nil {
		m.lruHead.prev = pi
	}
	m.lruHead = pi
	if m.lruTail == nil {
		m.lruTail = pi
	}
}

func (m *Manager) unlinkLRU(pi *PageInfo) {
	if pi.prev != nil {
		pi.prev.next = pi.next
	} else if m.lruHead == pi {
		m.lruHead = pi.next
	}
	if pi.next != nil {
		pi.next.prev = pi.prev
	} else if m.lruTail == pi {
		m.lruTail = pi.prev
	}
	pi.prev, pi.next = nil, nil
}

// maybeEvict evicts LRU pages while loadedCount exceeds MaxLoadedPages. A
// storage failure aborts eviction of that page without losing data: it
// stays loaded and the working set may exceed the configured maximum.
func (m *Manager) maybeEvict() error {
	for m.loadedCount > m.cfg.MaxLoadedPages {
		pi := m.lruTail
		if pi == nil {
			return nil
		}
		desc, ok := m.idx.FindPageByID(pi.id)
		if !ok {
			// Descriptor vanished (e.g. merged away) without cache cleanup;
			// drop the orphaned cache entry and keep going.
			m.unlinkLRU(pi)
			delete(m.cache, pi.id)
			m.loadedCount--
			continue
		}
		if desc.IsDirty || desc.Source == SourceMemory {
			key := desc.StorageKey
			if key == "" {
				key = string(NewPageID())
			}
			if m.storage == nil {
				m.emit(notify.TypeStorageError, notify.SeverityWarning, "no overflow storage configured; cannot evict dirty page", map[string]any{"page_id": string(desc.PageID)})
				return nil
			}
			if err := m.storage.Save(key, pi.Data); err != nil {
				m.emit(notify.TypeStorageError, notify.SeverityError, err.Error(), map[string]any{"page_id": string(desc.PageID)})
				return nil
			}
			desc.Source = SourceOverflow
			desc.StorageKey = key
		}
		pi.buildNewlineIndex()
		desc.NewlineCount = len(pi.NewlineOffsets)
		desc.LineInfoValid = true
		desc.IsLoaded = false

		m.unlinkLRU(pi)
		delete(m.cache, pi.id)
		m.loadedCount--
		m.emit(notify.TypePageEvicted, notify.SeverityDebug, "page evicted", map[string]any{"page_id": string(desc.PageID)})
	}
	return nil
}
