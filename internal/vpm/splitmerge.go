package vpm

import "github.com/SimonWaldherr/pagedbuffer/internal/notify"

// splitPage splits desc at its midpoint once its body exceeds MaxPageSize.
// Marks keep their global virtual address unchanged (no bytes move), so
// nothing needs to move in the marks manager itself — only the new page's
// resident shadow is built, mirroring the cache rebuild any freshly loaded
// page gets.
func (m *Manager) splitPage(desc *PageDescriptor) error {
	pi, ok := m.cache[desc.PageID]
	if !ok {
		return nil // not resident, nothing to split yet
	}
	split := desc.VirtualSize / 2
	newID := NewPageID()

	newBody := make([]byte, len(pi.Data)-int(split))
	copy(newBody, pi.Data[split:])
	pi.Data = pi.Data[:split]
	pi.invalidateNewlines()

	newDesc, err := m.idx.SplitPage(desc.PageID, split, newID)
	if err != nil {
		return err
	}
	newDesc.IsDirty = true

	newPI := newPageInfo(newID, newBody)
	for _, mk := range m.marks.MarksInRange(newDesc.VirtualStart, newDesc.VirtualStart+newDesc.VirtualSize+1) {
		if mk.Address <= newDesc.VirtualStart+newDesc.VirtualSize {
			newPI.PageMarks[mk.Name] = mk.Address - newDesc.VirtualStart
		}
	}
	m.insertIntoCache(newDesc, newPI)

	m.emit(notify.TypePageSplit, notify.SeverityDebug, "page split", map[string]any{
		"original_id": string(desc.PageID),
		"new_id":      string(newID),
	})
	return m.maybeEvict()
}

// mergeScan looks for one adjacent pair where either side is below
// MinPageSize and the combined size fits within MaxPageSize, merging at
// most one pair per call to bound the work done per mutation.
func (m *Manager) mergeScan() error {
	descs := m.idx.All()
	for i := 0; i+1 < len(descs); i++ {
		a, b := descs[i], descs[i+1]
		if (a.VirtualSize < m.cfg.minPageSize() || b.VirtualSize < m.cfg.minPageSize()) &&
			a.VirtualSize+b.VirtualSize <= m.cfg.maxPageSize() {
			return m.mergePair(a, b)
		}
	}
	return nil
}

// mergePair merges the smaller of a (left) and b (right) into the larger,
// which keeps the combined body and the surviving descriptor identity.
func (m *Manager) mergePair(a, b *PageDescriptor) error {
	piA, err := m.ensureLoaded(a)
	if err != nil {
		return err
	}
	piB, err := m.ensureLoaded(b)
	if err != nil {
		return err
	}

	var targetDesc, absorbedDesc *PageDescriptor
	var targetPI *PageInfo
	var combined []byte
	if a.VirtualSize >= b.VirtualSize {
		targetDesc, absorbedDesc, targetPI = a, b, piA
		combined = append(append([]byte(nil), piA.Data...), piB.Data...)
	} else {
		targetDesc, absorbedDesc, targetPI = b, a, piB
		combined = append(append([]byte(nil), piA.Data...), piB.Data...)
	}
	targetPI.Data = combined
	targetPI.invalidateNewlines()
	targetDesc.VirtualSize = a.VirtualSize + b.VirtualSize
	targetDesc.LineInfoValid = false
	targetDesc.IsDirty = true

	m.dropPage(absorbedDesc.PageID)
	if m.storage != nil && absorbedDesc.StorageKey != "" {
		_ = m.storage.Delete(absorbedDesc.StorageKey)
	}

	for k := range targetPI.PageMarks {
		delete(targetPI.PageMarks, k)
	}
	for _, mk := range m.marks.MarksInRange(targetDesc.VirtualStart, targetDesc.VirtualStart+targetDesc.VirtualSize+1) {
		if mk.Address <= targetDesc.VirtualStart+targetDesc.VirtualSize {
			targetPI.PageMarks[mk.Name] = mk.Address - targetDesc.VirtualStart
		}
	}

	m.emit(notify.TypePageMerged, notify.SeverityDebug, "page merged", map[string]any{
		"target_id":   string(targetDesc.PageID),
		"absorbed_id": string(absorbedDesc.PageID),
	})
	return nil
}
