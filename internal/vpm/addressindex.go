package vpm

import (
	"fmt"
	"sort"
)

// AddressIndex maintains the ordered sequence of PageDescriptors and a
// secondary id -> descriptor map, providing O(log n) virtual-address
// lookup and the split/merge primitives the manager builds on.
//
// Mirrors the teacher's PageBufferPool/Pager split between an ordered
// structure and a hash index, but keyed by virtual address rather than
// LRU recency.
type AddressIndex struct {
	descriptors []*PageDescriptor
	byID        map[PageID]*PageDescriptor
	total       int64
}

// NewAddressIndex returns an empty index.
func NewAddressIndex() *AddressIndex {
	return &AddressIndex{byID: make(map[PageID]*PageDescriptor)}
}

// Total returns the current total virtual size.
func (ai *AddressIndex) Total() int64 { return ai.total }

// Len returns the number of descriptors.
func (ai *AddressIndex) Len() int { return len(ai.descriptors) }

// At returns the descriptor at sequence index i.
func (ai *AddressIndex) At(i int) *PageDescriptor { return ai.descriptors[i] }

// All returns the live descriptor slice. Callers must not retain it across
// a mutation.
func (ai *AddressIndex) All() []*PageDescriptor { return ai.descriptors }

// FindPageAt performs a binary search for the descriptor containing pos and
// returns it along with its sequence index.
func (ai *AddressIndex) FindPageAt(pos int64) (*PageDescriptor, int, error) {
	if pos < 0 || pos > ai.total {
		return nil, -1, fmt.Errorf("position %d out of bounds [0,%d]", pos, ai.total)
	}
	n := len(ai.descriptors)
	if n == 0 {
		return nil, -1, fmt.Errorf("empty address index")
	}
	// Largest index whose virtual_start <= pos.
	i := sort.Search(n, func(i int) bool {
		return ai.descriptors[i].VirtualStart > pos
	}) - 1
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	d := ai.descriptors[i]
	if pos == ai.total && d.VirtualStart+d.VirtualSize == pos {
		return d, i, nil
	}
	if pos < d.VirtualStart || pos > d.VirtualStart+d.VirtualSize {
		return nil, -1, fmt.Errorf("address index corrupt: pos %d not covered", pos)
	}
	return d, i, nil
}

// FindPageByID is an O(1) lookup.
func (ai *AddressIndex) FindPageByID(id PageID) (*PageDescriptor, bool) {
	d, ok := ai.byID[id]
	return d, ok
}

// InsertPage inserts desc at its sorted position (by VirtualStart) and
// recomputes the running total. Callers are responsible for having set
// VirtualStart consistently (e.g. appending at the current total).
func (ai *AddressIndex) InsertPage(desc *PageDescriptor) {
	i := sort.Search(len(ai.descriptors), func(i int) bool {
		return ai.descriptors[i].VirtualStart > desc.VirtualStart
	})
	ai.descriptors = append(ai.descriptors, nil)
	copy(ai.descriptors[i+1:], ai.descriptors[i:])
	ai.descriptors[i] = desc
	ai.byID[desc.PageID] = desc
	ai.recompute()
}

// RemovePage deletes the descriptor with the given id from both structures.
func (ai *AddressIndex) RemovePage(id PageID) {
	for i, d := range ai.descriptors {
		if d.PageID == id {
			ai.descriptors = append(ai.descriptors[:i], ai.descriptors[i+1:]...)
			delete(ai.byID, id)
			ai.recompute()
			return
		}
	}
}

// UpdatePageSize adds delta to the named page's VirtualSize, shifts every
// subsequent descriptor's VirtualStart by delta, and updates the total.
func (ai *AddressIndex) UpdatePageSize(id PageID, delta int64) error {
	idx := -1
	for i, d := range ai.descriptors {
		if d.PageID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("page %s not found", id)
	}
	ai.descriptors[idx].VirtualSize += delta
	for i := idx + 1; i < len(ai.descriptors); i++ {
		ai.descriptors[i].VirtualStart += delta
	}
	ai.total += delta
	return nil
}

// SplitPage shrinks the original descriptor to splitOffset bytes and
// inserts a new Memory descriptor of the remainder immediately after it.
// Returns the new descriptor.
func (ai *AddressIndex) SplitPage(id PageID, splitOffset int64, newID PageID) (*PageDescriptor, error) {
	idx := -1
	for i, d := range ai.descriptors {
		if d.PageID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("page %s not found", id)
	}
	orig := ai.descriptors[idx]
	if splitOffset <= 0 || splitOffset >= orig.VirtualSize {
		return nil, fmt.Errorf("invalid split offset %d for page of size %d", splitOffset, orig.VirtualSize)
	}
	remainder := orig.VirtualSize - splitOffset
	newDesc := &PageDescriptor{
		PageID:       newID,
		VirtualStart: orig.VirtualStart + splitOffset,
		VirtualSize:  remainder,
		Source:       SourceMemory,
		IsDirty:      true,
		IsLoaded:     false,
		Generation:   orig.Generation + 1,
		ParentID:     orig.PageID,
	}
	orig.VirtualSize = splitOffset
	orig.LineInfoValid = false

	ai.descriptors = append(ai.descriptors, nil)
	copy(ai.descriptors[idx+2:], ai.descriptors[idx+1:])
	ai.descriptors[idx+1] = newDesc
	ai.byID[newID] = newDesc
	ai.recompute()
	return newDesc, nil
}

// PagesInRange returns descriptors whose [VirtualStart, VirtualEnd)
// intersects [lo, hi), in address order.
func (ai *AddressIndex) PagesInRange(lo, hi int64) []*PageDescriptor {
	var out []*PageDescriptor
	for _, d := range ai.descriptors {
		end := d.VirtualStart + d.VirtualSize
		if d.VirtualStart < hi && end > lo {
			out = append(out, d)
		} else if lo == hi && d.VirtualStart <= lo && lo <= end {
			out = append(out, d)
		}
	}
	return out
}

// recompute rebuilds VirtualStart prefix sums and the running total from
// scratch. Used after structural changes (insert/remove/split) where the
// incremental shift bookkeeping elsewhere in the package does not apply.
func (ai *AddressIndex) recompute() {
	var pos int64
	for _, d := range ai.descriptors {
		d.VirtualStart = pos
		pos += d.VirtualSize
	}
	ai.total = pos
}

// CheckIntegrity validates the prefix-sum invariant and hash/array
// agreement (spec §7, "Integrity" error class). It is assertion-class: a
// failure indicates a bug in the manager, not a recoverable runtime state.
func (ai *AddressIndex) CheckIntegrity() error {
	if len(ai.byID) != len(ai.descriptors) {
		return fmt.Errorf("integrity: id map has %d entries, descriptor list has %d", len(ai.byID), len(ai.descriptors))
	}
	var pos int64
	for i, d := range ai.descriptors {
		if d.VirtualStart != pos {
			return fmt.Errorf("integrity: descriptor %d virtual_start=%d, expected %d", i, d.VirtualStart, pos)
		}
		if got, ok := ai.byID[d.PageID]; !ok || got != d {
			return fmt.Errorf("integrity: descriptor %d (id=%s) missing or desynced in id map", i, d.PageID)
		}
		pos += d.VirtualSize
	}
	if pos != ai.total {
		return fmt.Errorf("integrity: total_virtual_size=%d, sum of sizes=%d", ai.total, pos)
	}
	return nil
}
