package pagedbuffer

import "github.com/SimonWaldherr/pagedbuffer/internal/marks"

// SetMark creates or moves a named, content-anchored mark at addr.
func (b *Buffer) SetMark(name string, addr int64) error {
	return b.Marks().SetMark(name, addr, b.TotalSize())
}

// GetMark returns a mark's current virtual address.
func (b *Buffer) GetMark(name string) (int64, bool) {
	return b.Marks().GetMark(name)
}

// RemoveMark deletes a mark if present.
func (b *Buffer) RemoveMark(name string) {
	b.Marks().RemoveMark(name)
}

// AllMarks returns every mark, sorted by address then name.
func (b *Buffer) AllMarks() []marks.Mark {
	return b.Marks().AllMarks()
}

// ClearAllMarks removes every mark.
func (b *Buffer) ClearAllMarks() {
	b.Marks().ClearAll()
}

// MarksForPersistence exports every mark as a flat name -> address mapping,
// suitable for JSON or equivalent serialization.
func (b *Buffer) MarksForPersistence() map[string]int64 {
	return b.Marks().ExportPersistence()
}

// SetMarksFromPersistence replaces the mark registry with snap, dropping
// any entries outside [0, TotalSize()].
func (b *Buffer) SetMarksFromPersistence(snap map[string]int64) {
	b.Marks().ImportPersistence(snap, b.TotalSize())
}
