package pagedbuffer

// CheckIntegrity validates the address index's prefix-sum and hash-sync
// invariants (spec §7, "assertion-class" errors — a non-nil result
// indicates a bug, not a recoverable runtime condition). Never run
// implicitly; callers invoke it explicitly (e.g. from tests or a debug
// command).
func (b *Buffer) CheckIntegrity() error {
	return b.vpm.CheckIntegrity()
}

// MissingRange describes one byte range lost to detachment.
type MissingRange struct {
	Lo, Hi int64
	Reason string
}

// MissingRanges lists byte ranges lost to detachment.
func (b *Buffer) MissingRanges() []MissingRange {
	out := make([]MissingRange, 0)
	for _, r := range b.vpm.MissingRanges() {
		out = append(out, MissingRange{Lo: r.Lo, Hi: r.Hi, Reason: r.Reason})
	}
	return out
}

// Detached reports whether the buffer has suffered unrecoverable data loss.
func (b *Buffer) Detached() bool { return b.vpm.Detached() }
