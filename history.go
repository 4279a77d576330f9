package pagedbuffer

import (
	"fmt"

	"github.com/SimonWaldherr/pagedbuffer/internal/undo"
)

// UndoConfig configures the merge window and history depth for EnableUndo.
type UndoConfig = undo.Config

// DefaultUndoConfig returns the engine's documented defaults.
func DefaultUndoConfig() UndoConfig { return undo.DefaultConfig() }

// EnableUndo turns on undo recording with cfg. Re-enabling replaces any
// prior history.
func (b *Buffer) EnableUndo(cfg UndoConfig) {
	b.undo = undo.New(cfg, b.clock)
	b.undoEnabled = true
}

// DisableUndo turns off undo recording and discards all history.
func (b *Buffer) DisableUndo() {
	b.undo = nil
	b.undoEnabled = false
}

// CanUndo reports whether Undo has something to act on.
func (b *Buffer) CanUndo() bool {
	return b.undoEnabled && b.undo.CanUndo()
}

// CanRedo reports whether Redo has something to act on.
func (b *Buffer) CanRedo() bool {
	return b.undoEnabled && b.undo.CanRedo()
}

func (b *Buffer) requireUndo() error {
	if !b.undoEnabled {
		return fmt.Errorf("pagedbuffer: undo is not enabled")
	}
	return nil
}

// BeginTransaction opens a named transaction; operations recorded while one
// is open accumulate on it, bypassing merge.
func (b *Buffer) BeginTransaction(name string) error {
	if err := b.requireUndo(); err != nil {
		return err
	}
	return b.undo.Begin(name, b.Marks().Snapshot(), mustLineCount(b))
}

// CommitTransaction publishes the open transaction as a group on the undo
// stack. nameOverride replaces the transaction's name if non-empty.
func (b *Buffer) CommitTransaction(nameOverride string) error {
	if err := b.requireUndo(); err != nil {
		return err
	}
	_, err := b.undo.CommitTransaction(nameOverride)
	return err
}

// RollbackTransaction inverts every operation recorded in the open
// transaction (in reverse) and restores its initial marks snapshot, adding
// nothing to undo history.
func (b *Buffer) RollbackTransaction() error {
	if err := b.requireUndo(); err != nil {
		return err
	}
	tx, err := b.undo.RollbackTransaction()
	if err != nil {
		return err
	}
	for i := len(tx.Operations) - 1; i >= 0; i-- {
		if err := b.applyInverse(tx.Operations[i]); err != nil {
			return err
		}
	}
	b.restoreMarks(tx.MarksSnapshot)
	return nil
}

// Undo reverts the most recent OperationGroup (or, mid-transaction, is
// equivalent to RollbackTransaction).
func (b *Buffer) Undo() error {
	if err := b.requireUndo(); err != nil {
		return err
	}
	if b.undo.InTransaction() {
		return b.RollbackTransaction()
	}
	group, err := b.undo.PopUndoGroup()
	if err != nil {
		return err
	}
	for i := len(group.Operations) - 1; i >= 0; i-- {
		if err := b.applyInverse(group.Operations[i]); err != nil {
			b.undo.PushUndoGroup(group)
			return err
		}
	}
	b.restoreMarks(group.MarksSnapshot)
	b.undo.PushRedoGroup(group)
	return nil
}

// Redo reapplies the most recently undone OperationGroup. Disallowed while
// a transaction is open.
func (b *Buffer) Redo() error {
	if err := b.requireUndo(); err != nil {
		return err
	}
	group, err := b.undo.PopRedoGroup()
	if err != nil {
		return err
	}
	b.undo.UpdateMarksSnapshot(group, b.Marks().Snapshot())
	for _, op := range group.Operations {
		if err := b.applyForward(op); err != nil {
			return err
		}
	}
	b.undo.PushUndoGroup(group)
	return nil
}

// applyInverse undoes a single recorded operation via the VPM, bypassing
// undo recording (the engine's own stacks already track this group).
func (b *Buffer) applyInverse(op undo.Operation) error {
	switch op.Type {
	case undo.OpInsert:
		_, err := b.vpm.DeleteRange(op.PostExecPosition-int64(len(op.Data)), op.PostExecPosition)
		return err
	case undo.OpDelete:
		return b.vpm.InsertAt(op.PreExecPosition, op.OriginalData)
	case undo.OpOverwrite:
		start := op.PostExecPosition - int64(len(op.Data))
		if _, err := b.vpm.DeleteRange(start, op.PostExecPosition); err != nil {
			return err
		}
		return b.vpm.InsertAt(start, op.OriginalData)
	default:
		return fmt.Errorf("pagedbuffer: unknown operation type %v", op.Type)
	}
}

// applyForward reapplies a single recorded operation forward via the VPM.
func (b *Buffer) applyForward(op undo.Operation) error {
	switch op.Type {
	case undo.OpInsert:
		return b.vpm.InsertAt(op.PreExecPosition, op.Data)
	case undo.OpDelete:
		_, err := b.vpm.DeleteRange(op.PreExecPosition, op.PreExecPosition+int64(len(op.OriginalData)))
		return err
	case undo.OpOverwrite:
		_, err := b.vpm.Overwrite(op.PreExecPosition, op.Data)
		return err
	default:
		return fmt.Errorf("pagedbuffer: unknown operation type %v", op.Type)
	}
}

// restoreMarks clears the mark registry and reinserts every (name, addr)
// from snap that still lies within the buffer.
func (b *Buffer) restoreMarks(snap map[string]int64) {
	b.Marks().Restore(snap, b.TotalSize())
}

func mustLineCount(b *Buffer) int64 {
	n, _ := b.vpm.LineCount()
	return n
}
