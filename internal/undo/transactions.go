package undo

// CommitTransaction publishes the open transaction as an OperationGroup
// marked FromTransaction, using its initial snapshot, and pushes it onto the
// undo stack. nameOverride replaces the transaction's name if non-empty.
func (e *Engine) CommitTransaction(nameOverride string) (*OperationGroup, error) {
	if e.tx == nil {
		return nil, ErrNoTransactionOpen
	}
	tx := e.tx
	e.tx = nil

	name := tx.Name
	if nameOverride != "" {
		name = nameOverride
	}
	group := &OperationGroup{
		Name:              name,
		Operations:        tx.Operations,
		FromTransaction:   true,
		MarksSnapshot:     tx.MarksSnapshot,
		LineCountSnapshot: tx.LineCountSnapshot,
	}
	if len(tx.Operations) > 0 {
		group.Timestamp = tx.Operations[0].Timestamp
	}
	e.undoStack = append(e.undoStack, group)
	e.redoStack = nil
	if len(e.undoStack) > e.cfg.MaxUndoLevels {
		e.undoStack = e.undoStack[len(e.undoStack)-e.cfg.MaxUndoLevels:]
	}
	return group, nil
}

// RollbackTransaction discards the open transaction and returns it so the
// caller can invert its operations in reverse via VPM and restore
// MarksSnapshot. Rollback never touches undo/redo history.
func (e *Engine) RollbackTransaction() (*Transaction, error) {
	if e.tx == nil {
		return nil, ErrNoTransactionOpen
	}
	tx := e.tx
	e.tx = nil
	return tx, nil
}
