package undo

// PopUndoGroup removes and returns the top of the undo stack for the
// caller to invert (each operation in reverse order via VPM) and to restore
// MarksSnapshot from. The caller pushes the group onto the redo stack with
// PushRedoGroup only after every inverse step succeeds; on failure it must
// call PushUndoGroup to put the group back, per the spec's "undo must not
// lose history on a failed inverse" rule.
func (e *Engine) PopUndoGroup() (*OperationGroup, error) {
	if len(e.undoStack) == 0 {
		return nil, ErrNothingToUndo
	}
	n := len(e.undoStack) - 1
	group := e.undoStack[n]
	e.undoStack = e.undoStack[:n]
	return group, nil
}

// PushUndoGroup restores a group to the top of the undo stack, used both by
// redo and to recover from a failed undo inverse.
func (e *Engine) PushUndoGroup(group *OperationGroup) {
	e.undoStack = append(e.undoStack, group)
}

// PushRedoGroup pushes a successfully-undone group onto the redo stack.
func (e *Engine) PushRedoGroup(group *OperationGroup) {
	e.redoStack = append(e.redoStack, group)
}

// PopRedoGroup removes and returns the top of the redo stack for the caller
// to reapply forward via VPM. Disallowed while a transaction is open.
func (e *Engine) PopRedoGroup() (*OperationGroup, error) {
	if e.tx != nil {
		return nil, ErrRedoDuringTransaction
	}
	if len(e.redoStack) == 0 {
		return nil, ErrNothingToRedo
	}
	n := len(e.redoStack) - 1
	group := e.redoStack[n]
	e.redoStack = e.redoStack[:n]
	return group, nil
}

// UpdateMarksSnapshot replaces group's marks snapshot, used by redo to
// record the pre-redo marks state so a subsequent undo restores it
// symmetrically (the resolved reading of the spec's redo/marks ambiguity).
func (e *Engine) UpdateMarksSnapshot(group *OperationGroup, marks map[string]int64) {
	group.MarksSnapshot = cloneMarks(marks)
}
