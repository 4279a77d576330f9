package undo

import "errors"

var (
	ErrTransactionOpen      = errors.New("undo: a transaction is already open")
	ErrNoTransactionOpen    = errors.New("undo: no transaction is open")
	ErrNothingToUndo        = errors.New("undo: nothing to undo")
	ErrNothingToRedo        = errors.New("undo: nothing to redo")
	ErrRedoDuringTransaction = errors.New("undo: redo is disallowed while a transaction is open")
)
