package ledger

import "errors"

var (
	// ErrNotConfigured means the chat's fx for the requested direction is
	// zero; no transaction is created.
	ErrNotConfigured = errors.New("fee rate and exchange rate not configured")

	// ErrNotFound means no transaction matched the given id or reference.
	ErrNotFound = errors.New("transaction not found")

	// ErrRefConflict means a different external reference is already
	// attached; attaching the same reference again is a no-op.
	ErrRefConflict = errors.New("external reference already attached")

	// ErrBusy means the chat's writer lock could not be acquired within
	// the bounded wait; the operation is safe to retry.
	ErrBusy = errors.New("chat ledger busy")

	ErrInvalidKind   = errors.New("invalid transaction kind")
	ErrInvalidAmount = errors.New("invalid transaction amount")
)
