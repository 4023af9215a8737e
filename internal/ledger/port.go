package ledger

import (
	"context"
	"time"
)

// Store defines the persistence port for the ledger engine. Every write
// must be atomic from an external observer's perspective: a crash
// mid-operation leaves either the full effect or nothing.
type Store interface {
	// Append assigns the next monotonic id, persists the record and
	// returns the id.
	Append(ctx context.Context, tx *Transaction) (int64, error)

	// AttachExternalRef binds ref to the transaction. Attaching the
	// same ref twice is a no-op; a different ref yields ErrRefConflict;
	// an unknown id yields ErrNotFound.
	AttachExternalRef(ctx context.Context, id int64, ref string) error

	// RemoveByExternalRef deletes at most one transaction carrying ref,
	// searching all chats, and returns the deleted record. It returns
	// (nil, nil) when no transaction matches.
	RemoveByExternalRef(ctx context.Context, ref string) (*Transaction, error)

	// List returns a chat's transactions in insertion order. A non-nil
	// since restricts the result to created_at >= since.
	List(ctx context.Context, chatID int64, since *time.Time) ([]*Transaction, error)

	// DeleteInPeriod removes every transaction of the chat with
	// created_at in [from, to) and returns the removed records.
	DeleteInPeriod(ctx context.Context, chatID int64, from, to time.Time) ([]*Transaction, error)

	// GroupConfig returns the chat's config, creating the zero-valued
	// default on first access.
	GroupConfig(ctx context.Context, chatID int64) (*GroupConfig, error)

	// UpdateGroupConfig merges patch into the chat's config and returns
	// the result.
	UpdateGroupConfig(ctx context.Context, chatID int64, patch ConfigPatch) (*GroupConfig, error)

	// Admin set, installation-wide.
	AddAdmin(ctx context.Context, admin *Admin) error
	RemoveAdmin(ctx context.Context, userID int64) error
	ListAdmins(ctx context.Context) ([]*Admin, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}
