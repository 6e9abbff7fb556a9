// Package store persists ingested messages. The engine depends only on
// the upsert operation; the query surface serves the CLI.
package store

import (
	"context"

	"github.com/nhle/onebox/internal/model"
)

// MessageFilter narrows ListMessages results. Zero values mean "any".
type MessageFilter struct {
	// AccountID restricts to one account.
	AccountID string

	// Category restricts to one category.
	Category *model.Category

	// Query matches subject or body, case-insensitive substring.
	Query string

	// Unread restricts to unread messages when true.
	Unread bool

	Limit  int
	Offset int
}

// Store is the persistence contract. Implementations must be safe for
// concurrent use; sessions for every account write through one
// instance.
type Store interface {
	// UpsertMessage inserts the message or, when a record with the same
	// (message_id, account_id) exists, overwrites its fields. Calling
	// it twice with identical content converges to one stored record.
	UpsertMessage(ctx context.Context, msg *model.Message) error

	// GetMessage fetches one message by its dedupe key.
	GetMessage(ctx context.Context, accountID, messageID string) (*model.Message, error)

	// ListMessages returns messages matching the filter, newest first.
	ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error)

	// MarkRead flips the read flag on one message.
	MarkRead(ctx context.Context, accountID, messageID string, read bool) error

	// CountByCategory returns message counts per category, optionally
	// restricted to one account.
	CountByCategory(ctx context.Context, accountID string) (map[model.Category]int, error)

	// Close releases the underlying database.
	Close() error
}
