package calls

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("calls: record not found")
	ErrVersionConflict = errors.New("calls: version conflict")
	ErrDuplicateCallID = errors.New("calls: provider call id already exists")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Store is the persistence contract for call records.
//
// The only mutation discipline required of an implementation is atomic
// conditional-update-on-version: Save must accept a write iff the stored
// version equals expectedVersion, and must bump the version by exactly 1 on
// acceptance. No global lock is assumed; concurrent webhook deliveries for
// the same call are serialized through this compare-and-swap alone.
type Store interface {
	// Create inserts a new record at version 1.
	// Returns ErrDuplicateCallID when rec.ProviderCallID is already taken.
	Create(ctx context.Context, rec Record) (Record, error)

	// GetByID fetches by internal record id.
	GetByID(ctx context.Context, id string) (Record, error)

	// GetByProviderCallID fetches by the provider's call identifier.
	// Exact match only.
	GetByProviderCallID(ctx context.Context, providerCallID string) (Record, error)

	// FindByConversationID scans records whose last raw payload embeds a
	// matching conversation_id and returns the oldest match. This is a
	// fallback strategy for events the provider keys only by its internal
	// conversation id; implementations may back it with a secondary index
	// without changing the contract.
	FindByConversationID(ctx context.Context, conversationID string) (Record, error)

	// Save persists rec iff the stored version equals expectedVersion,
	// returning the record with its bumped version. Returns
	// ErrVersionConflict on a stale write and ErrNotFound when the record
	// does not exist.
	Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error)
}
