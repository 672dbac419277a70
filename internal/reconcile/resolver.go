package reconcile

import (
	"context"
	"errors"

	"callmind/internal/calls"
)

// ErrNoIdentifiers marks an event that carries neither a call id nor a
// conversation id. Such events are acknowledged and dropped, never retried.
var ErrNoIdentifiers = errors.New("reconcile: event carries no identifiers")

// Resolver locates the call record an inbound event addresses.
//
// The provider assigns call_id synchronously at call-creation time but keys
// some lifecycle events only by its internal conversation_id, discovered
// later from raw payloads. The resolver bridges both namespaces: primary
// lookup by call_id, fallback scan by embedded conversation_id.
type Resolver struct {
	store calls.Store
}

func NewResolver(store calls.Store) Resolver {
	return Resolver{store: store}
}

// Resolve returns the addressed record. When callID is present it is
// authoritative: a miss on it does not fall through to the conversation id.
func (r Resolver) Resolve(ctx context.Context, callID, conversationID string) (calls.Record, error) {
	if callID != "" {
		return r.store.GetByProviderCallID(ctx, callID)
	}
	if conversationID != "" {
		return r.store.FindByConversationID(ctx, conversationID)
	}
	return calls.Record{}, ErrNoIdentifiers
}
