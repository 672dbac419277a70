package calls

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with the same conditional-write semantics
// as the Postgres implementation. Used in tests and local development; it is
// not intended for production use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record // keyed by internal id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ToNumber == "" {
		return Record{}, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ProviderCallID != "" {
		for _, existing := range s.records {
			if existing.ProviderCallID == rec.ProviderCallID {
				return Record{}, ErrDuplicateCallID
			}
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Version = 1
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (Record, error) {
	if providerCallID == "" {
		return Record{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ProviderCallID == providerCallID {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) FindByConversationID(ctx context.Context, conversationID string) (Record, error) {
	if conversationID == "" {
		return Record{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Oldest-first so retried deliveries resolve to the same record when
	// several raw payloads embed the same conversation id.
	ordered := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		ordered = append(ordered, rec)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for _, rec := range ordered {
		if embeddedConversationID(rec.RawResponse) == conversationID {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error) {
	if rec.ID == "" {
		return Record{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if current.Version != expectedVersion {
		return Record{}, ErrVersionConflict
	}
	if rec.ProviderCallID != "" && rec.ProviderCallID != current.ProviderCallID {
		for id, other := range s.records {
			if id != rec.ID && other.ProviderCallID == rec.ProviderCallID {
				return Record{}, ErrDuplicateCallID
			}
		}
	}

	rec.Version = expectedVersion + 1
	s.records[rec.ID] = rec
	return rec, nil
}

// All returns a snapshot of every record, oldest first. Test helper.
func (s *MemoryStore) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func embeddedConversationID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var fields struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	return fields.ConversationID
}
