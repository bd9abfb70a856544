package records

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Newrona-pi/textgame-chatapp/internal/affection"
	"github.com/Newrona-pi/textgame-chatapp/internal/policy"
)

type recordKey struct {
	characterID string
	tagID       string
}

// InMemoryStore keeps records in process for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	redactor policy.Redactor
	records  map[recordKey]*History
}

func NewInMemoryStore(redactor policy.Redactor) *InMemoryStore {
	return &InMemoryStore{redactor: redactor, records: make(map[recordKey]*History)}
}

func (s *InMemoryStore) Append(_ context.Context, req AppendRequest) (History, error) {
	req, entries, err := prepare(req, s.redactor)
	if err != nil {
		return History{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{characterID: req.CharacterID, tagID: req.TagID}
	h, ok := s.records[key]
	if !ok {
		h = &History{Record: Record{
			ID:          uuid.NewString(),
			CharacterID: req.CharacterID,
			TagID:       req.TagID,
			Affection:   affection.Default,
			CreatedAt:   req.At,
		}}
		s.records[key] = h
	}
	apply(&h.Record, req)
	for _, e := range entries {
		e.ID = uuid.NewString()
		h.Entries = append(h.Entries, e)
	}
	return copyHistory(h), nil
}

func (s *InMemoryStore) History(_ context.Context, characterID, tagID string) (History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.records[recordKey{characterID: characterID, tagID: tagID}]
	if !ok {
		return History{}, ErrNotFound
	}
	return copyHistory(h), nil
}

func (s *InMemoryStore) Close() error { return nil }

func copyHistory(h *History) History {
	out := History{Record: h.Record, Entries: make([]LogEntry, len(h.Entries))}
	copy(out.Entries, h.Entries)
	return out
}
