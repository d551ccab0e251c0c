package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/docvoice/internal/session"
)

// InMemoryStore keeps job rows in process for local/dev use.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) InsertJob(_ context.Context, rec Record) error {
	if rec.Flow != session.FlowStandardTTS && rec.Flow != session.FlowVoiceClone {
		return ErrUnknownFlow
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rec)
	return nil
}

func (s *InMemoryStore) UpdateJob(_ context.Context, flow session.Flow, userID string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].Flow != flow || s.rows[i].UserID != userID || s.rows[i].Status == StatusQueued {
			continue
		}
		if patch.VoiceID != "" {
			s.rows[i].VoiceID = patch.VoiceID
		}
	}
	return nil
}

// Jobs returns a snapshot of all rows in insertion order.
func (s *InMemoryStore) Jobs() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *InMemoryStore) Close() error { return nil }
