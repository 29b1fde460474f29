package store

import (
	"context"
	"sync"
	"time"

	"github.com/huddleworks/livesession/internal/session/model"
)

// MemoryStore is the in-process ApprovalStore used by tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]model.ApprovalRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]model.ApprovalRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec model.ApprovalRecord) (model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.recs[rec.SessionID]; ok {
		if existing.Status != model.ApprovalPending {
			return existing, nil
		}
		// Still pending: a re-request after a continued session rebills.
		existing.ApprovalID = rec.ApprovalID
		existing.TotalAmount = rec.TotalAmount
		existing.UpdatedAtMs = rec.UpdatedAtMs
		s.recs[rec.SessionID] = existing
		return existing, nil
	}
	s.recs[rec.SessionID] = rec
	return rec, nil
}

func (s *MemoryStore) AdvanceStatus(ctx context.Context, sessionID string, to model.ApprovalStatus) (model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[sessionID]
	if !ok {
		return model.ApprovalRecord{}, ErrNotFound
	}
	if to.Rank() > rec.Status.Rank() {
		rec.Status = to
		rec.UpdatedAtMs = time.Now().UnixMilli()
		s.recs[sessionID] = rec
	}
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (model.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[sessionID]
	if !ok {
		return model.ApprovalRecord{}, ErrNotFound
	}
	return rec, nil
}

var _ ApprovalStore = (*MemoryStore)(nil)
