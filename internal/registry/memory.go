package registry

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps correlation records in process memory, partitioned by
// variant the same way the Postgres store partitions tables. Used by
// Disabled-mode deployments, demos and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	byAuditID    map[string]*Record
	anonByEmail  map[string]string
	byExternalID map[string]string
	bySubjectID  map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byAuditID:    make(map[string]*Record),
		anonByEmail:  make(map[string]string),
		byExternalID: make(map[string]string),
		bySubjectID:  make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.byAuditID[rec.AuditID] = &clone
	switch rec.Kind {
	case KindAnonymous:
		s.anonByEmail[strings.ToLower(rec.Email)] = rec.AuditID
	case KindCredentialed:
		s.byExternalID[rec.ExternalUserID] = rec.AuditID
	case KindFederated:
		s.bySubjectID[rec.SubjectID] = rec.AuditID
	}
	return nil
}

func (s *MemoryStore) FindByAuditID(ctx context.Context, auditID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byAuditID[auditID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) FindAnonymousByEmail(ctx context.Context, email string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.anonByEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byAuditID[id]
	return &clone, nil
}

func (s *MemoryStore) FindByExternalUserID(ctx context.Context, externalUserID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternalID[externalUserID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byAuditID[id]
	return &clone, nil
}

func (s *MemoryStore) FindBySubjectID(ctx context.Context, subjectID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySubjectID[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byAuditID[id]
	return &clone, nil
}

func (s *MemoryStore) TouchLogin(ctx context.Context, auditID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byAuditID[auditID]
	if !ok {
		return ErrNotFound
	}
	rec.LastLoginAt = at
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, auditID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byAuditID[auditID]
	if !ok {
		return ErrNotFound
	}
	delete(s.byAuditID, auditID)
	switch rec.Kind {
	case KindAnonymous:
		delete(s.anonByEmail, strings.ToLower(rec.Email))
	case KindCredentialed:
		delete(s.byExternalID, rec.ExternalUserID)
	case KindFederated:
		delete(s.bySubjectID, rec.SubjectID)
	}
	return nil
}
