package repository

import (
	"context"
	"fmt"
	"sync"

	"footcare-triage/internal/domain"
)

// MemoryStore keeps every record in process memory. Nothing survives a
// restart. Each call is atomic; there are no multi-call transactions.
type MemoryStore struct {
	mu       sync.RWMutex
	patients map[string]domain.Patient
	sessions map[string]domain.Session
	messages map[string]domain.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[string]domain.Patient),
		sessions: make(map[string]domain.Session),
		messages: make(map[string]domain.Message),
	}
}

func (m *MemoryStore) CreatePatient(_ context.Context, in domain.PatientInput) (domain.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.freshID(func(id string) bool { _, ok := m.patients[id]; return ok })
	if err != nil {
		return domain.Patient{}, err
	}
	p := domain.Patient{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: now(),
	}
	m.patients[p.ID] = p
	return p, nil
}

func (m *MemoryStore) GetPatient(_ context.Context, id string) (domain.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return domain.Patient{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) ListPatients(_ context.Context) ([]domain.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s domain.Session) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.freshID(func(id string) bool { _, ok := m.sessions[id]; return ok })
	if err != nil {
		return domain.Session{}, err
	}
	ts := now()
	stored := s.Clone()
	stored.ID = id
	stored.CreatedAt = ts
	stored.UpdatedAt = ts
	if stored.Conversation == nil {
		stored.Conversation = []domain.ConversationEntry{}
	}
	m.sessions[id] = stored
	return stored.Clone(), nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]domain.Session, error) {
	return m.filterSessions(func(domain.Session) bool { return true }), nil
}

func (m *MemoryStore) ListSessionsByPatient(_ context.Context, patientID string) ([]domain.Session, error) {
	return m.filterSessions(func(s domain.Session) bool { return s.PatientID == patientID }), nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, id string, patch domain.SessionPatch) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	updated := s.Clone()
	if err := patch.Apply(&updated, now()); err != nil {
		return domain.Session{}, fmt.Errorf("repository: UpdateSession: %w", err)
	}
	m.sessions[id] = updated
	return updated.Clone(), nil
}

func (m *MemoryStore) CreateMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.freshID(func(id string) bool { _, ok := m.messages[id]; return ok })
	if err != nil {
		return domain.Message{}, err
	}
	msg.ID = id
	msg.CreatedAt = now()
	m.messages[id] = msg
	return msg, nil
}

func (m *MemoryStore) ListMessagesBySession(_ context.Context, sessionID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	sortMessagesChronological(out)
	return out, nil
}

func (m *MemoryStore) filterSessions(keep func(domain.Session) bool) []domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sortSessionsNewestFirst(out)
	return out
}

// freshID draws identifiers until one is unused. Callers hold m.mu.
func (m *MemoryStore) freshID(taken func(string) bool) (string, error) {
	for i := 0; i < 8; i++ {
		id := domain.NewID()
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("repository: could not allocate a unique id")
}
