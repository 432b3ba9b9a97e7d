package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/supabase-go"

	"footcare-triage/internal/domain"
)

const (
	tablePatients = "patients"
	tableSessions = "sessions"
	tableMessages = "messages"
)

// SupabaseStore keeps records in three Postgres tables reached through the
// Supabase REST API. Column names match the snake_case JSON of the domain types.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore connects to the project at url using the service key.
func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("repository: supabase url is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("repository: supabase key is required")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

// sessionUpdate is the body of a PATCH: only the set patch fields plus the
// new modification time.
type sessionUpdate struct {
	domain.SessionPatch
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *SupabaseStore) CreatePatient(_ context.Context, in domain.PatientInput) (domain.Patient, error) {
	p := domain.Patient{
		ID:        domain.NewID(),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: now(),
	}
	var rows []domain.Patient
	_, err := c.client.From(tablePatients).
		Insert(p, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Patient{}, fmt.Errorf("repository: CreatePatient: %w", err)
	}
	if len(rows) == 0 {
		return p, nil
	}
	return rows[0], nil
}

func (c *SupabaseStore) GetPatient(_ context.Context, id string) (domain.Patient, error) {
	var rows []domain.Patient
	_, err := c.client.From(tablePatients).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Patient{}, fmt.Errorf("repository: GetPatient: %w", err)
	}
	if len(rows) == 0 {
		return domain.Patient{}, ErrNotFound
	}
	return rows[0], nil
}

func (c *SupabaseStore) ListPatients(_ context.Context) ([]domain.Patient, error) {
	rows := make([]domain.Patient, 0)
	_, err := c.client.From(tablePatients).
		Select("*", "", false).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("repository: ListPatients: %w", err)
	}
	return rows, nil
}

func (c *SupabaseStore) CreateSession(_ context.Context, s domain.Session) (domain.Session, error) {
	ts := now()
	s = s.Clone()
	s.ID = domain.NewID()
	s.CreatedAt = ts
	s.UpdatedAt = ts
	if s.Conversation == nil {
		s.Conversation = []domain.ConversationEntry{}
	}
	var rows []domain.Session
	_, err := c.client.From(tableSessions).
		Insert(s, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: CreateSession: %w", err)
	}
	if len(rows) == 0 {
		return s, nil
	}
	return normalizeSession(rows[0]), nil
}

func (c *SupabaseStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	var rows []domain.Session
	_, err := c.client.From(tableSessions).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession: %w", err)
	}
	if len(rows) == 0 {
		return domain.Session{}, ErrNotFound
	}
	return normalizeSession(rows[0]), nil
}

func (c *SupabaseStore) ListSessions(_ context.Context) ([]domain.Session, error) {
	rows := make([]domain.Session, 0)
	_, err := c.client.From(tableSessions).
		Select("*", "", false).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("repository: ListSessions: %w", err)
	}
	return normalizeSessions(rows), nil
}

func (c *SupabaseStore) ListSessionsByPatient(_ context.Context, patientID string) ([]domain.Session, error) {
	rows := make([]domain.Session, 0)
	_, err := c.client.From(tableSessions).
		Select("*", "", false).
		Eq("patient_id", patientID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("repository: ListSessionsByPatient: %w", err)
	}
	return normalizeSessions(rows), nil
}

// UpdateSession issues a filtered PATCH. An empty representation means no row
// matched the id.
func (c *SupabaseStore) UpdateSession(_ context.Context, id string, patch domain.SessionPatch) (domain.Session, error) {
	var rows []domain.Session
	_, err := c.client.From(tableSessions).
		Update(sessionUpdate{SessionPatch: patch, UpdatedAt: now()}, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: UpdateSession: %w", err)
	}
	if len(rows) == 0 {
		return domain.Session{}, ErrNotFound
	}
	return normalizeSession(rows[0]), nil
}

func (c *SupabaseStore) CreateMessage(_ context.Context, m domain.Message) (domain.Message, error) {
	m.ID = domain.NewID()
	m.CreatedAt = now()
	var rows []domain.Message
	_, err := c.client.From(tableMessages).
		Insert(m, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: CreateMessage: %w", err)
	}
	if len(rows) == 0 {
		return m, nil
	}
	return rows[0], nil
}

func (c *SupabaseStore) ListMessagesBySession(_ context.Context, sessionID string) ([]domain.Message, error) {
	rows := make([]domain.Message, 0)
	_, err := c.client.From(tableMessages).
		Select("*", "", false).
		Eq("session_id", sessionID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessagesBySession: %w", err)
	}
	sortMessagesChronological(rows)
	return rows, nil
}

func normalizeSession(s domain.Session) domain.Session {
	if s.Conversation == nil {
		s.Conversation = []domain.ConversationEntry{}
	}
	return s
}

func normalizeSessions(rows []domain.Session) []domain.Session {
	for i := range rows {
		rows[i] = normalizeSession(rows[i])
	}
	sortSessionsNewestFirst(rows)
	return rows
}
