package usecase

import (
	"context"
	"errors"
	"strings"

	"footcare-triage/internal/analytics"
	"footcare-triage/internal/domain"
	"footcare-triage/internal/repository"
)

// SessionInput is the caller-supplied part of a new session.
type SessionInput struct {
	PatientID     string
	IssueCategory string
	Symptoms      string
}

// RecordService exposes the patient, session and message records plus the
// analytics summary.
type RecordService struct {
	store repository.Store
}

func NewRecordService(store repository.Store) (*RecordService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	return &RecordService{store: store}, nil
}

func (s *RecordService) CreatePatient(ctx context.Context, in domain.PatientInput) (domain.Patient, error) {
	in = domain.PatientInput{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
		Phone: strings.TrimSpace(in.Phone),
	}
	if in.Name == "" || in.Email == "" || in.Phone == "" {
		return domain.Patient{}, newError(ErrorInvalidInput, "missing_contact_fields", nil)
	}
	p, err := s.store.CreatePatient(ctx, in)
	if err != nil {
		return domain.Patient{}, newError(ErrorInternal, "store_create_patient_error", err)
	}
	return p, nil
}

func (s *RecordService) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	p, err := s.store.GetPatient(ctx, strings.TrimSpace(id))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Patient{}, newError(ErrorNotFound, "patient_not_found", err)
	}
	if err != nil {
		return domain.Patient{}, newError(ErrorInternal, "store_get_patient_error", err)
	}
	return p, nil
}

func (s *RecordService) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	patients, err := s.store.ListPatients(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "store_list_patients_error", err)
	}
	return patients, nil
}

// CreateSession opens an active session. The patient id is not checked against
// the patient records.
func (s *RecordService) CreateSession(ctx context.Context, in SessionInput) (domain.Session, error) {
	session, err := createSession(ctx, s.store, in)
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "store_create_session_error", err)
	}
	return session, nil
}

func createSession(ctx context.Context, store repository.Store, in SessionInput) (domain.Session, error) {
	category := strings.TrimSpace(in.IssueCategory)
	if category == "" {
		category = domain.DefaultIssueCategory
	}
	return store.CreateSession(ctx, domain.Session{
		PatientID:     strings.TrimSpace(in.PatientID),
		IssueCategory: category,
		Symptoms:      in.Symptoms,
		Conversation:  []domain.ConversationEntry{},
		Status:        domain.StatusActive,
	})
}

func (s *RecordService) GetSession(ctx context.Context, id string) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, strings.TrimSpace(id))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Session{}, newError(ErrorNotFound, "session_not_found", err)
	}
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "store_get_session_error", err)
	}
	return session, nil
}

// ListSessions returns the sessions of one patient, or all sessions when
// patientID is blank, newest first.
func (s *RecordService) ListSessions(ctx context.Context, patientID string) ([]domain.Session, error) {
	var (
		sessions []domain.Session
		err      error
	)
	if patientID = strings.TrimSpace(patientID); patientID != "" {
		sessions, err = s.store.ListSessionsByPatient(ctx, patientID)
	} else {
		sessions, err = s.store.ListSessions(ctx)
	}
	if err != nil {
		return nil, newError(ErrorInternal, "store_list_sessions_error", err)
	}
	return sessions, nil
}

func (s *RecordService) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	if err := patch.Validate(); err != nil {
		return domain.Session{}, newError(ErrorInvalidInput, "invalid_session_updates", err)
	}
	session, err := s.store.UpdateSession(ctx, id, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Session{}, newError(ErrorNotFound, "session_not_found", err)
	}
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "store_update_session_error", err)
	}
	return session, nil
}

// ListMessages returns the messages of a session in the order they were
// recorded.
func (s *RecordService) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	msgs, err := s.store.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorInternal, "store_list_messages_error", err)
	}
	return msgs, nil
}

func (s *RecordService) Analytics(ctx context.Context) (analytics.Analytics, error) {
	patients, err := s.store.ListPatients(ctx)
	if err != nil {
		return analytics.Analytics{}, newError(ErrorInternal, "store_list_patients_error", err)
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return analytics.Analytics{}, newError(ErrorInternal, "store_list_sessions_error", err)
	}
	return analytics.Compute(patients, sessions), nil
}
