package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"footcare-triage/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("repository: not found")

// Store is the record store consumed by the use cases. Implementations assign
// identifiers and timestamps and return copies of stored records.
type Store interface {
	CreatePatient(ctx context.Context, in domain.PatientInput) (domain.Patient, error)
	GetPatient(ctx context.Context, id string) (domain.Patient, error)
	ListPatients(ctx context.Context) ([]domain.Patient, error)

	CreateSession(ctx context.Context, s domain.Session) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	ListSessionsByPatient(ctx context.Context, patientID string) ([]domain.Session, error)
	UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (domain.Session, error)

	CreateMessage(ctx context.Context, m domain.Message) (domain.Message, error)
	ListMessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// sortSessionsNewestFirst orders sessions by descending creation time.
func sortSessionsNewestFirst(sessions []domain.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// sortMessagesChronological orders messages by ascending creation time.
func sortMessagesChronological(msgs []domain.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// now is swapped in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DynamoStore)(nil)
	_ Store = (*SupabaseStore)(nil)
)
