package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a triage session.
type Status string

const (
	StatusActive    Status = "active"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusScheduled, StatusCompleted:
		return true
	}
	return false
}

// DefaultIssueCategory is assigned to sessions created without a category.
const DefaultIssueCategory = "general"

// Patient holds the contact details collected at the start of a conversation.
type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// PatientInput is the caller-supplied part of a Patient.
type PatientInput struct {
	Name  string
	Email string
	Phone string
}

// ConversationEntry is a single turn stored on the session itself.
type ConversationEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one triage conversation. PatientID is a weak reference and may
// point at a patient that does not exist.
type Session struct {
	ID                   string              `json:"id"`
	PatientID            string              `json:"patient_id"`
	IssueCategory        string              `json:"issue_category"`
	Symptoms             string              `json:"symptoms"`
	Diagnosis            string              `json:"diagnosis"`
	Conversation         []ConversationEntry `json:"conversation"`
	AppointmentDate      *time.Time          `json:"appointment_date,omitempty"`
	FollowUpDate         *time.Time          `json:"follow_up_date,omitempty"`
	SatisfactionScore    *int                `json:"satisfaction_score,omitempty"`
	SatisfactionFeedback *string             `json:"satisfaction_feedback,omitempty"`
	Status               Status              `json:"status"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Clone returns a deep copy so stored sessions never share memory with callers.
func (s Session) Clone() Session {
	out := s
	if s.Conversation != nil {
		out.Conversation = make([]ConversationEntry, len(s.Conversation))
		copy(out.Conversation, s.Conversation)
	}
	if s.AppointmentDate != nil {
		t := *s.AppointmentDate
		out.AppointmentDate = &t
	}
	if s.FollowUpDate != nil {
		t := *s.FollowUpDate
		out.FollowUpDate = &t
	}
	if s.SatisfactionScore != nil {
		n := *s.SatisfactionScore
		out.SatisfactionScore = &n
	}
	if s.SatisfactionFeedback != nil {
		f := *s.SatisfactionFeedback
		out.SatisfactionFeedback = &f
	}
	return out
}

// Message is an append-only chat row linked to a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewID returns a time-ordered identifier with a random suffix.
var NewID = func() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
