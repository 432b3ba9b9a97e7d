package domain

import (
	"errors"
	"fmt"
	"time"
)

// SessionPatch is a shallow partial update. Nil fields are left untouched.
type SessionPatch struct {
	PatientID            *string              `json:"patient_id,omitempty"`
	IssueCategory        *string              `json:"issue_category,omitempty"`
	Symptoms             *string              `json:"symptoms,omitempty"`
	Diagnosis            *string              `json:"diagnosis,omitempty"`
	Conversation         *[]ConversationEntry `json:"conversation,omitempty"`
	AppointmentDate      *time.Time           `json:"appointment_date,omitempty"`
	FollowUpDate         *time.Time           `json:"follow_up_date,omitempty"`
	SatisfactionScore    *int                 `json:"satisfaction_score,omitempty"`
	SatisfactionFeedback *string              `json:"satisfaction_feedback,omitempty"`
	Status               *Status              `json:"status,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p SessionPatch) IsEmpty() bool {
	return p == SessionPatch{}
}

// Validate checks the enumerated and ranged fields.
func (p SessionPatch) Validate() error {
	if p.SatisfactionScore != nil && (*p.SatisfactionScore < 1 || *p.SatisfactionScore > 5) {
		return fmt.Errorf("domain: satisfaction_score %d out of range 1-5", *p.SatisfactionScore)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("domain: unknown status %q", *p.Status)
	}
	if p.Conversation != nil {
		for i, e := range *p.Conversation {
			if !e.Role.Valid() {
				return fmt.Errorf("domain: conversation[%d]: unknown role %q", i, e.Role)
			}
		}
	}
	return nil
}

// Apply merges the patch into s and stamps UpdatedAt.
func (p SessionPatch) Apply(s *Session, now time.Time) error {
	if s == nil {
		return errors.New("domain: apply patch to nil session")
	}
	if p.PatientID != nil {
		s.PatientID = *p.PatientID
	}
	if p.IssueCategory != nil {
		s.IssueCategory = *p.IssueCategory
	}
	if p.Symptoms != nil {
		s.Symptoms = *p.Symptoms
	}
	if p.Diagnosis != nil {
		s.Diagnosis = *p.Diagnosis
	}
	if p.Conversation != nil {
		s.Conversation = make([]ConversationEntry, len(*p.Conversation))
		copy(s.Conversation, *p.Conversation)
	}
	if p.AppointmentDate != nil {
		t := *p.AppointmentDate
		s.AppointmentDate = &t
	}
	if p.FollowUpDate != nil {
		t := *p.FollowUpDate
		s.FollowUpDate = &t
	}
	if p.SatisfactionScore != nil {
		n := *p.SatisfactionScore
		s.SatisfactionScore = &n
	}
	if p.SatisfactionFeedback != nil {
		f := *p.SatisfactionFeedback
		s.SatisfactionFeedback = &f
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	s.UpdatedAt = now
	return nil
}
