package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"footcare-triage/internal/annotate"
	"footcare-triage/internal/dialogue"
	"footcare-triage/internal/domain"
	"footcare-triage/internal/repository"
)

// intakeUserMessages is the number of user messages that carry the contact
// details: name, email, phone.
const intakeUserMessages = 3

type LLMClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// ChatService produces assistant replies and keeps the session record in
// step with the conversation. Without an LLM client it runs the scripted
// dialogue.
type ChatService struct {
	store repository.Store
	llm   LLMClient
	now   func() time.Time
}

type ChatInput struct {
	Messages  []domain.ChatMessage
	SessionID string
	PatientID string
}

type ChatOutput struct {
	Message    string
	IsDemoMode bool
	SessionID  string
	PatientID  string
}

// NewChatService builds the service. A nil llm selects scripted mode.
func NewChatService(store repository.Store, llm LLMClient) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	return &ChatService{
		store: store,
		llm:   llm,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// DemoMode reports whether replies come from the scripted dialogue.
func (s *ChatService) DemoMode() bool {
	return s.llm == nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	for _, m := range in.Messages {
		if !m.Role.Valid() {
			return ChatOutput{}, newError(ErrorInvalidInput, "invalid_message_role", nil)
		}
	}
	out := ChatOutput{
		IsDemoMode: s.DemoMode(),
		SessionID:  strings.TrimSpace(in.SessionID),
		PatientID:  strings.TrimSpace(in.PatientID),
	}

	// Nothing is written until a reply exists.
	reply, err := s.reply(ctx, in.Messages)
	if err != nil {
		return ChatOutput{}, err
	}
	out.Message = reply

	if out.SessionID != "" {
		if err := s.annotateSession(ctx, out.SessionID, in.Messages); err != nil {
			return ChatOutput{}, err
		}
	} else if out.PatientID == "" {
		if err := s.intake(ctx, in.Messages, &out); err != nil {
			return ChatOutput{}, err
		}
	}

	if out.SessionID != "" {
		if err := s.recordReply(ctx, out.SessionID, reply); err != nil {
			return ChatOutput{}, err
		}
	}
	return out, nil
}

func (s *ChatService) reply(ctx context.Context, history []domain.ChatMessage) (string, error) {
	if s.llm == nil {
		return dialogue.Respond(history), nil
	}
	reply, err := s.llm.Chat(ctx, buildPromptMessages(history))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok {
			slog.WarnContext(ctx, "chat completion failed", "upstream_status", status, "err", err)
		}
		return "", newError(ErrorUpstream, "openai_error", err)
	}
	if reply == "" {
		return ReplacementReply, nil
	}
	return reply, nil
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// intake creates the patient and an initial session on the turn that
// completes the contact details.
func (s *ChatService) intake(ctx context.Context, history []domain.ChatMessage, out *ChatOutput) error {
	if domain.CountRole(history, domain.RoleUser) != intakeUserMessages {
		return nil
	}
	contact, ok := annotate.ExtractContact(history)
	if !ok || contact.Name == "" || contact.Email == "" || contact.Phone == "" {
		return nil
	}
	patient, err := s.store.CreatePatient(ctx, contact)
	if err != nil {
		return newError(ErrorInternal, "store_create_patient_error", err)
	}
	session, err := createSession(ctx, s.store, SessionInput{PatientID: patient.ID})
	if err != nil {
		return newError(ErrorInternal, "store_create_session_error", err)
	}
	out.PatientID = patient.ID
	out.SessionID = session.ID
	slog.InfoContext(ctx, "intake complete", "patient_id", patient.ID, "session_id", session.ID)
	return nil
}

// annotateSession applies what the latest user message implies to the
// session. An unknown session is skipped.
func (s *ChatService) annotateSession(ctx context.Context, sessionID string, history []domain.ChatMessage) error {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Role != domain.RoleUser {
		return nil
	}
	patch, ok := annotate.Annotate(history[:len(history)-1], last.Content, s.now())
	if !ok {
		return nil
	}
	_, err := s.store.UpdateSession(ctx, sessionID, patch)
	if errors.Is(err, repository.ErrNotFound) {
		slog.WarnContext(ctx, "annotation skipped for unknown session", "session_id", sessionID)
		return nil
	}
	if err != nil {
		return newError(ErrorInternal, "store_update_session_error", err)
	}
	return nil
}

// recordReply stores the reply as a message and appends it to the session's
// conversation when the session exists.
func (s *ChatService) recordReply(ctx context.Context, sessionID, reply string) error {
	if _, err := s.store.CreateMessage(ctx, domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   reply,
	}); err != nil {
		return newError(ErrorInternal, "store_create_message_error", err)
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return newError(ErrorInternal, "store_get_session_error", err)
	}
	conversation := append(session.Conversation, domain.ConversationEntry{
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: s.now(),
	})
	if _, err := s.store.UpdateSession(ctx, sessionID, domain.SessionPatch{Conversation: &conversation}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return newError(ErrorInternal, "store_update_session_error", err)
	}
	return nil
}
