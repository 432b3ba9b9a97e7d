package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"footcare-triage/internal/domain"
	"footcare-triage/internal/repository"
)

type mockLLM struct {
	answer   string
	err      error
	captured []domain.ChatMessage
	calls    int
}

func (m *mockLLM) Chat(_ context.Context, msgs []domain.ChatMessage) (string, error) {
	m.calls++
	m.captured = msgs
	return m.answer, m.err
}

var chatNow = time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

func newChatService(t *testing.T, store repository.Store, llm LLMClient) *ChatService {
	t.Helper()
	svc, err := NewChatService(store, llm)
	require.NoError(t, err)
	svc.now = func() time.Time { return chatNow }
	return svc
}

func user(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleUser, Content: content}
}

func assistant(content string) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleAssistant, Content: content}
}

func TestNewChatService_NilStore(t *testing.T) {
	_, err := NewChatService(nil, nil)
	require.Error(t, err)
}

func TestChat_DemoModeGreeting(t *testing.T) {
	svc := newChatService(t, repository.NewMemoryStore(), nil)

	out, err := svc.Chat(context.Background(), ChatInput{Messages: []domain.ChatMessage{user("hi")}})
	require.NoError(t, err)
	require.True(t, out.IsDemoMode)
	require.True(t, strings.HasPrefix(out.Message, "Hello! I'm your AI Foot Health Assistant"))
	require.Empty(t, out.SessionID)
}

func TestChat_InvalidRole(t *testing.T) {
	svc := newChatService(t, repository.NewMemoryStore(), nil)
	for _, m := range []domain.ChatMessage{{Role: "bot", Content: "x"}, {Content: "no role at all"}} {
		_, err := svc.Chat(context.Background(), ChatInput{Messages: []domain.ChatMessage{user("hi"), m}})
		expectError(t, err, ErrorInvalidInput, "invalid_message_role")
	}
}

func TestChat_LiveModePrefixesSystemPrompt(t *testing.T) {
	llm := &mockLLM{answer: "How can I help your feet today?"}
	svc := newChatService(t, repository.NewMemoryStore(), llm)

	history := []domain.ChatMessage{assistant("Hello"), user("my heel hurts")}
	out, err := svc.Chat(context.Background(), ChatInput{Messages: history})
	require.NoError(t, err)
	require.False(t, out.IsDemoMode)
	require.Equal(t, "How can I help your feet today?", out.Message)

	require.Len(t, llm.captured, 3)
	require.Equal(t, domain.RoleSystem, llm.captured[0].Role)
	require.True(t, strings.HasPrefix(llm.captured[0].Content, "You are an AI Foot Health Practitioner for FootCare Clinic."))
	require.Contains(t, llm.captured[0].Content, "8. Collect satisfaction feedback at the end")
	require.Equal(t, history, llm.captured[1:])
}

func TestChat_LiveModeEmptyReplyIsReplaced(t *testing.T) {
	svc := newChatService(t, repository.NewMemoryStore(), &mockLLM{answer: ""})
	out, err := svc.Chat(context.Background(), ChatInput{Messages: []domain.ChatMessage{user("hi")}})
	require.NoError(t, err)
	require.Equal(t, ReplacementReply, out.Message)
}

func TestChat_LiveModeWhitespaceReplyIsKept(t *testing.T) {
	svc := newChatService(t, repository.NewMemoryStore(), &mockLLM{answer: "  "})
	out, err := svc.Chat(context.Background(), ChatInput{Messages: []domain.ChatMessage{user("hi")}})
	require.NoError(t, err)
	require.Equal(t, "  ", out.Message)
}

func TestChat_LiveModeUpstreamError(t *testing.T) {
	ctx := context.Background()

	t.Run("annotated turn", func(t *testing.T) {
		store := repository.NewMemoryStore()
		svc := newChatService(t, store, &mockLLM{err: errors.New("status 429")})
		s, err := store.CreateSession(ctx, domain.Session{Status: domain.StatusActive})
		require.NoError(t, err)

		_, err = svc.Chat(ctx, ChatInput{Messages: []domain.ChatMessage{user("tomorrow please")}, SessionID: s.ID})
		expectError(t, err, ErrorUpstream, "openai_error")

		got, err := store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		require.Equal(t, s, got, "a failed reply must not annotate the session")

		msgs, err := store.ListMessagesBySession(ctx, s.ID)
		require.NoError(t, err)
		require.Empty(t, msgs, "no reply may be recorded when generation fails")
	})

	t.Run("intake turn", func(t *testing.T) {
		store := repository.NewMemoryStore()
		svc := newChatService(t, store, &mockLLM{err: errors.New("status 500")})
		history := []domain.ChatMessage{
			assistant("name?"), user("Jane Doe"),
			assistant("email?"), user("jane@example.com"),
			assistant("phone?"), user("555-0100"),
		}

		_, err := svc.Chat(ctx, ChatInput{Messages: history})
		expectError(t, err, ErrorUpstream, "openai_error")

		patients, err := store.ListPatients(ctx)
		require.NoError(t, err)
		require.Empty(t, patients)
		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		require.Empty(t, sessions)
	})
}

type statusError struct{ status int }

func (e statusError) Error() string       { return "upstream failed" }
func (e statusError) HTTPStatusCode() int { return e.status }

func TestUpstreamStatusCode(t *testing.T) {
	status, ok := upstreamStatusCode(fmt.Errorf("wrapped: %w", statusError{status: 429}))
	require.True(t, ok)
	require.Equal(t, 429, status)

	_, ok = upstreamStatusCode(errors.New("dial tcp: refused"))
	require.False(t, ok)
}

func TestChat_IntakeCreatesPatientAndSession(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newChatService(t, store, nil)
	ctx := context.Background()

	history := []domain.ChatMessage{
		assistant("name?"), user("Jane Doe"),
		assistant("email?"), user("jane@example.com"),
		assistant("phone?"), user("555-0100"),
	}
	out, err := svc.Chat(ctx, ChatInput{Messages: history})
	require.NoError(t, err)
	require.NotEmpty(t, out.PatientID)
	require.NotEmpty(t, out.SessionID)

	p, err := store.GetPatient(ctx, out.PatientID)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", p.Name)
	require.Equal(t, "555-0100", p.Phone)

	s, err := store.GetSession(ctx, out.SessionID)
	require.NoError(t, err)
	require.Equal(t, out.PatientID, s.PatientID)
	require.Equal(t, domain.DefaultIssueCategory, s.IssueCategory)
	require.Nil(t, s.SatisfactionScore, "the phone number must not be read as a rating")
	require.Len(t, s.Conversation, 1)
	require.Equal(t, out.Message, s.Conversation[0].Content)
}

func TestChat_NoIntakeWhenPatientKnown(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newChatService(t, store, nil)
	ctx := context.Background()

	history := []domain.ChatMessage{user("Jane"), assistant("?"), user("jane@example.com"), assistant("?"), user("555")}
	out, err := svc.Chat(ctx, ChatInput{Messages: history, PatientID: "p-existing"})
	require.NoError(t, err)
	require.Equal(t, "p-existing", out.PatientID)
	require.Empty(t, out.SessionID)

	patients, err := store.ListPatients(ctx)
	require.NoError(t, err)
	require.Empty(t, patients)
}

func TestChat_AnnotatesAndRecordsReply(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newChatService(t, store, nil)
	ctx := context.Background()
	s, err := store.CreateSession(ctx, domain.Session{PatientID: "p1", IssueCategory: "general", Status: domain.StatusActive})
	require.NoError(t, err)

	history := []domain.ChatMessage{
		assistant("greeting"), user("Jane"),
		assistant("email?"), user("jane@example.com"),
		assistant("phone?"), user("555-0100"),
		assistant("menu"), user("general question"),
		assistant("details?"), user("I have heel pain"),
	}
	out, err := svc.Chat(ctx, ChatInput{Messages: history, SessionID: s.ID, PatientID: "p1"})
	require.NoError(t, err)
	require.Equal(t, s.ID, out.SessionID)

	got, err := store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "Heel Pain / Plantar Fasciitis", got.IssueCategory)
	require.Equal(t, "I have heel pain", got.Symptoms)
	require.Len(t, got.Conversation, 1)
	require.Equal(t, domain.ConversationEntry{Role: domain.RoleAssistant, Content: out.Message, Timestamp: chatNow}, got.Conversation[0])

	msgs, err := store.ListMessagesBySession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, out.Message, msgs[0].Content)
	require.Equal(t, domain.RoleAssistant, msgs[0].Role)
}

func TestChat_UnknownSessionStillRecordsMessage(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newChatService(t, store, nil)
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatInput{Messages: []domain.ChatMessage{user("Friday works")}, SessionID: "ghost"})
	require.NoError(t, err)

	msgs, err := store.ListMessagesBySession(ctx, "ghost")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestChat_StoreErrors(t *testing.T) {
	ctx := context.Background()

	store := newFailingStore(map[string]error{"CreateMessage": errors.New("write failed")})
	svc := newChatService(t, store, nil)
	_, err := svc.Chat(ctx, ChatInput{Messages: []domain.ChatMessage{user("hi")}, SessionID: "s1"})
	expectError(t, err, ErrorInternal, "store_create_message_error")

	store = newFailingStore(map[string]error{"UpdateSession": errors.New("write failed")})
	s, err := store.CreateSession(ctx, domain.Session{Status: domain.StatusActive})
	require.NoError(t, err)
	svc = newChatService(t, store, nil)
	_, err = svc.Chat(ctx, ChatInput{Messages: []domain.ChatMessage{user("tomorrow please")}, SessionID: s.ID})
	expectError(t, err, ErrorInternal, "store_update_session_error")

	store = newFailingStore(map[string]error{"CreatePatient": errors.New("write failed")})
	svc = newChatService(t, store, nil)
	_, err = svc.Chat(ctx, ChatInput{Messages: []domain.ChatMessage{user("Jane"), assistant("?"), user("e"), assistant("?"), user("p")}})
	expectError(t, err, ErrorInternal, "store_create_patient_error")
}
