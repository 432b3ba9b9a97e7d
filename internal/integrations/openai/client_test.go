package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"footcare-triage/internal/domain"
)

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NoCredentialSource(t *testing.T) {
	_, err := NewClient()
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNewClient_EmptyKeyParameter(t *testing.T) {
	_, err := NewClient(WithKeyParameter(&fakeGetter{}, " "))
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(WithAPIKey("sk-test"), WithModel(" "), WithMaxTokens(0))
	require.NoError(t, err)
	require.Equal(t, DefaultModel, c.model)
	require.Equal(t, float32(DefaultTemperature), c.temperature)
	require.Equal(t, DefaultMaxTokens, c.maxTokens)
}

// ---------------------------------------------------------------------------
// resolveCompleter: SSM caching behaviour
// ---------------------------------------------------------------------------

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func() // optional; called on each GetParameter invocation
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func TestResolveCompleter_KeyFetchedOnce(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"sk-from-ssm"}`}
	g.onCall = func() { calls++ }
	c, err := NewClient(WithKeyParameter(g, "/footcare-triage/open-ai-token"))
	require.NoError(t, err)

	_, err = c.resolveCompleter(context.Background())
	require.NoError(t, err)
	_, _ = c.resolveCompleter(context.Background())
	_, _ = c.resolveCompleter(context.Background())
	require.Equal(t, 1, calls, "SSM must only be called once per process lifetime")
}

func TestResolveCompleter_StaticKeySkipsSSM(t *testing.T) {
	calls := 0
	g := &fakeGetter{onCall: func() { calls++ }}
	c, err := NewClient(WithAPIKey("sk-static"), WithKeyParameter(g, "/p"))
	require.NoError(t, err)

	_, err = c.resolveCompleter(context.Background())
	require.NoError(t, err)
	require.Zero(t, calls)
}

func TestResolveCompleter_ErrorIsSticky(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	c, err := NewClient(WithKeyParameter(g, "/p"))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), nil)
	require.ErrorContains(t, err, "ssm unavailable")
	_, err = c.Chat(context.Background(), nil)
	require.ErrorContains(t, err, "ssm unavailable")
}

// ---------------------------------------------------------------------------
// fetchAPIKeyFromParamStore
// ---------------------------------------------------------------------------

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		val     string
		want    string
		wantErr string
	}{
		{name: "json token", val: `{"token":"sk-from-json"}`, want: "sk-from-json"},
		{name: "bare key", val: " sk-bare\n", want: "sk-bare"},
		{name: "missing token field", val: `{"other":"value"}`, wantErr: "API token is empty"},
		{name: "malformed json", val: `{"broken`, wantErr: "unmarshal"},
		{name: "blank", val: "  ", wantErr: "API token is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: tc.val}, "/p")
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

func TestFetchAPIKey_GetterError(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	_, err := fetchAPIKeyFromParamStore(context.Background(), g, "/p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}

func TestFetchAPIKey_NilGetter(t *testing.T) {
	_, err := fetchAPIKeyFromParamStore(context.Background(), nil, "/p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestFetchAPIKey_EmptyName(t *testing.T) {
	_, err := fetchAPIKeyFromParamStore(context.Background(), &fakeGetter{val: "sk"}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

// ---------------------------------------------------------------------------
// Client.Chat
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithAPIKey("sk-test"),
		WithBaseURL(srv.URL + "/v1/"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}
	c, err := NewClient(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{
		"id": "chatcmpl-123",
		"object": "chat.completion",
		"created": 1670000000,
		"choices": [{"index": 0, "message": {"role": "assistant", "content": ` + mustJSON(content) + `}}]
	}`))
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestClient_Chat_HappyPath(t *testing.T) {
	var got goopenai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, "Hello from mock")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithModel("gpt-mock"), WithTemperature(0.5), WithMaxTokens(64))
	resp, err := c.Chat(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", resp)

	require.Equal(t, "gpt-mock", got.Model)
	require.Equal(t, float32(0.5), got.Temperature)
	require.Equal(t, 64, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	require.Equal(t, goopenai.ChatMessageRoleSystem, got.Messages[0].Role)
	require.Equal(t, "hi", got.Messages[1].Content)
}

func TestClient_Chat_KeyFromParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-from-ssm", r.Header.Get("Authorization"))
		writeCompletion(w, "ok")
	}))
	defer srv.Close()

	c, err := NewClient(
		WithKeyParameter(&fakeGetter{val: `{"token":"sk-from-ssm"}`}, "/p"),
		WithBaseURL(srv.URL+"/v1"),
	)
	require.NoError(t, err)
	resp, err := c.Chat(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
}

func TestClient_Chat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).Chat(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, resp)
}

func TestClient_Chat_UpstreamStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream said no","type":"server_error"}}`))
		}))

		_, err := newTestClient(t, srv).Chat(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
		srv.Close()

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode(), "status %d", status)
		require.Contains(t, err.Error(), "chat completion")

		var apiErr *goopenai.APIError
		require.ErrorAs(t, err, &apiErr, "the go-openai error stays reachable")
	}
}

func TestClient_Chat_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Chat(context.Background(), nil)
	require.Error(t, err)
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeCompletion(w, "late")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Chat(context.Background(), nil)
	require.Error(t, err)
	var statusErr *StatusError
	require.False(t, errors.As(err, &statusErr), "a timeout carries no upstream status")
}

func TestClient_Chat_FakeCompleter(t *testing.T) {
	c, err := NewClient(WithAPIKey("sk-test"))
	require.NoError(t, err)
	c.completer = completerFunc(func(_ context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
		require.Equal(t, DefaultModel, req.Model)
		return goopenai.ChatCompletionResponse{}, errors.New("boom")
	})

	_, err = c.Chat(context.Background(), nil)
	require.ErrorContains(t, err, "boom")
}

type completerFunc func(context.Context, goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)

func (f completerFunc) CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	return f(ctx, req)
}

func TestStatusCode_PlainError(t *testing.T) {
	require.Zero(t, statusCode(errors.New("dial tcp: refused")))
	require.Zero(t, statusCode(nil))
}
