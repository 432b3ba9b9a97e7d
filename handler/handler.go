package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"footcare-triage/internal/analytics"
	"footcare-triage/internal/domain"
	"footcare-triage/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"

	codeRouteNotFound    = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"

	msgInvalidBody     = "Invalid request body"
	msgMessagesMissing = "Messages array required"
)

// RecordUseCase is the record and analytics surface the routes need.
type RecordUseCase interface {
	CreatePatient(ctx context.Context, in domain.PatientInput) (domain.Patient, error)
	GetPatient(ctx context.Context, id string) (domain.Patient, error)
	ListPatients(ctx context.Context) ([]domain.Patient, error)
	CreateSession(ctx context.Context, in usecase.SessionInput) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	ListSessions(ctx context.Context, patientID string) ([]domain.Session, error)
	UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (domain.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	Analytics(ctx context.Context) (analytics.Analytics, error)
}

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Handler struct {
	records RecordUseCase
	chat    ChatUseCase
	routes  map[string]map[string]route
}

// route serves one method on one path. fallback is the message shown when the
// use case fails unexpectedly.
type route struct {
	fallback string
	serve    func(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error)
}

type createPatientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type createSessionRequest struct {
	PatientID     string `json:"patientId"`
	IssueCategory string `json:"issueCategory"`
	Symptoms      string `json:"symptoms"`
}

type updateSessionRequest struct {
	SessionID string              `json:"sessionId"`
	Updates   domain.SessionPatch `json:"updates"`
}

type chatRequest struct {
	Messages  json.RawMessage `json:"messages"`
	SessionID string          `json:"sessionId"`
	PatientID string          `json:"patientId"`
}

type patientResponse struct {
	Patient domain.Patient `json:"patient"`
}

type patientsResponse struct {
	Patients []domain.Patient `json:"patients"`
}

type sessionResponse struct {
	Session domain.Session `json:"session"`
}

type sessionsResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

type analyticsResponse struct {
	Analytics analytics.Analytics `json:"analytics"`
}

type chatResponse struct {
	Message    string `json:"message"`
	IsDemoMode bool   `json:"isDemoMode"`
	SessionID  string `json:"sessionId,omitempty"`
	PatientID  string `json:"patientId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// requestError is a transport-level rejection that never reaches a use case.
type requestError struct {
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err == nil {
		return e.message
	}
	return e.message + ": " + e.err.Error()
}

func (e *requestError) Unwrap() error { return e.err }

// reasonMessages are the caller-facing texts for expected use-case failures.
var reasonMessages = map[string]string{
	"missing_contact_fields":  "Name, email, and phone required",
	"patient_not_found":       "Patient not found",
	"session_not_found":       "Session not found",
	"missing_session_id":      "Session ID required",
	"invalid_session_updates": "Invalid session updates",
	"invalid_message_role":    "Invalid message role",
}

func NewHandler(records RecordUseCase, chat ChatUseCase) (*Handler, error) {
	if records == nil {
		return nil, errors.New("handler: record use case must not be nil")
	}
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{records: records, chat: chat}
	h.routes = map[string]map[string]route{
		"/patients": {
			http.MethodPost: {fallback: "Failed to create patient", serve: h.createPatient},
			http.MethodGet:  {fallback: "Failed to fetch patients", serve: h.getPatients},
		},
		"/sessions": {
			http.MethodPost:  {fallback: "Failed to create session", serve: h.createSession},
			http.MethodGet:   {fallback: "Failed to fetch sessions", serve: h.getSessions},
			http.MethodPatch: {fallback: "Failed to update session", serve: h.updateSession},
		},
		"/messages": {
			http.MethodGet: {fallback: "Failed to fetch messages", serve: h.getMessages},
		},
		"/analytics": {
			http.MethodGet: {fallback: "Failed to fetch analytics", serve: h.getAnalytics},
		},
		"/chat": {
			http.MethodPost: {fallback: "Failed to process chat message", serve: h.postChat},
		},
	}
	return h, nil
}

// Handle is the API Gateway proxy entry point. Failures are always rendered
// as JSON responses; the returned error is reserved for the runtime.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(req.Headers)
	path := normalizePath(req.Path)
	method := strings.ToUpper(req.HTTPMethod)
	logger := slog.With("correlation_id", correlationID, "method", method, "path", path)

	methods, ok := h.routes[path]
	if !ok {
		logger.WarnContext(ctx, "route not found")
		return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Error: "Not found", Code: codeRouteNotFound}), nil
	}
	rt, ok := methods[method]
	if !ok {
		logger.WarnContext(ctx, "method not allowed")
		resp := jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "Method not allowed", Code: codeMethodNotAllowed})
		resp.Headers["Allow"] = allowHeader(methods)
		return resp, nil
	}

	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			logger.WarnContext(ctx, "request body is not valid base64", "err", err)
			return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: msgInvalidBody, Code: string(usecase.ErrorInvalidInput)}), nil
		}
		req.Body = string(decoded)
	}

	status, body, err := rt.serve(ctx, req)
	if err != nil {
		status, body = h.errorBody(ctx, logger, err, rt.fallback)
	} else {
		logger.InfoContext(ctx, "request handled", "status", status)
	}
	return jsonResponse(status, correlationID, body), nil
}

func (h *Handler) errorBody(ctx context.Context, logger *slog.Logger, err error, fallback string) (int, errorResponse) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		logger.WarnContext(ctx, "request rejected", "err", err)
		return http.StatusBadRequest, errorResponse{Error: reqErr.message, Code: string(usecase.ErrorInvalidInput)}
	}

	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.ErrorContext(ctx, "unexpected error", "err", err)
		return http.StatusInternalServerError, errorResponse{Error: fallback, Code: string(usecase.ErrorInternal)}
	}

	status := statusFor(ucErr.Code)
	message := fallback
	if status < http.StatusInternalServerError {
		if m, ok := reasonMessages[ucErr.Reason]; ok {
			message = m
		}
		logger.WarnContext(ctx, "request failed", "status", status, "code", ucErr.Code, "reason", ucErr.Reason)
	} else {
		logger.ErrorContext(ctx, "request failed", "status", status, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return status, errorResponse{Error: message, Code: string(ucErr.Code)}
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) createPatient(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in createPatientRequest
	if err := decodeBody(req.Body, &in); err != nil {
		return 0, nil, err
	}
	p, err := h.records.CreatePatient(ctx, domain.PatientInput{Name: in.Name, Email: in.Email, Phone: in.Phone})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, patientResponse{Patient: p}, nil
}

func (h *Handler) getPatients(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	if id := query(req, "id"); id != "" {
		p, err := h.records.GetPatient(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, patientResponse{Patient: p}, nil
	}
	patients, err := h.records.ListPatients(ctx)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, patientsResponse{Patients: nonNil(patients)}, nil
}

func (h *Handler) createSession(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in createSessionRequest
	if err := decodeBody(req.Body, &in); err != nil {
		return 0, nil, err
	}
	s, err := h.records.CreateSession(ctx, usecase.SessionInput{
		PatientID:     in.PatientID,
		IssueCategory: in.IssueCategory,
		Symptoms:      in.Symptoms,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, sessionResponse{Session: s}, nil
}

func (h *Handler) getSessions(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	if id := query(req, "id"); id != "" {
		s, err := h.records.GetSession(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, sessionResponse{Session: s}, nil
	}
	sessions, err := h.records.ListSessions(ctx, query(req, "patientId"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, sessionsResponse{Sessions: nonNil(sessions)}, nil
}

func (h *Handler) updateSession(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in updateSessionRequest
	if err := decodeBody(req.Body, &in); err != nil {
		return 0, nil, err
	}
	s, err := h.records.UpdateSession(ctx, in.SessionID, in.Updates)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, sessionResponse{Session: s}, nil
}

func (h *Handler) getMessages(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	msgs, err := h.records.ListMessages(ctx, query(req, "sessionId"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, messagesResponse{Messages: nonNil(msgs)}, nil
}

func (h *Handler) getAnalytics(ctx context.Context, _ events.APIGatewayProxyRequest) (int, any, error) {
	a, err := h.records.Analytics(ctx)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, analyticsResponse{Analytics: a}, nil
}

func (h *Handler) postChat(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	var in chatRequest
	if err := decodeBody(req.Body, &in); err != nil {
		return 0, nil, err
	}
	raw := strings.TrimSpace(string(in.Messages))
	if !strings.HasPrefix(raw, "[") {
		return 0, nil, &requestError{message: msgMessagesMissing}
	}
	var messages []domain.ChatMessage
	if err := json.Unmarshal(in.Messages, &messages); err != nil {
		return 0, nil, &requestError{message: msgMessagesMissing, err: err}
	}

	out, err := h.chat.Chat(ctx, usecase.ChatInput{
		Messages:  messages,
		SessionID: in.SessionID,
		PatientID: in.PatientID,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, chatResponse{
		Message:    out.Message,
		IsDemoMode: out.IsDemoMode,
		SessionID:  out.SessionID,
		PatientID:  out.PatientID,
	}, nil
}

func decodeBody(body string, v any) error {
	if strings.TrimSpace(body) == "" {
		return &requestError{message: msgInvalidBody, err: errors.New("empty body")}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &requestError{message: msgInvalidBody, err: err}
	}
	return nil
}

func query(req events.APIGatewayProxyRequest, key string) string {
	return strings.TrimSpace(req.QueryStringParameters[key])
}

// normalizePath drops a trailing slash and an optional /api prefix.
func normalizePath(p string) string {
	p = "/" + strings.Trim(p, "/")
	if p == "/api" {
		return "/"
	}
	if strings.HasPrefix(p, "/api/") {
		return p[len("/api"):]
	}
	return p
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, headerCorrelationID) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func allowHeader(methods map[string]route) string {
	allowed := make([]string, 0, len(methods))
	for m := range methods {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	return strings.Join(allowed, ", ")
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	buf, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"error":"Internal server error","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(buf),
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
