package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// maxBodyBytes caps request bodies accepted by ServeHTTP.
const maxBodyBytes = 1 << 20

// ServeHTTP lets the same routes run behind a plain HTTP server for local use.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.WarnContext(r.Context(), "read request body", "err", err)
		http.Error(w, `{"error":"Invalid request body","code":"INVALID_INPUT"}`, http.StatusBadRequest)
		return
	}

	resp, err := h.Handle(r.Context(), toProxyRequest(r, body))
	if err != nil {
		slog.ErrorContext(r.Context(), "handle request", "err", err)
		http.Error(w, `{"error":"Internal server error","code":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.WriteString(w, resp.Body); err != nil {
		slog.WarnContext(r.Context(), "write response", "err", err)
	}
}

func toProxyRequest(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	params := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = strings.TrimSpace(v[0])
		}
	}
	return events.APIGatewayProxyRequest{
		Path:                  r.URL.Path,
		HTTPMethod:            r.Method,
		Headers:               headers,
		QueryStringParameters: params,
		Body:                  string(body),
	}
}
