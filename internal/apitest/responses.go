package apitest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/medaccess-portal/portalcore/internal/apperrors"
)

// RespondWithError writes the portal API error body {"error_code": ..., "message": ...}.
// An empty message is omitted, as the real API does for some failures.
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode apperrors.ErrorCode, message string) {
	slog.Debug("fake api request failed",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("status", statusCode),
		slog.String("error_code", string(errorCode)),
		slog.String("error_message", message),
	)

	errResponse := apperrors.ErrorResponse{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}

	dat, err := json.Marshal(errResponse)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_code":"internal_error","message":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(dat)
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_code":"internal_error","message":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// RespondWithData wraps payload in the {"data": ..., "message": ...} envelope used by most portal endpoints
func RespondWithData(w http.ResponseWriter, status int, payload any, message string) {
	body := map[string]any{"data": payload}
	if message != "" {
		body["message"] = message
	}
	RespondWithJSON(w, status, body)
}
