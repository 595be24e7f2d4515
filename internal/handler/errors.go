package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bashkirian/kpi-engine/internal/engine"
	"github.com/bashkirian/kpi-engine/internal/period"
	"github.com/bashkirian/kpi-engine/internal/storage"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// ContextWithRequestID кладёт id запроса в контекст
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// APIError тело ответа с ошибкой
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUpstreamFailed   = "UPSTREAM_FAILED"
	ErrCodeCanceled         = "REQUEST_CANCELED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// respondJSON кодирует тело до WriteHeader; несериализуемое тело (+Inf, NaN) отдаёт 500
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(APIError{
			Error:     http.StatusText(status),
			Code:      ErrCodeInternalError,
			Message:   "failed to encode response: " + err.Error(),
			RequestID: RequestID(r.Context()),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, APIError{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	})
}

// queryError статус и код для ошибки движка. Всё, что не ошибка
// запроса, пришло из фидов.
func queryError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidRange), errors.Is(err, period.ErrInvalidPreset):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, engine.ErrInvalidOptions):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case errors.Is(err, engine.ErrUnknownDomain):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrCodeCanceled
	}
	return http.StatusBadGateway, ErrCodeUpstreamFailed
}

func storageError(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrInvalidEvent), errors.Is(err, models.ErrInvalidInterval):
		return http.StatusBadRequest, ErrCodeValidationFailed
	case errors.Is(err, storage.ErrIntervalConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}
