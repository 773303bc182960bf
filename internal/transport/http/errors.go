package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"timed-exercise-service/internal/domain"
	"timed-exercise-service/internal/view"
)

// ErrCode identifies an API error.
type ErrCode string

const (
	ErrMissingStartInput     ErrCode = "MISSING_START_INPUT"
	ErrInvalidPayload        ErrCode = "INVALID_PAYLOAD"
	ErrExerciseNotFound      ErrCode = "EXERCISE_NOT_FOUND"
	ErrInvalidSession        ErrCode = "INVALID_SESSION"
	ErrAttemptClosed         ErrCode = "ATTEMPT_CLOSED"
	ErrCatalogUnavailable    ErrCode = "CATALOG_UNAVAILABLE"
	ErrExerciseUnavailable   ErrCode = "EXERCISE_UNAVAILABLE"
	ErrCompletionUnavailable ErrCode = "COMPLETION_UNAVAILABLE"
)

// GetMessage returns the user-facing message for a code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrMissingStartInput:
		return "Хэрэглэгчийн нэр эсвэл дасгалын хаяг дутуу байна."
	case ErrInvalidPayload:
		return "Хүсэлтийн өгөгдөл буруу байна."
	case ErrExerciseNotFound:
		return "Дасгал олдсонгүй."
	case ErrInvalidSession:
		return "Хүсэлт хүчингүй байна. Дасгалыг дахин эхлүүлнэ үү."
	case ErrAttemptClosed:
		return "Дасгал аль хэдийн дууссан байна."
	case ErrCatalogUnavailable:
		return "Өгөгдөл татахад алдаа гарлаа."
	case ErrExerciseUnavailable:
		return "Дасгал татахад алдаа гарлаа."
	case ErrCompletionUnavailable:
		return "Дасгал дуусгахад алдаа гарлаа."
	default:
		return "Алдаа гарлаа."
	}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error,omitempty"`
}

// classify maps an engine error to status and code. storageCode is the code used
// for persistence failures, which differ per route.
func classify(err error, validationCode, storageCode ErrCode) (int, ErrCode) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, validationCode
	case errors.Is(err, domain.ErrExerciseNotFound):
		return http.StatusNotFound, ErrExerciseNotFound
	case errors.Is(err, domain.ErrInvalidSession):
		return http.StatusForbidden, ErrInvalidSession
	case errors.Is(err, domain.ErrAttemptClosed):
		return http.StatusConflict, ErrAttemptClosed
	default:
		return http.StatusInternalServerError, storageCode
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, code ErrCode, fields map[string]string) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(envelope{Error: &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields}})
		return
	}
	h.render(w, status, view.PageError, view.ErrorData{Status: status, Message: GetMessage(code)})
}

// failErr logs server-side failures and writes the classified error.
func (h *Handler) failErr(w http.ResponseWriter, r *http.Request, err error, validationCode, storageCode ErrCode) {
	status, code := classify(err, validationCode, storageCode)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	var fields map[string]string
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		fields = ve.Fields
	}
	h.fail(w, r, status, code, fields)
}
