package api

import (
	"errors"
	"net/http"

	"github.com/p-n-ai/curriculum-ai/internal/ai"
	"github.com/p-n-ai/curriculum-ai/internal/generator"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
	"github.com/p-n-ai/curriculum-ai/internal/tutor"
)

var (
	errUnauthorized = errors.New("authentication required")
	errForbidden    = errors.New("insufficient role")
)

// requestError is a client error with a fixed message.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var reqErr *requestError
	var valErr *validationError

	switch {
	case errors.As(err, &reqErr), errors.As(err, &valErr), errors.Is(err, tutor.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden), errors.Is(err, generator.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lesson.ErrNotFound), errors.Is(err, lesson.ErrNoContent), errors.Is(err, tutor.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrGenerationInProgress), errors.Is(err, generator.ErrAlreadyGenerated):
		return http.StatusConflict
	case errors.Is(err, ai.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": "..."}; validation failures add a
// per-field map.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	var valErr *validationError
	if errors.As(err, &valErr) {
		respondWithJSON(w, code, map[string]any{"error": valErr.Error(), "fields": valErr.fields})
		return
	}
	respondWithError(w, code, err.Error())
}
