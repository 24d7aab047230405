package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error apperr.DomainError `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrInsufficientStock),
		errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrConcurrencyConflict),
		errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	var de *apperr.DomainError
	body := errorBody{Error: apperr.DomainError{Code: "INTERNAL", Message: "internal error"}}
	if code != http.StatusInternalServerError && errors.As(err, &de) {
		body.Error = apperr.DomainError{Code: de.Code, Message: err.Error()}
	} else {
		logger.FromCtx(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, code, body)
}

// decode reads a JSON body into v and runs struct validation on it.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidInput("invalid json: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.InvalidInput("field %s failed %s validation", fe.Field(), fe.Tag())
		}
		return apperr.InvalidInput("%v", err)
	}
	return nil
}
