package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	case "email":
		return fe.Field() + " must be an e-mail address"
	case "datetime":
		return fe.Field() + " must use the format " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func statusFor(k errs.Kind) int {
	switch k {
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindCodeMismatch:
		return http.StatusUnprocessableEntity
	case errs.KindResendCooldown:
		return http.StatusTooManyRequests
	case errs.KindSessionExpired:
		return http.StatusGone
	case errs.KindSessionLocked:
		return http.StatusLocked
	case errs.KindSessionConsumed, errs.KindSlotUnavailable:
		return http.StatusConflict
	case errs.KindDispatchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders typed engine errors with their client hints. Anything untyped is an
// internal failure and only its request id reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e, ok := errs.As(err)
	if !ok {
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	detail := httpx.ErrorDetail{Kind: string(e.Kind), Message: e.Message, Action: e.Action}
	if detail.Message == "" {
		detail.Message = string(e.Kind)
	}
	if e.Kind == errs.KindCodeMismatch {
		n := e.RemainingAttempts
		detail.RemainingAttempts = &n
	}
	if e.RetryAfter > 0 {
		secs := httpx.CeilSeconds(e.RetryAfter)
		detail.RetryAfterSeconds = &secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"kind", e.Kind,
			"err", err,
		)
	}
	httpx.WriteJSON(w, status, httpx.ErrorBody{Error: detail})
}

func badRequest(w http.ResponseWriter, message string) {
	httpx.WriteError(w, http.StatusBadRequest, string(errs.KindInvalidInput), message)
}
