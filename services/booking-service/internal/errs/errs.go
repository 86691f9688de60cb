// Package errs defines the typed failures the booking engine returns to its callers.
// Every failure carries a Kind; recoverable kinds also carry the detail a client needs to
// guide the user (remaining attempts, cooldown, next action).
package errs

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindSessionExpired  Kind = "session_expired"
	KindSessionLocked   Kind = "session_locked"
	KindSessionConsumed Kind = "session_consumed"
	KindCodeMismatch    Kind = "code_mismatch"
	KindResendCooldown  Kind = "resend_cooldown_active"
	KindSlotUnavailable Kind = "slot_no_longer_available"
	KindDispatchFailed  Kind = "channel_dispatch_failed"
)

// Actions hint the client at the next step.
const (
	ActionRestart     = "start_new_session"
	ActionPickNewSlot = "pick_new_slot"
	ActionWait        = "wait"
	ActionRetry       = "retry"
)

type Error struct {
	Kind              Kind
	Message           string
	RemainingAttempts int
	RetryAfter        time.Duration
	Action            string
	Err               error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, errs.ErrSessionLocked) works for any locked error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrSessionExpired  = &Error{Kind: KindSessionExpired}
	ErrSessionLocked   = &Error{Kind: KindSessionLocked}
	ErrSessionConsumed = &Error{Kind: KindSessionConsumed}
	ErrCodeMismatch    = &Error{Kind: KindCodeMismatch}
	ErrResendCooldown  = &Error{Kind: KindResendCooldown}
	ErrSlotUnavailable = &Error{Kind: KindSlotUnavailable}
	ErrDispatchFailed  = &Error{Kind: KindDispatchFailed}
)

func InvalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func SessionExpired() error {
	return &Error{Kind: KindSessionExpired, Message: "verification session expired", Action: ActionRestart}
}

func SessionLocked() error {
	return &Error{Kind: KindSessionLocked, Message: "too many failed attempts", Action: ActionRestart}
}

func SessionConsumed() error {
	return &Error{Kind: KindSessionConsumed, Message: "booking already completed for this session"}
}

func CodeMismatch(remaining int) error {
	return &Error{Kind: KindCodeMismatch, Message: "code does not match", RemainingAttempts: remaining, Action: ActionRetry}
}

func ResendCooldown(retryAfter time.Duration) error {
	return &Error{Kind: KindResendCooldown, Message: "resend not available yet", RetryAfter: retryAfter, Action: ActionWait}
}

func SlotUnavailable() error {
	return &Error{Kind: KindSlotUnavailable, Message: "the selected time is no longer available", Action: ActionPickNewSlot}
}

func DispatchFailed(err error) error {
	return &Error{Kind: KindDispatchFailed, Message: "could not deliver verification", Action: ActionRestart, Err: err}
}

// KindOf reports the kind of a typed error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As extracts the typed error, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
