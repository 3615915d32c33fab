package errors

import (
	"errors"
	"fmt"
)

// Domain errors. Everything except ErrNotFound is a client-correctable
// validation error and must not be retried automatically.
var (
	ErrProfileIncomplete      = errors.New("profile incomplete")
	ErrNotInSelection         = errors.New("profile is not in today's selection")
	ErrQuotaExceeded          = errors.New("daily limit reached")
	ErrAlreadyChosen          = errors.New("already chosen")
	ErrForbidden              = errors.New("forbidden")
	ErrExpired                = errors.New("conversation expired")
	ErrInactive               = errors.New("conversation inactive")
	ErrNotFound               = errors.New("not found")
	ErrManualTriggerForbidden = errors.New("manual job triggers are disabled in production")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// Reason codes the client renders. Stable wire values.
const (
	ReasonProfileIncomplete      = "PROFILE_INCOMPLETE"
	ReasonNotInSelection         = "NOT_IN_SELECTION"
	ReasonQuotaExceeded          = "QUOTA_EXCEEDED"
	ReasonAlreadyChosen          = "ALREADY_CHOSEN"
	ReasonForbidden              = "FORBIDDEN"
	ReasonExpired                = "EXPIRED"
	ReasonInactive               = "INACTIVE"
	ReasonNotFound               = "NOT_FOUND"
	ReasonManualTriggerForbidden = "MANUAL_TRIGGER_FORBIDDEN"
	ReasonInvalidArgument        = "INVALID_ARGUMENT"
)

// NotFound wraps ErrNotFound with the missing resource name.
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// Invalid wraps ErrInvalidArgument with a description of the bad input.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Reason returns the client reason code for a domain error, or "" for anything else.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrProfileIncomplete):
		return ReasonProfileIncomplete
	case errors.Is(err, ErrNotInSelection):
		return ReasonNotInSelection
	case errors.Is(err, ErrQuotaExceeded):
		return ReasonQuotaExceeded
	case errors.Is(err, ErrAlreadyChosen):
		return ReasonAlreadyChosen
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrInactive):
		return ReasonInactive
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrManualTriggerForbidden):
		return ReasonManualTriggerForbidden
	case errors.Is(err, ErrInvalidArgument):
		return ReasonInvalidArgument
	}
	return ""
}
