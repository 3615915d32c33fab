// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// ErrorDomain is attached to every ErrorInfo detail.
const ErrorDomain = "muzz.daily"

// Map converts domain/repo/infra errors into gRPC status errors.
// Domain errors carry an ErrorInfo detail whose Reason is the client reason code.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	if reason := Reason(err); reason != "" {
		return withReason(codeFor(err), err.Error(), reason)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return withReason(codes.NotFound, "record not found", ReasonNotFound)

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return withReason(codes.InvalidArgument, msg, ReasonInvalidArgument)
}

// ReasonOf extracts the reason code from a status error produced by Map.
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrQuotaExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, ErrAlreadyChosen):
		return codes.AlreadyExists
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrManualTriggerForbidden):
		return codes.PermissionDenied
	case errors.Is(err, ErrNotInSelection), errors.Is(err, ErrInvalidArgument):
		return codes.InvalidArgument
	default:
		// ProfileIncomplete, Expired, Inactive
		return codes.FailedPrecondition
	}
}

func withReason(code codes.Code, msg, reason string) error {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}
