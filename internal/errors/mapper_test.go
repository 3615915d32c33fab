package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
)

func TestMap_DomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		code   codes.Code
		reason string
	}{
		{svcErr.ErrProfileIncomplete, codes.FailedPrecondition, svcErr.ReasonProfileIncomplete},
		{svcErr.ErrNotInSelection, codes.InvalidArgument, svcErr.ReasonNotInSelection},
		{fmt.Errorf("user 7: %w", svcErr.ErrQuotaExceeded), codes.ResourceExhausted, svcErr.ReasonQuotaExceeded},
		{svcErr.ErrAlreadyChosen, codes.AlreadyExists, svcErr.ReasonAlreadyChosen},
		{svcErr.ErrForbidden, codes.PermissionDenied, svcErr.ReasonForbidden},
		{svcErr.ErrExpired, codes.FailedPrecondition, svcErr.ReasonExpired},
		{svcErr.ErrInactive, codes.FailedPrecondition, svcErr.ReasonInactive},
		{svcErr.NotFound("match"), codes.NotFound, svcErr.ReasonNotFound},
		{svcErr.ErrManualTriggerForbidden, codes.PermissionDenied, svcErr.ReasonManualTriggerForbidden},
		{svcErr.Invalid("hours must be positive"), codes.InvalidArgument, svcErr.ReasonInvalidArgument},
	}

	for _, tc := range cases {
		mapped := svcErr.Map(tc.err)
		assert.Equal(t, tc.code, status.Code(mapped), tc.err.Error())
		assert.Equal(t, tc.reason, svcErr.ReasonOf(mapped), tc.err.Error())
	}
}

func TestMap_InfraErrors(t *testing.T) {
	assert.Nil(t, svcErr.Map(nil))
	assert.Equal(t, codes.NotFound, status.Code(svcErr.Map(gorm.ErrRecordNotFound)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(svcErr.Map(context.DeadlineExceeded)))
	assert.Equal(t, codes.Canceled, status.Code(svcErr.Map(context.Canceled)))
	assert.Equal(t, codes.Internal, status.Code(svcErr.Map(errors.New("boom"))))

	// already a status: passed through untouched
	st := status.Error(codes.Unavailable, "down")
	assert.Equal(t, st, svcErr.Map(st))
}

func TestExpiredAndForbiddenAreDistinct(t *testing.T) {
	assert.NotEqual(t, svcErr.ReasonOf(svcErr.Map(svcErr.ErrExpired)), svcErr.ReasonOf(svcErr.Map(svcErr.ErrForbidden)))
}
