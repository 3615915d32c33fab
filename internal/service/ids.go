// Package service holds helpers shared by the gRPC service packages.
package service

import (
	"strconv"
	"time"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
)

// ParseID parses a decimal uint64 id. Ids travel as strings on the wire.
func ParseID(field, value string) (uint64, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(field + " must be a valid uint64")
	}
	return id, nil
}

// FormatID is the inverse of ParseID.
func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// UnixMilli renders a timestamp the way clients expect it.
func UnixMilli(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}

// OptionalUnixMilli is UnixMilli for nullable columns.
func OptionalUnixMilli(t *time.Time) *uint64 {
	if t == nil {
		return nil
	}
	v := UnixMilli(*t)
	return &v
}
