package server

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	svcErr "github.com/oggyb/muzz-daily/internal/errors"
	"github.com/oggyb/muzz-daily/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "x-request-id"

// UnaryInterceptor gives every call a request-scoped logger, maps domain
// errors to status errors and turns panics into Internal.
func UnaryInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		reqID := requestID(ctx)
		log := base.With("request_id", reqID, "method", info.FullMethod)
		ctx = logger.WithContext(ctx, log)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, reqID))

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in handler", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()

		resp, err = handler(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			err = svcErr.Map(err)
			code := status.Code(err)
			if code == codes.Internal || code == codes.Unknown {
				log.Error("rpc failed", "code", code.String(), "duration", elapsed, "err", err)
			} else {
				log.Info("rpc rejected", "code", code.String(), "reason", svcErr.ReasonOf(err), "duration", elapsed)
			}
			return nil, err
		}
		log.Debug("rpc ok", "duration", elapsed)
		return resp, nil
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}
