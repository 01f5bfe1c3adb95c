package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/lightsparkdev/spark-wallet/common/logging"
)

// LogInterceptor tags every call to an operator with a request ID and logs failed calls.
func LogInterceptor(rootLogger *zap.Logger, operator string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		requestID := uuid.New().String()

		var otelTraceID string
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
			otelTraceID = sc.TraceID().String()
		}

		logger := rootLogger.With(
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("operator", operator),
			zap.String("otel_trace_id", otelTraceID),
		)
		ctx = logging.Inject(ctx, logger)

		startTime := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		duration := time.Since(startTime)

		if err != nil {
			logger.Error("error in grpc",
				zap.Error(err),
				zap.Stringer("code", status.Code(err)),
				zap.Duration("duration", duration),
			)
		} else {
			logger.Debug("grpc call finished", zap.Duration("duration", duration))
		}
		return err
	}
}
