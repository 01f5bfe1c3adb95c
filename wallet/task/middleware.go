package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lightsparkdev/spark-wallet/common/logging"
)

var (
	errTaskDisabled = fmt.Errorf("task is disabled")
	errTaskTimeout  = fmt.Errorf("task timed out")
	errTaskPanic    = fmt.Errorf("task panicked")
)

type TaskMiddleware func(context.Context, *BaseTaskSpec) error

func LogMiddleware() TaskMiddleware {
	return func(ctx context.Context, task *BaseTaskSpec) error {
		tracer := otel.Tracer("gocron")

		ctx, span := tracer.Start(ctx, task.Name)
		defer span.End()

		ctx, logger := logging.WithAttrs(ctx,
			zap.String("task.name", task.Name),
			zap.Stringer("task.id", uuid.New()),
			zap.Stringer("task.trace_id", span.SpanContext().TraceID()),
		)

		logger.Debug("Executing task")

		err := task.Task(ctx)
		if err != nil && !errors.Is(err, errTaskDisabled) {
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Task execution failed", zap.Error(err))
			return err
		}

		logger.Debug("Task executed successfully")
		return nil
	}
}

func TimeoutMiddleware() TaskMiddleware {
	return func(ctx context.Context, task *BaseTaskSpec) error {
		logger := logging.GetLoggerFromContext(ctx)

		if task.Disabled {
			return errTaskDisabled
		}

		ctx, cancel := context.WithTimeoutCause(ctx, task.getTimeout(), errTaskTimeout)
		defer cancel()

		done := make(chan error)

		go func() {
			defer close(done)

			err := task.Task(ctx)

			select {
			case done <- err:
			case <-ctx.Done():
			}
		}()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			err := context.Cause(ctx)
			if errors.Is(err, errTaskTimeout) {
				logger.Warn("Task timed out!")
				return err
			}

			logger.Warn("Context done before task completion! Is the wallet closing?", zap.Error(err))
			return err
		}
	}
}

func PanicRecoveryMiddleware() TaskMiddleware {
	return func(ctx context.Context, task *BaseTaskSpec) (err error) {
		logger := logging.GetLoggerFromContext(ctx)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in task execution",
					zap.String("panic", fmt.Sprintf("%v", r)),
					zap.ByteString("stack", debug.Stack()),
				)
				err = errTaskPanic
			}
		}()

		return task.Task(ctx)
	}
}
