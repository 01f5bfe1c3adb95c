// Package fanout runs one call against many operators and decides, separately
// and without side effects, whether the collected outcomes meet a quorum.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	"github.com/lightsparkdev/spark-wallet/so"
)

// Result is the outcome of a call against one operator.
type Result[T any] struct {
	Operator *so.SigningOperator
	Value    T
	Err      error
	// Order is the position in which this call finished, starting at 0.
	Order int
}

// Task is a call against a single operator.
type Task[T any] func(ctx context.Context, operator *so.SigningOperator) (T, error)

// ExecuteAll runs task against every operator concurrently and waits for all
// of them. A failure never cancels the other calls. Errors that are not
// already classified are wrapped as network errors for op.
func ExecuteAll[T any](ctx context.Context, op string, operators []*so.SigningOperator, task Task[T]) []Result[T] {
	results := make([]Result[T], len(operators))
	var finished atomic.Int64

	var g errgroup.Group
	for i, operator := range operators {
		g.Go(func() error {
			value, err := task(ctx, operator)
			if err != nil && sparkerrors.KindOf(err) == sparkerrors.KindUnknown {
				err = sparkerrors.Network(op, operator.Identifier, err)
			}
			results[i] = Result[T]{
				Operator: operator,
				Value:    value,
				Err:      err,
				Order:    int(finished.Add(1) - 1),
			}
			return nil
		})
	}
	_ = g.Wait()

	logFailures(ctx, op, results)
	return results
}

func logFailures[T any](ctx context.Context, op string, results []Result[T]) {
	logger := logging.GetLoggerFromContext(ctx)
	for _, result := range results {
		if result.Err != nil {
			logger.Warn("operator call failed",
				zap.String("operation", op),
				zap.String("operator", result.Operator.Identifier),
				zap.Error(result.Err),
			)
		}
	}
}

// Errors returns every collected error in operator order.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}
	return errs
}

// FirstError returns the error of the first failed operator in operator order, or nil.
func FirstError[T any](results []Result[T]) error {
	for _, result := range results {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}

// JoinedError joins every collected error, for logging.
func JoinedError[T any](results []Result[T]) error {
	return errors.Join(Errors(results)...)
}

// RequireAll succeeds only when every operator succeeded, returning the
// values keyed by operator identifier. Otherwise the first error is returned.
func RequireAll[T any](results []Result[T]) (map[string]T, error) {
	if err := FirstError(results); err != nil {
		return nil, err
	}
	return successes(results), nil
}

// RequireAny returns the earliest successful result. It fails only when every operator failed.
func RequireAny[T any](results []Result[T]) (Result[T], error) {
	best := -1
	for i, result := range results {
		if result.Err != nil {
			continue
		}
		if best < 0 || result.Order < results[best].Order {
			best = i
		}
	}
	if best < 0 {
		if err := FirstError(results); err != nil {
			return Result[T]{}, err
		}
		return Result[T]{}, fmt.Errorf("no operators were called")
	}
	return results[best], nil
}

func successes[T any](results []Result[T]) map[string]T {
	values := make(map[string]T, len(results))
	for _, result := range results {
		if result.Err == nil {
			values[result.Operator.Identifier] = result.Value
		}
	}
	return values
}
