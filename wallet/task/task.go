// Package task runs the wallet's background jobs (leaf optimization, timelock
// refresh, claiming incoming transfers) on a gocron scheduler.
package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

var defaultTaskTimeout = 1 * time.Minute

// Task is the function run by a job.
type Task func(context.Context) error

// BaseTaskSpec is a task that can be run once or scheduled.
type BaseTaskSpec struct { //nolint:revive
	// Name is the human-readable name of the task.
	Name string
	// Timeout is the maximum time the task is allowed to run before it will be cancelled.
	Timeout *time.Duration
	// If true, the task will not run
	Disabled bool
	// Task is the function that is run when the task is scheduled.
	Task Task
}

// ScheduledTaskSpec is a task that runs on a schedule.
type ScheduledTaskSpec struct {
	BaseTaskSpec
	// ExecutionInterval is the interval between each run of the task.
	ExecutionInterval time.Duration
}

func (t *BaseTaskSpec) getTimeout() time.Duration {
	if t.Timeout != nil {
		return *t.Timeout
	}
	return defaultTaskTimeout
}

func (t *BaseTaskSpec) withMiddleware() *BaseTaskSpec {
	return t.chainMiddleware(
		LogMiddleware(),
		TimeoutMiddleware(),
		PanicRecoveryMiddleware(),
	)
}

// RunOnce runs the task immediately with the standard middleware.
func (t *BaseTaskSpec) RunOnce(ctx context.Context) error {
	return t.withMiddleware().Task(ctx)
}

// Schedule registers the task with the scheduler. The scheduler injects its
// context into each run.
func (t *ScheduledTaskSpec) Schedule(scheduler gocron.Scheduler) (gocron.Job, error) {
	wrappedTask := t.withMiddleware()

	return scheduler.NewJob(
		gocron.DurationJob(t.ExecutionInterval),
		gocron.NewTask(func(ctx context.Context) error {
			return wrappedTask.Task(ctx)
		}),
		gocron.WithName(t.Name),
	)
}

// NewScheduler builds a scheduler whose jobs never overlap with themselves,
// run under ctx, log through logger and report to monitor.
func NewScheduler(ctx context.Context, logger *zap.Logger, monitor *Monitor) (gocron.Scheduler, error) {
	options := []gocron.SchedulerOption{
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		),
		gocron.WithLogger(NewZapLoggerAdapter(logger)),
	}
	if monitor != nil {
		options = append(options, gocron.WithMonitorStatus(monitor))
	}
	return gocron.NewScheduler(options...)
}

// Wrap the task with the given middleware. This returns a new BaseTaskSpec whose Task function
// is wrapped with the provided middleware. The original task's fields are preserved.
func (t *BaseTaskSpec) wrapMiddleware(middleware TaskMiddleware) *BaseTaskSpec {
	return &BaseTaskSpec{
		Name:     t.Name,
		Timeout:  t.Timeout,
		Disabled: t.Disabled,
		Task: func(ctx context.Context) error {
			return middleware(ctx, t)
		},
	}
}

// Wrap the task with the given middlewares chained together. The first
// middleware in the slice is the outermost and the last is the innermost.
//
// +------- Middleware 1 -------+
// | +----- Middleware 2 -----+ |
// | | +--- Middleware 3 ---+ | |
// | | |                    | | |
// | | |   Task (t.Task)    | | |
// | | |                    | | |
// | | +--------------------+ | |
// | +------------------------+ |
// +----------------------------+
func (t *BaseTaskSpec) chainMiddleware(middlewares ...TaskMiddleware) *BaseTaskSpec {
	currTask := t
	for i := len(middlewares) - 1; i >= 0; i-- {
		currTask = currTask.wrapMiddleware(middlewares[i])
	}
	return currTask
}
