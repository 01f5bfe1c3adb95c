package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	nameKey   = attribute.Key("task.name")
	resultKey = attribute.Key("task.result")
)

// Monitor records job outcomes and durations for the scheduler.
type Monitor struct {
	taskCount    metric.Int64Counter
	taskDuration metric.Float64Histogram
}

func NewMonitor() (*Monitor, error) {
	meter := otel.Meter("gocron")

	jobCount, err := meter.Int64Counter(
		"gocron.task_count_total",
		metric.WithDescription("Total number of tasks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task count metric: %w", err)
	}

	jobDuration, err := meter.Float64Histogram(
		"gocron.task_duration_milliseconds",
		metric.WithDescription("Duration of tasks in milliseconds."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(
			// Swaps and refreshes wait on several operator round trips.
			100, 250, 500, 750, 1000, 2500, 5000, 7500, 10000, 15000, 30000, 45000, 60000,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task duration metric: %w", err)
	}

	return &Monitor{
		taskCount:    jobCount,
		taskDuration: jobDuration,
	}, nil
}

func (t *Monitor) IncrementJob(_ uuid.UUID, _ string, _ []string, _ gocron.JobStatus) {}

func (t *Monitor) RecordJobTiming(_, _ time.Time, _ uuid.UUID, _ string, _ []string) {}

func (t *Monitor) RecordJobTimingWithStatus(startTime, endTime time.Time, _ uuid.UUID, name string, _ []string, status gocron.JobStatus, err error) {
	t.taskCount.Add(
		context.Background(),
		1,
		metric.WithAttributes(
			nameKey.String(name),
			resultKey.String(jobResult(status, err)),
		),
	)

	duration := endTime.Sub(startTime).Milliseconds()
	t.taskDuration.Record(
		context.Background(),
		float64(duration),
		metric.WithAttributes(
			nameKey.String(name),
		),
	)
}

func jobResult(status gocron.JobStatus, err error) string {
	switch {
	case errors.Is(err, errTaskPanic):
		return "panic"
	case errors.Is(err, errTaskDisabled):
		return "disabled"
	case errors.Is(err, errTaskTimeout):
		return "timeout"
	default:
		return string(status)
	}
}
