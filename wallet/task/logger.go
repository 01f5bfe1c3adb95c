package task

import (
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type zapLoggerAdapter struct {
	logger *zap.SugaredLogger
}

// NewZapLoggerAdapter lets gocron log through zap. Scheduler chatter is
// demoted to debug so it does not drown out task logs.
func NewZapLoggerAdapter(logger *zap.Logger) gocron.Logger {
	return &zapLoggerAdapter{logger: logger.Named("gocron").Sugar()}
}

func (l *zapLoggerAdapter) Debug(msg string, args ...any) {
	l.logger.Debugw(msg, args...)
}

func (l *zapLoggerAdapter) Info(msg string, args ...any) {
	l.logger.Debugw(msg, args...)
}

func (l *zapLoggerAdapter) Warn(msg string, args ...any) {
	l.logger.Warnw(msg, args...)
}

func (l *zapLoggerAdapter) Error(msg string, args ...any) {
	l.logger.Errorw(msg, args...)
}
