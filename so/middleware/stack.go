package middleware

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ClientConfig configures the interceptors installed on every operator connection.
type ClientConfig struct {
	Timeout     TimeoutConfig     `yaml:"timeout"`
	Retry       RetryPolicy       `yaml:"retry"`
	RateLimit   RateLimiterConfig `yaml:"rate_limit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// Stack builds per-operator interceptor chains that share one rate limiter and
// one concurrency guard.
type Stack struct {
	logger  *zap.Logger
	config  ClientConfig
	limiter *RateLimiter
	guard   ResourceLimiter
}

func NewStack(logger *zap.Logger, config ClientConfig) (*Stack, error) {
	s := &Stack{logger: logger, config: config, guard: &NoopResourceLimiter{}}
	if config.RateLimit.Enabled() {
		limiter, err := NewRateLimiter(config.RateLimit)
		if err != nil {
			return nil, err
		}
		s.limiter = limiter
	}
	if config.Concurrency.Global > 0 || len(config.Concurrency.Methods) > 0 {
		s.guard = NewConcurrencyGuard(config.Concurrency)
	}
	return s, nil
}

// Interceptors returns the chain for one operator. Logging sees the outcome
// after retries; each attempt gets its own timeout and rate limit token.
func (s *Stack) Interceptors(operator string) ([]grpc.UnaryClientInterceptor, error) {
	interceptors := []grpc.UnaryClientInterceptor{
		LogInterceptor(s.logger, operator),
		s.config.Retry.UnaryClientInterceptor(),
		TimeoutInterceptor(s.config.Timeout),
	}
	if s.limiter != nil {
		limit, err := s.limiter.UnaryClientInterceptor(operator)
		if err != nil {
			return nil, err
		}
		interceptors = append(interceptors, limit)
	}
	return append(interceptors, ConcurrencyInterceptor(s.guard, operator)), nil
}
