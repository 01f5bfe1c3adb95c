package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sethvargo/go-limiter/memorystore"
	"google.golang.org/grpc"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
)

/*
Client-side rate limiting

Each operator connection gets a token bucket, so a wallet never sends more
than Requests calls per Interval to one operator. Methods can carry their own
tighter bucket on top of the operator bucket.

In-memory keys
- Operator scope: rl:<operator>
- Method scope:   rl:<operator>:/pkg.Service/Method

When a bucket is empty the call either waits for the bucket to reset (Wait)
or fails with ResourceExhausted, which the retry policy treats as retryable.
*/

// sanitizeKey removes control characters and limits key length
func sanitizeKey(key string) string {
	key = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, key)

	const maxLength = 250
	if len(key) > maxLength {
		key = key[:maxLength]
	}

	return key
}

type Clock interface {
	Now() time.Time
}

type RateLimiterConfig struct {
	// Requests is the number of calls allowed per Interval to one operator. Zero disables the operator bucket.
	Requests uint64 `yaml:"requests"`
	// Interval is the bucket window.
	Interval time.Duration `yaml:"interval"`
	// Methods sets per-method limits, keyed by full method name, using the same Interval.
	Methods map[string]uint64 `yaml:"methods"`
	// Wait makes a limited call block until its bucket resets instead of failing.
	Wait bool `yaml:"wait"`
}

func (c RateLimiterConfig) Enabled() bool {
	return c.Interval > 0 && (c.Requests > 0 || len(c.Methods) > 0)
}

type MemoryStore interface {
	Set(ctx context.Context, key string, tokens uint64, window time.Duration) error
	Take(ctx context.Context, key string) (tokens uint64, remaining uint64, reset uint64, ok bool, err error)
}

type RateLimiter struct {
	config RateLimiterConfig
	store  MemoryStore
	clock  Clock
	sleep  func(ctx context.Context, d time.Duration) error
}

type RateLimiterOption func(*RateLimiter)

func WithClock(clock Clock) RateLimiterOption {
	return func(r *RateLimiter) {
		r.clock = clock
	}
}

func WithStore(store MemoryStore) RateLimiterOption {
	return func(r *RateLimiter) {
		r.store = store
	}
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func NewRateLimiter(config RateLimiterConfig, opts ...RateLimiterOption) (*RateLimiter, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("rate limit interval must be positive, got %s", config.Interval)
	}

	rateLimiter := &RateLimiter{
		config: config,
		clock:  &realClock{},
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(rateLimiter)
	}

	if rateLimiter.store == nil {
		// Buckets are sized with Set before first use; these defaults only seed the store.
		store, err := memorystore.New(&memorystore.Config{
			Tokens:   max(config.Requests, 1),
			Interval: config.Interval,
		})
		if err != nil {
			return nil, err
		}
		rateLimiter.store = store
	}
	return rateLimiter, nil
}

// takeToken takes one token from the bucket at key, waiting for a reset when
// the limiter is configured to wait.
func (r *RateLimiter) takeToken(ctx context.Context, key string, label string) error {
	for {
		_, _, reset, ok, err := r.store.Take(ctx, key)
		if err != nil {
			return fmt.Errorf("%s rate limit error: %w", label, err)
		}
		if ok {
			return nil
		}
		if !r.config.Wait {
			return sparkerrors.ResourceExhaustedRateLimitExceeded(fmt.Errorf("%s rate limit exceeded", label))
		}
		wait := time.Unix(0, int64(reset)).Sub(r.clock.Now())
		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RateLimiter) configure(ctx context.Context, key string, tokens uint64) error {
	return r.store.Set(ctx, key, tokens, r.config.Interval)
}

// UnaryClientInterceptor limits calls made on one operator's connection.
func (r *RateLimiter) UnaryClientInterceptor(operator string) (grpc.UnaryClientInterceptor, error) {
	ctx := context.Background()
	operatorKey := sanitizeKey("rl:" + operator)
	if r.config.Requests > 0 {
		if err := r.configure(ctx, operatorKey, r.config.Requests); err != nil {
			return nil, err
		}
	}
	methodKeys := make(map[string]string, len(r.config.Methods))
	for method, tokens := range r.config.Methods {
		if tokens == 0 {
			continue
		}
		key := sanitizeKey(fmt.Sprintf("rl:%s:%s", operator, method))
		if err := r.configure(ctx, key, tokens); err != nil {
			return nil, err
		}
		methodKeys[method] = key
	}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if key, ok := methodKeys[method]; ok {
			if err := r.takeToken(ctx, key, "per-method"); err != nil {
				return err
			}
		}
		if r.config.Requests > 0 {
			if err := r.takeToken(ctx, operatorKey, "operator"); err != nil {
				return err
			}
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}, nil
}
