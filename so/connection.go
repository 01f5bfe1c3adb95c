package so

import (
	"fmt"
	"slices"
	"sync"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

const (
	defaultConnectionIdleTimeout = 10 * time.Minute
	connectionCleanupInterval    = time.Minute
)

// ClientProvider hands out an RPC client for an operator.
type ClientProvider interface {
	SparkClient(operator *SigningOperator) (pb.SparkServiceClient, error)
}

// InterceptorFactory builds the unary client interceptors for one operator's connection.
type InterceptorFactory func(operator *SigningOperator) ([]grpc.UnaryClientInterceptor, error)

// NewOperatorGRPCConnection dials an operator. TLS is used when the operator has a certificate configured.
func NewOperatorGRPCConnection(operator *SigningOperator, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if operator.CertPath != nil && *operator.CertPath != "" {
		tlsCreds, err := credentials.NewClientTLSFromFile(*operator.CertPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate for operator %s: %w", operator.Identifier, err)
		}
		creds = tlsCreds
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	return grpc.NewClient(operator.AddressRpc, append(dialOpts, opts...)...)
}

// ConnectionPool keeps one connection per operator and closes connections
// that have been idle for longer than the idle timeout.
type ConnectionPool struct {
	mu           sync.Mutex
	conns        *cache.Cache
	interceptors InterceptorFactory
	dialOpts     []grpc.DialOption
}

type ConnectionPoolOption func(*ConnectionPool)

func WithInterceptors(factory InterceptorFactory) ConnectionPoolOption {
	return func(p *ConnectionPool) {
		p.interceptors = factory
	}
}

func WithDialOptions(opts ...grpc.DialOption) ConnectionPoolOption {
	return func(p *ConnectionPool) {
		p.dialOpts = append(p.dialOpts, opts...)
	}
}

func NewConnectionPool(idleTimeout time.Duration, opts ...ConnectionPoolOption) *ConnectionPool {
	if idleTimeout <= 0 {
		idleTimeout = defaultConnectionIdleTimeout
	}
	pool := &ConnectionPool{
		conns: cache.New(idleTimeout, connectionCleanupInterval),
	}
	pool.conns.OnEvicted(func(_ string, value any) {
		if conn, ok := value.(*grpc.ClientConn); ok {
			_ = conn.Close()
		}
	})
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Conn returns the pooled connection to an operator, dialing it if needed.
func (p *ConnectionPool) Conn(operator *SigningOperator) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if value, ok := p.conns.Get(operator.Identifier); ok {
		conn := value.(*grpc.ClientConn)
		// Touch the entry so the idle timer restarts.
		p.conns.SetDefault(operator.Identifier, conn)
		return conn, nil
	}

	dialOpts := slices.Clone(p.dialOpts)
	if p.interceptors != nil {
		interceptors, err := p.interceptors(operator)
		if err != nil {
			return nil, fmt.Errorf("failed to build interceptors for operator %s: %w", operator.Identifier, err)
		}
		if len(interceptors) > 0 {
			dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(grpcmiddleware.ChainUnaryClient(interceptors...)))
		}
	}
	conn, err := NewOperatorGRPCConnection(operator, dialOpts...)
	if err != nil {
		return nil, err
	}
	p.conns.SetDefault(operator.Identifier, conn)
	return conn, nil
}

func (p *ConnectionPool) SparkClient(operator *SigningOperator) (pb.SparkServiceClient, error) {
	conn, err := p.Conn(operator)
	if err != nil {
		return nil, err
	}
	return pb.NewSparkServiceClient(conn), nil
}

// Close closes every pooled connection.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.conns.Items() {
		p.conns.Delete(key)
	}
}
