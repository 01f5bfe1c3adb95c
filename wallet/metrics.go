package wallet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// Metrics is the wallet's prometheus instrumentation. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	balance    prometheus.Gauge
	leafCount  prometheus.Gauge
	swaps      prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spark_wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by outcome",
		}, []string{"operation", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spark_wallet",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of wallet operations, operator round trips included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		balance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spark_wallet",
			Name:      "balance_sats",
			Help:      "Sum of owned leaf values",
		}),
		leafCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "spark_wallet",
			Name:      "leaves",
			Help:      "Number of owned leaves",
		}),
		swaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spark_wallet",
			Name:      "leaf_swaps_total",
			Help:      "Leaves swaps completed with the settlement service",
		}),
	}
}

// observe records one finished operation. The result label is "ok" or the
// error's kind.
func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = sparkerrors.KindOf(err).String()
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setLeaves(leaves []*pb.TreeNode) {
	if m == nil {
		return
	}
	var total uint64
	for _, leaf := range leaves {
		total += leaf.Value
	}
	m.balance.Set(float64(total))
	m.leafCount.Set(float64(len(leaves)))
}

func (m *Metrics) swapCompleted() {
	if m == nil {
		return
	}
	m.swaps.Inc()
}
