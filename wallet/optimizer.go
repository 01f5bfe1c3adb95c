package wallet

import (
	"context"
	"math/bits"

	"go.uber.org/zap"

	"github.com/lightsparkdev/spark-wallet/common/logging"
	"github.com/lightsparkdev/spark-wallet/leafstore"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// swapFunc trades leaves for new leaves of the given denominations. It runs
// with the store guard held.
type swapFunc func(ctx context.Context, leaves []*pb.TreeNode, targetAmounts []uint64) ([]*pb.TreeNode, error)

// LeafOptimizer keeps the wallet from accumulating many small leaves. Any
// balance can be held in popcount(balance) power-of-two leaves; once the
// wallet holds more than multiplicity times that many, every leaf is swapped
// for exactly those denominations.
type LeafOptimizer struct {
	store        *leafstore.Store
	multiplicity int
	swap         swapFunc
}

func NewLeafOptimizer(store *leafstore.Store, multiplicity int, swap swapFunc) *LeafOptimizer {
	return &LeafOptimizer{store: store, multiplicity: multiplicity, swap: swap}
}

// MinimumLeafCount is the fewest power-of-two leaves that hold total.
func MinimumLeafCount(total uint64) int {
	return bits.OnesCount64(total)
}

// Denominations splits total into its power-of-two parts, largest first.
func Denominations(total uint64) []uint64 {
	out := make([]uint64, 0, bits.OnesCount64(total))
	for bit := 63; bit >= 0; bit-- {
		if total&(1<<bit) != 0 {
			out = append(out, 1<<bit)
		}
	}
	return out
}

func (o *LeafOptimizer) ShouldOptimize(leaves []*pb.TreeNode) bool {
	return len(leaves) > o.multiplicity*MinimumLeafCount(sumLeafValues(leaves))
}

// Optimize swaps every available leaf for the minimal set of denominations if
// the wallet is fragmented. It reports whether a swap ran.
func (o *LeafOptimizer) Optimize(ctx context.Context) (bool, error) {
	o.store.Lock()
	defer o.store.Unlock()
	return o.optimize(ctx)
}

func (o *LeafOptimizer) optimize(ctx context.Context) (bool, error) {
	leaves := o.store.AvailableLeaves()
	if !o.ShouldOptimize(leaves) {
		return false, nil
	}
	total := sumLeafValues(leaves)
	logger := logging.GetLoggerFromContext(ctx)
	logger.Info("optimizing leaves",
		zap.Int("leaves", len(leaves)),
		zap.Int("minimum_leaves", MinimumLeafCount(total)),
		zap.Uint64("total", total),
	)
	if _, err := o.swap(ctx, leaves, Denominations(total)); err != nil {
		return false, err
	}
	return true, nil
}
