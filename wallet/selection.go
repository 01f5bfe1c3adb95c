package wallet

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/logging"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// selectLeaves picks leaves summing exactly to target, taking the largest
// leaf that still fits first. It reports false when the current
// denominations cannot make target that way.
func selectLeaves(leaves []*pb.TreeNode, target uint64) ([]*pb.TreeNode, bool) {
	if target == 0 {
		return nil, false
	}
	sorted := slices.SortedStableFunc(slices.Values(leaves), func(a, b *pb.TreeNode) int {
		return cmp.Compare(b.Value, a.Value)
	})
	var amount uint64
	var selected []*pb.TreeNode
	for _, leaf := range sorted {
		if amount+leaf.Value > target {
			continue
		}
		amount += leaf.Value
		selected = append(selected, leaf)
		if amount == target {
			return selected, true
		}
	}
	return nil, false
}

// selectLeavesForSwap picks the smallest leaves until they cover target.
func selectLeavesForSwap(leaves []*pb.TreeNode, target uint64) ([]*pb.TreeNode, error) {
	sorted := slices.SortedStableFunc(slices.Values(leaves), func(a, b *pb.TreeNode) int {
		return cmp.Compare(a.Value, b.Value)
	})
	var amount uint64
	var selected []*pb.TreeNode
	for _, leaf := range sorted {
		amount += leaf.Value
		selected = append(selected, leaf)
		if amount >= target {
			return selected, nil
		}
	}
	return nil, sparkerrors.ValidationInsufficientFunds(fmt.Errorf("leaves hold %d sats, need %d", amount, target))
}

// selectLeavesWithSwap returns available leaves summing exactly to target.
// When the current denominations cannot make target, it swaps the smallest
// leaves covering target for a target-sized leaf plus change and selects
// again, once. The caller holds the store guard.
func (w *Wallet) selectLeavesWithSwap(ctx context.Context, target uint64) ([]*pb.TreeNode, error) {
	if target == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("amount must be positive"))
	}
	leaves := w.store.AvailableLeaves()
	if total := sumLeafValues(leaves); total < target {
		return nil, sparkerrors.ValidationInsufficientFunds(fmt.Errorf("balance %d sats is below %d sats", total, target))
	}
	if selected, ok := selectLeaves(leaves, target); ok {
		return selected, nil
	}

	logging.GetLoggerFromContext(ctx).Info("no exact leaf selection, swapping leaves", zap.Uint64("target", target))
	toSwap, err := selectLeavesForSwap(leaves, target)
	if err != nil {
		return nil, err
	}
	if _, err := w.requestLeavesSwap(ctx, toSwap, []uint64{target}); err != nil {
		return nil, fmt.Errorf("failed to swap leaves for %d sats: %w", target, err)
	}
	selected, ok := selectLeaves(w.store.AvailableLeaves(), target)
	if !ok {
		return nil, sparkerrors.ValidationInsufficientFunds(fmt.Errorf("no leaves sum to %d sats after swap", target))
	}
	return selected, nil
}

func sumLeafValues(leaves []*pb.TreeNode) uint64 {
	var total uint64
	for _, leaf := range leaves {
		total += leaf.Value
	}
	return total
}

func leafIDs(leaves []*pb.TreeNode) []string {
	ids := make([]string, len(leaves))
	for i, leaf := range leaves {
		ids[i] = leaf.Id
	}
	return ids
}
