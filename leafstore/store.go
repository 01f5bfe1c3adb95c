// Package leafstore is the wallet's in-memory record of the leaves and token
// outputs it owns.
package leafstore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"

	"github.com/lightsparkdev/spark-wallet/common/keys"
	"github.com/lightsparkdev/spark-wallet/common/uint128"
	pb "github.com/lightsparkdev/spark-wallet/proto/spark"
)

// Store holds owned leaves in insertion order and owned token outputs keyed
// by the outpoint that created them.
//
// Lock and Unlock form the operation guard: a caller that reads leaves, runs
// a protocol against the operators and then writes the result back must hold
// the guard for the whole sequence. Individual reads and writes are safe on
// their own; the guard only serializes multi-step operations.
type Store struct {
	guard sync.Mutex

	mu           sync.RWMutex
	leaves       map[string]*pb.TreeNode
	order        []string
	signingKeys  map[string]keys.Private
	tokenOutputs map[string]*pb.OutputWithPreviousTransactionData
	tokenOrder   []string
}

func New() *Store {
	return &Store{
		leaves:       make(map[string]*pb.TreeNode),
		signingKeys:  make(map[string]keys.Private),
		tokenOutputs: make(map[string]*pb.OutputWithPreviousTransactionData),
	}
}

// Lock acquires the operation guard.
func (s *Store) Lock() {
	s.guard.Lock()
}

func (s *Store) Unlock() {
	s.guard.Unlock()
}

// TryLock acquires the operation guard if it is free.
func (s *Store) TryLock() bool {
	return s.guard.TryLock()
}

// WithLock runs fn while holding the operation guard.
func (s *Store) WithLock(fn func() error) error {
	s.guard.Lock()
	defer s.guard.Unlock()
	return fn()
}

// Leaves returns the owned leaves in insertion order.
func (s *Store) Leaves() []*pb.TreeNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pb.TreeNode, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.leaves[id])
	}
	return out
}

// AvailableLeaves returns the leaves that can be spent right now.
func (s *Store) AvailableLeaves() []*pb.TreeNode {
	leaves := s.Leaves()
	return slices.DeleteFunc(leaves, func(leaf *pb.TreeNode) bool {
		return leaf.Status != "" && leaf.Status != pb.TreeNodeStatusAvailable
	})
}

func (s *Store) Get(id string) (*pb.TreeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leaf, ok := s.leaves[id]
	return leaf, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Total is the sum of every owned leaf's value.
func (s *Store) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, leaf := range s.leaves {
		total += leaf.Value
	}
	return total
}

// Add inserts leaves, replacing any leaf with the same id in place.
func (s *Store) Add(leaves ...*pb.TreeNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, leaf := range leaves {
		if _, ok := s.leaves[leaf.Id]; !ok {
			s.order = append(s.order, leaf.Id)
		}
		s.leaves[leaf.Id] = leaf
	}
}

// Remove drops leaves by id. Unknown ids are ignored.
func (s *Store) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.leaves[id]; ok {
			drop[id] = true
			delete(s.leaves, id)
			delete(s.signingKeys, id)
		}
	}
	if len(drop) == 0 {
		return
	}
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return drop[id] })
}

// Replace swaps a tracked leaf for its refreshed version, keeping its position.
func (s *Store) Replace(leaf *pb.TreeNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leaves[leaf.Id]; !ok {
		return fmt.Errorf("leaf %s is not tracked", leaf.Id)
	}
	s.leaves[leaf.Id] = leaf
	return nil
}

// Reset replaces the whole leaf set, for example after a sync with the operators.
// Signing keys of leaves that are still present are kept.
func (s *Store) Reset(leaves []*pb.TreeNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*pb.TreeNode, len(leaves))
	order := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		if _, ok := next[leaf.Id]; !ok {
			order = append(order, leaf.Id)
		}
		next[leaf.Id] = leaf
	}
	for id := range s.signingKeys {
		if _, ok := next[id]; !ok {
			delete(s.signingKeys, id)
		}
	}
	s.leaves = next
	s.order = order
}

// SetSigningKey records a signing key for a leaf whose key cannot be derived
// from its id, such as the children of a split.
func (s *Store) SetSigningKey(leafID string, key keys.Private) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signingKeys[leafID] = key
}

func (s *Store) SigningKey(leafID string) (keys.Private, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.signingKeys[leafID]
	return key, ok
}

// OutputKey identifies a token output by the transaction and vout that created it.
func OutputKey(output *pb.OutputWithPreviousTransactionData) string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(output.PreviousTransactionHash), output.PreviousTransactionVout)
}

// TokenOutputs returns the owned outputs of one token, or of every token when
// tokenPublicKey is zero.
func (s *Store) TokenOutputs(tokenPublicKey keys.Public) []*pb.OutputWithPreviousTransactionData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var filter []byte
	if !tokenPublicKey.IsZero() {
		filter = tokenPublicKey.Serialize()
	}
	var out []*pb.OutputWithPreviousTransactionData
	for _, key := range s.tokenOrder {
		output := s.tokenOutputs[key]
		if filter != nil && !bytes.Equal(output.Output.GetTokenPublicKey(), filter) {
			continue
		}
		out = append(out, output)
	}
	return out
}

func (s *Store) AddTokenOutputs(outputs ...*pb.OutputWithPreviousTransactionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, output := range outputs {
		key := OutputKey(output)
		if _, ok := s.tokenOutputs[key]; !ok {
			s.tokenOrder = append(s.tokenOrder, key)
		}
		s.tokenOutputs[key] = output
	}
}

func (s *Store) RemoveTokenOutputs(outputs ...*pb.OutputWithPreviousTransactionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(outputs))
	for _, output := range outputs {
		key := OutputKey(output)
		drop[key] = true
		delete(s.tokenOutputs, key)
	}
	s.tokenOrder = slices.DeleteFunc(s.tokenOrder, func(key string) bool { return drop[key] })
}

// ResetTokenOutputs replaces the owned outputs of one token, or of every
// token when tokenPublicKey is zero.
func (s *Store) ResetTokenOutputs(tokenPublicKey keys.Public, outputs []*pb.OutputWithPreviousTransactionData) {
	s.mu.Lock()
	var filter []byte
	if !tokenPublicKey.IsZero() {
		filter = tokenPublicKey.Serialize()
	}
	s.tokenOrder = slices.DeleteFunc(s.tokenOrder, func(key string) bool {
		if filter != nil && !bytes.Equal(s.tokenOutputs[key].Output.GetTokenPublicKey(), filter) {
			return false
		}
		delete(s.tokenOutputs, key)
		return true
	})
	s.mu.Unlock()
	s.AddTokenOutputs(outputs...)
}

// TokenBalance sums the owned outputs of one token.
func (s *Store) TokenBalance(tokenPublicKey keys.Public) (uint128.Uint128, int, error) {
	outputs := s.TokenOutputs(tokenPublicKey)
	total := uint128.New()
	for _, output := range outputs {
		amount, err := uint128.FromBytes(output.Output.GetTokenAmount())
		if err != nil {
			return uint128.Uint128{}, 0, fmt.Errorf("output %s has invalid amount: %w", OutputKey(output), err)
		}
		total, err = total.Add(amount)
		if err != nil {
			return uint128.Uint128{}, 0, err
		}
	}
	return total, len(outputs), nil
}
