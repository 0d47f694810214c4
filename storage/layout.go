// Package storage provides the named state partitions the account
// components keep their persistent state in, plus the enumerable address
// set they share. Each component owns one partition keyed by the
// keccak256 hash of a human-readable label, so independently developed
// components composed into the same account can never alias each other's
// state.
package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrPartitionCollision is returned when two components try to claim
	// the same label, which indicates a wiring bug.
	ErrPartitionCollision = errors.New("storage: partition label already registered")

	// ErrPartitionUnknown is returned when reading a label that was never
	// registered.
	ErrPartitionUnknown = errors.New("storage: partition label not registered")
)

// Layout is the per-account registry of state partitions. It is owned by
// exactly one account instance and is not safe for concurrent use; the
// account serializes access.
type Layout struct {
	partitions map[common.Hash]any
	labels     map[common.Hash]string
}

// NewLayout returns an empty layout.
func NewLayout() *Layout {
	return &Layout{
		partitions: make(map[common.Hash]any),
		labels:     make(map[common.Hash]string),
	}
}

// PartitionKey derives the collision-resistant key for a label.
func PartitionKey(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(label))
}

// Register claims label for state. It fails if the label (or another
// label hashing to the same key) was already claimed.
func (l *Layout) Register(label string, state any) error {
	key := PartitionKey(label)
	if existing, ok := l.labels[key]; ok {
		return fmt.Errorf("%w: %q collides with %q", ErrPartitionCollision, label, existing)
	}
	l.partitions[key] = state
	l.labels[key] = label
	return nil
}

// Get returns the state registered under label.
func (l *Layout) Get(label string) (any, error) {
	state, ok := l.partitions[PartitionKey(label)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPartitionUnknown, label)
	}
	return state, nil
}

// Labels returns the registered labels, for diagnostics.
func (l *Layout) Labels() []string {
	out := make([]string, 0, len(l.labels))
	for _, label := range l.labels {
		out = append(out, label)
	}
	return out
}
