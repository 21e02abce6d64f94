package storage

import (
	"sync"
)

// OperationType defines whether an operation is read or write.
// This distinction allows the LockManager to use read locks (RLock) for
// concurrent reads and write locks (Lock) for exclusive writes.
type OperationType int

const (
	// ReadOperation indicates an operation that only reads data.
	// Multiple read operations can proceed concurrently.
	ReadOperation OperationType = iota

	// WriteOperation indicates an operation that modifies data.
	// Write operations are exclusive.
	WriteOperation
)

// LockManager provides centralized lock management for the in-memory
// indices of every cache layer and for the storage backends. Each owner
// holds its own LockManager; locks are never shared across layers.
type LockManager struct {
	mu *sync.RWMutex
}

// NewLockManager creates a new lock manager instance
func NewLockManager() *LockManager {
	return &LockManager{
		mu: &sync.RWMutex{},
	}
}

// Execute runs fn while holding the lock matching opType.
// The lock is released via defer, so a panicking fn does not leave it held.
//
// Example:
//
//	err := lm.Execute(ReadOperation, func() error {
//	    // Safe to read data here
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// Do is Execute for functions that cannot fail
func (lm *LockManager) Do(opType OperationType, fn func()) {
	_ = lm.Execute(opType, func() error {
		fn()
		return nil
	})
}

// With runs fn under the lock matching opType and returns its result
func With[T any](lm *LockManager, opType OperationType, fn func() T) T {
	var result T
	lm.Do(opType, func() {
		result = fn()
	})
	return result
}
