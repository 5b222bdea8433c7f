package sysvipc

import "errors"

// Semaphore is a single counting semaphore shared between processes. It is
// backed by one member of a SemaphoreSet; get one with SemaphoreSet.Semaphore.
//
// Acquire and Release set Undo, so the kernel returns the unit if the process
// exits while holding it.
//
// Example:
//
//	set, _ := sysvipc.CreateSemaphoreSet(sysvipc.DefaultBackend(), key, 1, 0o600)
//	_ = set.SetValue(0, 1)
//	sem := set.Semaphore(0)
//
//	sem.Acquire()
//	// critical section - access shared resource
//	sem.Release()
type Semaphore interface {
	// Acquire blocks until the semaphore can be decremented.
	Acquire() error

	// Release increments the semaphore, potentially unblocking waiters.
	Release() error

	// TryAcquire attempts to decrement the semaphore without blocking.
	// Returns true if acquired, false if the semaphore was not available.
	TryAcquire() (bool, error)

	// Close releases the handle. The set itself lives until SemaphoreSet.Remove.
	Close() error
}

type member struct {
	set *SemaphoreSet
	num uint16
}

func (m *member) Acquire() error {
	return m.set.Apply(Op{Num: m.num, Delta: -1, Flags: Undo})
}

func (m *member) Release() error {
	return m.set.Apply(Op{Num: m.num, Delta: 1, Flags: Undo})
}

func (m *member) TryAcquire() (bool, error) {
	err := m.set.TryApply(Op{Num: m.num, Delta: -1, Flags: Undo})
	if errors.Is(err, ErrResourceUnavailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *member) Close() error {
	return nil
}
