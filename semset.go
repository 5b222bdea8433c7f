package sysvipc

// SemaphoreSet is a handle on a kernel semaphore set. The handle caches only
// the identifier and size; semaphore values are always read from the kernel.
type SemaphoreSet struct {
	backend SemaphoreBackend
	exec    *Executor

	// ID is the kernel identifier of the set.
	ID int

	// Key is the key the set was created or opened with.
	Key Key

	// Count is the number of semaphores in the set.
	Count int
}

// CreateSemaphoreSet creates a set of n semaphores, all zero. With a key other
// than IPCPrivate it fails if a set already exists for the key. perm holds the
// permission bits, e.g. 0o600.
func CreateSemaphoreSet(b SemaphoreBackend, key Key, n, perm int, opts ...ExecutorOption) (*SemaphoreSet, error) {
	if n <= 0 {
		return nil, &OpError{Op: "semget", ID: -1, Index: -1, Err: ErrInvalidArgument}
	}
	return getSemaphoreSet(b, key, n, IPCCreat|IPCExcl|(perm&0o777), opts)
}

// OpenSemaphoreSet opens the existing set for key, which must hold at least n
// semaphores. A missing set fails with ErrNotFound.
func OpenSemaphoreSet(b SemaphoreBackend, key Key, n int, opts ...ExecutorOption) (*SemaphoreSet, error) {
	return getSemaphoreSet(b, key, n, 0, opts)
}

// SemaphoreSetFromID returns a handle on the existing set id, as printed by
// ipcs(1), with Count set to n. No kernel call is made; use Len for the real
// size.
func SemaphoreSetFromID(b SemaphoreBackend, id, n int, opts ...ExecutorOption) *SemaphoreSet {
	return &SemaphoreSet{backend: b, exec: NewExecutor(b, opts...), ID: id, Count: n}
}

func getSemaphoreSet(b SemaphoreBackend, key Key, n, flags int, opts []ExecutorOption) (*SemaphoreSet, error) {
	id, err := b.SemGet(key, n, flags)
	if err != nil {
		return nil, newOpError("semget", -1, err)
	}
	return &SemaphoreSet{
		backend: b,
		exec:    NewExecutor(b, opts...),
		ID:      id,
		Key:     key,
		Count:   n,
	}, nil
}

// Apply applies ops to the set. See Executor.Apply.
func (s *SemaphoreSet) Apply(ops ...Op) error {
	return s.exec.Apply(s.ID, ops)
}

// TryApply applies ops without waiting. See Executor.TryApply.
func (s *SemaphoreSet) TryApply(ops ...Op) error {
	return s.exec.TryApply(s.ID, ops)
}

// Semaphore returns the member num as a Semaphore.
func (s *SemaphoreSet) Semaphore(num int) Semaphore {
	return &member{set: s, num: uint16(num)}
}

// Value returns the value of semaphore num.
func (s *SemaphoreSet) Value(num int) (int, error) {
	return s.ctl(num, SemGetVal, SemArg{})
}

// SetValue sets semaphore num to v and clears the undo entries for it in
// every process.
func (s *SemaphoreSet) SetValue(num, v int) error {
	_, err := s.ctl(num, SemSetVal, SemArg{Val: v})
	return err
}

// Len asks the kernel how many semaphores the set holds. It can exceed Count
// for a set opened with a smaller n.
func (s *SemaphoreSet) Len() (int, error) {
	return s.ctl(0, SemStat, SemArg{})
}

// Values returns the values of every semaphore in the set, one per member as
// reported by Len.
func (s *SemaphoreSet) Values() ([]uint16, error) {
	n, err := s.Len()
	if err != nil {
		return nil, err
	}
	vals := make([]uint16, n)
	if _, err := s.ctl(0, SemGetAll, SemArg{Array: vals}); err != nil {
		return nil, err
	}
	return vals, nil
}

// SetValues sets every semaphore in the set; len(vals) must equal Len.
func (s *SemaphoreSet) SetValues(vals []uint16) error {
	n, err := s.Len()
	if err != nil {
		return err
	}
	if len(vals) != n {
		return &OpError{Op: "semctl", ID: s.ID, Index: -1, Err: ErrInvalidArgument}
	}
	_, err = s.ctl(0, SemSetAll, SemArg{Array: vals})
	return err
}

// WaitingForIncrease returns the number of processes waiting for semaphore num
// to increase.
func (s *SemaphoreSet) WaitingForIncrease(num int) (int, error) {
	return s.ctl(num, SemGetNCnt, SemArg{})
}

// WaitingForZero returns the number of processes waiting for semaphore num to
// become zero.
func (s *SemaphoreSet) WaitingForZero(num int) (int, error) {
	return s.ctl(num, SemGetZCnt, SemArg{})
}

// LastPID returns the pid of the last process that operated on semaphore num.
func (s *SemaphoreSet) LastPID(num int) (int, error) {
	return s.ctl(num, SemGetPID, SemArg{})
}

// Remove destroys the set, waking every waiter with an error.
func (s *SemaphoreSet) Remove() error {
	_, err := s.ctl(0, SemRemove, SemArg{})
	return err
}

func (s *SemaphoreSet) ctl(num int, cmd SemCmd, arg SemArg) (int, error) {
	r, err := s.backend.SemCtl(s.ID, num, cmd, arg)
	if err != nil {
		return -1, newOpError("semctl", s.ID, err)
	}
	return r, nil
}
