package sysvipc

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// OpFlag is a bitset of per-request semaphore flags.
type OpFlag int16

const (
	// NoWait fails the request with ErrResourceUnavailable instead of waiting.
	NoWait OpFlag = IPCNoWait

	// Undo asks the kernel to revert the adjustment when the process exits.
	Undo OpFlag = 0x1000
)

// Op is one adjustment request: Delta is added to semaphore Num of the set.
// A negative Delta waits until the value is large enough, a zero Delta waits
// until the value is zero.
type Op struct {
	Num   uint16
	Delta int16
	Flags OpFlag
}

func (o Op) nonBlocking() bool {
	return o.Flags&NoWait != 0
}

// Executor applies operation lists to semaphore sets one request at a time.
//
// Each request is atomic at the kernel level but a list is not: when a request
// fails, the requests before it stay applied and are visible to every process
// sharing the set.
//
// Executor holds no mutable state and is safe for concurrent use.
type Executor struct {
	backend SemaphoreBackend
	logger  *zap.Logger
	metrics *Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger logs refusals and failures to l at debug level.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records applied requests, retries and failures in m.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor returns an Executor submitting requests to b.
func NewExecutor(b SemaphoreBackend, opts ...ExecutorOption) *Executor {
	e := &Executor{backend: b, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply applies ops to the set semid in order. A request the set cannot accept
// yet is resubmitted until it succeeds, unless it carries NoWait, in which case
// Apply stops with ErrResourceUnavailable. Any other failure stops Apply
// immediately: ErrInterrupted for an interrupted wait, ErrKernelRejected with
// the errno otherwise. An empty list fails with ErrInvalidArgument without
// calling the backend.
func (e *Executor) Apply(semid int, ops []Op) error {
	return e.apply(semid, ops, 0)
}

// TryApply is Apply with NoWait set on every request.
func (e *Executor) TryApply(semid int, ops []Op) error {
	return e.apply(semid, ops, NoWait)
}

func (e *Executor) apply(semid int, ops []Op, callFlags OpFlag) error {
	if len(ops) == 0 {
		return e.fail(semid, -1, ErrInvalidArgument, nil)
	}
	for i, op := range ops {
		op.Flags |= callFlags
		if err := e.applyOne(semid, i, op); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) applyOne(semid, index int, op Op) error {
	for attempt := 1; ; attempt++ {
		err := e.backend.SemOp(semid, op)
		switch {
		case err == nil:
			e.metrics.applied()
			return nil
		case errors.Is(err, unix.EAGAIN):
			if op.nonBlocking() {
				return e.fail(semid, index, ErrResourceUnavailable, err)
			}
			e.metrics.retried()
			e.logger.Debug("semop refused, resubmitting",
				zap.Int("semid", semid),
				zap.Int("index", index),
				zap.Int("attempt", attempt))
		case errors.Is(err, unix.EINTR):
			return e.fail(semid, index, ErrInterrupted, err)
		default:
			return e.fail(semid, index, ErrKernelRejected, err)
		}
	}
}

func (e *Executor) fail(semid, index int, kind, sys error) error {
	e.metrics.failed(kind)
	e.logger.Debug("semop failed",
		zap.Int("semid", semid),
		zap.Int("index", index),
		zap.NamedError("kind", kind),
		zap.Error(sys))
	return &OpError{Op: "semop", ID: semid, Index: index, Err: kind, Sys: sys}
}

var defaultExecutor = sync.OnceValue(func() *Executor {
	return NewExecutor(DefaultBackend())
})

// Semop applies ops to the set semid through the kernel backend.
//
//	// wait for semaphore 0, then signal semaphore 1
//	err := sysvipc.Semop(semid,
//		sysvipc.Op{Num: 0, Delta: -1, Flags: sysvipc.Undo},
//		sysvipc.Op{Num: 1, Delta: 1},
//	)
func Semop(semid int, ops ...Op) error {
	return defaultExecutor().Apply(semid, ops)
}
