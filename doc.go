// Package sysvipc provides System V IPC primitives for coordinating unrelated
// processes: semaphore sets, shared memory segments and message queues, plus
// ftok-style key derivation so processes can agree on an object without
// passing identifiers around.
//
// # Keys
//
// Processes rendezvous on a key derived from a file they all know about and a
// small project id:
//
//	key, err := sysvipc.Ftok("/var/run/myapp.pid", 'A')
//
// The key packs the low 8 bits of the id, the low 8 bits of the file's device
// number and the low 16 bits of its inode number. It is deterministic and
// stateless; different files may collide.
//
// # Semaphore Operations
//
// An operation list is applied one request at a time, in order:
//
//	err := sysvipc.Semop(semid,
//		sysvipc.Op{Num: 0, Delta: -1},                  // wait for a free slot
//		sysvipc.Op{Num: 1, Delta: 1, Flags: sysvipc.Undo}, // announce ourselves
//	)
//
// A request the set cannot accept yet is resubmitted until it succeeds. With
// NoWait the call fails with ErrResourceUnavailable instead. Each request is
// atomic, the list is not: requests applied before a failure stay applied.
//
// Executor is the configurable form of Semop, with a logger, metrics and a
// replaceable backend:
//
//	exec := sysvipc.NewExecutor(sysvipc.DefaultBackend(),
//		sysvipc.WithLogger(logger),
//		sysvipc.WithMetrics(sysvipc.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//
// # Handles
//
// SemaphoreSet, Segment and Queue wrap the create/attach/detach/control calls:
//
//	set, _ := sysvipc.CreateSemaphoreSet(b, key, 2, 0o600)
//	seg, _ := sysvipc.CreateSegment(b, key, 1<<20, 0o600)
//	q, _ := sysvipc.CreateQueue(b, key, 0o600)
//
// Queue carries raw bytes or values encoded with a Serializer (MessagePack by
// default), and adapts to the Transport interface.
//
// # Errors
//
// Failures are *OpError values matching one of ErrInvalidArgument,
// ErrResourceUnavailable, ErrNotFound, ErrInterrupted or ErrKernelRejected,
// and the underlying errno:
//
//	if errors.Is(err, sysvipc.ErrResourceUnavailable) { ... }
//	if errors.Is(err, unix.EIDRM) { ... }
//
// # Backends
//
// All kernel access goes through Backend. DefaultBackend issues the system
// calls directly on linux/amd64, linux/arm64 and linux/riscv64; elsewhere it
// returns ErrNotSupported for IPC calls. Package sysvipctest provides an
// in-memory Backend for tests.
package sysvipc
