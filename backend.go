package sysvipc

import "sync"

// Flags for the get calls. Values match Linux.
const (
	IPCCreat  = 0o1000
	IPCExcl   = 0o2000
	IPCNoWait = 0o4000
)

// ShmReadOnly attaches a segment read-only.
const ShmReadOnly = 0o10000

// MsgNoError truncates messages longer than the receive buffer instead of failing.
const MsgNoError = 0o10000

// SemCmd is a semctl(2) command.
type SemCmd int

// Supported semctl commands.
const (
	SemRemove  SemCmd = 0
	SemStat    SemCmd = 2
	SemGetPID  SemCmd = 11
	SemGetVal  SemCmd = 12
	SemGetAll  SemCmd = 13
	SemGetNCnt SemCmd = 14
	SemGetZCnt SemCmd = 15
	SemSetVal  SemCmd = 16
	SemSetAll  SemCmd = 17
)

// SemArg is the fourth semctl argument. Val is used by SemSetVal, Array by
// SemGetAll and SemSetAll. Array must hold at least one entry per semaphore in
// the set; backends fail shorter arrays with EINVAL.
type SemArg struct {
	Val   int
	Array []uint16
}

// SegmentInfo is the subset of shmid_ds reported by ShmStat.
type SegmentInfo struct {
	Size       int
	Attached   int
	CreatorPID int
	LastPID    int
	Mode       uint32
}

// SemaphoreBackend forwards semaphore requests to the kernel.
//
// SemCtl with SemStat returns the number of semaphores in the set.
//
// SemOp submits exactly one request. It returns nil when the request was
// applied, an error matching unix.EAGAIN when the semaphore cannot currently
// accept it, and any other error for hard failures (unix.EINTR when a wait was
// interrupted).
type SemaphoreBackend interface {
	SemGet(key Key, nsems, flags int) (int, error)
	SemOp(semid int, op Op) error
	SemCtl(semid, semnum int, cmd SemCmd, arg SemArg) (int, error)
}

// SharedMemoryBackend forwards shared memory requests to the kernel.
type SharedMemoryBackend interface {
	ShmGet(key Key, size, flags int) (int, error)
	ShmAttach(shmid, flags int) ([]byte, error)
	ShmDetach(data []byte) error
	ShmStat(shmid int) (SegmentInfo, error)
	ShmRemove(shmid int) error
}

// MessageQueueBackend forwards message queue requests to the kernel.
// MsgReceive copies the payload into buf and returns the message type and
// payload length.
type MessageQueueBackend interface {
	MsgGet(key Key, flags int) (int, error)
	MsgSend(msqid int, mtype int64, data []byte, flags int) error
	MsgReceive(msqid int, buf []byte, mtype int64, flags int) (int64, int, error)
	MsgRemove(msqid int) error
}

// PathResolver looks up the identity of a filesystem entry.
type PathResolver interface {
	Identify(path string) (FileIdentity, error)
}

// Backend is the full kernel collaborator. The kernel implementation is
// returned by DefaultBackend; sysvipctest provides an in-memory one.
type Backend interface {
	SemaphoreBackend
	SharedMemoryBackend
	MessageQueueBackend
	PathResolver
}

var (
	defaultBackendOnce sync.Once
	defaultBackend     Backend
)

// DefaultBackend returns the backend that talks to the running kernel.
func DefaultBackend() Backend {
	defaultBackendOnce.Do(func() {
		defaultBackend = newKernelBackend()
	})
	return defaultBackend
}
