//go:build !(linux && (amd64 || arm64 || riscv64))

package sysvipc

// kernelBackend is a stub for platforms where the System V calls are not
// reachable through dedicated syscall numbers. Every IPC operation returns
// ErrNotSupported; path resolution still works.
type kernelBackend struct {
	StatResolver
}

func newKernelBackend() Backend {
	return kernelBackend{}
}

func (kernelBackend) SemGet(key Key, nsems, flags int) (int, error) {
	return -1, ErrNotSupported
}

func (kernelBackend) SemOp(semid int, op Op) error {
	return ErrNotSupported
}

func (kernelBackend) SemCtl(semid, semnum int, cmd SemCmd, arg SemArg) (int, error) {
	return -1, ErrNotSupported
}

func (kernelBackend) ShmGet(key Key, size, flags int) (int, error) {
	return -1, ErrNotSupported
}

func (kernelBackend) ShmAttach(shmid, flags int) ([]byte, error) {
	return nil, ErrNotSupported
}

func (kernelBackend) ShmDetach(data []byte) error {
	return ErrNotSupported
}

func (kernelBackend) ShmStat(shmid int) (SegmentInfo, error) {
	return SegmentInfo{}, ErrNotSupported
}

func (kernelBackend) ShmRemove(shmid int) error {
	return ErrNotSupported
}

func (kernelBackend) MsgGet(key Key, flags int) (int, error) {
	return -1, ErrNotSupported
}

func (kernelBackend) MsgSend(msqid int, mtype int64, data []byte, flags int) error {
	return ErrNotSupported
}

func (kernelBackend) MsgReceive(msqid int, buf []byte, mtype int64, flags int) (int64, int, error) {
	return 0, 0, ErrNotSupported
}

func (kernelBackend) MsgRemove(msqid int) error {
	return ErrNotSupported
}
