//go:build linux && (amd64 || arm64 || riscv64)

package sysvipc

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// msgHeaderSize is sizeof(long), the mtype prefix of struct msgbuf.
const msgHeaderSize = 8

// sembuf mirrors struct sembuf.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// semidDS mirrors struct semid64_ds on 64-bit Linux.
type semidDS struct {
	perm  unix.SysvIpcPerm
	otime int64
	ctime int64
	nsems uint64
	_     [2]uint64
}

// kernelBackend issues the System V calls directly.
type kernelBackend struct {
	StatResolver

	// msgbufs holds scratch struct msgbuf buffers for send and receive.
	msgbufs *BufferPool
}

func newKernelBackend() Backend {
	return &kernelBackend{msgbufs: NewBufferPool(msgHeaderSize+MaxMessageSize, 4)}
}

func (k *kernelBackend) SemGet(key Key, nsems, flags int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flags))
	if errno != 0 {
		return -1, errno
	}
	return int(id), nil
}

func (k *kernelBackend) SemOp(semid int, op Op) error {
	buf := sembuf{num: op.Num, op: op.Delta, flg: int16(op.Flags)}
	_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(semid), uintptr(unsafe.Pointer(&buf)), 1)
	if errno != 0 {
		return errno
	}
	return nil
}

func (k *kernelBackend) SemCtl(semid, semnum int, cmd SemCmd, arg SemArg) (int, error) {
	var (
		r     uintptr
		errno unix.Errno
	)
	switch cmd {
	case SemSetVal:
		r, _, errno = unix.Syscall6(unix.SYS_SEMCTL, uintptr(semid), uintptr(semnum), uintptr(cmd), uintptr(arg.Val), 0, 0)
	case SemStat:
		return k.semCount(semid)
	case SemGetAll, SemSetAll:
		// the kernel copies sem_nsems entries whatever the array length
		n, err := k.semCount(semid)
		if err != nil {
			return -1, err
		}
		if len(arg.Array) < n {
			return -1, unix.EINVAL
		}
		r, _, errno = unix.Syscall6(unix.SYS_SEMCTL, uintptr(semid), uintptr(semnum), uintptr(cmd), uintptr(unsafe.Pointer(&arg.Array[0])), 0, 0)
	default:
		r, _, errno = unix.Syscall6(unix.SYS_SEMCTL, uintptr(semid), uintptr(semnum), uintptr(cmd), 0, 0, 0)
	}
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func (k *kernelBackend) semCount(semid int) (int, error) {
	var ds semidDS
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(semid), 0, uintptr(unix.IPC_STAT), uintptr(unsafe.Pointer(&ds)), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(ds.nsems), nil
}

func (k *kernelBackend) ShmGet(key Key, size, flags int) (int, error) {
	return unix.SysvShmGet(int(int32(key)), size, flags)
}

func (k *kernelBackend) ShmAttach(shmid, flags int) ([]byte, error) {
	return unix.SysvShmAttach(shmid, 0, flags)
}

func (k *kernelBackend) ShmDetach(data []byte) error {
	return unix.SysvShmDetach(data)
}

func (k *kernelBackend) ShmStat(shmid int) (SegmentInfo, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(shmid, unix.IPC_STAT, &desc); err != nil {
		return SegmentInfo{}, err
	}
	return SegmentInfo{
		Size:       int(desc.Segsz),
		Attached:   int(desc.Nattch),
		CreatorPID: int(desc.Cpid),
		LastPID:    int(desc.Lpid),
		Mode:       uint32(desc.Perm.Mode),
	}, nil
}

func (k *kernelBackend) ShmRemove(shmid int) error {
	_, err := unix.SysvShmCtl(shmid, unix.IPC_RMID, nil)
	return err
}

func (k *kernelBackend) MsgGet(key Key, flags int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(flags), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(id), nil
}

func (k *kernelBackend) MsgSend(msqid int, mtype int64, data []byte, flags int) error {
	buf := k.msgbuf(len(data))
	defer k.msgbufs.Put(buf)

	binary.NativeEndian.PutUint64(buf, uint64(mtype))
	copy(buf[msgHeaderSize:], data)
	_, _, errno := unix.Syscall6(unix.SYS_MSGSND, uintptr(msqid), uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(data)), uintptr(flags), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (k *kernelBackend) MsgReceive(msqid int, buf []byte, mtype int64, flags int) (int64, int, error) {
	kbuf := k.msgbuf(len(buf))
	defer k.msgbufs.Put(kbuf)

	n, _, errno := unix.Syscall6(unix.SYS_MSGRCV, uintptr(msqid), uintptr(unsafe.Pointer(&kbuf[0])),
		uintptr(len(buf)), uintptr(mtype), uintptr(flags), 0)
	if errno != 0 {
		return 0, 0, errno
	}
	got := int64(binary.NativeEndian.Uint64(kbuf))
	return got, copy(buf, kbuf[msgHeaderSize:msgHeaderSize+int(n)]), nil
}

func (k *kernelBackend) MsgRemove(msqid int) error {
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(msqid), uintptr(unix.IPC_RMID), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// msgbuf returns a buffer with room for the mtype header and size payload bytes.
func (k *kernelBackend) msgbuf(size int) []byte {
	if msgHeaderSize+size <= k.msgbufs.bufSize {
		return k.msgbufs.Get()
	}
	return make([]byte, msgHeaderSize+size)
}
