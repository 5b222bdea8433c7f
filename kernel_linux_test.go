//go:build linux && (amd64 || arm64 || riscv64)

package sysvipc_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/richinsley/sysvipc"
)

// skipWithoutIPC skips when the sandbox forbids System V IPC.
func skipWithoutIPC(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOSPC) {
		t.Skipf("System V IPC unavailable: %v", err)
	}
}

func TestKernelSemaphoreSet(t *testing.T) {
	b := sysvipc.DefaultBackend()
	set, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 2, 0o600)
	skipWithoutIPC(t, err)
	require.NoError(t, err)
	defer set.Remove()

	require.NoError(t, set.SetValues([]uint16{1, 0}))

	// partial application: the first request stays applied
	err = set.Apply(
		sysvipc.Op{Num: 0, Delta: -1},
		sysvipc.Op{Num: 1, Delta: -1, Flags: sysvipc.NoWait},
	)
	assert.ErrorIs(t, err, sysvipc.ErrResourceUnavailable)
	vals, err := set.Values()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0}, vals)

	require.NoError(t, sysvipc.Semop(set.ID,
		sysvipc.Op{Num: 0, Delta: 2},
		sysvipc.Op{Num: 1, Delta: 1, Flags: sysvipc.Undo},
	))
	v, err := set.Value(0)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	ok, err := set.Semaphore(1).TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, set.Remove())
	err = set.Apply(sysvipc.Op{Num: 0, Delta: 1})
	assert.ErrorIs(t, err, sysvipc.ErrKernelRejected)
}

func TestKernelValuesFromShortHandle(t *testing.T) {
	b := sysvipc.DefaultBackend()
	set, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 8, 0o600)
	skipWithoutIPC(t, err)
	require.NoError(t, err)
	defer set.Remove()

	want := []uint16{11, 22, 33, 44, 55, 66, 77, 88}
	require.NoError(t, set.SetValues(want))

	short := sysvipc.SemaphoreSetFromID(b, set.ID, 1)
	n, err := short.Len()
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	vals, err := short.Values()
	require.NoError(t, err)
	assert.Equal(t, want, vals)

	assert.ErrorIs(t, short.SetValues([]uint16{1}), sysvipc.ErrInvalidArgument)
	_, err = b.SemCtl(set.ID, 0, sysvipc.SemGetAll, sysvipc.SemArg{Array: make([]uint16, 1)})
	assert.ErrorIs(t, err, unix.EINVAL)

	vals, err = set.Values()
	require.NoError(t, err)
	assert.Equal(t, want, vals)
}

func TestKernelAcquireBlocksUntilRelease(t *testing.T) {
	b := sysvipc.DefaultBackend()
	set, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 1, 0o600)
	skipWithoutIPC(t, err)
	require.NoError(t, err)
	defer set.Remove()

	sem := set.Semaphore(0)
	done := make(chan error, 1)
	go func() {
		done <- sem.Acquire()
	}()

	require.Eventually(t, func() bool {
		n, err := set.WaitingForIncrease(0)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Acquire returned before Release: %v", err)
	default:
	}

	require.NoError(t, sem.Release())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return after Release")
	}

	v, err := set.Value(0)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestKernelSegment(t *testing.T) {
	b := sysvipc.DefaultBackend()
	seg, err := sysvipc.CreateSegment(b, sysvipc.IPCPrivate, 4096, 0o600)
	skipWithoutIPC(t, err)
	require.NoError(t, err)
	defer seg.Remove()

	require.NoError(t, seg.Attach(false))
	_, err = seg.WriteAt([]byte("shared"), 10)
	require.NoError(t, err)

	info, err := seg.Stat()
	require.NoError(t, err)
	assert.Equal(t, 4096, info.Size)
	assert.Equal(t, 1, info.Attached)

	require.NoError(t, seg.Detach())
	require.NoError(t, seg.Attach(true))
	buf := make([]byte, 6)
	_, err = seg.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(buf))
	require.NoError(t, seg.Detach())
}

func TestKernelQueue(t *testing.T) {
	b := sysvipc.DefaultBackend()
	q, err := sysvipc.CreateQueue(b, sysvipc.IPCPrivate, 0o600)
	skipWithoutIPC(t, err)
	require.NoError(t, err)
	defer q.Remove()

	require.NoError(t, q.Send(4, []byte("over the kernel")))
	mtype, data, err := q.TryReceive(0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), mtype)
	assert.Equal(t, "over the kernel", string(data))

	_, _, err = q.TryReceive(0)
	assert.ErrorIs(t, err, sysvipc.ErrResourceUnavailable)
	assert.ErrorIs(t, err, unix.ENOMSG)

	require.NoError(t, q.SendValue(1, map[string]int{"n": 3}))
	var got map[string]int
	_, err = q.ReceiveValue(1, &got)
	require.NoError(t, err)
	assert.Equal(t, 3, got["n"])
}
