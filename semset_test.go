package sysvipc_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/sysvipc"
	"github.com/richinsley/sysvipc/sysvipctest"
)

func TestSemaphoreSetLifecycle(t *testing.T) {
	b := sysvipctest.New()
	key := sysvipc.Key(0x41000001)

	set, err := sysvipc.CreateSemaphoreSet(b, key, 3, 0o600)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Count)
	assert.Equal(t, key, set.Key)

	_, err = sysvipc.CreateSemaphoreSet(b, key, 3, 0o600)
	assert.ErrorIs(t, err, sysvipc.ErrKernelRejected)

	other, err := sysvipc.OpenSemaphoreSet(b, key, 3)
	require.NoError(t, err)
	assert.Equal(t, set.ID, other.ID)

	require.NoError(t, set.SetValues([]uint16{1, 2, 3}))
	vals, err := other.Values()
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, vals)

	require.NoError(t, set.SetValue(1, 7))
	v, err := other.Value(1)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	require.NoError(t, set.Apply(sysvipc.Op{Num: 2, Delta: -3}))
	pid, err := set.LastPID(2)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	n, err := set.WaitingForIncrease(0)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = set.WaitingForZero(0)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, set.Remove())
	_, err = set.Value(0)
	assert.ErrorIs(t, err, sysvipc.ErrInvalidArgument)

	_, err = sysvipc.OpenSemaphoreSet(b, key, 3)
	assert.ErrorIs(t, err, sysvipc.ErrNotFound)
}

func TestSemaphoreSetValidation(t *testing.T) {
	b := sysvipctest.New()

	_, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 0, 0o600)
	assert.ErrorIs(t, err, sysvipc.ErrInvalidArgument)
	assert.Empty(t, b.Calls())

	set, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 2, 0o600)
	require.NoError(t, err)
	assert.ErrorIs(t, set.SetValues([]uint16{1}), sysvipc.ErrInvalidArgument)
	assert.ErrorIs(t, set.Apply(), sysvipc.ErrInvalidArgument)
}

func TestSemaphoreMember(t *testing.T) {
	b := sysvipctest.New()
	set, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 2, 0o600)
	require.NoError(t, err)
	require.NoError(t, set.SetValue(1, 1))

	sem := set.Semaphore(1)
	ok, err := sem.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sem.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sem.Release())
	require.NoError(t, sem.Acquire())
	assert.Equal(t, []int{0, 0}, b.Values(set.ID))

	for _, c := range b.Calls() {
		if c.Method == "SemOp" {
			assert.NotZero(t, c.Op.Flags&sysvipc.Undo)
			assert.Equal(t, uint16(1), c.Op.Num)
		}
	}
	assert.NoError(t, sem.Close())
}

func TestSemaphoreAcquireWaitsForRelease(t *testing.T) {
	b := sysvipctest.New()
	set, err := sysvipc.CreateSemaphoreSet(b, sysvipc.IPCPrivate, 1, 0o600)
	require.NoError(t, err)

	b.ResetCalls()
	b.SetValueAfter(set.ID, 0, 5, 1)
	require.NoError(t, set.Semaphore(0).Acquire())
	assert.Equal(t, 6, b.CallCount("SemOp"))
}

func TestSemaphoreSetValuesUseKernelSize(t *testing.T) {
	b := sysvipctest.New()
	created, err := sysvipc.CreateSemaphoreSet(b, sysvipc.Key(0x41000002), 4, 0o600)
	require.NoError(t, err)
	require.NoError(t, created.SetValues([]uint16{11, 22, 33, 44}))

	set, err := sysvipc.OpenSemaphoreSet(b, sysvipc.Key(0x41000002), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Count)

	n, err := set.Len()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	vals, err := set.Values()
	require.NoError(t, err)
	assert.Equal(t, []uint16{11, 22, 33, 44}, vals)

	vals, err = sysvipc.SemaphoreSetFromID(b, created.ID, 1).Values()
	require.NoError(t, err)
	assert.Len(t, vals, 4)

	err = set.SetValues([]uint16{1})
	assert.ErrorIs(t, err, sysvipc.ErrInvalidArgument)
	assert.Equal(t, []int{11, 22, 33, 44}, b.Values(created.ID))

	require.NoError(t, set.SetValues([]uint16{4, 3, 2, 1}))
	assert.Equal(t, []int{4, 3, 2, 1}, b.Values(created.ID))
}
