package sysvipc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sys  error
		want error
	}{
		{unix.EAGAIN, ErrResourceUnavailable},
		{unix.EINTR, ErrInterrupted},
		{unix.ENOENT, ErrNotFound},
		{unix.EINVAL, ErrInvalidArgument},
		{unix.EACCES, ErrKernelRejected},
		{unix.EIDRM, ErrKernelRejected},
		{unix.EEXIST, ErrKernelRejected},
		{ErrNotSupported, ErrNotSupported},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.sys), "classify(%v)", tt.sys)
	}
	assert.Nil(t, classify(nil))
}

func TestOpErrorUnwrapsKindAndErrno(t *testing.T) {
	err := error(newOpError("semctl", 4, unix.EPERM))

	assert.True(t, errors.Is(err, ErrKernelRejected))
	assert.True(t, errors.Is(err, unix.EPERM))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "sysvipc: semctl id 4: rejected by kernel: operation not permitted", err.Error())
}

func TestOpErrorFormatting(t *testing.T) {
	tests := []struct {
		err  *OpError
		want string
	}{
		{
			&OpError{Op: "semop", ID: 3, Index: -1, Err: ErrInvalidArgument},
			"sysvipc: semop id 3: invalid argument",
		},
		{
			&OpError{Op: "semop", ID: 3, Index: 2, Err: ErrInterrupted, Sys: unix.EINTR},
			"sysvipc: semop id 3 op 2: interrupted: interrupted system call",
		},
		{
			&OpError{Op: "ftok", ID: -1, Index: -1, Path: "/tmp/x", Err: ErrNotFound, Sys: unix.ENOENT},
			"sysvipc: ftok /tmp/x: no such file or directory: no such file or directory",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestKindLabel(t *testing.T) {
	assert.Equal(t, "invalid_argument", kindLabel(ErrInvalidArgument))
	assert.Equal(t, "resource_unavailable", kindLabel(ErrResourceUnavailable))
	assert.Equal(t, "interrupted", kindLabel(ErrInterrupted))
	assert.Equal(t, "not_found", kindLabel(ErrNotFound))
	assert.Equal(t, "kernel_rejected", kindLabel(ErrKernelRejected))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.applied()
		m.retried()
		m.failed(ErrInterrupted)
	})
}
