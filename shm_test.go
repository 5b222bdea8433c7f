package sysvipc_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinsley/sysvipc"
	"github.com/richinsley/sysvipc/sysvipctest"
)

func TestSegmentReadWrite(t *testing.T) {
	b := sysvipctest.New()
	key := sysvipc.Key(0x53000001)

	seg, err := sysvipc.CreateSegment(b, key, 64, 0o600)
	require.NoError(t, err)
	require.NoError(t, seg.Attach(false))
	assert.True(t, seg.Attached())
	assert.Equal(t, 64, seg.Size())

	n, err := seg.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// a second process attaching by key sees the write
	peer, err := sysvipc.OpenSegment(b, key)
	require.NoError(t, err)
	require.NoError(t, peer.Attach(true))
	buf := make([]byte, 5)
	_, err = peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	_, err = peer.Write([]byte("x"))
	assert.Error(t, err)

	info, err := seg.Stat()
	require.NoError(t, err)
	assert.Equal(t, 64, info.Size)
	assert.Equal(t, 2, info.Attached)
	assert.Equal(t, uint32(0o600), info.Mode)

	require.NoError(t, peer.Detach())
	require.NoError(t, seg.Remove())
	require.NoError(t, seg.Detach())
	assert.False(t, seg.Attached())

	_, err = seg.Stat()
	assert.Error(t, err)
}

func TestSegmentSeekAndBounds(t *testing.T) {
	b := sysvipctest.New()
	seg, err := sysvipc.CreateSegment(b, sysvipc.IPCPrivate, 16, 0o600)
	require.NoError(t, err)

	_, err = seg.Read(make([]byte, 1))
	assert.ErrorIs(t, err, sysvipc.ErrDetached)

	require.NoError(t, seg.Attach(false))

	pos, err := seg.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)

	n, err := seg.Write([]byte("abcdef"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 4, n)

	_, err = seg.Seek(1, io.SeekCurrent)
	assert.Error(t, err)

	buf := make([]byte, 8)
	n, err = seg.ReadAt(buf, 12)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "abcd", string(buf[:n]))

	_, err = seg.ReadAt(buf, 16)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSegmentTypedSlices(t *testing.T) {
	b := sysvipctest.New()
	seg, err := sysvipc.CreateSegment(b, sysvipc.IPCPrivate, 32, 0o600)
	require.NoError(t, err)
	assert.Nil(t, seg.Uint32Slice(0))

	require.NoError(t, seg.Attach(false))
	words := seg.Uint32Slice(0)
	require.Len(t, words, 8)
	assert.Len(t, seg.Int64Slice(8), 3)
	assert.Len(t, seg.Float64Slice(0), 4)
	assert.Nil(t, sysvipc.TypedSlice[uint64](seg, 32))

	words[0] = 0xffffffff
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, seg.Bytes()[:4])
}

func TestSegmentValidation(t *testing.T) {
	b := sysvipctest.New()
	_, err := sysvipc.CreateSegment(b, sysvipc.IPCPrivate, 0, 0o600)
	assert.ErrorIs(t, err, sysvipc.ErrInvalidArgument)

	_, err = sysvipc.OpenSegment(b, sysvipc.Key(0x1234))
	assert.ErrorIs(t, err, sysvipc.ErrNotFound)
}
