package sysvipc

import (
	"errors"
	"fmt"
	"io"
	"unsafe"
)

// ErrDetached is returned by data access on a Segment that is not attached.
var ErrDetached = errors.New("sysvipc: segment not attached")

// Segment is a System V shared memory segment. Once attached it implements
// io.Reader, io.Writer, io.Seeker, io.ReaderAt and io.WriterAt over the mapped
// memory.
//
// A Segment is not safe for concurrent use; coordinate access between
// processes with a SemaphoreSet.
//
// Example:
//
//	seg, _ := sysvipc.CreateSegment(sysvipc.DefaultBackend(), key, 1<<20, 0o600)
//	_ = seg.Attach(false)
//	seg.Write([]byte("hello"))
//	seg.Detach()
type Segment struct {
	backend SharedMemoryBackend

	// data is the attached mapping, nil when detached
	data     []byte
	readOnly bool

	// pos is the current read/write position
	pos int64

	// ID is the kernel identifier of the segment.
	ID int

	// Key is the key the segment was created or opened with.
	Key Key
}

// CreateSegment creates a segment of size bytes. With a key other than
// IPCPrivate it fails if a segment already exists for the key.
func CreateSegment(b SharedMemoryBackend, key Key, size, perm int) (*Segment, error) {
	if size <= 0 {
		return nil, &OpError{Op: "shmget", ID: -1, Index: -1, Err: ErrInvalidArgument}
	}
	return getSegment(b, key, size, IPCCreat|IPCExcl|(perm&0o777))
}

// OpenSegment opens the existing segment for key.
func OpenSegment(b SharedMemoryBackend, key Key) (*Segment, error) {
	return getSegment(b, key, 0, 0)
}

// SegmentFromID returns a detached handle on the existing segment id.
func SegmentFromID(b SharedMemoryBackend, id int) *Segment {
	return &Segment{backend: b, ID: id}
}

func getSegment(b SharedMemoryBackend, key Key, size, flags int) (*Segment, error) {
	id, err := b.ShmGet(key, size, flags)
	if err != nil {
		return nil, newOpError("shmget", -1, err)
	}
	return &Segment{backend: b, ID: id, Key: key}, nil
}

// Attach maps the segment into the process. Attaching an attached segment is a
// no-op.
func (s *Segment) Attach(readOnly bool) error {
	if s.data != nil {
		return nil
	}
	flags := 0
	if readOnly {
		flags = ShmReadOnly
	}
	data, err := s.backend.ShmAttach(s.ID, flags)
	if err != nil {
		return newOpError("shmat", s.ID, err)
	}
	s.data, s.readOnly, s.pos = data, readOnly, 0
	return nil
}

// Detach unmaps the segment. Slices obtained from Bytes or TypedSlice must not
// be used afterwards.
func (s *Segment) Detach() error {
	if s.data == nil {
		return nil
	}
	if err := s.backend.ShmDetach(s.data); err != nil {
		return newOpError("shmdt", s.ID, err)
	}
	s.data = nil
	return nil
}

// Attached reports whether the segment is mapped.
func (s *Segment) Attached() bool {
	return s.data != nil
}

// Size returns the size of the mapping, or 0 when detached.
func (s *Segment) Size() int {
	return len(s.data)
}

// Bytes returns the mapped memory. Writes to it are visible to every process
// attached to the segment.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Stat reports the kernel's view of the segment.
func (s *Segment) Stat() (SegmentInfo, error) {
	info, err := s.backend.ShmStat(s.ID)
	if err != nil {
		return SegmentInfo{}, newOpError("shmctl", s.ID, err)
	}
	return info, nil
}

// Remove marks the segment for destruction. The kernel frees it once the last
// process detaches.
func (s *Segment) Remove() error {
	if err := s.backend.ShmRemove(s.ID); err != nil {
		return newOpError("shmctl", s.ID, err)
	}
	return nil
}

// Read reads up to len(p) bytes at the current position.
func (s *Segment) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes starting at off. It returns io.EOF when fewer bytes
// remain.
func (s *Segment) ReadAt(p []byte, off int64) (int, error) {
	if s.data == nil {
		return 0, ErrDetached
	}
	if off < 0 {
		return 0, fmt.Errorf("sysvipc: negative offset %d", off)
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write writes p at the current position.
func (s *Segment) Write(p []byte) (int, error) {
	n, err := s.WriteAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// WriteAt writes p starting at off. Bytes that do not fit are dropped and
// io.ErrShortWrite is returned.
func (s *Segment) WriteAt(p []byte, off int64) (int, error) {
	if s.data == nil {
		return 0, ErrDetached
	}
	if s.readOnly {
		return 0, fmt.Errorf("sysvipc: segment %d attached read-only", s.ID)
	}
	if off < 0 || off > int64(len(s.data)) {
		return 0, fmt.Errorf("sysvipc: offset %d out of range", off)
	}
	n := copy(s.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Seek sets the position for the next Read or Write.
func (s *Segment) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += s.pos
	case io.SeekEnd:
		offset += int64(len(s.data))
	default:
		return 0, fmt.Errorf("sysvipc: invalid whence %d", whence)
	}
	if offset < 0 || offset > int64(len(s.data)) {
		return 0, fmt.Errorf("sysvipc: invalid offset %d", offset)
	}
	s.pos = offset
	return offset, nil
}

// TypedSlice returns a zero-copy view of the attached segment as []T, starting
// at offset and covering as many whole elements as fit. offset must be aligned
// for T. The slice is only valid while the segment stays attached.
func TypedSlice[T any](s *Segment, offset int) []T {
	size := int(unsafe.Sizeof(*new(T)))
	if s.data == nil || size == 0 || offset < 0 || offset >= len(s.data) {
		return nil
	}
	n := (len(s.data) - offset) / size
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&s.data[offset])), n)
}

// Uint32Slice returns a uint32 view of the segment at offset.
func (s *Segment) Uint32Slice(offset int) []uint32 {
	return TypedSlice[uint32](s, offset)
}

// Int64Slice returns an int64 view of the segment at offset.
func (s *Segment) Int64Slice(offset int) []int64 {
	return TypedSlice[int64](s, offset)
}

// Float64Slice returns a float64 view of the segment at offset.
func (s *Segment) Float64Slice(offset int) []float64 {
	return TypedSlice[float64](s, offset)
}
