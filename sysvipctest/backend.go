// Package sysvipctest provides an in-memory sysvipc.Backend for tests.
//
// The backend follows Linux semantics for every call it supports, with one
// difference: it never blocks. A semaphore request that cannot proceed, a send
// to a full queue and a receive from an empty queue all fail immediately
// (EAGAIN, EAGAIN and ENOMSG), which lets tests drive the executor's retry
// logic deterministically. Use RefuseNext and SetValueAfter to script
// refusals.
package sysvipctest

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/richinsley/sysvipc"
)

// Kernel limits mirrored from Linux.
const (
	SemValueMax = 32767
	QueueBytes  = 16384
)

// Call records one backend invocation.
type Call struct {
	Method string
	ID     int
	Op     sysvipc.Op
}

type semSet struct {
	key     sysvipc.Key
	values  []int
	lastPID []int
	mode    int

	// refusals forces EAGAIN for the next refusals SemOp calls
	refusals int

	// flip is applied once its refusal budget is spent
	flip   *valueFlip
	forced error
}

type valueFlip struct {
	after int
	num   int
	value int
}

type segment struct {
	key      sysvipc.Key
	data     []byte
	attached int
	lastPID  int
	mode     int
	removed  bool
}

type message struct {
	mtype int64
	data  []byte
}

type queue struct {
	key      sysvipc.Key
	messages []message
	bytes    int
}

// Backend is an in-memory sysvipc.Backend. It is safe for concurrent use.
type Backend struct {
	mu     sync.Mutex
	nextID int
	pid    int

	sems      map[int]*semSet
	semKeys   map[sysvipc.Key]int
	segs      map[int]*segment
	segKeys   map[sysvipc.Key]int
	queues    map[int]*queue
	queueKeys map[sysvipc.Key]int
	files     map[string]sysvipc.FileIdentity

	calls []Call
}

var _ sysvipc.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		nextID:    1,
		pid:       os.Getpid(),
		sems:      make(map[int]*semSet),
		semKeys:   make(map[sysvipc.Key]int),
		segs:      make(map[int]*segment),
		segKeys:   make(map[sysvipc.Key]int),
		queues:    make(map[int]*queue),
		queueKeys: make(map[sysvipc.Key]int),
		files:     make(map[string]sysvipc.FileIdentity),
	}
}

// AddFile registers path with the given identity for Identify.
func (b *Backend) AddFile(path string, fid sysvipc.FileIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[path] = fid
}

// RefuseNext makes the next n SemOp calls on semid fail with EAGAIN without
// looking at the semaphore values.
func (b *Backend) RefuseNext(semid, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sems[semid]; ok {
		s.refusals = n
	}
}

// SetValueAfter sets semaphore num of semid to value once refusals SemOp calls
// on the set have been refused, as if another process had changed it.
func (b *Backend) SetValueAfter(semid, num, refusals, value int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sems[semid]; ok {
		s.flip = &valueFlip{after: refusals, num: num, value: value}
	}
}

// FailNext makes the next SemOp call on semid fail with err.
func (b *Backend) FailNext(semid int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sems[semid]; ok {
		s.forced = err
	}
}

// Values returns a copy of the semaphore values of semid, or nil.
func (b *Backend) Values(semid int) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sems[semid]
	if !ok {
		return nil
	}
	return append([]int(nil), s.values...)
}

// Calls returns every recorded call in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallCount returns the number of recorded calls of method.
func (b *Backend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *Backend) record(method string, id int, op sysvipc.Op) {
	b.calls = append(b.calls, Call{Method: method, ID: id, Op: op})
}

// lookup resolves key against keys following the shared get rules.
func (b *Backend) lookup(keys map[sysvipc.Key]int, key sysvipc.Key, flags int) (int, bool, error) {
	if key == sysvipc.IPCPrivate {
		return 0, false, nil
	}
	id, ok := keys[key]
	switch {
	case ok && flags&sysvipc.IPCCreat != 0 && flags&sysvipc.IPCExcl != 0:
		return 0, false, unix.EEXIST
	case ok:
		return id, true, nil
	case flags&sysvipc.IPCCreat == 0:
		return 0, false, unix.ENOENT
	}
	return 0, false, nil
}

func (b *Backend) allocID() int {
	id := b.nextID
	b.nextID++
	return id
}

func (b *Backend) SemGet(key sysvipc.Key, nsems, flags int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SemGet", -1, sysvipc.Op{})

	id, found, err := b.lookup(b.semKeys, key, flags)
	if err != nil {
		return -1, err
	}
	if found {
		if nsems > len(b.sems[id].values) {
			return -1, unix.EINVAL
		}
		return id, nil
	}
	if nsems <= 0 {
		return -1, unix.EINVAL
	}
	id = b.allocID()
	b.sems[id] = &semSet{
		key:     key,
		values:  make([]int, nsems),
		lastPID: make([]int, nsems),
		mode:    flags & 0o777,
	}
	if key != sysvipc.IPCPrivate {
		b.semKeys[key] = id
	}
	return id, nil
}

func (b *Backend) SemOp(semid int, op sysvipc.Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SemOp", semid, op)

	s, ok := b.sems[semid]
	if !ok {
		return unix.EINVAL
	}
	if s.forced != nil {
		err := s.forced
		s.forced = nil
		return err
	}
	if int(op.Num) >= len(s.values) {
		return unix.EFBIG
	}
	if s.refusals > 0 {
		s.refusals--
		return b.refuse(s)
	}

	v := s.values[op.Num]
	switch {
	case op.Delta < 0 && v+int(op.Delta) < 0:
		return b.refuse(s)
	case op.Delta == 0 && v != 0:
		return b.refuse(s)
	case v+int(op.Delta) > SemValueMax:
		return unix.ERANGE
	}
	s.values[op.Num] = v + int(op.Delta)
	s.lastPID[op.Num] = b.pid
	return nil
}

// refuse counts a refusal against the pending flip and returns EAGAIN.
func (b *Backend) refuse(s *semSet) error {
	if f := s.flip; f != nil {
		f.after--
		if f.after <= 0 {
			s.values[f.num] = f.value
			s.flip = nil
		}
	}
	return unix.EAGAIN
}

func (b *Backend) SemCtl(semid, semnum int, cmd sysvipc.SemCmd, arg sysvipc.SemArg) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SemCtl", semid, sysvipc.Op{})

	s, ok := b.sems[semid]
	if !ok {
		return -1, unix.EINVAL
	}
	switch cmd {
	case sysvipc.SemRemove:
		delete(b.sems, semid)
		if s.key != sysvipc.IPCPrivate {
			delete(b.semKeys, s.key)
		}
		return 0, nil
	case sysvipc.SemStat:
		return len(s.values), nil
	case sysvipc.SemGetAll:
		if len(arg.Array) < len(s.values) {
			return -1, unix.EINVAL
		}
		for i, v := range s.values {
			arg.Array[i] = uint16(v)
		}
		return 0, nil
	case sysvipc.SemSetAll:
		if len(arg.Array) < len(s.values) {
			return -1, unix.EINVAL
		}
		for i := range s.values {
			if int(arg.Array[i]) > SemValueMax {
				return -1, unix.ERANGE
			}
		}
		for i := range s.values {
			s.values[i] = int(arg.Array[i])
		}
		return 0, nil
	}

	if semnum < 0 || semnum >= len(s.values) {
		return -1, unix.EINVAL
	}
	switch cmd {
	case sysvipc.SemGetVal:
		return s.values[semnum], nil
	case sysvipc.SemSetVal:
		if arg.Val < 0 || arg.Val > SemValueMax {
			return -1, unix.ERANGE
		}
		s.values[semnum] = arg.Val
		return 0, nil
	case sysvipc.SemGetPID:
		return s.lastPID[semnum], nil
	case sysvipc.SemGetNCnt, sysvipc.SemGetZCnt:
		// nothing ever waits here
		return 0, nil
	}
	return -1, unix.EINVAL
}

func (b *Backend) ShmGet(key sysvipc.Key, size, flags int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ShmGet", -1, sysvipc.Op{})

	id, found, err := b.lookup(b.segKeys, key, flags)
	if err != nil {
		return -1, err
	}
	if found {
		if size > len(b.segs[id].data) {
			return -1, unix.EINVAL
		}
		return id, nil
	}
	if size <= 0 {
		return -1, unix.EINVAL
	}
	id = b.allocID()
	b.segs[id] = &segment{key: key, data: make([]byte, size), mode: flags & 0o777}
	if key != sysvipc.IPCPrivate {
		b.segKeys[key] = id
	}
	return id, nil
}

// ShmAttach returns the segment's backing array, so every attachment shares
// the same memory.
func (b *Backend) ShmAttach(shmid, flags int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ShmAttach", shmid, sysvipc.Op{})

	s, ok := b.segs[shmid]
	if !ok || s.removed {
		return nil, unix.EINVAL
	}
	s.attached++
	s.lastPID = b.pid
	return s.data, nil
}

func (b *Backend) ShmDetach(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ShmDetach", -1, sysvipc.Op{})

	if len(data) == 0 {
		return unix.EINVAL
	}
	for id, s := range b.segs {
		if &s.data[0] != &data[0] || s.attached == 0 {
			continue
		}
		s.attached--
		s.lastPID = b.pid
		if s.removed && s.attached == 0 {
			delete(b.segs, id)
		}
		return nil
	}
	return unix.EINVAL
}

func (b *Backend) ShmStat(shmid int) (sysvipc.SegmentInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ShmStat", shmid, sysvipc.Op{})

	s, ok := b.segs[shmid]
	if !ok {
		return sysvipc.SegmentInfo{}, unix.EINVAL
	}
	return sysvipc.SegmentInfo{
		Size:       len(s.data),
		Attached:   s.attached,
		CreatorPID: b.pid,
		LastPID:    s.lastPID,
		Mode:       uint32(s.mode),
	}, nil
}

func (b *Backend) ShmRemove(shmid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ShmRemove", shmid, sysvipc.Op{})

	s, ok := b.segs[shmid]
	if !ok {
		return unix.EINVAL
	}
	if s.key != sysvipc.IPCPrivate {
		delete(b.segKeys, s.key)
	}
	s.removed = true
	if s.attached == 0 {
		delete(b.segs, shmid)
	}
	return nil
}

func (b *Backend) MsgGet(key sysvipc.Key, flags int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("MsgGet", -1, sysvipc.Op{})

	id, found, err := b.lookup(b.queueKeys, key, flags)
	if err != nil {
		return -1, err
	}
	if found {
		return id, nil
	}
	id = b.allocID()
	b.queues[id] = &queue{key: key}
	if key != sysvipc.IPCPrivate {
		b.queueKeys[key] = id
	}
	return id, nil
}

func (b *Backend) MsgSend(msqid int, mtype int64, data []byte, flags int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("MsgSend", msqid, sysvipc.Op{})

	q, ok := b.queues[msqid]
	if !ok || mtype <= 0 {
		return unix.EINVAL
	}
	if q.bytes+len(data) > QueueBytes {
		return unix.EAGAIN
	}
	q.messages = append(q.messages, message{mtype: mtype, data: append([]byte(nil), data...)})
	q.bytes += len(data)
	return nil
}

func (b *Backend) MsgReceive(msqid int, buf []byte, mtype int64, flags int) (int64, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("MsgReceive", msqid, sysvipc.Op{})

	q, ok := b.queues[msqid]
	if !ok {
		return 0, 0, unix.EINVAL
	}
	i := q.match(mtype)
	if i < 0 {
		return 0, 0, unix.ENOMSG
	}
	m := q.messages[i]
	if len(m.data) > len(buf) && flags&sysvipc.MsgNoError == 0 {
		return 0, 0, unix.E2BIG
	}
	q.messages = append(q.messages[:i], q.messages[i+1:]...)
	q.bytes -= len(m.data)
	return m.mtype, copy(buf, m.data), nil
}

// match returns the index of the message selected by mtype, or -1.
func (q *queue) match(mtype int64) int {
	best := -1
	for i, m := range q.messages {
		switch {
		case mtype == 0:
			return i
		case mtype > 0 && m.mtype == mtype:
			return i
		case mtype < 0 && m.mtype <= -mtype:
			if best < 0 || m.mtype < q.messages[best].mtype {
				best = i
			}
		}
	}
	return best
}

func (b *Backend) MsgRemove(msqid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("MsgRemove", msqid, sysvipc.Op{})

	q, ok := b.queues[msqid]
	if !ok {
		return unix.EINVAL
	}
	delete(b.queues, msqid)
	if q.key != sysvipc.IPCPrivate {
		delete(b.queueKeys, q.key)
	}
	return nil
}

func (b *Backend) Identify(path string) (sysvipc.FileIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Identify", -1, sysvipc.Op{})

	fid, ok := b.files[path]
	if !ok {
		return sysvipc.FileIdentity{}, unix.ENOENT
	}
	return fid, nil
}
