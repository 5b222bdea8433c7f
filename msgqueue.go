package sysvipc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MaxMessageSize is the largest payload Queue sends or receives (Linux MSGMAX).
const MaxMessageSize = 8192

// Queue is a System V message queue. Every message carries a positive type;
// receivers select by type.
//
// Example:
//
//	q, _ := sysvipc.CreateQueue(sysvipc.DefaultBackend(), key, 0o600)
//	_ = q.SendValue(1, Job{ID: 7})
//
//	var job Job
//	_, _ = q.ReceiveValue(1, &job)
type Queue struct {
	backend    MessageQueueBackend
	serializer Serializer
	buffers    *BufferPool

	// ID is the kernel identifier of the queue.
	ID int

	// Key is the key the queue was created or opened with.
	Key Key
}

// CreateQueue creates a queue. With a key other than IPCPrivate it fails if a
// queue already exists for the key.
func CreateQueue(b MessageQueueBackend, key Key, perm int) (*Queue, error) {
	return getQueue(b, key, IPCCreat|IPCExcl|(perm&0o777))
}

// OpenQueue opens the existing queue for key.
func OpenQueue(b MessageQueueBackend, key Key) (*Queue, error) {
	return getQueue(b, key, 0)
}

// QueueFromID returns a handle on the existing queue id.
func QueueFromID(b MessageQueueBackend, id int) *Queue {
	return newQueue(b, id, IPCPrivate)
}

func getQueue(b MessageQueueBackend, key Key, flags int) (*Queue, error) {
	id, err := b.MsgGet(key, flags)
	if err != nil {
		return nil, newOpError("msgget", -1, err)
	}
	return newQueue(b, id, key), nil
}

func newQueue(b MessageQueueBackend, id int, key Key) *Queue {
	return &Queue{
		backend:    b,
		serializer: MsgpackSerializer{},
		buffers:    NewBufferPool(MaxMessageSize, 4),
		ID:         id,
		Key:        key,
	}
}

// SetSerializer replaces the serializer used by SendValue and ReceiveValue.
func (q *Queue) SetSerializer(s Serializer) {
	q.serializer = s
}

// Send enqueues data with type mtype, waiting while the queue is full.
func (q *Queue) Send(mtype int64, data []byte) error {
	return q.send(mtype, data, 0)
}

// TrySend is Send failing with ErrResourceUnavailable when the queue is full.
func (q *Queue) TrySend(mtype int64, data []byte) error {
	return q.send(mtype, data, IPCNoWait)
}

func (q *Queue) send(mtype int64, data []byte, flags int) error {
	if mtype <= 0 || len(data) > MaxMessageSize {
		return &OpError{Op: "msgsnd", ID: q.ID, Index: -1, Err: ErrInvalidArgument}
	}
	if err := q.backend.MsgSend(q.ID, mtype, data, flags); err != nil {
		return newOpError("msgsnd", q.ID, err)
	}
	return nil
}

// Receive dequeues a message, waiting until one is available. mtype selects
// the message: 0 takes the first message, a positive value the first message
// of that type, a negative value the first message with the lowest type not
// above -mtype. It returns the message type and a copy of the payload.
func (q *Queue) Receive(mtype int64) (int64, []byte, error) {
	return q.receive(mtype, 0)
}

// TryReceive is Receive returning immediately when no message matches. That
// case fails with ErrResourceUnavailable; the error still matches unix.ENOMSG.
func (q *Queue) TryReceive(mtype int64) (int64, []byte, error) {
	return q.receive(mtype, IPCNoWait)
}

func (q *Queue) receive(mtype int64, flags int) (int64, []byte, error) {
	buf := q.buffers.Get()
	defer q.buffers.Put(buf)

	got, n, err := q.backend.MsgReceive(q.ID, buf, mtype, flags)
	if flags&IPCNoWait != 0 && errors.Is(err, unix.ENOMSG) {
		return 0, nil, &OpError{Op: "msgrcv", ID: q.ID, Index: -1, Err: ErrResourceUnavailable, Sys: err}
	}
	if err != nil {
		return 0, nil, newOpError("msgrcv", q.ID, err)
	}
	data := make([]byte, n)
	copy(data, buf[:n])
	return got, data, nil
}

// SendValue serializes v and sends it with type mtype.
func (q *Queue) SendValue(mtype int64, v any) error {
	data, err := q.serializer.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.Send(mtype, data)
}

// ReceiveValue receives a message selected by mtype and decodes it into v.
func (q *Queue) ReceiveValue(mtype int64, v any) (int64, error) {
	buf := q.buffers.Get()
	defer q.buffers.Put(buf)

	got, n, err := q.backend.MsgReceive(q.ID, buf, mtype, 0)
	if err != nil {
		return 0, newOpError("msgrcv", q.ID, err)
	}
	if err := q.serializer.Unmarshal(buf[:n], v); err != nil {
		return got, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return got, nil
}

// Remove destroys the queue, waking every waiter with an error.
func (q *Queue) Remove() error {
	if err := q.backend.MsgRemove(q.ID); err != nil {
		return newOpError("msgctl", q.ID, err)
	}
	return nil
}

// Transport adapts the queue to a Transport that sends messages of type
// sendType and receives messages of type recvType. Two processes talk over one
// queue by swapping the types.
func (q *Queue) Transport(sendType, recvType int64) Transport {
	return &queueTransport{queue: q, sendType: sendType, recvType: recvType}
}

type queueTransport struct {
	queue    *Queue
	sendType int64
	recvType int64
}

func (t *queueTransport) Send(data []byte) error {
	return t.queue.Send(t.sendType, data)
}

func (t *queueTransport) Receive() ([]byte, error) {
	_, data, err := t.queue.Receive(t.recvType)
	return data, err
}

// Close leaves the queue in place; use Queue.Remove to destroy it.
func (t *queueTransport) Close() error {
	return nil
}

// Flush is a no-op: every Send is a complete kernel message.
func (t *queueTransport) Flush() error {
	return nil
}
