package sysvipc

// Serializer defines the interface for message encoding and decoding.
// Queue uses it for SendValue and ReceiveValue; the default implementation is
// MessagePack.
type Serializer interface {
	// Marshal encodes a Go value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes bytes into a Go value.
	Unmarshal(data []byte, v any) error
}

// Transport defines the interface for sending and receiving byte messages.
// Queue.Transport adapts a message queue to it, one message per call.
type Transport interface {
	// Send transmits a message to the remote endpoint.
	Send(data []byte) error

	// Receive blocks until a complete message arrives.
	Receive() ([]byte, error)

	// Close releases transport resources.
	Close() error

	// Flush ensures any buffered data is sent immediately.
	Flush() error
}
