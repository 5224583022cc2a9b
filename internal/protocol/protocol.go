// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"
)

// Reader is the read-only path used by the capture sink
type Reader interface {
	ReadAvailable(ctx context.Context, buf []byte) (int, error)
}

// Writer is the write-only path used by the command emitter
type Writer interface {
	Write(ctx context.Context, data []byte) error
}

// Tunable is the view of a port used while negotiating its speed.
// Every method except Write mutates handle state and must not run once capture has begun.
type Tunable interface {
	Writer

	SendBreak(ctx context.Context, duration time.Duration) error
	SetBaudRate(rate int) error
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
	ReadWithTimeout(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error)
}

// Transport is a full-duplex serial handle owned by a single session
type Transport interface {
	Tunable
	Reader

	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Freeze rejects further baud and timeout changes
	Freeze()

	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64     `json:"bytes_written"`
	BytesRead      int64     `json:"bytes_read"`
	OperationCount int64     `json:"operation_count"`
	ErrorCount     int64     `json:"error_count"`
	LastActivity   time.Time `json:"last_activity"`
	BaudRate       int       `json:"baud_rate"`
	IsConnected    bool      `json:"is_connected"`
}
