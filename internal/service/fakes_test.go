package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"novatel-logger/internal/config"
	"novatel-logger/internal/model"
	"novatel-logger/internal/protocol"
)

// scriptedReader returns one scripted chunk per call, then empty reads
type scriptedReader struct {
	mu     sync.Mutex
	chunks [][]byte
	fail   error
	calls  int
}

func (r *scriptedReader) ReadAvailable(ctx context.Context, buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if len(r.chunks) > 0 {
		chunk := r.chunks[0]
		r.chunks = r.chunks[1:]
		return copy(buf, chunk), nil
	}
	if r.fail != nil {
		return 0, r.fail
	}
	return 0, nil
}

func (r *scriptedReader) exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks) == 0
}

// memoryOutput records writes, flushes and closes
type memoryOutput struct {
	mu      sync.Mutex
	data    bytes.Buffer
	writes  int
	flushes int
	closes  int
}

func (m *memoryOutput) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return m.data.Write(p)
}

func (m *memoryOutput) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memoryOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *memoryOutput) snapshot() (string, int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.String(), m.writes, m.flushes, m.closes
}

// fakeTransport simulates a receiver answering at ackAt and streaming once commands arrive
type fakeTransport struct {
	mu sync.Mutex

	ackAt    int
	openErr  error
	baudRate int
	frozen   bool
	open     bool
	closed   bool
	pending  []byte
	writes   []string
	stream   chan []byte
	opens    int
	closes   int
}

func newFakeTransport(ackAt int) *fakeTransport {
	return &fakeTransport{ackAt: ackAt, stream: make(chan []byte, 16)}
}

var _ protocol.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
	f.closed = true
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Freeze() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frozen = true
}

func (f *fakeTransport) Stats() protocol.ProtocolStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return protocol.ProtocolStats{BaudRate: f.baudRate, IsConnected: f.open}
}

func (f *fakeTransport) SendBreak(ctx context.Context, d time.Duration) error {
	return nil
}

func (f *fakeTransport) SetBaudRate(rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen {
		return model.ErrConfigurationFrozen
	}
	f.baudRate = rate
	return nil
}

func (f *fakeTransport) SetReadTimeout(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen {
		return model.ErrConfigurationFrozen
	}
	return nil
}

func (f *fakeTransport) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	return nil
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("%w: not open", model.ErrTransportClosed)
	}
	line := string(data)
	f.writes = append(f.writes, line)
	if strings.HasPrefix(line, "serialconfig") && f.baudRate == f.ackAt {
		f.pending = append(f.pending, []byte("<OK\r\n")...)
	}
	return nil
}

func (f *fakeTransport) ReadWithTimeout(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.pending)
	if n > maxBytes {
		n = maxBytes
	}
	out := append([]byte(nil), f.pending[:n]...)
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeTransport) ReadAvailable(ctx context.Context, buf []byte) (int, error) {
	select {
	case chunk, ok := <-f.stream:
		if !ok {
			return 0, fmt.Errorf("%w: device vanished", model.ErrTransportClosed)
		}
		return copy(buf, chunk), nil
	default:
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return 0, nil
}

// commands returns the lines written after negotiation
func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var commands []string
	for _, line := range f.writes {
		if !strings.HasPrefix(line, "serialconfig") {
			commands = append(commands, line)
		}
	}
	return commands
}

func (f *fakeTransport) probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, line := range f.writes {
		if strings.HasPrefix(line, "serialconfig") {
			count++
		}
	}
	return count
}

// testConfig returns a valid configuration with fast timings
func testConfig(output string) *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			Device:   "/dev/ttyFAKE0",
			Output:   output,
			BaudRate: 460800,
		},
		Handshake: config.HandshakeConfig{
			Candidates:    append([]int(nil), model.SupportedBaudRates...),
			OpenTimeout:   10 * time.Millisecond,
			BreakDuration: time.Millisecond,
			BreakSettle:   time.Millisecond,
			ProbeSettle:   time.Millisecond,
			ProbeReadSize: 10,
		},
		Commands: config.CommandsConfig{Delay: time.Millisecond},
		Capture: config.CaptureConfig{
			PollInterval: 5 * time.Millisecond,
			BufferSize:   4096,
		},
		Logging: config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"},
	}
}
