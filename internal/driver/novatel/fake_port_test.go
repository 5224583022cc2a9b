package novatel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"novatel-logger/internal/model"
)

// fakePort simulates a receiver that acknowledges serialconfig only at ackAt
type fakePort struct {
	mu sync.Mutex

	ackAt    int
	response []byte
	rejects  map[int]bool
	closeAt  int
	writeErr error
	baudRate int
	timeout  time.Duration
	ops      []string
	pending  []byte
}

func newFakePort(ackAt int) *fakePort {
	return &fakePort{ackAt: ackAt, response: []byte("<OK\r\n[COM1]")}
}

func (f *fakePort) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *fakePort) SendBreak(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("break")
	return nil
}

func (f *fakePort) SetBaudRate(rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeAt != 0 && rate == f.closeAt {
		return fmt.Errorf("%w: device gone", model.ErrTransportClosed)
	}
	if f.rejects[rate] {
		return errors.New("invalid baud rate")
	}
	f.record(fmt.Sprintf("baud %d", rate))
	f.baudRate = rate
	return nil
}

func (f *fakePort) SetReadTimeout(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("timeout")
	f.timeout = d
	return nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear")
	f.pending = nil
	return nil
}

func (f *fakePort) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.record("write " + string(data))
	if f.baudRate == f.ackAt {
		f.pending = append(f.pending, f.response...)
	}
	return nil
}

func (f *fakePort) ReadWithTimeout(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("read %d", maxBytes))
	n := len(f.pending)
	if n > maxBytes {
		n = maxBytes
	}
	out := append([]byte(nil), f.pending[:n]...)
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakePort) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// fakeWriter records every write
type fakeWriter struct {
	mu     sync.Mutex
	lines  []string
	times  []time.Time
	failAt int
}

func (w *fakeWriter) Write(ctx context.Context, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && len(w.lines)+1 == w.failAt {
		return fmt.Errorf("%w: device gone", model.ErrTransportClosed)
	}
	w.lines = append(w.lines, string(data))
	w.times = append(w.times, time.Now())
	return nil
}
