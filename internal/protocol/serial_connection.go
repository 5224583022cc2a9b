// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"novatel-logger/internal/model"
)

// openPort is replaced in tests
var openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

// SerialConnection implements Transport for a serial device
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	closed bool
	frozen atomic.Bool

	baudRate    int
	readTimeout time.Duration

	bytesWritten   atomic.Int64
	bytesRead      atomic.Int64
	operationCount atomic.Int64
	errorCount     atomic.Int64
	lastActivity   atomic.Int64
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
		baudRate:    config.BaudRate,
		readTimeout: config.Timeout,
	}
}

// Open opens the serial connection exclusively
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.closed {
		return fmt.Errorf("%w: connection to %s cannot be reopened", model.ErrTransportClosed, sc.config.Port)
	}
	if sc.isOpen {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !claimDevice(sc.config.Port) {
		return fmt.Errorf("%w: %s is already open in this process", model.ErrDeviceUnavailable, sc.config.Port)
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
		zap.Duration("timeout", sc.config.Timeout),
	)

	port, err := openPort(sc.config.Port, sc.mode(sc.config.BaudRate))
	if err != nil {
		releaseDevice(sc.config.Port)
		sc.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("%w: failed to open serial port %s: %w", model.ErrDeviceUnavailable, sc.config.Port, err)
	}

	if err := port.SetReadTimeout(sc.config.Timeout); err != nil {
		port.Close()
		releaseDevice(sc.config.Port)
		return fmt.Errorf("%w: failed to set read timeout: %w", model.ErrDeviceUnavailable, err)
	}

	sc.port = port
	sc.isOpen = true
	sc.touch()

	sc.logger.Info("Serial port opened successfully")
	return nil
}

// mode builds an 8-N-1 style mode from the configuration
func (sc *SerialConnection) mode(baudRate int) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: sc.config.DataBits,
		StopBits: serial.OneStopBit,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if sc.config.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch sc.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode
}

// Close closes the serial connection. A closed connection cannot be reopened.
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	sc.closed = true
	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	releaseDevice(sc.config.Port)
	sc.port = nil
	sc.isOpen = false

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Freeze marks the handle configuration immutable
func (sc *SerialConnection) Freeze() {
	sc.frozen.Store(true)

	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	sc.logger.Debug("Serial port configuration frozen",
		zap.Int("baud_rate", sc.baudRate),
		zap.Duration("read_timeout", sc.readTimeout),
	)
}

// SendBreak holds the line in the break condition for duration
func (sc *SerialConnection) SendBreak(ctx context.Context, duration time.Duration) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if err := sc.checkOpen(ctx); err != nil {
		return err
	}

	if err := sc.port.Break(duration); err != nil {
		sc.errorCount.Inc()
		return sc.portError("send break", err)
	}

	sc.logger.Debug("Break sent", zap.Duration("duration", duration))
	return nil
}

// SetBaudRate retunes the open handle without closing it
func (sc *SerialConnection) SetBaudRate(rate int) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.frozen.Load() {
		return fmt.Errorf("%w: cannot change baud rate to %d", model.ErrConfigurationFrozen, rate)
	}
	if err := sc.checkOpen(context.Background()); err != nil {
		return err
	}

	if err := sc.port.SetMode(sc.mode(rate)); err != nil {
		sc.errorCount.Inc()
		return sc.portError(fmt.Sprintf("set baud rate %d", rate), err)
	}

	sc.baudRate = rate
	sc.logger.Debug("Baud rate changed", zap.Int("baud_rate", rate))
	return nil
}

// SetReadTimeout bounds every subsequent read; serial.NoTimeout blocks indefinitely
func (sc *SerialConnection) SetReadTimeout(timeout time.Duration) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.frozen.Load() {
		return fmt.Errorf("%w: cannot change read timeout", model.ErrConfigurationFrozen)
	}
	if err := sc.checkOpen(context.Background()); err != nil {
		return err
	}

	return sc.setReadTimeout(timeout)
}

func (sc *SerialConnection) setReadTimeout(timeout time.Duration) error {
	if err := sc.port.SetReadTimeout(timeout); err != nil {
		sc.errorCount.Inc()
		return sc.portError("set read timeout", err)
	}
	sc.readTimeout = timeout
	return nil
}

// ResetInputBuffer discards input received but not yet read
func (sc *SerialConnection) ResetInputBuffer() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if err := sc.checkOpen(context.Background()); err != nil {
		return err
	}

	if err := sc.port.ResetInputBuffer(); err != nil {
		sc.errorCount.Inc()
		return sc.portError("reset input buffer", err)
	}
	return nil
}

// Write writes the whole of data to the serial port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if err := sc.checkOpen(ctx); err != nil {
		return err
	}

	written := 0
	for written < len(data) {
		n, err := sc.port.Write(data[written:])
		written += n
		if err != nil {
			sc.errorCount.Inc()
			sc.logger.Error("Serial write failed",
				zap.Error(err),
				zap.Int("bytes_written", written),
				zap.Int("bytes_to_write", len(data)),
			)
			return fmt.Errorf("%w: failed to write to serial port: %w", model.ErrTransportClosed, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: incomplete write: wrote %d of %d bytes", model.ErrTransportClosed, written, len(data))
		}
	}

	sc.bytesWritten.Add(int64(len(data)))
	sc.operationCount.Inc()
	sc.touch()

	sc.logger.Debug("Serial write completed", zap.Int("bytes", len(data)))
	return nil
}

// ReadAvailable returns whatever arrives within the current read timeout.
// A timeout yields zero bytes and a nil error.
func (sc *SerialConnection) ReadAvailable(ctx context.Context, buf []byte) (int, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if err := sc.checkOpen(ctx); err != nil {
		return 0, err
	}

	return sc.read(buf)
}

// ReadWithTimeout collects up to maxBytes, returning early once the buffer is full.
// Whatever arrived before timeout elapsed is returned; an empty result is not an error.
func (sc *SerialConnection) ReadWithTimeout(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if err := sc.checkOpen(ctx); err != nil {
		return nil, err
	}
	if sc.frozen.Load() {
		return nil, fmt.Errorf("%w: cannot change read timeout", model.ErrConfigurationFrozen)
	}

	buffer := make([]byte, maxBytes)
	received := 0
	deadline := time.Now().Add(timeout)

	for received < maxBytes {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sc.setReadTimeout(remaining); err != nil {
			return nil, err
		}

		n, err := sc.read(buffer[received:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		received += n
	}

	return buffer[:received], nil
}

func (sc *SerialConnection) read(buf []byte) (int, error) {
	n, err := sc.port.Read(buf)
	if err != nil {
		sc.errorCount.Inc()
		sc.logger.Error("Failed to read from serial port", zap.Error(err))
		return 0, fmt.Errorf("%w: failed to read from serial port: %w", model.ErrTransportClosed, err)
	}

	if n > 0 {
		sc.bytesRead.Add(int64(n))
		sc.touch()
	}
	sc.operationCount.Inc()
	return n, nil
}

// Stats returns a snapshot of the protocol statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	stats := ProtocolStats{
		BytesWritten:   sc.bytesWritten.Load(),
		BytesRead:      sc.bytesRead.Load(),
		OperationCount: sc.operationCount.Load(),
		ErrorCount:     sc.errorCount.Load(),
		BaudRate:       sc.currentBaudRate(),
		IsConnected:    sc.IsOpen(),
	}
	if last := sc.lastActivity.Load(); last > 0 {
		stats.LastActivity = time.Unix(0, last)
	}
	return stats
}

func (sc *SerialConnection) currentBaudRate() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.baudRate
}

// checkOpen must be called with the mutex held
func (sc *SerialConnection) checkOpen(ctx context.Context) error {
	if !sc.isOpen || sc.port == nil {
		return fmt.Errorf("%w: serial port not open", model.ErrTransportClosed)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// portError classifies errors from configuration calls
func (sc *SerialConnection) portError(op string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %s: %w", model.ErrTransportClosed, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (sc *SerialConnection) touch() {
	sc.lastActivity.Store(time.Now().UnixNano())
}
