// internal/service/capture_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"novatel-logger/internal/model"
	"novatel-logger/internal/protocol"
)

// CaptureConfig represents capture sink settings
type CaptureConfig struct {
	OutputPath   string
	PollInterval time.Duration
	BufferSize   int
	Fsync        bool
}

// CaptureService drains a port into an output file until cancelled
type CaptureService struct {
	reader protocol.Reader
	config CaptureConfig
	open   func() (OutputFile, error)
	logger *zap.Logger

	bytesWritten atomic.Int64
	writes       atomic.Int64
}

// NewCaptureService creates a capture sink reading from reader
func NewCaptureService(reader protocol.Reader, cfg CaptureConfig, logger *zap.Logger) *CaptureService {
	cs := &CaptureService{
		reader: reader,
		config: cfg,
		logger: logger.With(zap.String("output", cfg.OutputPath)),
	}
	cs.open = func() (OutputFile, error) {
		return OpenOutputFile(cfg.OutputPath, cfg.BufferSize, cfg.Fsync)
	}
	return cs
}

// SetOutputOpener replaces how the output file is opened
func (cs *CaptureService) SetOutputOpener(open func() (OutputFile, error)) {
	cs.open = open
}

// Run captures until ctx is cancelled or the transport fails.
// The output is closed exactly once before Run returns; cancellation is not an error.
func (cs *CaptureService) Run(ctx context.Context) (summary model.CaptureSummary, err error) {
	started := time.Now()
	summary.OutputPath = cs.config.OutputPath

	out, err := cs.open()
	if err != nil {
		return summary, err
	}

	defer func() {
		err = multierr.Append(err, out.Close())
		summary.BytesWritten = cs.bytesWritten.Load()
		summary.Writes = cs.writes.Load()
		summary.Duration = time.Since(started)
	}()

	cs.logger.Info("Start reading from port")
	buf := make([]byte, cs.config.BufferSize)

	for ctx.Err() == nil {
		polled := time.Now()

		n, readErr := cs.reader.ReadAvailable(ctx, buf)
		if n > 0 {
			if err := cs.persist(out, buf[:n]); err != nil {
				return summary, err
			}
		}

		if readErr != nil {
			if ctx.Err() != nil && errors.Is(readErr, ctx.Err()) {
				break
			}
			cs.logger.Error("Capture aborted", zap.Error(readErr))
			return summary, fmt.Errorf("capture failed: %w", readErr)
		}

		if n == 0 {
			cs.idle(ctx, time.Since(polled))
		}
	}

	return summary, cs.drain(out, buf)
}

// idle waits out the rest of the poll interval after an empty read
func (cs *CaptureService) idle(ctx context.Context, elapsed time.Duration) {
	remaining := cs.config.PollInterval - elapsed
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// drain persists bytes that arrived between the last poll and cancellation
func (cs *CaptureService) drain(out OutputFile, buf []byte) error {
	n, err := cs.reader.ReadAvailable(context.Background(), buf)
	if n > 0 {
		if err := cs.persist(out, buf[:n]); err != nil {
			return err
		}
	}
	if err != nil {
		cs.logger.Debug("Final drain read failed", zap.Error(err))
	}

	cs.logger.Info("End of read loop")
	return nil
}

func (cs *CaptureService) persist(out OutputFile, data []byte) error {
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write captured data: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to flush captured data: %w", err)
	}

	cs.bytesWritten.Add(int64(len(data)))
	cs.writes.Inc()
	cs.logger.Debug("Captured data", zap.Int("bytes", len(data)))
	return nil
}
