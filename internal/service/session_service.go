// internal/service/session_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"novatel-logger/internal/config"
	"novatel-logger/internal/driver/novatel"
	"novatel-logger/internal/model"
	"novatel-logger/internal/protocol"
	"novatel-logger/internal/utils"
)

// EventHandler receives session events as they happen
type EventHandler func(event model.SessionEvent)

// SessionService orchestrates negotiation, command emission and capture on one port
type SessionService struct {
	config     *config.Config
	transport  protocol.Transport
	logger     *utils.SessionLogger
	sequence   model.CommandSequence
	negotiator *novatel.Negotiator
	emitter    *novatel.Emitter
	capture    *CaptureService

	mutex        sync.RWMutex
	state        model.SessionState
	eventHandler EventHandler
	handshake    *model.HandshakeResult
}

type captureOutcome struct {
	summary model.CaptureSummary
	err     error
}

// NewSessionService validates cfg and prepares a session over transport.
// Invalid configuration is reported before any hardware interaction.
func NewSessionService(cfg *config.Config, transport protocol.Transport, logger *zap.Logger) (*SessionService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	sequence, err := novatel.BuildCommandSequence(cfg.INS)
	if err != nil {
		return nil, fmt.Errorf("failed to build command sequence: %w", err)
	}

	sessionLogger := utils.NewSessionLogger(logger, uuid.New(), cfg.Session.Device)

	captureConfig := CaptureConfig{
		OutputPath:   cfg.Session.Output,
		PollInterval: cfg.Capture.PollInterval,
		BufferSize:   cfg.Capture.BufferSize,
		Fsync:        cfg.Capture.Fsync,
	}

	return &SessionService{
		config:     cfg,
		transport:  transport,
		logger:     sessionLogger,
		sequence:   sequence,
		negotiator: novatel.NewNegotiator(transport, novatel.NewNegotiatorConfig(cfg), sessionLogger.Component("negotiator")),
		emitter:    novatel.NewEmitter(cfg.Commands.Delay, sessionLogger.Component("emitter")),
		capture:    NewCaptureService(transport, captureConfig, sessionLogger.Component("capture")),
		state:      model.SessionStateIdle,
	}, nil
}

// ID returns the session identifier attached to every log entry
func (s *SessionService) ID() uuid.UUID {
	return s.logger.SessionID()
}

// State returns the current lifecycle state
func (s *SessionService) State() model.SessionState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// Sequence returns the commands sent after negotiation
func (s *SessionService) Sequence() model.CommandSequence {
	return s.sequence
}

// Handshake returns the negotiation result once negotiation has finished
func (s *SessionService) Handshake() (model.HandshakeResult, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.handshake == nil {
		return model.HandshakeResult{}, false
	}
	return *s.handshake, true
}

// SetEventHandler registers handler for session events; call before Run
func (s *SessionService) SetEventHandler(handler EventHandler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.eventHandler = handler
}

// Run executes the session until ctx is cancelled or a fatal error occurs.
// Cancellation is the normal way to stop and is not reported as an error.
func (s *SessionService) Run(ctx context.Context) error {
	if state := s.State(); state != model.SessionStateIdle {
		return fmt.Errorf("%w: session is %s", model.ErrSessionTerminated, state)
	}

	s.publish(model.EventSessionStarted, "", "", s.config.Session.Output)

	if err := s.transport.Open(ctx); err != nil {
		s.transition(model.SessionStateTerminated)
		return err
	}

	s.transition(model.SessionStateNegotiating)
	if err := s.negotiate(ctx); err != nil {
		closeErr := s.transport.Close()
		s.transition(model.SessionStateTerminated)
		if isCancellation(ctx, err) {
			return closeErr
		}
		return multierr.Append(err, closeErr)
	}

	s.transition(model.SessionStateReady)
	return s.runCapture(ctx)
}

// negotiate establishes the target speed; no command is sent before it succeeds
func (s *SessionService) negotiate(ctx context.Context) error {
	started := time.Now()
	result, err := s.negotiator.Negotiate(ctx)
	s.logger.LogHandshake(result, time.Since(started), err)

	s.mutex.Lock()
	s.handshake = &result
	s.mutex.Unlock()

	if err != nil {
		if errors.Is(err, model.ErrNegotiationFailed) {
			s.transition(model.SessionStateFailed)
		}
		return err
	}

	s.publish(model.EventBaudEstablished, "", "", strconv.Itoa(result.BaudRate))
	return nil
}

// runCapture starts the sink, sends the command sequence and waits for a stop
func (s *SessionService) runCapture(ctx context.Context) error {
	// Handle configuration is immutable from here on
	s.transport.Freeze()

	captureCtx, stopCapture := context.WithCancel(context.Background())
	defer stopCapture()

	// a failed capture stops emission, nothing would record the responses
	emitCtx, stopEmit := context.WithCancel(ctx)
	defer stopEmit()

	captureDone := make(chan captureOutcome, 1)
	go func() {
		summary, err := s.capture.Run(captureCtx)
		if err != nil {
			stopEmit()
		}
		captureDone <- captureOutcome{summary: summary, err: err}
	}()
	s.transition(model.SessionStateCapturing)

	var (
		runErr   error
		outcome  captureOutcome
		finished bool
	)

	sent, emitErr := s.emitter.Emit(emitCtx, s.transport, s.sequence)
	switch {
	case emitErr == nil:
		select {
		case <-ctx.Done():
			s.logger.Info("Stop requested")
		case outcome = <-captureDone:
			finished = true
			runErr = outcome.err
		}
	case isCancellation(ctx, emitErr):
		s.logger.Info("Stop requested", zap.Int("commands_sent", sent))
	case emitCtx.Err() != nil:
		outcome = <-captureDone
		finished = true
		runErr = outcome.err
		s.logger.Warn("Command emission stopped after capture failure",
			zap.Int("commands_sent", sent),
			zap.Int("commands", s.sequence.Len()),
		)
	default:
		runErr = emitErr
	}

	s.transition(model.SessionStateShuttingDown)
	stopCapture()
	if !finished {
		outcome = <-captureDone
		runErr = multierr.Append(runErr, outcome.err)
	}
	s.logger.LogCaptureSummary(outcome.summary, outcome.err)
	s.publish(model.EventCaptureStopped, "", "", fmt.Sprintf("%d bytes", outcome.summary.BytesWritten))

	if err := s.transport.Close(); err != nil {
		runErr = multierr.Append(runErr, err)
	}

	stats := s.transport.Stats()
	s.logger.Info("Transport statistics",
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Int64("bytes_written", stats.BytesWritten),
		zap.Int64("errors", stats.ErrorCount),
	)

	s.transition(model.SessionStateTerminated)
	return runErr
}

// transition moves the session to next, ignoring illegal steps
func (s *SessionService) transition(next model.SessionState) {
	s.mutex.Lock()
	from := s.state
	if !from.CanTransition(next) {
		s.mutex.Unlock()
		s.logger.Warn("Illegal session transition ignored",
			zap.String("from", string(from)),
			zap.String("to", string(next)),
		)
		return
	}
	s.state = next
	s.mutex.Unlock()

	s.logger.LogStateChange(from, next)
	s.publish(model.EventStateChanged, from, next, "")
	if next.IsTerminal() {
		s.publish(model.EventSessionTerminated, from, next, "")
	}
}

func (s *SessionService) publish(eventType model.SessionEventType, from, to model.SessionState, detail string) {
	s.mutex.RLock()
	handler := s.eventHandler
	s.mutex.RUnlock()

	if handler == nil {
		return
	}

	handler(model.SessionEvent{
		SessionID: s.ID(),
		EventType: eventType,
		From:      from,
		To:        to,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// isCancellation reports whether err is the result of ctx being cancelled
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
