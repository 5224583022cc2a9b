// internal/driver/novatel/negotiator.go
package novatel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"novatel-logger/internal/config"
	"novatel-logger/internal/model"
	"novatel-logger/internal/protocol"
)

// NegotiatorConfig holds the handshake timing constants
type NegotiatorConfig struct {
	TargetBaudRate int
	Candidates     []int

	BreakDuration time.Duration
	BreakSettle   time.Duration
	ProbeSettle   time.Duration
	ProbeTimeout  time.Duration
	ProbeReadSize int

	// CaptureReadTimeout is applied once the receiver is at the target rate
	CaptureReadTimeout time.Duration
}

// NewNegotiatorConfig derives the handshake constants from cfg
func NewNegotiatorConfig(cfg *config.Config) NegotiatorConfig {
	candidates := make([]int, len(cfg.Handshake.Candidates))
	copy(candidates, cfg.Handshake.Candidates)

	return NegotiatorConfig{
		TargetBaudRate:     cfg.Session.BaudRate,
		Candidates:         candidates,
		BreakDuration:      cfg.Handshake.BreakDuration,
		BreakSettle:        cfg.Handshake.BreakSettle,
		ProbeSettle:        cfg.Handshake.ProbeSettle,
		ProbeTimeout:       cfg.Handshake.OpenTimeout,
		ProbeReadSize:      cfg.Handshake.ProbeReadSize,
		CaptureReadTimeout: cfg.Capture.PollInterval,
	}
}

// probeState is one step of a single candidate attempt
type probeState int

const (
	probeConfigure probeState = iota
	probeSettle
	probeClear
	probeWrite
	probeAwait
	probeRead
	probeCheck
	probeDone
)

func (s probeState) String() string {
	switch s {
	case probeConfigure:
		return "configure"
	case probeSettle:
		return "settle"
	case probeClear:
		return "clear"
	case probeWrite:
		return "write"
	case probeAwait:
		return "await"
	case probeRead:
		return "read"
	case probeCheck:
		return "check"
	case probeDone:
		return "done"
	default:
		return fmt.Sprintf("probeState(%d)", int(s))
	}
}

// probe is the mutable state of one candidate attempt
type probe struct {
	candidate int
	state     probeState
	response  []byte
	acked     bool
	skipped   bool
}

// Negotiator discovers the receiver's current speed and switches it to the target rate
type Negotiator struct {
	port   protocol.Tunable
	config NegotiatorConfig
	logger *zap.Logger
}

// NewNegotiator creates a negotiator driving port
func NewNegotiator(port protocol.Tunable, config NegotiatorConfig, logger *zap.Logger) *Negotiator {
	return &Negotiator{
		port:   port,
		config: config,
		logger: logger.With(zap.Int("target_baud_rate", config.TargetBaudRate)),
	}
}

// Negotiate runs the break preamble and probes every candidate until one acknowledges.
// The returned result is Failed, together with an error, unless the receiver is at the target rate.
func (n *Negotiator) Negotiate(ctx context.Context) (model.HandshakeResult, error) {
	result := model.HandshakeResult{Status: model.HandshakeFailed}

	if err := n.preamble(ctx); err != nil {
		return result, err
	}

	for _, candidate := range n.config.Candidates {
		record, err := n.probe(ctx, candidate)
		result.Probes = append(result.Probes, record)
		if err != nil {
			return result, err
		}
		if !record.Acked {
			continue
		}

		if err := n.establish(); err != nil {
			return result, err
		}

		result.Status = model.HandshakeEstablished
		result.BaudRate = n.config.TargetBaudRate
		result.DetectedBaudRate = candidate
		n.logger.Info("Baud rate changed",
			zap.Int("detected_baud_rate", candidate),
			zap.Int("baud_rate", n.config.TargetBaudRate),
		)
		return result, nil
	}

	return result, fmt.Errorf("%w: no acknowledgment from %d candidate speeds",
		model.ErrNegotiationFailed, len(n.config.Candidates))
}

// preamble sends two breaks so a receiver left mid-command starts clean
func (n *Negotiator) preamble(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if err := n.port.SendBreak(ctx, n.config.BreakDuration); err != nil {
			return fmt.Errorf("failed to send break: %w", err)
		}
		if err := sleepContext(ctx, n.config.BreakSettle); err != nil {
			return err
		}
	}
	return nil
}

// probe steps one candidate through configure, settle, clear, write, settle, read and check
func (n *Negotiator) probe(ctx context.Context, candidate int) (model.ProbeRecord, error) {
	started := time.Now()
	p := &probe{candidate: candidate, state: probeConfigure}

	n.logger.Info("Connecting", zap.Int("baud_rate", candidate))

	for p.state != probeDone {
		if err := n.step(ctx, p); err != nil {
			return n.record(p, started), fmt.Errorf("probe at %d failed during %s: %w", candidate, p.state, err)
		}
	}

	record := n.record(p, started)
	n.logger.Debug("Probe finished",
		zap.Int("baud_rate", candidate),
		zap.Bool("acked", record.Acked),
		zap.Binary("response", record.Response),
		zap.Duration("duration", record.Duration),
	)
	return record, nil
}

func (n *Negotiator) step(ctx context.Context, p *probe) error {
	switch p.state {
	case probeConfigure:
		if err := n.port.SetBaudRate(p.candidate); err != nil {
			if errors.Is(err, model.ErrTransportClosed) || errors.Is(err, model.ErrConfigurationFrozen) {
				return err
			}
			n.logger.Warn("Candidate baud rate rejected by port", zap.Int("baud_rate", p.candidate), zap.Error(err))
			p.skipped = true
			p.state = probeDone
			return nil
		}
		p.state = probeSettle

	case probeSettle:
		if err := sleepContext(ctx, n.config.ProbeSettle); err != nil {
			return err
		}
		p.state = probeClear

	case probeClear:
		if err := n.port.ResetInputBuffer(); err != nil {
			return err
		}
		p.state = probeWrite

	case probeWrite:
		command := SerialConfigCommand(n.config.TargetBaudRate) + model.CommandTerminator
		if err := n.port.Write(ctx, []byte(command)); err != nil {
			return err
		}
		p.state = probeAwait

	case probeAwait:
		if err := sleepContext(ctx, n.config.ProbeSettle); err != nil {
			return err
		}
		p.state = probeRead

	case probeRead:
		response, err := n.port.ReadWithTimeout(ctx, n.config.ProbeReadSize, n.config.ProbeTimeout)
		if err != nil {
			return err
		}
		p.response = response
		p.state = probeCheck

	case probeCheck:
		p.acked = IsAck(p.response)
		p.state = probeDone

	default:
		return fmt.Errorf("unexpected probe state %s", p.state)
	}

	return nil
}

// establish moves the port to the target rate and capture read timeout
func (n *Negotiator) establish() error {
	if err := n.port.SetBaudRate(n.config.TargetBaudRate); err != nil {
		return fmt.Errorf("failed to switch port to %d: %w", n.config.TargetBaudRate, err)
	}
	if err := n.port.SetReadTimeout(n.config.CaptureReadTimeout); err != nil {
		return fmt.Errorf("failed to set capture read timeout: %w", err)
	}
	return nil
}

func (n *Negotiator) record(p *probe, started time.Time) model.ProbeRecord {
	return model.ProbeRecord{
		Candidate: p.candidate,
		Response:  p.response,
		Acked:     p.acked,
		Skipped:   p.skipped,
		Duration:  time.Since(started),
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
