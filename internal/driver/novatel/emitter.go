// internal/driver/novatel/emitter.go
package novatel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"novatel-logger/internal/model"
	"novatel-logger/internal/protocol"
)

// Emitter writes a command sequence without waiting for acknowledgments
type Emitter struct {
	delay  time.Duration
	logger *zap.Logger
}

// NewEmitter creates an emitter that pauses delay between consecutive commands
func NewEmitter(delay time.Duration, logger *zap.Logger) *Emitter {
	return &Emitter{
		delay:  delay,
		logger: logger,
	}
}

// Emit sends every command of seq in order and returns how many were written
func (e *Emitter) Emit(ctx context.Context, w protocol.Writer, seq model.CommandSequence) (int, error) {
	commands := seq.Commands()
	lines := seq.Lines()

	for i, line := range lines {
		if i > 0 {
			if err := sleepContext(ctx, e.delay); err != nil {
				return i, err
			}
		}

		e.logger.Info("Sending command", zap.String("command", commands[i]))
		if err := w.Write(ctx, []byte(line)); err != nil {
			return i, fmt.Errorf("failed to send %q: %w", commands[i], err)
		}
	}

	e.logger.Info("Command sequence sent", zap.Int("commands", len(lines)))
	return len(lines), nil
}
