// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"novatel-logger/internal/config"
	"novatel-logger/internal/model"
)

// LoggerManager manages application logging
type LoggerManager struct {
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := lm.getLogLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	return zap.New(core, lm.getLoggerOptions()...), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)

	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder

	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder

	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	// Console format customizations
	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr", "":
		return zapcore.AddSync(os.Stderr), nil
	default:
		// Ensure log directory exists
		logDir := filepath.Dir(lm.config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   lm.config.Output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// getLogLevel parses and returns log level
func (lm *LoggerManager) getLogLevel() (zapcore.Level, error) {
	switch lm.config.Level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", lm.config.Level)
	}
}

// getLoggerOptions returns logger options
func (lm *LoggerManager) getLoggerOptions() []zap.Option {
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
}

// SessionLogger wraps zap.Logger with session-specific fields
type SessionLogger struct {
	*zap.Logger
	base      *zap.Logger
	sessionID uuid.UUID
	device    string
}

// NewSessionLogger creates a session-specific logger
func NewSessionLogger(baseLogger *zap.Logger, sessionID uuid.UUID, device string) *SessionLogger {
	base := baseLogger.With(
		zap.String("session_id", sessionID.String()),
		zap.String("device", device),
	)

	return &SessionLogger{
		Logger:    base.With(zap.String("component", "session")),
		base:      base,
		sessionID: sessionID,
		device:    device,
	}
}

// SessionID returns the id attached to every entry
func (sl *SessionLogger) SessionID() uuid.UUID {
	return sl.sessionID
}

// Component returns a child logger for one session component
func (sl *SessionLogger) Component(name string) *zap.Logger {
	return sl.base.With(zap.String("component", name))
}

// LogStateChange logs a session state transition
func (sl *SessionLogger) LogStateChange(from, to model.SessionState) {
	sl.Info("Session state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// LogHandshake logs the negotiation outcome
func (sl *SessionLogger) LogHandshake(result model.HandshakeResult, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("status", string(result.Status)),
		zap.Ints("candidates", result.Candidates()),
		zap.Duration("duration", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		sl.Error("Baud negotiation failed", fields...)
		return
	}

	fields = append(fields,
		zap.Int("detected_baud_rate", result.DetectedBaudRate),
		zap.Int("baud_rate", result.BaudRate),
	)
	sl.Info("Baud negotiation completed", fields...)
}

// LogCaptureSummary logs what the capture sink persisted
func (sl *SessionLogger) LogCaptureSummary(summary model.CaptureSummary, err error) {
	fields := []zap.Field{
		zap.String("output", summary.OutputPath),
		zap.Int64("bytes_written", summary.BytesWritten),
		zap.Int64("writes", summary.Writes),
		zap.Duration("duration", summary.Duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		sl.Error("Capture stopped with error", fields...)
		return
	}
	sl.Info("Capture stopped", fields...)
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

// CloseLogger flushes buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
