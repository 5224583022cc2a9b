// internal/protocol/factory.go
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"novatel-logger/internal/config"
	"novatel-logger/internal/model"
)

// DefaultOpenBaudRate is the speed a port is opened at before negotiation retunes it
const DefaultOpenBaudRate = 9600

// CreateSerialTransport creates the transport for a capture session
func CreateSerialTransport(cfg *config.Config, logger *zap.Logger) (*SerialConnection, error) {
	serialConfig := &SerialConfig{
		Port:     cfg.Session.Device,
		BaudRate: DefaultOpenBaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
		Timeout:  cfg.Handshake.OpenTimeout,
	}

	if err := ValidateSerialConfig(serialConfig); err != nil {
		return nil, err
	}

	logger.Info("Creating serial protocol",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger), nil
}

// ValidateSerialConfig validates serial configuration; framing is fixed at 8-N-1
func ValidateSerialConfig(config *SerialConfig) error {
	if config.Port == "" {
		return fmt.Errorf("%w: serial port is required", model.ErrInvalidConfiguration)
	}

	if config.DataBits != 8 || config.StopBits != 1 || config.Parity != "none" {
		return fmt.Errorf("%w: serial framing must be 8-N-1, got %d-%s-%d",
			model.ErrInvalidConfiguration, config.DataBits, config.Parity, config.StopBits)
	}

	if !model.IsSupportedBaudRate(config.BaudRate) {
		return fmt.Errorf("%w: invalid baud rate: %d", model.ErrInvalidConfiguration, config.BaudRate)
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("%w: read timeout must be positive", model.ErrInvalidConfiguration)
	}

	return nil
}
