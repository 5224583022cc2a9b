// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"novatel-logger/internal/model"
)

// Config represents the application configuration
type Config struct {
	Session   SessionConfig   `mapstructure:"session"`
	INS       INSConfig       `mapstructure:"ins"`
	Handshake HandshakeConfig `mapstructure:"handshake"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SessionConfig represents the port and output of a capture session
type SessionConfig struct {
	Device   string `mapstructure:"device" validate:"required"`
	Output   string `mapstructure:"output"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// INSConfig represents the optional inertial sensor mounting parameters.
// Either every field is set or none is.
type INSConfig struct {
	IMUType  string    `mapstructure:"imu_type"`
	IMUPort  string    `mapstructure:"imu_port"`
	LeverArm []float64 `mapstructure:"lever_arm"`
	Rotation []float64 `mapstructure:"rotation"`
}

// HandshakeConfig represents baud negotiation timing
type HandshakeConfig struct {
	Candidates    []int         `mapstructure:"candidates"`
	OpenTimeout   time.Duration `mapstructure:"open_timeout"`
	BreakDuration time.Duration `mapstructure:"break_duration"`
	BreakSettle   time.Duration `mapstructure:"break_settle"`
	ProbeSettle   time.Duration `mapstructure:"probe_settle"`
	ProbeReadSize int           `mapstructure:"probe_read_size"`
}

// CommandsConfig represents command emission pacing
type CommandsConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// CaptureConfig represents capture sink behaviour
type CaptureConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BufferSize   int           `mapstructure:"buffer_size"`
	Fsync        bool          `mapstructure:"fsync"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// OutputTimeLayout names output files created without an explicit path
const OutputTimeLayout = "2006_01_02_15_04_05"

var comPortPattern = regexp.MustCompile(`(?i)^com[0-9]+$`)

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"device":    "session.device",
	"file":      "session.output",
	"baud":      "session.baud_rate",
	"imu":       "ins.imu_type",
	"imu-port":  "ins.imu_port",
	"log-level": "logging.level",
}

// RegisterFlags adds the session flags to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("device", "c", "", "serial port of the receiver, e.g. /dev/ttyUSB0 or COM24")
	fs.StringP("file", "f", "", "output file for the captured stream (default YYYY_MM_DD_HH_MM_SS.log)")
	fs.IntP("baud", "b", model.DefaultTargetBaudRate, "target baud rate [9600, 115200, 230400, 460800]")
	fs.StringP("imu", "i", "", "IMU connected to the receiver, e.g. EPSON_G320")
	fs.String("imu-port", "", "receiver port used for the IMU connection [COM1,COM2,COM3,COM4,SPI]")
	fs.Float64Slice("lever-arm", nil, "lever arm X,Y,Z from IMU centre of navigation to antenna")
	fs.Float64Slice("rotation", nil, "rotation X,Y,Z from IMU body to vehicle frame")
	fs.String("config", "", "optional YAML configuration file")
	fs.String("log-level", "info", "log level [debug, info, warn, error, fatal]")
}

// Load loads configuration from defaults, an optional file, environment variables and flags
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Environment variable support
	v.SetEnvPrefix("NOVATEL_LOGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}

		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.normalize(time.Now()); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	// viper does not decode float slices from flags, so changed values are set explicitly
	for name, key := range map[string]string{"lever-arm": "ins.lever_arm", "rotation": "ins.rotation"} {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		values, err := fs.GetFloat64Slice(name)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		v.Set(key, values)
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Session defaults
	v.SetDefault("session.device", "")
	v.SetDefault("session.output", "")
	v.SetDefault("session.baud_rate", model.DefaultTargetBaudRate)

	// INS defaults
	v.SetDefault("ins.imu_type", "")
	v.SetDefault("ins.imu_port", "")
	v.SetDefault("ins.lever_arm", []float64{})
	v.SetDefault("ins.rotation", []float64{})

	// Handshake defaults
	v.SetDefault("handshake.candidates", model.SupportedBaudRates)
	v.SetDefault("handshake.open_timeout", "5s")
	v.SetDefault("handshake.break_duration", "250ms")
	v.SetDefault("handshake.break_settle", "2s")
	v.SetDefault("handshake.probe_settle", "200ms")
	v.SetDefault("handshake.probe_read_size", 10)

	// Command defaults
	v.SetDefault("commands.delay", "100ms")

	// Capture defaults
	v.SetDefault("capture.poll_interval", "100ms")
	v.SetDefault("capture.buffer_size", 4096)
	v.SetDefault("capture.fsync", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// normalize fills derived values that depend on the environment
func (c *Config) normalize(now time.Time) error {
	if comPortPattern.MatchString(c.Session.Device) {
		c.Session.Device = strings.ToUpper(c.Session.Device)
	}

	if c.Session.Output == "" {
		c.Session.Output = DefaultOutputName(now)
	}

	if !filepath.IsAbs(c.Session.Output) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		c.Session.Output = filepath.Join(wd, c.Session.Output)
	}

	return nil
}

// DefaultOutputName returns the timestamp-derived output file name for t
func DefaultOutputName(t time.Time) string {
	return t.Format(OutputTimeLayout) + ".log"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Session.Device == "" {
		return fmt.Errorf("%w: session.device is required", model.ErrInvalidConfiguration)
	}
	if c.Session.Output == "" {
		return fmt.Errorf("%w: session.output is required", model.ErrInvalidConfiguration)
	}
	if !model.IsTargetBaudRate(c.Session.BaudRate) {
		return fmt.Errorf("%w: session.baud_rate must be one of: %v",
			model.ErrInvalidConfiguration, model.TargetBaudRates)
	}

	if err := c.INS.Validate(); err != nil {
		return err
	}
	if err := c.Handshake.validate(); err != nil {
		return err
	}

	if c.Commands.Delay < 0 {
		return fmt.Errorf("%w: commands.delay must not be negative", model.ErrInvalidConfiguration)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("%w: capture.poll_interval must be positive", model.ErrInvalidConfiguration)
	}
	if c.Capture.BufferSize <= 0 {
		return fmt.Errorf("%w: capture.buffer_size must be positive", model.ErrInvalidConfiguration)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if c.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("%w: logging.level must be one of: %v", model.ErrInvalidConfiguration, validLevels)
	}

	return nil
}

func (h HandshakeConfig) validate() error {
	if len(h.Candidates) == 0 {
		return fmt.Errorf("%w: handshake.candidates must not be empty", model.ErrInvalidConfiguration)
	}
	for _, rate := range h.Candidates {
		if !model.IsSupportedBaudRate(rate) {
			return fmt.Errorf("%w: handshake candidate %d must be one of: %v",
				model.ErrInvalidConfiguration, rate, model.SupportedBaudRates)
		}
	}
	if h.OpenTimeout <= 0 || h.BreakDuration <= 0 {
		return fmt.Errorf("%w: handshake open_timeout and break_duration must be positive", model.ErrInvalidConfiguration)
	}
	if h.BreakSettle < 0 || h.ProbeSettle < 0 {
		return fmt.Errorf("%w: handshake settle delays must not be negative", model.ErrInvalidConfiguration)
	}
	if h.ProbeReadSize < len("<OK") {
		return fmt.Errorf("%w: handshake.probe_read_size must be at least %d", model.ErrInvalidConfiguration, len("<OK"))
	}
	return nil
}

// Populated returns how many of the four INS parameters are set
func (i INSConfig) Populated() int {
	count := 0
	if i.IMUType != "" {
		count++
	}
	if i.IMUPort != "" {
		count++
	}
	if len(i.LeverArm) > 0 {
		count++
	}
	if len(i.Rotation) > 0 {
		count++
	}
	return count
}

// Enabled reports whether INS configuration commands should be sent
func (i INSConfig) Enabled() bool {
	return i.Populated() == 4
}

// Validate enforces the all-or-nothing rule for INS parameters
func (i INSConfig) Validate() error {
	switch i.Populated() {
	case 0:
		return nil
	case 4:
	default:
		return fmt.Errorf("%w: missing input for configuring INS, imu type, imu port, lever arm and rotation must be given together",
			model.ErrInvalidConfiguration)
	}

	if len(i.LeverArm) != 3 {
		return fmt.Errorf("%w: lever arm needs 3 values, got %d", model.ErrInvalidConfiguration, len(i.LeverArm))
	}
	if len(i.Rotation) != 3 {
		return fmt.Errorf("%w: rotation needs 3 values, got %d", model.ErrInvalidConfiguration, len(i.Rotation))
	}
	return nil
}
