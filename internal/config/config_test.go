package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novatel-logger/internal/model"
)

func loadArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadArgs(t, "-c", "/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Session.Device)
	assert.Equal(t, model.DefaultTargetBaudRate, cfg.Session.BaudRate)
	assert.True(t, filepath.IsAbs(cfg.Session.Output))
	assert.True(t, strings.HasSuffix(cfg.Session.Output, ".log"))

	assert.Equal(t, model.SupportedBaudRates, cfg.Handshake.Candidates)
	assert.Equal(t, 5*time.Second, cfg.Handshake.OpenTimeout)
	assert.Equal(t, 2*time.Second, cfg.Handshake.BreakSettle)
	assert.Equal(t, 200*time.Millisecond, cfg.Handshake.ProbeSettle)
	assert.Equal(t, 10, cfg.Handshake.ProbeReadSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Commands.Delay)
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.PollInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.INS.Enabled())
}

func TestLoad_FlagOverrides(t *testing.T) {
	cfg, err := loadArgs(t, "-c", "com3", "-b", "115200", "-f", "drive.bin", "--log-level", "debug")
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, "COM3", cfg.Session.Device)
	assert.Equal(t, 115200, cfg.Session.BaudRate)
	assert.Equal(t, filepath.Join(wd, "drive.bin"), cfg.Session.Output)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_UnixDeviceKeepsCase(t *testing.T) {
	cfg, err := loadArgs(t, "-c", "/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Session.Device)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("NOVATEL_LOGGER_HANDSHAKE_PROBE_SETTLE", "50ms")
	t.Setenv("NOVATEL_LOGGER_CAPTURE_FSYNC", "true")

	cfg, err := loadArgs(t, "-c", "/dev/ttyS0")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Handshake.ProbeSettle)
	assert.True(t, cfg.Capture.Fsync)
}

func TestLoad_INSEnvironment(t *testing.T) {
	t.Setenv("NOVATEL_LOGGER_INS_IMU_TYPE", "EPSON_G320")
	t.Setenv("NOVATEL_LOGGER_INS_IMU_PORT", "COM2")
	t.Setenv("NOVATEL_LOGGER_INS_LEVER_ARM", "0.1,0.2,0.3")
	t.Setenv("NOVATEL_LOGGER_INS_ROTATION", "0,0,90")

	cfg, err := loadArgs(t, "-c", "/dev/ttyUSB0")
	require.NoError(t, err)

	assert.True(t, cfg.INS.Enabled())
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, cfg.INS.LeverArm)
	assert.Equal(t, []float64{0, 0, 90}, cfg.INS.Rotation)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logger.yaml")
	content := `
session:
  device: /dev/ttyS1
  baud_rate: 230400
handshake:
  candidates: [9600, 115200]
ins:
  imu_type: EPSON_G320
  imu_port: COM2
  lever_arm: [0.1, 0.2, 0.3]
  rotation: [0, 0, 90]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := loadArgs(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyS1", cfg.Session.Device)
	assert.Equal(t, 230400, cfg.Session.BaudRate)
	assert.Equal(t, []int{9600, 115200}, cfg.Handshake.Candidates)
	assert.True(t, cfg.INS.Enabled())
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, cfg.INS.LeverArm)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := loadArgs(t, "-c", "/dev/ttyS0", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_INSFlags(t *testing.T) {
	cfg, err := loadArgs(t,
		"-c", "/dev/ttyUSB0",
		"-i", "EPSON_G320",
		"--imu-port", "COM2",
		"--lever-arm", "0.1,-0.25,1.5",
		"--rotation", "0,0,90",
	)
	require.NoError(t, err)

	assert.True(t, cfg.INS.Enabled())
	assert.Equal(t, "EPSON_G320", cfg.INS.IMUType)
	assert.Equal(t, "COM2", cfg.INS.IMUPort)
	assert.Equal(t, []float64{0.1, -0.25, 1.5}, cfg.INS.LeverArm)
	assert.Equal(t, []float64{0, 0, 90}, cfg.INS.Rotation)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing device", nil},
		{"unsupported target baud", []string{"-c", "/dev/ttyUSB0", "-b", "57600"}},
		{"partial ins", []string{"-c", "/dev/ttyUSB0", "-i", "EPSON_G320"}},
		{"short lever arm", []string{
			"-c", "/dev/ttyUSB0", "-i", "EPSON_G320", "--imu-port", "COM2",
			"--lever-arm", "0.1,0.2", "--rotation", "0,0,90",
		}},
		{"bad log level", []string{"-c", "/dev/ttyUSB0", "--log-level", "verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadArgs(t, tt.args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidConfiguration), "got %v", err)
		})
	}
}

func TestLoad_InvalidCandidate(t *testing.T) {
	t.Setenv("NOVATEL_LOGGER_HANDSHAKE_CANDIDATES", "9600,1200")

	_, err := loadArgs(t, "-c", "/dev/ttyUSB0")
	require.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestINSConfig_AllOrNothing(t *testing.T) {
	full := INSConfig{
		IMUType:  "EPSON_G320",
		IMUPort:  "COM2",
		LeverArm: []float64{0.1, 0.2, 0.3},
		Rotation: []float64{0, 0, 90},
	}
	drops := []func(*INSConfig){
		func(c *INSConfig) { c.IMUType = "" },
		func(c *INSConfig) { c.IMUPort = "" },
		func(c *INSConfig) { c.LeverArm = nil },
		func(c *INSConfig) { c.Rotation = nil },
	}

	// every subset of dropped fields; 0 and 4 populated are valid
	for mask := 0; mask < 1<<len(drops); mask++ {
		cfg := full
		for i, drop := range drops {
			if mask&(1<<i) != 0 {
				drop(&cfg)
			}
		}

		populated := cfg.Populated()
		err := cfg.Validate()
		if populated == 0 || populated == 4 {
			assert.NoError(t, err, "mask %04b", mask)
			assert.Equal(t, populated == 4, cfg.Enabled())
		} else {
			assert.ErrorIs(t, err, model.ErrInvalidConfiguration, "mask %04b", mask)
			assert.False(t, cfg.Enabled())
		}
	}
}

func TestDefaultOutputName(t *testing.T) {
	ts := time.Date(2024, 3, 7, 9, 5, 1, 0, time.UTC)
	assert.Equal(t, "2024_03_07_09_05_01.log", DefaultOutputName(ts))
}
