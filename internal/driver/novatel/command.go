// internal/driver/novatel/command.go
package novatel

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"

	"novatel-logger/internal/config"
	"novatel-logger/internal/model"
)

// AckMarker is the response prefix of an accepted command
var AckMarker = []byte("<OK")

// DefaultLogProfile is the SPAN logging profile requested after negotiation
var DefaultLogProfile = []string{
	// Receiver identity and state
	"LOG VERSIONB ONCE",
	"LOG RXCONFIGB ONCE",
	"LOG RXSTATUSB ONCHANGED",

	// Observations and ephemerides
	"LOG RANGEB ONTIME 1",
	"LOG RAWEPHEMB ONNEW",
	"LOG GPSEPHEMB ONNEW",
	"LOG GLOEPHEMERISB ONNEW",
	"LOG GALFNAVEPHEMERISB ONNEW",
	"LOG GALINAVEPHEMERISB ONNEW",
	"LOG BDSEPHEMERISB ONNEW",
	"LOG QZSSEPHEMERISB ONNEW",
	"LOG NAVICEPHEMERISB ONNEW",

	// Solutions
	"LOG BESTGNSSPOSB ONTIME 1",
	"LOG BESTPOSB ONTIME 1",
	"LOG HEADING2B ONNEW",

	// Inertial
	"LOG RAWIMUSXB ONNEW",
	"LOG INSPVAXB ONTIME 1",
	"LOG INSCONFIGB ONCHANGED",
	"LOG INSUPDATESTATUSB ONNEW",
}

const (
	serialConfigFormat   = "serialconfig %d"
	connectIMUFormat     = "connectimu %s %s"
	insRotationFormat    = "setinsrotation RBV %s %s %s 3 3 3"
	insTranslationFormat = "setinstranslation ANT1 %s %s %s 0.05 0.05 0.05"
)

// SerialConfigCommand asks the receiver to switch its port to rate
func SerialConfigCommand(rate int) string {
	return fmt.Sprintf(serialConfigFormat, rate)
}

// INSCommands returns the INS setup sub-sequence for a validated, enabled ins
func INSCommands(ins config.INSConfig) []string {
	return []string{
		fmt.Sprintf(connectIMUFormat, ins.IMUPort, ins.IMUType),
		fmt.Sprintf(insRotationFormat, formatVector(ins.Rotation)...),
		fmt.Sprintf(insTranslationFormat, formatVector(ins.LeverArm)...),
	}
}

// BuildCommandSequence returns the INS sub-sequence, when enabled, followed by the logging profile
func BuildCommandSequence(ins config.INSConfig) (model.CommandSequence, error) {
	if err := ins.Validate(); err != nil {
		return model.CommandSequence{}, err
	}

	commands := make([]string, 0, len(DefaultLogProfile)+3)
	if ins.Enabled() {
		commands = append(commands, INSCommands(ins)...)
	}
	commands = append(commands, DefaultLogProfile...)

	return model.NewCommandSequence(commands...), nil
}

// formatVector renders floats without exponent notation; whole numbers keep one decimal
func formatVector(values []float64) []any {
	formatted := make([]any, len(values))
	for i, v := range values {
		d := decimal.NewFromFloat(v)
		if d.IsInteger() {
			formatted[i] = d.StringFixed(1)
			continue
		}
		formatted[i] = d.String()
	}
	return formatted
}

// IsAck reports whether response carries the acknowledgment marker
func IsAck(response []byte) bool {
	return bytes.Contains(response, AckMarker)
}
