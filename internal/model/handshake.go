// internal/model/handshake.go
package model

import "time"

// SupportedBaudRates are the speeds a receiver may be operating at, in probe order
var SupportedBaudRates = []int{2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800}

// TargetBaudRates are the speeds a session may switch the receiver to
var TargetBaudRates = []int{9600, 115200, 230400, 460800}

// DefaultTargetBaudRate is used when no target speed is configured
const DefaultTargetBaudRate = 460800

// IsSupportedBaudRate reports whether rate is one of SupportedBaudRates
func IsSupportedBaudRate(rate int) bool {
	return containsRate(SupportedBaudRates, rate)
}

// IsTargetBaudRate reports whether rate is one of TargetBaudRates
func IsTargetBaudRate(rate int) bool {
	return containsRate(TargetBaudRates, rate)
}

func containsRate(rates []int, rate int) bool {
	for _, r := range rates {
		if r == rate {
			return true
		}
	}
	return false
}

// HandshakeStatus is the terminal outcome of baud negotiation
type HandshakeStatus string

const (
	HandshakeEstablished HandshakeStatus = "ESTABLISHED"
	HandshakeFailed      HandshakeStatus = "FAILED"
)

// ProbeRecord captures a single candidate attempt
type ProbeRecord struct {
	Candidate int           `json:"candidate"`
	Response  []byte        `json:"response,omitempty"`
	Acked     bool          `json:"acked"`
	Skipped   bool          `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HandshakeResult is produced exactly once per negotiation
type HandshakeResult struct {
	Status HandshakeStatus `json:"status"`

	// BaudRate is the working rate after a successful switch
	BaudRate int `json:"baud_rate,omitempty"`

	// DetectedBaudRate is the candidate the receiver acknowledged on
	DetectedBaudRate int `json:"detected_baud_rate,omitempty"`

	Probes []ProbeRecord `json:"probes"`
}

// Established reports whether the receiver is now at the target rate
func (r HandshakeResult) Established() bool {
	return r.Status == HandshakeEstablished
}

// Candidates returns the speeds that were probed, in order
func (r HandshakeResult) Candidates() []int {
	rates := make([]int, 0, len(r.Probes))
	for _, p := range r.Probes {
		rates = append(rates, p.Candidate)
	}
	return rates
}
