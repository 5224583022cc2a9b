// internal/protocol/connection.go
package protocol

import (
	"sync"
	"time"
)

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`
}

// claims tracks device paths opened by this process
var claims = struct {
	sync.Mutex
	devices map[string]struct{}
}{devices: make(map[string]struct{})}

// claimDevice reserves device, reporting false if it is already held
func claimDevice(device string) bool {
	claims.Lock()
	defer claims.Unlock()

	if _, held := claims.devices[device]; held {
		return false
	}
	claims.devices[device] = struct{}{}
	return true
}

func releaseDevice(device string) {
	claims.Lock()
	defer claims.Unlock()
	delete(claims.devices, device)
}
