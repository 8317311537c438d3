package serialmux

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/timeutil"
)

// Opener opens the device at path.
type Opener func(path string, mode *serial.Mode) (SerialPorter, error)

// OpenSerial opens a real port through go.bug.st/serial.
func OpenSerial(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// Open configures and opens the port at path, then wraps it in a mux.
func Open(path string, opts PortOptions, format Format, clock timeutil.Clock, open Opener) (*SerialMux[SerialPorter], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s (%s): %w", path, opts, err)
	}
	monitoring.Logf("[serial] opened %s at %s, %s framing", path, opts, format)
	return NewSerialMux(port, format, clock), nil
}

// NewRealSerialMux opens the servo controller at path.
func NewRealSerialMux(path string, opts PortOptions, format Format) (*SerialMux[SerialPorter], error) {
	return Open(path, opts, format, timeutil.RealClock{}, OpenSerial)
}
