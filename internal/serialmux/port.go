package serialmux

import "io"

// SerialPorter is the part of a serial port the mux uses.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
