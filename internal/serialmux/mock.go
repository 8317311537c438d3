package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/timeutil"
)

// MockSerialPort acknowledges every frame it receives the way the
// controller firmware does, so --dev runs exercise the full read path.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

func NewMockSerialPort() *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{r: r, w: w}
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	line := string(bytes.TrimRight(p, "\n"))
	monitoring.Logf("[serial] mock write %s", line)
	// Monitor may not be running; never block the tick on the echo.
	go m.w.Write([]byte("ok " + line + "\n"))
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.w.Close()
	return m.r.Close()
}

// NewMockSerialMux returns a mux backed by a MockSerialPort.
func NewMockSerialMux(format Format, clock timeutil.Clock) *SerialMux[*MockSerialPort] {
	return NewSerialMux(NewMockSerialPort(), format, clock)
}

// TestableSerialPort is an in-memory port with injectable failures.
type TestableSerialPort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// WriteError is returned by the next Write.
	WriteError error
	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool
	CloseError error
	Closed     bool
	WriteCalls int

	readCond *sync.Cond
}

func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

// Read blocks until data is queued with AddReadData or the port closes.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.Closed && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, errors.New("serial port closed")
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if err := t.WriteError; err != nil {
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		return t.WriteBuffer.Write(p[:len(p)-1])
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// AddReadData queues data for Read.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// Written returns everything written so far.
func (t *TestableSerialPort) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.WriteBuffer.String()
}
