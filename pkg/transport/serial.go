package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial read timeout per Read call; QueryLine loops reads until its own
// deadline, so this only bounds a single blocking read.
const serialReadSlice = 100 * time.Millisecond

// SerialTransport talks to an instrument over a serial port (USB-GPIB
// adapters present themselves as one), one CRLF-terminated line per exchange.
type SerialTransport struct {
	portName string
	baudRate int

	mu      sync.Mutex
	port    serial.Port
	pending []byte
}

// NewSerialTransport creates a transport for the given port and baud rate.
func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
	}
}

func (t *SerialTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		t.port.Close()
		t.port = nil
	}
	if t.portName == "" {
		return &Error{Op: "open", Err: fmt.Errorf("serial port is empty")}
	}
	if t.baudRate <= 0 {
		return &Error{Op: "open", Err: fmt.Errorf("invalid baud rate: %d", t.baudRate)}
	}

	port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return &Error{Op: "open", Err: fmt.Errorf("open %q: %w", t.portName, err)}
	}
	if err := port.SetReadTimeout(serialReadSlice); err != nil {
		port.Close()
		return &Error{Op: "open", Err: fmt.Errorf("set read timeout: %w", err)}
	}

	t.port = port
	t.pending = nil
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.pending = nil
	if err != nil {
		return &Error{Op: "close", Err: err}
	}
	return nil
}

func (t *SerialTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(line)
}

func (t *SerialTransport) writeLocked(line string) error {
	if t.port == nil {
		return &Error{Op: "write", Err: ErrNotOpen}
	}

	buf := []byte(line + "\r\n")
	written := 0
	for written < len(buf) {
		n, err := t.port.Write(buf[written:])
		if err != nil {
			return &Error{Op: "write", Err: err}
		}
		written += n
	}
	return nil
}

func (t *SerialTransport) QueryLine(line string, timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writeLocked(line); err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	for {
		if i := indexLineEnd(t.pending); i >= 0 {
			resp := strings.TrimRight(string(t.pending[:i]), "\r")
			t.pending = t.pending[i+1:]
			return resp, nil
		}
		if time.Now().After(deadline) {
			return "", &Error{Op: "read", Err: fmt.Errorf("%q: %w", line, ErrTimeout)}
		}

		n, err := t.port.Read(buf)
		if err != nil {
			return "", &Error{Op: "read", Err: err}
		}
		// n == 0 means the per-read timeout slice elapsed with no data.
		if n > 0 {
			t.pending = append(t.pending, buf[:n]...)
		}
	}
}

func indexLineEnd(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
