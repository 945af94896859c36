package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	// Default SCPI raw-socket port used by LAN instrument bridges.
	DefaultSCPIPort = "5025"

	defaultWriteTimeout = 2 * time.Second
)

// TCPTransport talks to an instrument (or a GPIB/LAN bridge in front of one)
// over a raw TCP socket, one CRLF-terminated line per exchange.
type TCPTransport struct {
	address string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPTransport creates a transport for the given address. A missing port
// defaults to the standard SCPI raw-socket port.
func NewTCPTransport(address string) *TCPTransport {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, DefaultSCPIPort)
	}
	return &TCPTransport{address: address}
}

// Address returns the resolved dial address.
func (t *TCPTransport) Address() string {
	return t.address
}

func (t *TCPTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
	}

	conn, err := net.DialTimeout("tcp", t.address, 5*time.Second)
	if err != nil {
		return &Error{Op: "open", Err: fmt.Errorf("dial %s: %w", t.address, err)}
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	if err != nil {
		return &Error{Op: "close", Err: err}
	}
	return nil
}

func (t *TCPTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(line)
}

func (t *TCPTransport) writeLocked(line string) error {
	if t.conn == nil {
		return &Error{Op: "write", Err: ErrNotOpen}
	}

	t.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if _, err := t.conn.Write([]byte(line + "\r\n")); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}

func (t *TCPTransport) QueryLine(line string, timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writeLocked(line); err != nil {
		return "", err
	}
	if t.conn == nil {
		return "", &Error{Op: "read", Err: ErrNotOpen}
	}

	t.conn.SetReadDeadline(time.Now().Add(timeout))
	response, err := t.reader.ReadString('\n')
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", &Error{Op: "read", Err: fmt.Errorf("%q: %w", line, ErrTimeout)}
		}
		return "", &Error{Op: "read", Err: err}
	}

	return strings.TrimRight(response, "\r\n"), nil
}
