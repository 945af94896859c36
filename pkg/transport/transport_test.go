package transport

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeInstrument answers *IDN? and echoes RF queries on a local TCP socket.
// Commands it does not recognize are swallowed without a response, which is
// how a line instrument behaves for write-only commands.
func fakeInstrument(t *testing.T) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				for scanner.Scan() {
					line := strings.TrimSpace(scanner.Text())
					switch {
					case line == "*IDN?":
						c.Write([]byte("ROHDE&SCHWARZ,SMY02,102045,V1.62\r\n"))
					case line == "RF?":
						c.Write([]byte("RF  144.000000E+6\r\n"))
					case line == "SLOW?":
						// Never answers; used for timeout tests.
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestTCPQueryLine(t *testing.T) {
	addr, stop := fakeInstrument(t)
	defer stop()

	tr := NewTCPTransport(addr)
	if err := tr.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	resp, err := tr.QueryLine("*IDN?", time.Second)
	if err != nil {
		t.Fatalf("QueryLine failed: %v", err)
	}
	if resp != "ROHDE&SCHWARZ,SMY02,102045,V1.62" {
		t.Errorf("Unexpected response: %q", resp)
	}

	resp, err = tr.QueryLine("RF?", time.Second)
	if err != nil {
		t.Fatalf("QueryLine failed: %v", err)
	}
	if resp != "RF  144.000000E+6" {
		t.Errorf("Unexpected response: %q", resp)
	}
}

func TestTCPWriteLine(t *testing.T) {
	addr, stop := fakeInstrument(t)
	defer stop()

	tr := NewTCPTransport(addr)
	if err := tr.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	if err := tr.WriteLine("RF 144000000"); err != nil {
		t.Errorf("WriteLine failed: %v", err)
	}
}

func TestTCPQueryTimeout(t *testing.T) {
	addr, stop := fakeInstrument(t)
	defer stop()

	tr := NewTCPTransport(addr)
	if err := tr.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tr.Close()

	_, err := tr.QueryLine("SLOW?", 100*time.Millisecond)
	if err == nil {
		t.Fatalf("Expected timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	if IsFatal(err) {
		t.Errorf("Timeout should not be classified as fatal")
	}
}

func TestTCPNotOpen(t *testing.T) {
	tr := NewTCPTransport("127.0.0.1:9")

	if err := tr.WriteLine("RF 1"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
	if _, err := tr.QueryLine("*IDN?", time.Second); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
}

func TestTCPDefaultPort(t *testing.T) {
	tr := NewTCPTransport("192.168.1.40")
	if tr.Address() != "192.168.1.40:5025" {
		t.Errorf("Expected default SCPI port, got %q", tr.Address())
	}

	tr = NewTCPTransport("192.168.1.40:7777")
	if tr.Address() != "192.168.1.40:7777" {
		t.Errorf("Explicit port overridden: %q", tr.Address())
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Errorf("nil should not be fatal")
	}
	if IsFatal(errors.New("unrelated")) {
		t.Errorf("non-transport errors should not be fatal")
	}

	hard := &Error{Op: "write", Err: errors.New("broken pipe")}
	if !IsFatal(hard) {
		t.Errorf("Hard I/O fault should be fatal")
	}
}

func TestSerialOpenValidation(t *testing.T) {
	if err := NewSerialTransport("", 9600).Open(); err == nil {
		t.Errorf("Expected error for empty port name")
	}
	if err := NewSerialTransport("/dev/ttyUSB0", 0).Open(); err == nil {
		t.Errorf("Expected error for zero baud rate")
	}
}
