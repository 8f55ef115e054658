// internal/transport/serial.go
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrConnection is returned when the serial port cannot be opened.
var ErrConnection = errors.New("transport: cannot open connection")

// ErrComm wraps every I/O failure on an open connection.
// Upper layers need exactly one failure path for "the link broke".
var ErrComm = errors.New("transport: communication error")

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond

	lineFeed = '\n'

	// MaxLineLength bounds ReadLine; longer input without a terminator is ErrComm.
	MaxLineLength = 256
)

// port is the subset of serial.Port the transport uses.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// allow tests to replace the OS serial layer
var (
	openPort  = func(name string, mode *serial.Mode) (port, error) { return serial.Open(name, mode) }
	listPorts = serial.GetPortsList
)

// Config is the physical link configuration.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial owns one physical serial connection (8N1).
type Serial struct {
	mu      sync.Mutex
	port    port
	name    string
	timeout time.Duration
	closed  bool
}

// Open opens and configures the serial port.
func Open(cfg Config) (*Serial, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: port name required", ErrConnection)
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := openPort(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %v", ErrConnection, cfg.Port, err)
	}

	return &Serial{
		port:    p,
		name:    cfg.Port,
		timeout: cfg.ReadTimeout,
	}, nil
}

// Name returns the port name the connection was opened with.
func (s *Serial) Name() string { return s.name }

// Write sends b completely or fails with ErrComm.
func (s *Serial) Write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: write on closed port %s", ErrComm, s.name)
	}
	for len(b) > 0 {
		n, err := s.port.Write(b)
		if err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrComm, s.name, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: write %s: zero bytes written", ErrComm, s.name)
		}
		b = b[n:]
	}
	return nil
}

// Read reads up to n bytes, giving up when timeout elapses.
// A short (or empty) result is not an error here; callers decide.
func (s *Serial) Read(n int, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: read on closed port %s", ErrComm, s.name)
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)

	for len(out) < n {
		got, err := s.port.Read(buf[:n-len(out)])
		if err != nil {
			return out, fmt.Errorf("%w: read %s: %v", ErrComm, s.name, err)
		}
		out = append(out, buf[:got]...)
		// serial.Port returns 0, nil when its own read timeout fires
		if got == 0 && !time.Now().Before(deadline) {
			break
		}
	}
	return out, nil
}

// ReadLine reads one LF-terminated line (terminator included).
// Running out of time before the terminator arrives is ErrComm.
func (s *Serial) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("%w: read on closed port %s", ErrComm, s.name)
	}

	var line []byte
	var b [1]byte
	deadline := time.Now().Add(timeout)

	for {
		got, err := s.port.Read(b[:])
		if err != nil {
			return string(line), fmt.Errorf("%w: read line %s: %v", ErrComm, s.name, err)
		}
		if got == 1 {
			line = append(line, b[0])
			if b[0] == lineFeed {
				return string(line), nil
			}
			if len(line) >= MaxLineLength {
				return string(line), fmt.Errorf("%w: read line %s: no terminator in %d bytes", ErrComm, s.name, len(line))
			}
		}
		// the deadline holds even while bytes keep arriving
		if !time.Now().Before(deadline) {
			return string(line), fmt.Errorf("%w: read line %s: timeout after %q", ErrComm, s.name, line)
		}
	}
}

// Close releases the port. Closing twice is a no-op.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrComm, s.name, err)
	}
	return nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	names, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}
	return names, nil
}
