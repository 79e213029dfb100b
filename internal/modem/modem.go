// Package modem sends SMS text messages through a GSM modem speaking the
// Hayes AT command set over a serial line.
package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.bug.st/serial"
)

// ErrModem wraps every failure reported by, or waiting on, the modem.
var ErrModem = errors.New("modem")

// MaxBodyLen is the single-SMS limit for the GSM 7-bit alphabet.
const MaxBodyLen = 160

var openPortFn = openPort

// readTimeout bounds each port read so waits can notice ctx and deadlines.
const readTimeout = 100 * time.Millisecond

func openPort(device string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("modem: failed to open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("modem: failed to set timeout: %w", err)
	}
	return port, nil
}

type Config struct {
	Device string
	Baud   int

	CommandTimeout time.Duration
	SubmitTimeout  time.Duration
}

type Snapshot struct {
	Device    string `json:"device,omitempty"`
	Connected bool   `json:"connected"`

	Sent          uint64    `json:"sent"`
	Failures      uint64    `json:"failures"`
	LastReference int       `json:"last_reference,omitempty"`
	LastSentAt    time.Time `json:"last_sent_utc,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
}

// Modem runs one AT dialogue at a time. The port is opened lazily and
// dropped after any failure, so the next Send starts from a fresh
// handshake.
type Modem struct {
	cfg Config

	// portMu is held for a whole dialogue; mu only guards snap, so
	// Snapshot never waits on the modem.
	portMu sync.Mutex
	port   io.ReadWriteCloser
	rx     tokenizer
	buf    []byte

	mu   sync.Mutex
	snap Snapshot
}

func New(cfg Config) *Modem {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}
	return &Modem{cfg: cfg, buf: make([]byte, 256), snap: Snapshot{Device: cfg.Device}}
}

// Send submits body as one SMS to number. The body is cut to MaxBodyLen
// characters.
func (m *Modem) Send(ctx context.Context, number, body string) error {
	if m == nil {
		return fmt.Errorf("modem: nil modem")
	}
	if err := validateNumber(number); err != nil {
		return err
	}
	body = sanitizeBody(body)

	m.portMu.Lock()
	defer m.portMu.Unlock()

	ref, err := m.send(ctx, number, body)
	if err != nil {
		m.dropPort()
		m.setState(func(s *Snapshot) {
			s.Failures++
			s.LastError = err.Error()
		})
		return err
	}
	m.setState(func(s *Snapshot) {
		s.Sent++
		s.LastReference = ref
		s.LastSentAt = time.Now().UTC()
		s.LastError = ""
	})
	log.Printf("modem sms sent number=%s ref=%d len=%d", number, ref, utf8.RuneCountInString(body))
	return nil
}

func (m *Modem) send(ctx context.Context, number, body string) (int, error) {
	if err := m.ensureOpen(ctx); err != nil {
		return 0, err
	}
	m.rx.reset()

	if _, err := m.command(ctx, CmdSetTextMode, m.cfg.CommandTimeout); err != nil {
		return 0, err
	}

	if err := m.write(CmdSendPrefix + strconv.Quote(number) + "\r"); err != nil {
		return 0, err
	}
	if err := m.awaitPrompt(ctx, m.cfg.CommandTimeout); err != nil {
		return 0, err
	}

	if err := m.write(body + CtrlZ); err != nil {
		return 0, err
	}
	data, err := m.await(ctx, m.cfg.SubmitTimeout)
	if err != nil {
		return 0, err
	}
	for _, line := range data {
		if strings.HasPrefix(line, RespSent) {
			ref, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, RespSent)))
			return ref, nil
		}
	}
	return 0, fmt.Errorf("%w: submit acknowledged without %s", ErrModem, RespSent)
}

// ensureOpen opens the port and runs the handshake once per open.
func (m *Modem) ensureOpen(ctx context.Context) error {
	if m.port != nil {
		return nil
	}
	port, err := openPortFn(m.cfg.Device, m.cfg.Baud)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModem, err)
	}
	m.port = port
	m.rx.reset()

	if _, err := m.command(ctx, CmdAt, m.cfg.CommandTimeout); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if _, err := m.command(ctx, CmdEchoOff, m.cfg.CommandTimeout); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	m.setState(func(s *Snapshot) { s.Connected = true })
	log.Printf("modem ready device=%s baud=%d", m.cfg.Device, m.cfg.Baud)
	return nil
}

func (m *Modem) dropPort() {
	if m.port == nil {
		return
	}
	// Leaves text-entry mode if the dialogue died after the prompt.
	_, _ = io.WriteString(m.port, Esc)
	_ = m.port.Close()
	m.port = nil
	m.setState(func(s *Snapshot) { s.Connected = false })
}

func (m *Modem) command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	if err := m.write(cmd + "\r"); err != nil {
		return nil, err
	}
	data, err := m.await(ctx, timeout)
	if err != nil {
		return data, fmt.Errorf("%s: %w", cmd, err)
	}
	return data, nil
}

func (m *Modem) write(s string) error {
	if _, err := io.WriteString(m.port, s); err != nil {
		return fmt.Errorf("%w: write: %w", ErrModem, err)
	}
	return nil
}

// await collects data lines until a final result code. Anything but OK is
// an error wrapping ErrModem. URCs are skipped.
func (m *Modem) await(ctx context.Context, timeout time.Duration) ([]string, error) {
	deadline := time.Now().Add(timeout)
	var data []string
	for {
		line, err := m.next(ctx, deadline)
		if err != nil {
			return data, err
		}
		switch Classify(line) {
		case TypeFinal:
			if line == OK {
				return data, nil
			}
			return data, fmt.Errorf("%w: %s", ErrModem, line)
		case TypeData:
			data = append(data, line)
		}
	}
}

func (m *Modem) awaitPrompt(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		line, err := m.next(ctx, deadline)
		if err != nil {
			return fmt.Errorf("waiting for prompt: %w", err)
		}
		switch Classify(line) {
		case TypePrompt:
			return nil
		case TypeFinal:
			return fmt.Errorf("%w: %s", ErrModem, line)
		}
	}
}

func (m *Modem) next(ctx context.Context, deadline time.Time) (string, error) {
	for {
		if line, ok := m.rx.next(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w: timeout", ErrModem)
		}
		n, err := m.port.Read(m.buf)
		if n > 0 {
			m.rx.feed(m.buf[:n])
		}
		if err != nil {
			return "", fmt.Errorf("%w: read: %w", ErrModem, err)
		}
	}
}

func (m *Modem) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *Modem) setState(update func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(&m.snap)
}

// Close waits for an in-flight Send, which returns early once its ctx is
// done.
func (m *Modem) Close() error {
	if m == nil {
		return nil
	}
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	m.setState(func(s *Snapshot) { s.Connected = false })
	return err
}

func validateNumber(number string) error {
	if number == "" {
		return fmt.Errorf("modem: empty destination number")
	}
	for i, r := range number {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			continue
		}
		return fmt.Errorf("modem: invalid destination number %q", number)
	}
	return nil
}

// sanitizeBody drops the control characters that end or abort text entry
// and cuts the body to one SMS.
func sanitizeBody(body string) string {
	body = strings.Map(func(r rune) rune {
		if r == 0x1A || r == 0x1B {
			return -1
		}
		return r
	}, body)
	if utf8.RuneCountInString(body) <= MaxBodyLen {
		return body
	}
	n := 0
	for i := range body {
		if n == MaxBodyLen {
			return body[:i]
		}
		n++
	}
	return body
}
