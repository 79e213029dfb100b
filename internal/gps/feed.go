package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	SourceSerial = "serial"
	SourceGPSD   = "gpsd"
	SourceReplay = "replay"
)

// serialReadTimeout is how long a tty read waits for the first byte before
// returning empty.
const serialReadTimeout = 500 * time.Millisecond

// hangupReads empty reads in a row, each back well before the source's
// idle wait, mean the device is gone.
const hangupReads = 8

// ErrHangup reports a tty that returns empty without waiting, which is how
// Linux reports an unplugged USB receiver.
var ErrHangup = errors.New("gps: device hung up")

// feed is one opened byte source.
type feed struct {
	r     io.ReadCloser
	label string

	// idleWait is non-zero for sources where an empty read means nothing
	// arrived within that long, rather than the end of the stream.
	idleWait time.Duration
	// final marks sources that are not reopened once they end.
	final bool
}

// openFeedFn is swapped out by tests.
var openFeedFn = openFeed

func openFeed(ctx context.Context, cfg Config) (feed, error) {
	switch cfg.Source {
	case SourceSerial:
		device := strings.TrimSpace(cfg.Device)
		if device == "" {
			device = autoDetectDevice()
			if device == "" {
				return feed{}, fmt.Errorf("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			}
		}
		f, err := openSerial(device, cfg.Baud)
		if err != nil {
			return feed{}, fmt.Errorf("gps open failed device=%s baud=%d: %w", device, cfg.Baud, err)
		}
		return feed{r: f, label: fmt.Sprintf("device=%s baud=%d", device, cfg.Baud), idleWait: serialReadTimeout}, nil

	case SourceGPSD:
		addr := strings.TrimSpace(cfg.GPSDAddr)
		if addr == "" {
			addr = gpsdDefaultAddr
		}
		conn, err := dialGPSD(ctx, addr)
		if err != nil {
			return feed{}, fmt.Errorf("gpsd dial failed addr=%s: %w", addr, err)
		}
		if err := gpsdWatchRaw(conn); err != nil {
			_ = conn.Close()
			return feed{}, fmt.Errorf("gpsd watch failed addr=%s: %w", addr, err)
		}
		return feed{r: conn, label: "addr=" + addr}, nil

	case SourceReplay:
		f, err := os.Open(cfg.ReplayPath)
		if err != nil {
			return feed{}, fmt.Errorf("gps replay open failed: %w", err)
		}
		return feed{r: newPacedReader(f, cfg.Baud), label: "file=" + cfg.ReplayPath, final: true}, nil
	}
	return feed{}, fmt.Errorf("gps source %q not supported", cfg.Source)
}

// pacedReader releases a capture file at roughly the rate a serial line of
// the given baud would (10 bits per byte for 8N1).
type pacedReader struct {
	rc          io.ReadCloser
	bytesPerSec int
	sleep       func(time.Duration)
}

func newPacedReader(rc io.ReadCloser, baud int) *pacedReader {
	return &pacedReader{rc: rc, bytesPerSec: baud / 10, sleep: time.Sleep}
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if p.bytesPerSec > 0 {
		// At most 50ms worth per read keeps the pacing smooth.
		chunk := p.bytesPerSec / 20
		if chunk < 1 {
			chunk = 1
		}
		if len(b) > chunk {
			b = b[:chunk]
		}
	}
	n, err := p.rc.Read(b)
	if n > 0 && p.bytesPerSec > 0 {
		p.sleep(time.Duration(n) * time.Second / time.Duration(p.bytesPerSec))
	}
	return n, err
}

func (p *pacedReader) Close() error { return p.rc.Close() }

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
