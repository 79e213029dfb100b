package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sosbeacon/internal/nmea"
	"sosbeacon/internal/ring"
)

// Config controls the GPS reader.
//
// Source selects the byte feed: "serial" (default) reads a tty directly,
// "gpsd" asks a local gpsd to relay raw NMEA, "replay" plays a capture
// file at roughly the configured baud.
//
// Device may be empty to auto-detect.
type Config struct {
	Enable bool

	Source     string
	Device     string
	Baud       int
	GPSDAddr   string
	ReplayPath string

	RingCapacity   int
	WorkCapacity   int
	SilenceTimeout time.Duration
	WaitTimeout    time.Duration

	// PublishInterval rate-limits fixes handed to the FixSink. Zero hands
	// over every accepted fix.
	PublishInterval time.Duration
}

func (c Config) withDefaults() Config {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = SourceSerial
	}
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.RingCapacity == 0 {
		c.RingCapacity = 1024
	}
	if c.WorkCapacity == 0 {
		c.WorkCapacity = 256
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = time.Second
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = 100 * time.Millisecond
	}
	return c
}

// FixSink receives accepted fixes for telemetry. It is called from the
// parser task and must not block for long.
type FixSink interface {
	PublishFix(fix nmea.Fix) error
}

type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Source    string `json:"source,omitempty"`
	Feed      string `json:"feed,omitempty"`
	Connected bool   `json:"connected"`

	Fix       nmea.Fix `json:"fix"`
	FixAgeSec float64  `json:"fix_age_sec,omitempty"`

	BytesIn  uint64              `json:"bytes_in"`
	Accepted uint64              `json:"accepted"`
	Rejected uint64              `json:"rejected"`
	Framing  nmea.AssemblerStats `json:"framing"`

	LastReject string `json:"last_reject,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type Service struct {
	cfg  Config
	sink FixSink
	pos  Position
	now  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	bytesIn atomic.Uint64

	mu          sync.Mutex
	closer      io.Closer
	snap        Snapshot
	lastPublish time.Time
}

// New builds a service. sink may be nil.
func New(cfg Config, sink FixSink) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:  cfg,
		sink: sink,
		now:  time.Now,
		snap: Snapshot{Enabled: cfg.Enable, Source: cfg.Source},
	}
}

// Position is the shared fix the alert path reads from.
func (s *Service) Position() *Position {
	if s == nil {
		return nil
	}
	return &s.pos
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	switch s.cfg.Source {
	case SourceSerial, SourceGPSD, SourceReplay:
	default:
		return fmt.Errorf("gps source %q not supported", s.cfg.Source)
	}

	rb, err := ring.New(s.cfg.RingCapacity)
	if err != nil {
		return fmt.Errorf("gps ring: %w", err)
	}
	tr := ring.NewTracker(rb)
	asm := nmea.NewAssembler(s.cfg.WorkCapacity, s.cfg.SilenceTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.produce(childCtx, rb)
	go s.consume(childCtx, rb, tr, asm)

	log.Printf("gps enabled source=%s ring=%d work=%d wait=%s", s.cfg.Source, s.cfg.RingCapacity, s.cfg.WorkCapacity, s.cfg.WaitTimeout)
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	snap := s.snap
	s.mu.Unlock()

	snap.BytesIn = s.bytesIn.Load()
	snap.Fix = s.pos.Snapshot()
	if snap.Fix.Valid && !snap.Fix.Updated.IsZero() {
		snap.FixAgeSec = s.now().Sub(snap.Fix.Updated).Seconds()
	}
	return snap
}

const (
	readChunk  = 256
	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// produce is the receive side: it copies bytes into the ring as they
// arrive and reopens the feed when it drops.
func (s *Service) produce(ctx context.Context, rb *ring.Buffer) {
	defer s.wg.Done()

	backoff := minBackoff
	for ctx.Err() == nil {
		f, err := openFeedFn(ctx, s.cfg)
		if err != nil {
			s.setError(err.Error())
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		if !s.attach(f) {
			_ = f.r.Close()
			return
		}
		log.Printf("gps feed open source=%s %s", s.cfg.Source, f.label)

		err = s.pump(ctx, f, rb)
		s.detach(f)
		_ = f.r.Close()

		if ctx.Err() != nil {
			return
		}
		if f.final && errors.Is(err, io.EOF) {
			log.Printf("gps replay finished %s", f.label)
			return
		}
		s.setError(fmt.Sprintf("gps read stopped %s: %v", f.label, err))
		if f.final || !sleepCtx(ctx, backoff) {
			return
		}
	}
}

// pump copies one feed into the ring until it fails. On idle-wait sources
// an empty read is normal, unless it comes back too fast too often.
func (s *Service) pump(ctx context.Context, f feed, rb *ring.Buffer) error {
	buf := make([]byte, readChunk)
	quick := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := s.now()
		n, err := f.r.Read(buf)
		if n > 0 {
			rb.Write(buf[:n])
			s.bytesIn.Add(uint64(n))
			quick = 0
		}
		if err == nil {
			continue
		}
		if f.idleWait <= 0 || !errors.Is(err, io.EOF) {
			return err
		}
		if n > 0 || s.now().Sub(start) >= f.idleWait/2 {
			quick = 0
			continue
		}
		quick++
		if quick >= hangupReads {
			return ErrHangup
		}
	}
}

// attach publishes the open feed so Close can interrupt a blocked read.
// It reports false once the service has been closed.
func (s *Service) attach(f feed) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.closer = f.r
	s.snap.Connected = true
	s.snap.Feed = f.label
	return true
}

func (s *Service) detach(f feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == f.r {
		s.closer = nil
	}
	s.snap.Connected = false
}

// consume is the parser task. Signals coalesce, so every wake drains all
// pending bytes; the timeout keeps the silence salvage running when the
// feed goes quiet.
func (s *Service) consume(ctx context.Context, rb *ring.Buffer, tr *ring.Tracker, asm *nmea.Assembler) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.WaitTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rb.Notify():
		case <-timer.C:
		}
		timer.Reset(s.cfg.WaitTimeout)
		s.drain(s.now(), tr, asm)
	}
}

func (s *Service) drain(now time.Time, tr *ring.Tracker, asm *nmea.Assembler) {
	emit := func(sentence []byte) { s.handleSentence(now, sentence) }

	first, second := tr.Poll()
	asm.Feed(now, first, emit)
	asm.Feed(now, second, emit)
	asm.Expire(now, emit)

	s.mu.Lock()
	s.snap.Framing = asm.Stats()
	s.mu.Unlock()
}

func (s *Service) handleSentence(now time.Time, sentence []byte) {
	fix, err := nmea.Parse(sentence)
	if err != nil {
		s.mu.Lock()
		s.snap.Rejected++
		s.snap.LastReject = err.Error()
		s.mu.Unlock()
		return
	}
	fix.Updated = now.UTC()

	hadFix := s.pos.Snapshot().Valid
	s.pos.update(fix)
	if !hadFix {
		log.Printf("gps fix acquired lat=%s lon=%s source=%s", nmea.FormatCoord(fix.Latitude), nmea.FormatCoord(fix.Longitude), fix.Source)
	}

	s.mu.Lock()
	s.snap.Accepted++
	publish := s.sink != nil && (s.lastPublish.IsZero() || now.Sub(s.lastPublish) >= s.cfg.PublishInterval)
	if publish {
		s.lastPublish = now
	}
	s.mu.Unlock()

	if publish {
		if err := s.sink.PublishFix(fix); err != nil {
			s.setError(fmt.Sprintf("gps fix publish failed: %v", err))
		}
	}
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.snap.LastError = msg
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
