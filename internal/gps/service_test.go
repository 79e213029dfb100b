package gps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"sosbeacon/internal/nmea"
	"sosbeacon/internal/ring"
)

const ggaExample = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", payload, ck)
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-6 }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// pipeFeed swaps openFeedFn for an in-memory pipe and returns its writer.
func pipeFeed(t *testing.T) *io.PipeWriter {
	t.Helper()
	pr, pw := io.Pipe()
	prev := openFeedFn
	openFeedFn = func(ctx context.Context, cfg Config) (feed, error) {
		return feed{r: pr, label: "pipe"}, nil
	}
	t.Cleanup(func() {
		openFeedFn = prev
		_ = pw.Close()
	})
	return pw
}

func startService(t *testing.T, cfg Config, sink FixSink) *Service {
	t.Helper()
	cfg.Enable = true
	s := New(cfg, sink)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestService_AcceptsGGAExample(t *testing.T) {
	pw := pipeFeed(t)
	s := startService(t, Config{}, nil)

	if _, err := io.WriteString(pw, ggaExample+"\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "fix", func() bool { return s.Position().Snapshot().Valid })

	fix := s.Position().Snapshot()
	if !near(fix.Latitude, 48.1173) || !near(fix.Longitude, 11.516667) {
		t.Fatalf("fix=%+v", fix)
	}
	if got := s.Snapshot(); got.Accepted != 1 || !got.Connected || got.Feed != "pipe" {
		t.Fatalf("snapshot=%+v", got)
	}
}

func TestService_RejectionsLeavePositionUnchanged(t *testing.T) {
	pw := pipeFeed(t)
	s := startService(t, Config{}, nil)

	_, _ = io.WriteString(pw, ggaExample+"\r\n")
	waitFor(t, "fix", func() bool { return s.Position().Snapshot().Valid })
	before := s.Position().Snapshot()

	badChecksum := ggaExample[:len(ggaExample)-1] + "8\r\n"
	void := nmeaLine("GPRMC,123600,V,3345.000,S,15112.000,E,000.0,000.0,230394,,")
	_, _ = io.WriteString(pw, badChecksum+void)
	waitFor(t, "rejections", func() bool { return s.Snapshot().Rejected == 2 })

	if after := s.Position().Snapshot(); after != before {
		t.Fatalf("position changed: before=%+v after=%+v", before, after)
	}
}

func TestService_SentenceSplitAcrossReads(t *testing.T) {
	pw := pipeFeed(t)
	s := startService(t, Config{}, nil)

	line := ggaExample + "\r\n"
	_, _ = io.WriteString(pw, line[:20])
	time.Sleep(20 * time.Millisecond)
	if s.Position().Snapshot().Valid {
		t.Fatalf("fix from a partial sentence")
	}
	_, _ = io.WriteString(pw, line[20:])
	waitFor(t, "fix", func() bool { return s.Position().Snapshot().Valid })
}

func TestService_SilenceSalvagesUnterminatedSentence(t *testing.T) {
	pw := pipeFeed(t)
	s := startService(t, Config{SilenceTimeout: 50 * time.Millisecond, WaitTimeout: 10 * time.Millisecond}, nil)

	_, _ = io.WriteString(pw, ggaExample)
	waitFor(t, "salvaged fix", func() bool { return s.Position().Snapshot().Valid })
	if got := s.Snapshot().Framing.Salvaged; got != 1 {
		t.Fatalf("salvaged=%d want 1", got)
	}
}

func TestService_CloseUnblocksReader(t *testing.T) {
	pipeFeed(t)
	cfg := Config{Enable: true}
	s := New(cfg, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "feed attached", func() bool { return s.Snapshot().Connected })

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return")
	}
}

func TestService_DisabledIsNoop(t *testing.T) {
	s := New(Config{}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Snapshot().Enabled {
		t.Fatalf("expected disabled snapshot")
	}
	s.Close()
}

func TestService_RejectsUnknownSource(t *testing.T) {
	s := New(Config{Enable: true, Source: "carrier-pigeon"}, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

// drainHarness runs the parser task by hand so wraparound is deterministic.
type drainHarness struct {
	s   *Service
	rb  *ring.Buffer
	tr  *ring.Tracker
	asm *nmea.Assembler
	now time.Time
}

func newDrainHarness(t *testing.T, ringCap int, sink FixSink, publish time.Duration) *drainHarness {
	t.Helper()
	rb, err := ring.New(ringCap)
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	h := &drainHarness{
		s:   New(Config{Enable: true, PublishInterval: publish}, sink),
		rb:  rb,
		tr:  ring.NewTracker(rb),
		asm: nmea.NewAssembler(256, time.Second),
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.s.now = func() time.Time { return h.now }
	return h
}

func (h *drainHarness) push(p string) {
	h.rb.Write([]byte(p))
	h.s.drain(h.now, h.tr, h.asm)
}

func TestDrain_WrapAtEveryOffset(t *testing.T) {
	line := ggaExample + "\r\n"
	for pre := 0; pre < 95; pre++ {
		h := newDrainHarness(t, 97, nil, 0)
		// Move the write position so the sentence straddles the end.
		h.push(strings.Repeat("z", pre) + "\r\n")
		h.push(line)
		if got := h.s.Snapshot().Accepted; got != 1 {
			t.Fatalf("pre=%d accepted=%d", pre, got)
		}
	}
}

func TestDrain_ManySentencesThroughSmallRing(t *testing.T) {
	h := newDrainHarness(t, 80, nil, 0)
	for i := 0; i < 200; i++ {
		lat := fmt.Sprintf("%02d07.038", i%90)
		h.push(nmeaLine("GNRMC,123519,A," + lat + ",N,01131.000,E,022.4,084.4,230394,003.1,W"))
	}
	snap := h.s.Snapshot()
	if snap.Accepted != 200 || snap.Rejected != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if got := snap.Fix.Latitude; !near(got, float64(199%90)+7.038/60) {
		t.Fatalf("last lat=%f", got)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	got  []nmea.Fix
	fail error
}

func (r *recordingSink) PublishFix(fix nmea.Fix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, fix)
	return r.fail
}

func TestDrain_FixSinkRateLimited(t *testing.T) {
	sink := &recordingSink{}
	h := newDrainHarness(t, 256, sink, 10*time.Second)

	for i := 0; i < 5; i++ {
		h.push(ggaExample + "\r\n")
		h.now = h.now.Add(3 * time.Second)
	}
	// Published at t=0 and t=12s.
	if len(sink.got) != 2 {
		t.Fatalf("published %d fixes want 2", len(sink.got))
	}
	if sink.got[0].Updated.IsZero() {
		t.Fatalf("published fix lacks timestamp")
	}
}

func TestDrain_FixSinkErrorRecorded(t *testing.T) {
	sink := &recordingSink{fail: fmt.Errorf("broker down")}
	h := newDrainHarness(t, 256, sink, 0)
	h.push(ggaExample + "\r\n")
	if got := h.s.Snapshot().LastError; got != "gps fix publish failed: broker down" {
		t.Fatalf("last_error=%q", got)
	}
	if !h.s.Position().Snapshot().Valid {
		t.Fatalf("publish failure must not drop the fix")
	}
}

func TestPacedReader_SleepsPerByte(t *testing.T) {
	var slept time.Duration
	p := newPacedReader(io.NopCloser(bytes.NewReader(bytes.Repeat([]byte("a"), 1000))), 9600)
	p.sleep = func(d time.Duration) { slept += d }

	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := p.Read(buf)
		total += n
		if n > 960/20 {
			t.Fatalf("read %d bytes in one call", n)
		}
		if err == io.EOF {
			break
		}
	}
	if total != 1000 {
		t.Fatalf("total=%d", total)
	}
	want := time.Duration(1000) * time.Second / 960
	if diff := slept - want; diff < -time.Millisecond || diff > time.Millisecond {
		t.Fatalf("slept=%s want about %s", slept, want)
	}
}
