// Package alert watches the trigger input and dispatches the position alert.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"sosbeacon/internal/nmea"
)

// Input is the trigger line. Read reports whether it is active.
type Input interface {
	Read() (bool, error)
}

// Output is the indicator line.
type Output interface {
	Write(on bool) error
}

// Notifier delivers one alert body to one destination. It must honor ctx.
type Notifier interface {
	Send(ctx context.Context, dest, body string) error
}

// FixSource hands out copies of the current fix.
type FixSource interface {
	Snapshot() nmea.Fix
}

type Config struct {
	Destination    string
	MessagePrefix  string
	IncludeMapLink bool

	// Debounce is the pause after every dispatch, so a held trigger
	// produces at most one alert per interval.
	Debounce     time.Duration
	PollInterval time.Duration

	HistorySize int
}

// Dispatch records one alert attempt.
type Dispatch struct {
	At     time.Time `json:"at_utc"`
	Dest   string    `json:"destination"`
	Body   string    `json:"body"`
	HadFix bool      `json:"had_fix"`
	Error  string    `json:"error,omitempty"`
}

type Snapshot struct {
	Running       bool `json:"running"`
	TriggerActive bool `json:"trigger_active"`
	IndicatorOn   bool `json:"indicator_on"`

	Dispatches uint64    `json:"dispatches"`
	Failures   uint64    `json:"failures"`
	Last       *Dispatch `json:"last_dispatch,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

type Task struct {
	cfg       Config
	trigger   Input
	indicator Output
	notifier  Notifier
	fix       FixSource

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	history *dispatchLog

	mu           sync.Mutex
	snap         Snapshot
	indicatorSet bool
}

func New(cfg Config, trigger Input, indicator Output, notifier Notifier, fix FixSource) (*Task, error) {
	if trigger == nil || notifier == nil || fix == nil {
		return nil, fmt.Errorf("alert: trigger, notifier and fix source are required")
	}
	if strings.TrimSpace(cfg.Destination) == "" {
		return nil, fmt.Errorf("alert: destination is required")
	}
	if cfg.MessagePrefix == "" {
		cfg.MessagePrefix = DefaultPrefix
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = 20
	}
	return &Task{
		cfg:       cfg,
		trigger:   trigger,
		indicator: indicator,
		notifier:  notifier,
		fix:       fix,
		now:       time.Now,
		after:     time.After,
		history:   newDispatchLog(cfg.HistorySize),
	}, nil
}

// Run polls the trigger until ctx is done. Notifier failures are recorded
// and never retried; the next trigger cycle is a fresh attempt.
func (t *Task) Run(ctx context.Context) error {
	if t == nil {
		return fmt.Errorf("alert: task is nil")
	}
	t.setState(func(s *Snapshot) { s.Running = true })
	defer func() {
		t.setIndicator(false)
		t.setState(func(s *Snapshot) { s.Running = false })
	}()

	log.Printf("alert armed destination=%s debounce=%s poll=%s", t.cfg.Destination, t.cfg.Debounce, t.cfg.PollInterval)
	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := t.step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.after(wait):
		}
	}
}

// step runs one trigger cycle and returns how long to wait before the next.
func (t *Task) step(ctx context.Context) time.Duration {
	active, err := t.trigger.Read()
	if err != nil {
		t.noteError(fmt.Sprintf("alert trigger read failed: %v", err))
		active = false
	}
	t.setState(func(s *Snapshot) { s.TriggerActive = active })

	if !active {
		t.setIndicator(false)
		return t.cfg.PollInterval
	}

	t.setIndicator(true)
	t.dispatch(ctx)
	return t.cfg.Debounce
}

func (t *Task) dispatch(ctx context.Context) {
	fix := t.fix.Snapshot()
	body := Compose(t.cfg.MessagePrefix, fix)
	if fix.Valid && t.cfg.IncludeMapLink {
		body += " " + MapLink(fix)
	}

	d := Dispatch{At: t.now().UTC(), Dest: t.cfg.Destination, Body: body, HadFix: fix.Valid}
	err := t.notifier.Send(ctx, t.cfg.Destination, body)
	if err != nil {
		d.Error = err.Error()
		if !errors.Is(err, context.Canceled) {
			log.Printf("alert dispatch failed destination=%s: %v", t.cfg.Destination, err)
		}
	} else {
		log.Printf("alert dispatched destination=%s had_fix=%t", t.cfg.Destination, fix.Valid)
	}

	t.history.record(d)
	t.setState(func(s *Snapshot) {
		s.Dispatches++
		if err != nil {
			s.Failures++
			s.LastError = d.Error
		}
		last := d
		s.Last = &last
	})
}

// setIndicator only touches the line on a change.
func (t *Task) setIndicator(on bool) {
	if t.indicator == nil {
		return
	}
	t.mu.Lock()
	unchanged := t.indicatorSet && t.snap.IndicatorOn == on
	t.mu.Unlock()
	if unchanged {
		return
	}
	if err := t.indicator.Write(on); err != nil {
		t.noteError(fmt.Sprintf("alert indicator write failed: %v", err))
		return
	}
	t.mu.Lock()
	t.indicatorSet = true
	t.snap.IndicatorOn = on
	t.mu.Unlock()
}

// noteError records msg and logs it only when it differs from the last
// one, so a stuck line does not flood the log at the poll rate.
func (t *Task) noteError(msg string) {
	t.mu.Lock()
	repeat := t.snap.LastError == msg
	t.snap.LastError = msg
	t.mu.Unlock()
	if !repeat {
		log.Print(msg)
	}
}

func (t *Task) setState(update func(*Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	update(&t.snap)
}

func (t *Task) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snap
	if snap.Last != nil {
		last := *snap.Last
		snap.Last = &last
	}
	return snap
}

// History returns recent dispatches, oldest first.
func (t *Task) History() []Dispatch {
	if t == nil {
		return nil
	}
	return t.history.recent()
}
