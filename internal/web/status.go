package web

import (
	"sync/atomic"
	"time"

	"sosbeacon/internal/alert"
	"sosbeacon/internal/gps"
	"sosbeacon/internal/modem"
)

// Sources supplies live snapshots. Nil members are left out of the status.
type Sources struct {
	GPS   func() gps.Snapshot
	Alert func() alert.Snapshot
	Modem func() modem.Snapshot

	// History returns recent alert dispatches, oldest first.
	History func() []alert.Dispatch
}

type Status struct {
	startUnixNano int64
	src           atomic.Value // Sources
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.src.Store(Sources{})
	return s
}

// SetSources installs the snapshot providers. Safe to call while serving.
func (s *Status) SetSources(src Sources) {
	s.src.Store(src)
}

type StatusSnapshot struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	GPS   *gps.Snapshot   `json:"gps,omitempty"`
	Alert *alert.Snapshot `json:"alert,omitempty"`
	Modem *modem.Snapshot `json:"modem,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	src := s.src.Load().(Sources)

	snap := StatusSnapshot{
		Service:   "sosbeacon",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if src.GPS != nil {
		v := src.GPS()
		snap.GPS = &v
	}
	if src.Alert != nil {
		v := src.Alert()
		snap.Alert = &v
	}
	if src.Modem != nil {
		v := src.Modem()
		snap.Modem = &v
	}
	return snap
}

func (s *Status) History() []alert.Dispatch {
	src := s.src.Load().(Sources)
	if src.History == nil {
		return []alert.Dispatch{}
	}
	h := src.History()
	if h == nil {
		h = []alert.Dispatch{}
	}
	return h
}
