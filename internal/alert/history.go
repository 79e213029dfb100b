package alert

import "sync"

// dispatchLog is a fixed ring of the last dispatches. A size of zero keeps
// nothing.
type dispatchLog struct {
	mu    sync.Mutex
	slots []Dispatch
	next  int
	count int
}

func newDispatchLog(size int) *dispatchLog {
	return &dispatchLog{slots: make([]Dispatch, max(size, 0))}
}

func (l *dispatchLog) record(d Dispatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.slots) == 0 {
		return
	}
	l.slots[l.next] = d
	l.next = (l.next + 1) % len(l.slots)
	l.count = min(l.count+1, len(l.slots))
}

// recent returns a copy, oldest first.
func (l *dispatchLog) recent() []Dispatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Dispatch, 0, l.count)
	start := (l.next - l.count + len(l.slots)) % max(len(l.slots), 1)
	for i := 0; i < l.count; i++ {
		out = append(out, l.slots[(start+i)%len(l.slots)])
	}
	return out
}
