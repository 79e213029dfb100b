package gps

import (
	"sync"

	"sosbeacon/internal/nmea"
)

// Position is the latest accepted fix. Only the parser task in this package
// writes it; everyone else reads copies through Snapshot.
type Position struct {
	mu  sync.Mutex
	fix nmea.Fix
}

// Snapshot returns a copy of the current fix. Valid is false until the
// first sentence is accepted.
func (p *Position) Snapshot() nmea.Fix {
	if p == nil {
		return nmea.Fix{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fix
}

// update replaces the whole fix. Callers only pass fixes that passed
// validation, so a rejected sentence never reaches here.
func (p *Position) update(fix nmea.Fix) {
	p.mu.Lock()
	p.fix = fix
	p.mu.Unlock()
}
