package nmea

import (
	"bytes"
	"time"
)

// AssemblerStats counts framing events since the assembler was created.
type AssemblerStats struct {
	Sentences       uint64 `json:"sentences"`
	Overflows       uint64 `json:"overflows"`
	Salvaged        uint64 `json:"salvaged"`
	SalvageFailures uint64 `json:"salvage_failures"`
}

// Assembler frames CR LF terminated sentences out of a byte stream using a
// fixed work region. It is not safe for concurrent use.
type Assembler struct {
	buf     []byte
	n       int
	silence time.Duration

	lastAppend time.Time
	stats      AssemblerStats
}

func NewAssembler(capacity int, silence time.Duration) *Assembler {
	if capacity < 16 {
		capacity = 16
	}
	return &Assembler{buf: make([]byte, capacity), silence: silence}
}

// Len is the number of buffered bytes not yet framed.
func (a *Assembler) Len() int { return a.n }

func (a *Assembler) Stats() AssemblerStats { return a.stats }

// Feed appends p and emits every complete sentence it can find, terminator
// excluded. The slice passed to emit aliases the work region and is only
// valid until emit returns.
//
// Input that does not fit is taken up to the terminator that completes the
// buffered sentence when that terminator lands inside the free space. When
// it does not, the buffered partial sentence can never complete and is
// dropped before appending. Input longer than the region is consumed in
// region-sized pieces.
func (a *Assembler) Feed(now time.Time, p []byte, emit func(sentence []byte)) {
	for len(p) > 0 {
		take := len(p)
		if free := len(a.buf) - a.n; take > free {
			take = a.completing(p, free)
			if take == 0 {
				if a.n > 0 {
					a.n = 0
					a.stats.Overflows++
				}
				take = min(len(p), len(a.buf))
			}
		}
		copy(a.buf[a.n:], p[:take])
		a.n += take
		p = p[take:]
		a.lastAppend = now
		a.extract(emit)
	}
}

// completing returns how much of p finishes the buffered sentence within
// free bytes, or 0.
func (a *Assembler) completing(p []byte, free int) int {
	if a.n == 0 {
		return 0
	}
	if a.buf[a.n-1] == Terminator[0] && p[0] == Terminator[1] {
		return 1
	}
	i := bytes.Index(p[:min(len(p), free)], Terminator)
	if i == -1 || i+len(Terminator) > free {
		return 0
	}
	return i + len(Terminator)
}

func (a *Assembler) extract(emit func([]byte)) {
	for {
		i := bytes.Index(a.buf[:a.n], Terminator)
		if i == -1 {
			return
		}
		if i > 0 {
			a.stats.Sentences++
			emit(a.buf[:i])
		}
		next := i + len(Terminator)
		a.n = copy(a.buf, a.buf[next:a.n])
	}
}

// Expire runs the silence salvage. Once the region has been non-empty with
// no new bytes for longer than the silence timeout, everything up to the
// checksum marker plus its two digits is emitted if the checksum holds.
// The region is cleared either way. It reports whether the region was
// cleared.
//
// The cut at marker+2 is a heuristic: it cannot tell a real checksum from
// a '*' inside line noise, and it ignores whatever follows the digits.
func (a *Assembler) Expire(now time.Time, emit func(sentence []byte)) bool {
	if a.n == 0 || now.Sub(a.lastAppend) <= a.silence {
		return false
	}
	defer func() { a.n = 0 }()

	star := bytes.IndexByte(a.buf[:a.n], checksumMarker)
	if star == -1 || star+2 >= a.n {
		a.stats.SalvageFailures++
		return true
	}
	candidate := a.buf[:star+3]
	if _, err := Validate(candidate); err != nil {
		a.stats.SalvageFailures++
		return true
	}
	a.stats.Salvaged++
	emit(candidate)
	return true
}

// Reset drops any buffered bytes.
func (a *Assembler) Reset() { a.n = 0 }
