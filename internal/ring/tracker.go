package ring

// Source is the consumer view of a Buffer.
type Source interface {
	Cap() int
	WritePosition() int
	Segment(off, n int) []byte
}

// Tracker remembers how far the consumer has read into a Source.
type Tracker struct {
	src  Source
	last int
}

func NewTracker(src Source) *Tracker {
	return &Tracker{src: src, last: src.WritePosition()}
}

// Poll returns the bytes written since the previous Poll as up to two
// contiguous segments (the second is non-empty only when the run wraps past
// the end of the ring) and marks them consumed.
//
// The segments alias the ring; copy them before the producer can lap them.
// Call Poll at most once per poll cycle: a second call returns nothing.
func (t *Tracker) Poll() (first, second []byte) {
	c := t.src.Cap()
	w := t.src.WritePosition()
	n := (w - t.last + c) % c
	if n == 0 {
		return nil, nil
	}

	head := n
	if t.last+head > c {
		head = c - t.last
	}
	first = t.src.Segment(t.last, head)
	if rest := n - head; rest > 0 {
		second = t.src.Segment(0, rest)
	}
	t.last = w % c
	return first, second
}

// Pending reports how many bytes the next Poll would return.
func (t *Tracker) Pending() int {
	c := t.src.Cap()
	return (t.src.WritePosition() - t.last + c) % c
}
