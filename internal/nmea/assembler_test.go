package nmea

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type collector struct {
	got []string
}

func (c *collector) emit(s []byte) { c.got = append(c.got, string(s)) }

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAssembler_ExtractsEverySentence(t *testing.T) {
	a := NewAssembler(256, time.Second)
	var c collector
	a.Feed(t0, []byte(ggaExample+"\r\n"+ggaExample+"\r\n$GPRMC,12"), c.emit)

	if len(c.got) != 2 || c.got[0] != ggaExample || c.got[1] != ggaExample {
		t.Fatalf("got %q", c.got)
	}
	if a.Len() != len("$GPRMC,12") {
		t.Fatalf("len=%d want remainder only", a.Len())
	}
	if a.Stats().Sentences != 2 {
		t.Fatalf("sentences=%d want 2", a.Stats().Sentences)
	}
}

func TestAssembler_SentenceSplitAcrossFeeds(t *testing.T) {
	line := ggaExample + "\r\n"
	for cut := 0; cut <= len(line); cut++ {
		a := NewAssembler(256, time.Second)
		var c collector
		a.Feed(t0, []byte(line[:cut]), c.emit)
		a.Feed(t0, []byte(line[cut:]), c.emit)
		if len(c.got) != 1 || c.got[0] != ggaExample {
			t.Fatalf("cut=%d got %q", cut, c.got)
		}
	}
}

func TestAssembler_SkipsEmptyLines(t *testing.T) {
	a := NewAssembler(64, time.Second)
	var c collector
	a.Feed(t0, []byte("\r\n\r\n"), c.emit)
	if len(c.got) != 0 || a.Len() != 0 {
		t.Fatalf("got %q len=%d", c.got, a.Len())
	}
}

func TestAssembler_OverflowDiscardsAndRecovers(t *testing.T) {
	a := NewAssembler(100, time.Second)
	var c collector

	noise := bytes.Repeat([]byte("x"), 1000)
	a.Feed(t0, noise, c.emit)
	if a.Len() > 100 {
		t.Fatalf("work region grew past capacity: %d", a.Len())
	}
	if a.Stats().Overflows == 0 {
		t.Fatalf("expected overflow to be counted")
	}

	// Flush the junk with a terminator, then a clean sentence must parse.
	a.Feed(t0, []byte("\r\n"+ggaExample+"\r\n"), c.emit)
	if len(c.got) == 0 || c.got[len(c.got)-1] != ggaExample {
		t.Fatalf("got %q", c.got)
	}
	if _, err := Parse([]byte(c.got[len(c.got)-1])); err != nil {
		t.Fatalf("parse after overflow: %v", err)
	}
}

func TestAssembler_OverflowWithPartialSentence(t *testing.T) {
	a := NewAssembler(80, time.Second)
	var c collector

	a.Feed(t0, []byte(strings.Repeat("y", 70)), c.emit)
	// 70 + 67 > 80: the junk is dropped before the sentence is appended.
	a.Feed(t0, []byte(ggaExample+"\r\n"), c.emit)
	if len(c.got) != 1 || c.got[0] != ggaExample {
		t.Fatalf("got %q", c.got)
	}
}

func TestAssembler_BacklogLargerThanRegion(t *testing.T) {
	a := NewAssembler(256, time.Second)
	var c collector
	a.Feed(t0, []byte(strings.Repeat(ggaExample+"\r\n", 14)), c.emit)

	if len(c.got) != 14 {
		t.Fatalf("got %d sentences want 14", len(c.got))
	}
	if st := a.Stats(); st.Overflows != 0 || a.Len() != 0 {
		t.Fatalf("len=%d stats=%+v", a.Len(), st)
	}
}

func TestAssembler_BacklogCompletesBufferedSentence(t *testing.T) {
	a := NewAssembler(256, time.Second)
	var c collector
	a.Feed(t0, []byte(ggaExample[:30]), c.emit)
	a.Feed(t0, []byte(ggaExample[30:]+"\r\n"+strings.Repeat(ggaExample+"\r\n", 5)), c.emit)

	if len(c.got) != 6 || a.Stats().Overflows != 0 {
		t.Fatalf("got %d sentences stats=%+v", len(c.got), a.Stats())
	}
}

func TestAssembler_TerminatorSplitAtFullRegion(t *testing.T) {
	a := NewAssembler(80, time.Second)
	var c collector
	a.Feed(t0, []byte(ggaExample+"\r"), c.emit)
	a.Feed(t0, []byte("\n"+ggaExample+"\r\n"), c.emit)

	if len(c.got) != 2 || c.got[0] != ggaExample || c.got[1] != ggaExample {
		t.Fatalf("got %q", c.got)
	}
	if a.Stats().Overflows != 0 {
		t.Fatalf("overflows=%d", a.Stats().Overflows)
	}
}

func TestAssembler_ExpireSalvagesValidSentence(t *testing.T) {
	a := NewAssembler(256, time.Second)
	var c collector
	a.Feed(t0, []byte(ggaExample), c.emit)

	if a.Expire(t0.Add(500*time.Millisecond), c.emit) {
		t.Fatalf("expired before the silence timeout")
	}
	if !a.Expire(t0.Add(1500*time.Millisecond), c.emit) {
		t.Fatalf("expected salvage after silence")
	}
	if len(c.got) != 1 || c.got[0] != ggaExample {
		t.Fatalf("got %q", c.got)
	}
	if a.Len() != 0 || a.Stats().Salvaged != 1 {
		t.Fatalf("len=%d stats=%+v", a.Len(), a.Stats())
	}
}

func TestAssembler_ExpireCutsAtMarkerPlusTwo(t *testing.T) {
	a := NewAssembler(256, time.Second)
	var c collector
	a.Feed(t0, []byte(ggaExample+"garbage"), c.emit)
	a.Expire(t0.Add(2*time.Second), c.emit)
	if len(c.got) != 1 || c.got[0] != ggaExample {
		t.Fatalf("got %q", c.got)
	}
}

func TestAssembler_ExpireDropsInvalid(t *testing.T) {
	cases := []string{
		"$GPGGA,123519,4807.038,N",           // no marker
		"$GPGGA,123519*4",                    // one digit after marker
		ggaExample[:len(ggaExample)-1] + "0", // wrong checksum
	}
	for _, in := range cases {
		a := NewAssembler(256, time.Second)
		var c collector
		a.Feed(t0, []byte(in), c.emit)
		if !a.Expire(t0.Add(2*time.Second), c.emit) {
			t.Fatalf("%q: expected region cleared", in)
		}
		if len(c.got) != 0 {
			t.Fatalf("%q: emitted %q", in, c.got)
		}
		if a.Len() != 0 || a.Stats().SalvageFailures != 1 {
			t.Fatalf("%q: len=%d stats=%+v", in, a.Len(), a.Stats())
		}
	}
}

func TestAssembler_ExpireIgnoresEmptyRegion(t *testing.T) {
	a := NewAssembler(64, time.Second)
	var c collector
	if a.Expire(t0.Add(time.Hour), c.emit) {
		t.Fatalf("empty region should not expire")
	}
}
