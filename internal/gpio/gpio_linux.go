//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Line is one requested GPIO line.
type Line struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	name   string
	output bool
}

// OpenInput requests pin as the trigger input. With activeLow the line is
// pulled up and a button to ground reads as active; otherwise it is pulled
// down and a button to 3V3 reads as active.
func OpenInput(pin int, activeLow bool) (*Line, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)}
	if activeLow {
		opts = append(opts, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	return request(pin, false, opts...)
}

// OpenOutput requests pin as the indicator output, initially off.
func OpenOutput(pin int) (*Line, error) {
	return request(pin, true, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
}

func request(pin int, output bool, opts ...gpiocdev.LineReqOption) (*Line, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("gpio: invalid pin %d", pin)
	}
	name := lineName(pin)

	for _, chipPath := range candidateChips("/dev") {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(name)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &Line{chip: chip, line: line, name: name, output: output}, nil
	}
	return nil, fmt.Errorf("gpio: line %q not found (or busy)", name)
}

// Read reports whether the line is active.
func (l *Line) Read() (bool, error) {
	if l == nil || l.line == nil {
		return false, fmt.Errorf("gpio: line not open")
	}
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("gpio: read %s: %w", l.name, err)
	}
	return v == 1, nil
}

func (l *Line) Write(on bool) error {
	if l == nil || l.line == nil {
		return fmt.Errorf("gpio: line not open")
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("gpio: write %s: %w", l.name, err)
	}
	return nil
}

// Close releases the line. Outputs are driven low first.
func (l *Line) Close() error {
	if l == nil || l.line == nil {
		return nil
	}
	if l.output {
		_ = l.line.SetValue(0)
	}
	err := l.line.Close()
	l.line = nil
	if l.chip != nil {
		_ = l.chip.Close()
		l.chip = nil
	}
	return err
}

func (l *Line) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.name
}
