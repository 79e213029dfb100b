//go:build !linux

package gpio

import "fmt"

// Line is unavailable off Linux; every constructor fails.
type Line struct{}

func OpenInput(pin int, activeLow bool) (*Line, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func OpenOutput(pin int) (*Line, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func (l *Line) Read() (bool, error) { return false, fmt.Errorf("gpio: unsupported on this platform") }
func (l *Line) Write(on bool) error { return fmt.Errorf("gpio: unsupported on this platform") }
func (l *Line) Close() error        { return nil }
func (l *Line) String() string      { return "<unsupported>" }
