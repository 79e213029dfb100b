//go:build linux

package gps

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ttySpeeds are the rates GNSS receivers ship with.
var ttySpeeds = map[int]uint32{
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// openSerial opens path as a raw 8N1 tty. A read returns whatever is
// buffered, or nothing once serialReadTimeout passes without a byte.
func openSerial(path string, baud int) (*os.File, error) {
	speed, ok := ttySpeeds[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud %d", baud)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := configureTTY(fd, speed); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

func configureTTY(fd int, speed uint32) error {
	// A second reader on the receiver would split sentences between us.
	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		return fmt.Errorf("exclusive: %w", err)
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	makeRaw(t, speed)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	// Bytes queued before we owned the line are stale.
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
}

// makeRaw leaves CR LF untouched for the framer and turns the read timeout
// into VTIME tenths.
func makeRaw(t *unix.Termios, speed uint32) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed, t.Ospeed = speed, speed

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = uint8(serialReadTimeout / (100 * time.Millisecond))
}
