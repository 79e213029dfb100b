package nmea

import (
	"bytes"
	"encoding/hex"
	"errors"
)

const (
	startMarker    = '$'
	checksumMarker = '*'
)

// Terminator ends every framed sentence on the wire.
var Terminator = []byte("\r\n")

var (
	ErrNoStart          = errors.New("nmea: missing '$'")
	ErrNoChecksum       = errors.New("nmea: missing checksum")
	ErrShort            = errors.New("nmea: short checksum")
	ErrBadChecksum      = errors.New("nmea: bad checksum")
	ErrChecksumMismatch = errors.New("nmea: checksum mismatch")
)

// Checksum is the XOR of every byte of payload.
func Checksum(payload []byte) byte {
	var ck byte
	for _, c := range payload {
		ck ^= c
	}
	return ck
}

// Validate checks the framing and checksum of a single sentence (without
// its terminator) and returns the payload between '$' and '*'.
func Validate(sentence []byte) ([]byte, error) {
	if len(sentence) == 0 || sentence[0] != startMarker {
		return nil, ErrNoStart
	}
	star := bytes.IndexByte(sentence, checksumMarker)
	if star == -1 {
		return nil, ErrNoChecksum
	}
	if len(sentence) < star+3 {
		return nil, ErrShort
	}
	if bytes.IndexByte(sentence[star+1:], checksumMarker) != -1 {
		return nil, ErrBadChecksum
	}
	var want [1]byte
	if _, err := hex.Decode(want[:], sentence[star+1:star+3]); err != nil {
		return nil, ErrBadChecksum
	}
	payload := sentence[1:star]
	if Checksum(payload) != want[0] {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
