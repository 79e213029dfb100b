package nmea

import (
	"errors"
	"time"
)

var (
	ErrUnsupported  = errors.New("nmea: unsupported sentence")
	ErrMissingField = errors.New("nmea: missing field")
	ErrNoFix        = errors.New("nmea: no fix")
)

// Kind identifies a supported sentence family.
type Kind int

const (
	KindUnknown Kind = iota
	KindGGA
	KindRMC
)

func (k Kind) String() string {
	switch k {
	case KindGGA:
		return "GGA"
	case KindRMC:
		return "RMC"
	default:
		return "unknown"
	}
}

// layout lists where a family keeps its position fields. status < 0 means
// the family has no status field.
type layout struct {
	status        int
	lat, latHemi  int
	lon, lonHemi  int
	minFieldCount int
}

// kinds is keyed on the type suffix so any talker (GP, GN, GL, ...) matches.
var kinds = map[string]Kind{
	"GGA": KindGGA,
	"RMC": KindRMC,
}

var layouts = map[Kind]layout{
	// GGA: 0 id, 1 time, 2 lat, 3 N/S, 4 lon, 5 E/W, 6 quality, ...
	KindGGA: {status: -1, lat: 2, latHemi: 3, lon: 4, lonHemi: 5, minFieldCount: 6},
	// RMC: 0 id, 1 time, 2 status, 3 lat, 4 N/S, 5 lon, 6 E/W, ...
	KindRMC: {status: 2, lat: 3, latHemi: 4, lon: 5, lonHemi: 6, minFieldCount: 7},
}

const (
	identifierLen = 5
	maxFields     = 24
)

// Fix is a resolved position. Latitude and Longitude are only meaningful
// when Valid is true.
type Fix struct {
	Latitude  float64   `json:"lat_deg"`
	Longitude float64   `json:"lon_deg"`
	Valid     bool      `json:"valid"`
	Kind      Kind      `json:"-"`
	Source    string    `json:"source,omitempty"`
	TimeUTC   string    `json:"time_utc,omitempty"`
	Updated   time.Time `json:"updated_utc,omitzero"`
}

// Classify returns the sentence family for a payload identifier such as
// "GPGGA" or "GNRMC".
func Classify(id []byte) Kind {
	if len(id) != identifierLen {
		return KindUnknown
	}
	return kinds[string(id[identifierLen-3:])]
}

// Parse validates one sentence (without terminator) and extracts a fix.
// Every error is a rejection of this sentence only.
func Parse(sentence []byte) (Fix, error) {
	payload, err := Validate(sentence)
	if err != nil {
		return Fix{}, err
	}

	var buf [maxFields][]byte
	f := splitFields(payload, buf[:])
	if len(f) == 0 {
		return Fix{}, ErrUnsupported
	}
	kind := Classify(f[0])
	if kind == KindUnknown {
		return Fix{}, ErrUnsupported
	}
	l := layouts[kind]
	if len(f) < l.minFieldCount {
		return Fix{}, ErrMissingField
	}

	if l.status >= 0 {
		st := f[l.status]
		if len(st) == 0 {
			return Fix{}, ErrMissingField
		}
		if len(st) != 1 || st[0] != 'A' {
			return Fix{}, ErrNoFix
		}
	}

	lat, err := parseLatitude(f[l.lat], f[l.latHemi])
	if err != nil {
		return Fix{}, err
	}
	lon, err := parseLongitude(f[l.lon], f[l.lonHemi])
	if err != nil {
		return Fix{}, err
	}

	return Fix{
		Latitude:  lat,
		Longitude: lon,
		Valid:     true,
		Kind:      kind,
		Source:    string(f[0]),
		TimeUTC:   string(f[1]),
	}, nil
}

// splitFields splits payload on commas into dst without allocating. Fields
// past len(dst) are dropped; no supported layout reaches that far.
func splitFields(payload []byte, dst [][]byte) [][]byte {
	n := 0
	start := 0
	for i := 0; i <= len(payload) && n < len(dst); i++ {
		if i == len(payload) || payload[i] == ',' {
			dst[n] = payload[start:i]
			n++
			start = i + 1
		}
	}
	return dst[:n]
}
