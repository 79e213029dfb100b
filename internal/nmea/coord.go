package nmea

import (
	"bytes"
	"errors"
	"strconv"
)

var (
	ErrCoordinate = errors.New("nmea: malformed coordinate")
	ErrHemisphere = errors.New("nmea: bad hemisphere")
)

// ToDecimal converts a ddmm.mmmm or dddmm.mmmm field plus its hemisphere
// letter into signed decimal degrees.
//
// The degree width is structural: an integer part longer than four digits
// carries three degree digits, anything else two.
func ToDecimal(field, hemi []byte) (float64, error) {
	if len(field) == 0 || len(hemi) == 0 {
		return 0, ErrMissingField
	}
	if len(field) < 4 {
		return 0, ErrCoordinate
	}
	dot := bytes.IndexByte(field, '.')
	if dot == -1 {
		return 0, ErrCoordinate
	}
	degDigits := 2
	if dot > 4 {
		degDigits = 3
	}
	if dot < degDigits {
		return 0, ErrCoordinate
	}

	deg, err := strconv.ParseUint(string(field[:degDigits]), 10, 16)
	if err != nil {
		return 0, ErrCoordinate
	}
	mins := field[degDigits:]
	if mins[0] < '0' || mins[0] > '9' {
		return 0, ErrCoordinate
	}
	m, err := strconv.ParseFloat(string(mins), 64)
	if err != nil || m >= 60 {
		return 0, ErrCoordinate
	}

	dec := float64(deg) + m/60.0
	switch {
	case len(hemi) != 1:
		return 0, ErrHemisphere
	case hemi[0] == 'S' || hemi[0] == 'W':
		dec = -dec
	case hemi[0] == 'N' || hemi[0] == 'E':
	default:
		return 0, ErrHemisphere
	}
	return dec, nil
}

// FormatCoord renders decimal degrees with six fractional digits.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func parseLatitude(field, hemi []byte) (float64, error) {
	if len(hemi) == 1 && hemi[0] != 'N' && hemi[0] != 'S' {
		return 0, ErrHemisphere
	}
	v, err := ToDecimal(field, hemi)
	if err != nil {
		return 0, err
	}
	if v < -90 || v > 90 {
		return 0, ErrCoordinate
	}
	return v, nil
}

func parseLongitude(field, hemi []byte) (float64, error) {
	if len(hemi) == 1 && hemi[0] != 'E' && hemi[0] != 'W' {
		return 0, ErrHemisphere
	}
	v, err := ToDecimal(field, hemi)
	if err != nil {
		return 0, err
	}
	if v < -180 || v > 180 {
		return 0, ErrCoordinate
	}
	return v, nil
}
