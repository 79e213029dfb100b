package alert

import (
	"fmt"

	"sosbeacon/internal/nmea"
)

const DefaultPrefix = "EMERGENCY!"

// Compose renders the alert body. An invalid fix yields the explicit
// "unknown" form rather than stale or zero coordinates.
func Compose(prefix string, fix nmea.Fix) string {
	if !fix.Valid {
		return prefix + " Location: unknown (no GPS fix)"
	}
	return fmt.Sprintf("%s Location: Lat=%s, Lon=%s", prefix, nmea.FormatCoord(fix.Latitude), nmea.FormatCoord(fix.Longitude))
}

// MapLink points a phone's map app at the fix.
func MapLink(fix nmea.Fix) string {
	return fmt.Sprintf("https://maps.google.com/?q=%s,%s", nmea.FormatCoord(fix.Latitude), nmea.FormatCoord(fix.Longitude))
}
