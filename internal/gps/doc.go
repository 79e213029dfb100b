// Package gps turns a raw NMEA byte feed into the beacon's current position.
//
// A producer goroutine copies whatever the receiver emits into a byte ring
// and never waits. The parser task wakes on the ring's signal (or a short
// timeout), frames sentences, and publishes accepted fixes into Position,
// the only state shared with the alert path.
package gps
