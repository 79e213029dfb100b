// Package nmea frames, validates and decodes the position-bearing NMEA 0183
// sentences the beacon cares about.
//
// It is intentionally small:
// - Assembler turns an arbitrary byte stream into CR LF framed sentences
// - Validate checks the '$' ... '*hh' envelope and XOR checksum
// - Parse decodes GGA and RMC (any talker) into a Fix
// - ToDecimal converts ddmm.mmmm / dddmm.mmmm plus hemisphere to degrees
package nmea
