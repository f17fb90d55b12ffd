// Package gps owns the NMEA parser for the tracker and publishes fix
// snapshots.
//
// Bytes come from the A9G modem UART (via Write), a dedicated serial
// receiver, or gpsd in raw NMEA mode. Readers get immutable Snapshot values
// through Snapshot or Subscribe.
package gps
