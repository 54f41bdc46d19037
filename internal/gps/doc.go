// Package gps ingests NMEA sentences from a GNSS receiver and tracks the
// resulting fix.
//
// Lines come from a serial port, gpsd (raw NMEA watch), a TCP feed, the
// stdout of a supervised command, a capture replay or any io.Reader. Each
// line is decoded by package nmea, folded into a Tracker and handed to
// subscribers as a Message.
package gps
