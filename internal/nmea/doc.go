// Package nmea decodes NMEA 0183 sentences emitted by GNSS receivers.
//
// The pipeline is line -> Parse (framing + checksum + tokenizing) -> Decode
// (type key lookup) -> typed Record. Seven standard sentence types are
// supported: GGA, RMC, GSA, GSV, VTG, GLL and ZDA.
//
// Every decoded field is optional. A field that is empty, missing from a
// short sentence, or fails to convert is left nil; it never aborts the rest
// of the record. Nothing in this package keeps state, so a Decoder may be
// shared between goroutines.
package nmea
