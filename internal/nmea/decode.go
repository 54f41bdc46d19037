package nmea

import (
	"fmt"
	"sort"
)

type decodeFunc func(fields []string) Record

// decoders maps a sentence type key to its decoder.
var decoders = map[string]decodeFunc{
	"GGA": decodeGGA,
	"RMC": decodeRMC,
	"GSA": decodeGSA,
	"GSV": decodeGSV,
	"VTG": decodeVTG,
	"GLL": decodeGLL,
	"ZDA": decodeZDA,
}

// SupportedTypes returns the decodable sentence types in sorted order.
func SupportedTypes() []string {
	out := make([]string, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Options tunes a Decoder. The zero value accepts lines without a checksum.
type Options struct {
	// RequireChecksum rejects lines that do not carry a '*hh' suffix.
	RequireChecksum bool
}

// Decoder turns raw lines into records. It holds no mutable state and is
// safe for concurrent use.
type Decoder struct {
	opts Options
}

func NewDecoder(opts Options) *Decoder {
	return &Decoder{opts: opts}
}

var defaultDecoder = NewDecoder(Options{})

// Decode decodes a single line with default options.
func Decode(line string) (Record, error) {
	return defaultDecoder.Decode(line)
}

// Parse validates and tokenizes a line using the decoder's checksum policy.
func (d *Decoder) Parse(line string) (Sentence, error) {
	requireChecksum := false
	if d != nil {
		requireChecksum = d.opts.RequireChecksum
	}
	return parse(line, requireChecksum)
}

// Decode parses line and decodes it. The error wraps ErrMalformed,
// ErrChecksum or ErrUnsupported.
func (d *Decoder) Decode(line string) (Record, error) {
	s, err := d.Parse(line)
	if err != nil {
		return nil, err
	}
	return DecodeSentence(s)
}

// DecodeSentence routes an already tokenized sentence to its decoder.
func DecodeSentence(s Sentence) (rec Record, err error) {
	key := s.Type()
	fn, ok := decoders[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, s.Identifier)
	}
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("%w: %s decode: %v", ErrMalformed, key, r)
		}
	}()
	return fn(s.Fields), nil
}
