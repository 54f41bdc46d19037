package nmea

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed reports a line that is not a framed NMEA sentence.
	ErrMalformed = errors.New("nmea: malformed sentence")
	// ErrChecksum reports a checksum that is missing (when required),
	// unreadable, or does not match the sentence body.
	ErrChecksum = errors.New("nmea: checksum mismatch")
	// ErrUnsupported reports a well-formed sentence of a type this package
	// does not decode.
	ErrUnsupported = errors.New("nmea: unsupported sentence type")
)

// Sentence is a validated, comma-split NMEA line.
type Sentence struct {
	Raw string
	// Identifier is the talker+type token, e.g. "GPGGA".
	Identifier string
	// Fields holds every token of the body including Identifier at index 0.
	// Empty tokens are kept so field positions stay aligned.
	Fields []string
	// HasChecksum is true when the line carried a verified checksum.
	HasChecksum bool
}

// Talker returns the two-character talker ID, or "" for short identifiers.
func (s Sentence) Talker() string {
	if len(s.Identifier) >= 5 {
		return s.Identifier[:2]
	}
	return ""
}

// Type returns the routing key: the identifier without its talker ID.
func (s Sentence) Type() string {
	if len(s.Identifier) >= 5 {
		return s.Identifier[2:]
	}
	return s.Identifier
}

// Field returns field i, or "" when the sentence is too short.
func (s Sentence) Field(i int) string {
	return field(s.Fields, i)
}

// Checksum is the XOR of every byte of body (the text between the start
// marker and '*').
func Checksum(body string) byte {
	ck := byte(0)
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return ck
}

// Parse validates framing and checksum and splits the line into fields.
// Lines without a checksum are accepted.
func Parse(line string) (Sentence, error) {
	return parse(line, false)
}

func parse(line string, requireChecksum bool) (Sentence, error) {
	if strings.TrimSpace(line) == "" {
		return Sentence{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	line = strings.TrimSpace(line)
	if len(line) < 6 {
		return Sentence{}, fmt.Errorf("%w: short line (%d bytes)", ErrMalformed, len(line))
	}
	if line[0] != '$' && line[0] != '!' {
		return Sentence{}, fmt.Errorf("%w: missing '$' or '!'", ErrMalformed)
	}

	body := line[1:]
	hasChecksum := false
	star := strings.LastIndexByte(line, '*')
	switch {
	case star > 0 && star < len(line)-1:
		body = line[1:star]
		ck := line[star+1:]
		if !isHexByte(ck) {
			return Sentence{}, fmt.Errorf("%w: bad checksum %q", ErrChecksum, ck)
		}
		want := fmt.Sprintf("%02X", Checksum(body))
		if !strings.EqualFold(want, ck) {
			return Sentence{}, fmt.Errorf("%w: got %s want %s", ErrChecksum, strings.ToUpper(ck), want)
		}
		hasChecksum = true
	case star == len(line)-1:
		// Trailing '*' with nothing after it.
		body = line[1:star]
	}
	if requireChecksum && !hasChecksum {
		return Sentence{}, fmt.Errorf("%w: missing checksum", ErrChecksum)
	}

	parts := strings.Split(body, ",")
	if len(parts) == 0 {
		return Sentence{}, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	return Sentence{Raw: line, Identifier: parts[0], Fields: parts, HasChecksum: hasChecksum}, nil
}

func isHexByte(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func field(f []string, i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return f[i]
}

// Helpers turning field i into an optional value.

func optInt(f []string, i int) *int {
	if v, ok := parseInt(field(f, i)); ok {
		return &v
	}
	return nil
}

func optFloat(f []string, i int) *float64 {
	if v, ok := parseFloat(field(f, i)); ok {
		return &v
	}
	return nil
}

func optString(f []string, i int) *string {
	v := strings.TrimSpace(field(f, i))
	if v == "" {
		return nil
	}
	return &v
}

func optClock(f []string, i int) *Clock {
	if v, ok := ParseClock(field(f, i)); ok {
		return &v
	}
	return nil
}

func optDate(f []string, i int) *Date {
	if v, ok := ParseDate(field(f, i)); ok {
		return &v
	}
	return nil
}

func optDegrees(f []string, value int, hemi int) *float64 {
	if v, ok := DecimalDegrees(field(f, value), field(f, hemi)); ok {
		return &v
	}
	return nil
}
