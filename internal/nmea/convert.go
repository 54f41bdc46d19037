package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Clock is a UTC time of day with millisecond resolution.
type Clock struct {
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", c.Hour, c.Minute, c.Second, c.Millisecond)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Duration returns the offset of the clock from midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c.Hour)*time.Hour +
		time.Duration(c.Minute)*time.Minute +
		time.Duration(c.Second)*time.Second +
		time.Duration(c.Millisecond)*time.Millisecond
}

// Date is a calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// At combines the date with a time of day into a UTC timestamp.
func (d Date) At(c Clock) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, c.Second, c.Millisecond*int(time.Millisecond), time.UTC)
}

// DecimalDegrees converts an NMEA ddmm.mmmm / dddmm.mmmm value plus
// hemisphere letter into signed decimal degrees.
//
// The last two integer digits and the fraction are minutes; everything before
// them is degrees. S and W are negative.
func DecimalDegrees(value string, hemi string) (float64, bool) {
	value = strings.TrimSpace(value)
	hemi = strings.ToUpper(strings.TrimSpace(hemi))
	if value == "" || hemi == "" {
		return 0, false
	}
	sign := 1.0
	switch hemi {
	case "N", "E":
	case "S", "W":
		sign = -1.0
	default:
		return 0, false
	}
	// The hemisphere carries the sign.
	if value[0] == '-' || value[0] == '+' {
		return 0, false
	}
	if _, ok := parseFloat(value); !ok {
		return 0, false
	}

	dot := strings.IndexByte(value, '.')
	intPart := value
	if dot != -1 {
		intPart = value[:dot]
	}
	split := len(intPart) - 2
	if split < 0 {
		split = 0
	}

	deg := 0
	if split > 0 {
		d, err := strconv.Atoi(value[:split])
		if err != nil {
			return 0, false
		}
		deg = d
	}
	mins, err := strconv.ParseFloat(value[split:], 64)
	if err != nil {
		return 0, false
	}
	return sign * (float64(deg) + mins/60.0), true
}

// ParseClock parses hhmmss[.sss]. Fractional seconds are truncated to
// milliseconds.
func ParseClock(s string) (Clock, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 6 {
		return Clock{}, false
	}
	hh, ok := parseDigits(s[0:2])
	if !ok {
		return Clock{}, false
	}
	mm, ok := parseDigits(s[2:4])
	if !ok {
		return Clock{}, false
	}

	secPart := s[4:]
	fracPart := ""
	if dot := strings.IndexByte(secPart, '.'); dot != -1 {
		fracPart = secPart[dot+1:]
		secPart = secPart[:dot]
	}
	ss, ok := parseDigits(secPart)
	if !ok {
		return Clock{}, false
	}
	ms := 0
	if fracPart != "" {
		if _, ok := parseDigits(fracPart); !ok {
			return Clock{}, false
		}
		// Truncate, never round: "5" -> 500, "1239" -> 123.
		frac := (fracPart + "000")[:3]
		ms, _ = strconv.Atoi(frac)
	}

	// Second 60 is a leap second.
	if hh > 23 || mm > 59 || ss > 60 {
		return Clock{}, false
	}
	return Clock{Hour: hh, Minute: mm, Second: ss, Millisecond: ms}, true
}

// ParseDate parses ddmmyy. Two-digit years below 80 are 20xx, the rest 19xx.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 6 {
		return Date{}, false
	}
	dd, ok := parseDigits(s[0:2])
	if !ok {
		return Date{}, false
	}
	mm, ok := parseDigits(s[2:4])
	if !ok {
		return Date{}, false
	}
	yy, ok := parseDigits(s[4:6])
	if !ok {
		return Date{}, false
	}
	return makeDate(pivotYear(yy), mm, dd)
}

func pivotYear(yy int) int {
	if yy < 80 {
		return 2000 + yy
	}
	return 1900 + yy
}

// makeDate rejects day/month combinations time.Date would normalize.
func makeDate(year, month, day int) (Date, bool) {
	if month < 1 || month > 12 || day < 1 {
		return Date{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return Date{}, false
	}
	return Date{Year: year, Month: time.Month(month), Day: day}, true
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
