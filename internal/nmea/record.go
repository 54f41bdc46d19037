package nmea

import (
	"strconv"
	"strings"
)

// Record is one decoded sentence. The set of implementations is closed:
// *GGA, *RMC, *GSA, *GSV, *VTG, *GLL and *ZDA.
type Record interface {
	// Type is the three-letter sentence type, e.g. "GGA".
	Type() string
	String() string
	record()
}

// FixQuality is the GGA fix quality indicator.
type FixQuality int

const (
	FixInvalid FixQuality = iota
	FixGPS
	FixDGPS
	FixPPS
	FixRTK
	FixFloatRTK
	FixEstimated
	FixManual
	FixSimulation
)

var fixQualityNames = [...]string{
	FixInvalid:    "Invalid",
	FixGPS:        "GPS Fix (SPS)",
	FixDGPS:       "DGPS Fix",
	FixPPS:        "PPS Fix",
	FixRTK:        "Real Time Kinematic",
	FixFloatRTK:   "Float RTK",
	FixEstimated:  "Estimated (Dead Reckoning)",
	FixManual:     "Manual Input Mode",
	FixSimulation: "Simulation Mode",
}

func (q FixQuality) String() string {
	if q < 0 || int(q) >= len(fixQualityNames) {
		return "Unknown"
	}
	return fixQualityNames[q]
}

// FixType is the GSA fix type.
type FixType int

const (
	FixNone FixType = 1
	Fix2D   FixType = 2
	Fix3D   FixType = 3
)

func (t FixType) String() string {
	switch t {
	case FixNone:
		return "No Fix"
	case Fix2D:
		return "2D"
	case Fix3D:
		return "3D"
	default:
		return "Unknown"
	}
}

// line builds the "TYPE key=value ..." rendering shared by every record.
// Missing values print as "-".
type line struct {
	b strings.Builder
}

func newLine(typ string) *line {
	l := &line{}
	l.b.WriteString(typ)
	return l
}

func (l *line) add(key string, value string) *line {
	l.b.WriteByte(' ')
	l.b.WriteString(key)
	l.b.WriteByte('=')
	if value == "" {
		value = "-"
	}
	l.b.WriteString(value)
	return l
}

func (l *line) String() string { return l.b.String() }

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtDegrees(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func fmtClock(v *Clock) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func fmtDate(v *Date) string {
	if v == nil {
		return ""
	}
	return v.String()
}
