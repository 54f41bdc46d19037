package nmea

// ZDA is UTC time and date plus the local zone offset.
//
//	1: time
//	2: day
//	3: month
//	4: year (four digits)
//	5: local zone hours
//	6: local zone minutes
type ZDA struct {
	Time        *Clock `json:"time,omitempty"`
	Day         *int   `json:"day,omitempty"`
	Month       *int   `json:"month,omitempty"`
	Year        *int   `json:"year,omitempty"`
	ZoneHours   *int   `json:"zone_hours,omitempty"`
	ZoneMinutes *int   `json:"zone_minutes,omitempty"`
}

func decodeZDA(f []string) Record {
	return &ZDA{
		Time:        optClock(f, 1),
		Day:         optInt(f, 2),
		Month:       optInt(f, 3),
		Year:        optInt(f, 4),
		ZoneHours:   optInt(f, 5),
		ZoneMinutes: optInt(f, 6),
	}
}

// Date returns the calendar date when day, month and year form a valid date.
func (r *ZDA) Date() (Date, bool) {
	if r.Day == nil || r.Month == nil || r.Year == nil {
		return Date{}, false
	}
	return makeDate(*r.Year, *r.Month, *r.Day)
}

func (*ZDA) Type() string { return "ZDA" }
func (*ZDA) record()      {}

func (r *ZDA) String() string {
	return newLine("ZDA").
		add("time", fmtClock(r.Time)).
		add("day", fmtInt(r.Day)).
		add("month", fmtInt(r.Month)).
		add("year", fmtInt(r.Year)).
		add("zone_h", fmtInt(r.ZoneHours)).
		add("zone_m", fmtInt(r.ZoneMinutes)).
		String()
}
