package nmea

// KnotsToKmh converts knots to kilometers per hour.
const KnotsToKmh = 1.852

// RMC is the recommended minimum navigation data.
//
//	1: time
//	2: status (A=active, V=void)
//	3-4: latitude, N/S
//	5-6: longitude, E/W
//	7: speed over ground (knots)
//	8: track angle (degrees true)
//	9: date (ddmmyy)
//	10-11: magnetic variation (degrees), E/W
//	12: mode indicator (NMEA 2.3+)
type RMC struct {
	Time       *Clock   `json:"time,omitempty"`
	Status     *string  `json:"status,omitempty"`
	Latitude   *float64 `json:"lat,omitempty"`
	Longitude  *float64 `json:"lon,omitempty"`
	SpeedKnots *float64 `json:"speed_kt,omitempty"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	TrackDeg   *float64 `json:"track_deg,omitempty"`
	Date       *Date    `json:"date,omitempty"`
	MagVarDeg  *float64 `json:"mag_var_deg,omitempty"`
	MagVarDir  *string  `json:"mag_var_dir,omitempty"`
	Mode       *string  `json:"mode,omitempty"`
}

func decodeRMC(f []string) Record {
	r := &RMC{
		Time:       optClock(f, 1),
		Status:     optString(f, 2),
		Latitude:   optDegrees(f, 3, 4),
		Longitude:  optDegrees(f, 5, 6),
		SpeedKnots: optFloat(f, 7),
		TrackDeg:   optFloat(f, 8),
		Date:       optDate(f, 9),
		MagVarDeg:  optFloat(f, 10),
		MagVarDir:  optString(f, 11),
		Mode:       optString(f, 12),
	}
	if r.SpeedKnots != nil {
		kmh := *r.SpeedKnots * KnotsToKmh
		r.SpeedKmh = &kmh
	}
	return r
}

// Active reports whether the receiver flagged the data as valid.
func (r *RMC) Active() bool {
	return r.Status != nil && *r.Status == "A"
}

func (*RMC) Type() string { return "RMC" }
func (*RMC) record()      {}

func (r *RMC) String() string {
	return newLine("RMC").
		add("time", fmtClock(r.Time)).
		add("date", fmtDate(r.Date)).
		add("status", fmtString(r.Status)).
		add("lat", fmtDegrees(r.Latitude)).
		add("lon", fmtDegrees(r.Longitude)).
		add("speed_kt", fmtFloat(r.SpeedKnots)).
		add("speed_kmh", fmtFloat(r.SpeedKmh)).
		add("track", fmtFloat(r.TrackDeg)).
		add("magvar", fmtFloat(r.MagVarDeg)+fmtString(r.MagVarDir)).
		add("mode", fmtString(r.Mode)).
		String()
}
