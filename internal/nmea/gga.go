package nmea

// GGA is a position fix (Global Positioning System Fix Data).
//
//	1: time (hhmmss.sss)
//	2-3: latitude, N/S
//	4-5: longitude, E/W
//	6: fix quality
//	7: satellites in use
//	8: HDOP
//	9-10: altitude (meters), M
//	11-12: geoid separation (meters), M
type GGA struct {
	Time            *Clock      `json:"time,omitempty"`
	Latitude        *float64    `json:"lat,omitempty"`
	Longitude       *float64    `json:"lon,omitempty"`
	FixQuality      *FixQuality `json:"fix_quality,omitempty"`
	Satellites      *int        `json:"satellites,omitempty"`
	HDOP            *float64    `json:"hdop,omitempty"`
	AltitudeM       *float64    `json:"altitude_m,omitempty"`
	GeoidSeparation *float64    `json:"geoid_separation_m,omitempty"`
}

func decodeGGA(f []string) Record {
	r := &GGA{
		Time:            optClock(f, 1),
		Latitude:        optDegrees(f, 2, 3),
		Longitude:       optDegrees(f, 4, 5),
		Satellites:      optInt(f, 7),
		HDOP:            optFloat(f, 8),
		AltitudeM:       optFloat(f, 9),
		GeoidSeparation: optFloat(f, 11),
	}
	if q := optInt(f, 6); q != nil {
		v := FixQuality(*q)
		r.FixQuality = &v
	}
	return r
}

func (*GGA) Type() string { return "GGA" }
func (*GGA) record()      {}

func (r *GGA) String() string {
	quality := ""
	if r.FixQuality != nil {
		quality = r.FixQuality.String()
	}
	return newLine("GGA").
		add("time", fmtClock(r.Time)).
		add("lat", fmtDegrees(r.Latitude)).
		add("lon", fmtDegrees(r.Longitude)).
		add("quality", quality).
		add("sats", fmtInt(r.Satellites)).
		add("hdop", fmtFloat(r.HDOP)).
		add("alt_m", fmtFloat(r.AltitudeM)).
		add("geoid_m", fmtFloat(r.GeoidSeparation)).
		String()
}
