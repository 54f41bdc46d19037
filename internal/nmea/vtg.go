package nmea

// VTG is track made good and ground speed.
//
//	1-2: true track, T
//	3-4: magnetic track, M
//	5-6: speed (knots), N
//	7-8: speed (km/h), K
//	9: mode indicator
type VTG struct {
	TrueTrackDeg     *float64 `json:"true_track_deg,omitempty"`
	MagneticTrackDeg *float64 `json:"magnetic_track_deg,omitempty"`
	SpeedKnots       *float64 `json:"speed_kt,omitempty"`
	SpeedKmh         *float64 `json:"speed_kmh,omitempty"`
	Mode             *string  `json:"mode,omitempty"`
}

func decodeVTG(f []string) Record {
	return &VTG{
		TrueTrackDeg:     optFloat(f, 1),
		MagneticTrackDeg: optFloat(f, 3),
		SpeedKnots:       optFloat(f, 5),
		SpeedKmh:         optFloat(f, 7),
		Mode:             optString(f, 9),
	}
}

func (*VTG) Type() string { return "VTG" }
func (*VTG) record()      {}

func (r *VTG) String() string {
	return newLine("VTG").
		add("track_true", fmtFloat(r.TrueTrackDeg)).
		add("track_mag", fmtFloat(r.MagneticTrackDeg)).
		add("speed_kt", fmtFloat(r.SpeedKnots)).
		add("speed_kmh", fmtFloat(r.SpeedKmh)).
		add("mode", fmtString(r.Mode)).
		String()
}
