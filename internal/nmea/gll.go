package nmea

// GLL is a geographic position.
//
//	1-2: latitude, N/S
//	3-4: longitude, E/W
//	5: time
//	6: status (A=valid, V=invalid)
//	7: mode indicator
type GLL struct {
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
	Time      *Clock   `json:"time,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Mode      *string  `json:"mode,omitempty"`
}

func decodeGLL(f []string) Record {
	return &GLL{
		Latitude:  optDegrees(f, 1, 2),
		Longitude: optDegrees(f, 3, 4),
		Time:      optClock(f, 5),
		Status:    optString(f, 6),
		Mode:      optString(f, 7),
	}
}

// Valid reports whether the status field is "A".
func (r *GLL) Valid() bool {
	return r.Status != nil && *r.Status == "A"
}

func (*GLL) Type() string { return "GLL" }
func (*GLL) record()      {}

func (r *GLL) String() string {
	return newLine("GLL").
		add("time", fmtClock(r.Time)).
		add("lat", fmtDegrees(r.Latitude)).
		add("lon", fmtDegrees(r.Longitude)).
		add("status", fmtString(r.Status)).
		add("mode", fmtString(r.Mode)).
		String()
}
