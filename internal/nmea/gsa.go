package nmea

import "strconv"

const gsaMaxSatellites = 12

// GSA reports DOP and the satellites used in the fix.
//
//	1: selection mode (M=manual, A=automatic)
//	2: fix type (1=none, 2=2D, 3=3D)
//	3-14: PRNs of satellites used
//	15-17: PDOP, HDOP, VDOP
type GSA struct {
	SelectionMode *string  `json:"selection_mode,omitempty"`
	FixType       *FixType `json:"fix_type,omitempty"`
	SatelliteIDs  []int    `json:"satellite_ids,omitempty"`
	PDOP          *float64 `json:"pdop,omitempty"`
	HDOP          *float64 `json:"hdop,omitempty"`
	VDOP          *float64 `json:"vdop,omitempty"`
}

func decodeGSA(f []string) Record {
	r := &GSA{
		SelectionMode: optString(f, 1),
		PDOP:          optFloat(f, 15),
		HDOP:          optFloat(f, 16),
		VDOP:          optFloat(f, 17),
	}
	if t := optInt(f, 2); t != nil {
		v := FixType(*t)
		r.FixType = &v
	}
	for i := 3; i < 3+gsaMaxSatellites; i++ {
		id, ok := parseInt(field(f, i))
		if !ok {
			break
		}
		r.SatelliteIDs = append(r.SatelliteIDs, id)
	}
	return r
}

func (*GSA) Type() string { return "GSA" }
func (*GSA) record()      {}

func (r *GSA) String() string {
	fix := ""
	if r.FixType != nil {
		fix = r.FixType.String()
	}
	ids := ""
	for i, id := range r.SatelliteIDs {
		if i > 0 {
			ids += ","
		}
		ids += strconv.Itoa(id)
	}
	return newLine("GSA").
		add("mode", fmtString(r.SelectionMode)).
		add("fix", fix).
		add("sats", ids).
		add("pdop", fmtFloat(r.PDOP)).
		add("hdop", fmtFloat(r.HDOP)).
		add("vdop", fmtFloat(r.VDOP)).
		String()
}
