package nmea

import (
	"fmt"
	"strings"
)

// GSV lists satellites in view. A full sky view is usually split across
// several messages.
//
//	1: total messages
//	2: message number
//	3: satellites in view
//	4-7, 8-11, ...: PRN, elevation, azimuth, SNR per satellite
type GSV struct {
	TotalMessages    *int              `json:"total_messages,omitempty"`
	MessageNumber    *int              `json:"message_number,omitempty"`
	SatellitesInView *int              `json:"satellites_in_view,omitempty"`
	Satellites       []SatelliteInView `json:"satellites,omitempty"`
}

// SatelliteInView is one PRN group of a GSV message.
type SatelliteInView struct {
	PRN          int  `json:"prn"`
	ElevationDeg *int `json:"elevation_deg,omitempty"`
	AzimuthDeg   *int `json:"azimuth_deg,omitempty"`
	SNR          *int `json:"snr,omitempty"`
}

const gsvGroupSize = 4

func decodeGSV(f []string) Record {
	r := &GSV{
		TotalMessages:    optInt(f, 1),
		MessageNumber:    optInt(f, 2),
		SatellitesInView: optInt(f, 3),
	}
	// Only complete groups count; a trailing signal ID (NMEA 4.10) is ignored.
	for i := 4; i+gsvGroupSize <= len(f); i += gsvGroupSize {
		prn, ok := parseInt(f[i])
		if !ok {
			break
		}
		r.Satellites = append(r.Satellites, SatelliteInView{
			PRN:          prn,
			ElevationDeg: optInt(f, i+1),
			AzimuthDeg:   optInt(f, i+2),
			SNR:          optInt(f, i+3),
		})
	}
	return r
}

func (*GSV) Type() string { return "GSV" }
func (*GSV) record()      {}

func (r *GSV) String() string {
	sats := make([]string, 0, len(r.Satellites))
	for _, s := range r.Satellites {
		sats = append(sats, fmt.Sprintf("%d/%s/%s/%s", s.PRN,
			dash(fmtInt(s.ElevationDeg)), dash(fmtInt(s.AzimuthDeg)), dash(fmtInt(s.SNR))))
	}
	return newLine("GSV").
		add("msg", dash(fmtInt(r.MessageNumber))+"/"+dash(fmtInt(r.TotalMessages))).
		add("in_view", fmtInt(r.SatellitesInView)).
		add("sats", strings.Join(sats, ",")).
		String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
