package gps

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"gnss-nmea/internal/nmea"
)

const (
	metersToFeet = 3.280839895013123

	// fixStaleAfter marks a position stale when no fix arrived for this long.
	fixStaleAfter = 3 * time.Second
	// skyTTL drops satellites that no GSV message mentioned for this long.
	skyTTL = 15 * time.Second
)

// SkySatellite is one satellite from the GSV sky view.
type SkySatellite struct {
	Talker       string `json:"talker"`
	PRN          int    `json:"prn"`
	ElevationDeg *int   `json:"elevation_deg,omitempty"`
	AzimuthDeg   *int   `json:"azimuth_deg,omitempty"`
	SNR          *int   `json:"snr,omitempty"`
	InSolution   bool   `json:"in_solution"`

	seen time.Time
}

// Tracker fuses decoded records from one receiver into a Snapshot.
// It is safe for concurrent use.
type Tracker struct {
	mu sync.Mutex
	st trackState

	// sky is keyed by talker:PRN and read without holding mu.
	sky cmap.ConcurrentMap[string, SkySatellite]
}

type trackState struct {
	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool

	altM       float64
	altOK      bool
	geoidM     float64
	geoidOK    bool
	groundKt   float64
	gsOK       bool
	trackDeg   float64
	trkOK      bool
	magVarDeg  float64
	magVarOK   bool
	fixQuality nmea.FixQuality
	fixQOK     bool
	fixType    nmea.FixType
	fixTypeOK  bool
	satellites int
	satsOK     bool
	used       []int

	hdop, pdop, vdop       float64
	hdopOK, pdopOK, vdopOK bool

	clock   *nmea.Clock
	date    *nmea.Date
	lastFix time.Time
	valid   bool

	decoded     uint64
	unsupported uint64
	malformed   uint64
	byType      map[string]uint64
	lastErr     string
}

func NewTracker() *Tracker {
	return &Tracker{
		st:  trackState{byType: map[string]uint64{}},
		sky: cmap.New[SkySatellite](),
	}
}

// NoteError counts a line that did not produce a record.
func (t *Tracker) NoteError(err error) {
	if t == nil || err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if errors.Is(err, nmea.ErrUnsupported) {
		t.st.unsupported++
		return
	}
	t.st.malformed++
	t.st.lastErr = err.Error()
}

// Apply folds rec into the tracked state. It reports whether the position
// fix was updated.
func (t *Tracker) Apply(nowUTC time.Time, talker string, rec nmea.Record) bool {
	if t == nil || rec == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.decoded++
	t.st.byType[rec.Type()]++

	switch r := rec.(type) {
	case *nmea.GGA:
		return t.applyGGA(nowUTC, r)
	case *nmea.RMC:
		return t.applyRMC(nowUTC, r)
	case *nmea.GSA:
		t.applyGSA(r)
	case *nmea.GSV:
		t.applyGSV(nowUTC, talker, r)
	case *nmea.VTG:
		t.applyVTG(r)
	case *nmea.GLL:
		return t.applyGLL(nowUTC, r)
	case *nmea.ZDA:
		t.applyZDA(r)
	}
	return false
}

func (t *Tracker) setPosition(nowUTC time.Time, lat, lon *float64) bool {
	if lat == nil || lon == nil {
		return false
	}
	t.st.latDeg, t.st.latOK = *lat, true
	t.st.lonDeg, t.st.lonOK = *lon, true
	t.st.lastFix = nowUTC
	t.st.valid = true
	return true
}

func (t *Tracker) applyGGA(nowUTC time.Time, r *nmea.GGA) bool {
	if r.Time != nil {
		c := *r.Time
		t.st.clock = &c
	}
	if r.FixQuality != nil {
		t.st.fixQuality, t.st.fixQOK = *r.FixQuality, true
	}
	if r.Satellites != nil {
		t.st.satellites, t.st.satsOK = *r.Satellites, true
	}
	if r.HDOP != nil {
		t.st.hdop, t.st.hdopOK = *r.HDOP, true
	}
	if r.FixQuality == nil || *r.FixQuality == nmea.FixInvalid {
		t.st.valid = false
		return false
	}
	if r.AltitudeM != nil {
		t.st.altM, t.st.altOK = *r.AltitudeM, true
	}
	if r.GeoidSeparation != nil {
		t.st.geoidM, t.st.geoidOK = *r.GeoidSeparation, true
	}
	return t.setPosition(nowUTC, r.Latitude, r.Longitude)
}

func (t *Tracker) applyRMC(nowUTC time.Time, r *nmea.RMC) bool {
	if r.Time != nil {
		c := *r.Time
		t.st.clock = &c
	}
	if r.Date != nil {
		d := *r.Date
		t.st.date = &d
	}
	if !r.Active() {
		// Void fixes keep the last position but drop validity.
		t.st.valid = false
		return false
	}
	if r.SpeedKnots != nil {
		t.st.groundKt, t.st.gsOK = *r.SpeedKnots, true
	}
	if r.TrackDeg != nil {
		t.st.trackDeg, t.st.trkOK = normalizeTrack(*r.TrackDeg), true
	}
	if r.MagVarDeg != nil {
		v := *r.MagVarDeg
		if r.MagVarDir != nil && *r.MagVarDir == "W" {
			v = -v
		}
		t.st.magVarDeg, t.st.magVarOK = v, true
	}
	return t.setPosition(nowUTC, r.Latitude, r.Longitude)
}

func (t *Tracker) applyGLL(nowUTC time.Time, r *nmea.GLL) bool {
	if r.Time != nil {
		c := *r.Time
		t.st.clock = &c
	}
	if !r.Valid() {
		return false
	}
	return t.setPosition(nowUTC, r.Latitude, r.Longitude)
}

func (t *Tracker) applyGSA(r *nmea.GSA) {
	if r.FixType != nil {
		t.st.fixType, t.st.fixTypeOK = *r.FixType, true
	}
	t.st.used = append(t.st.used[:0], r.SatelliteIDs...)
	if r.PDOP != nil {
		t.st.pdop, t.st.pdopOK = *r.PDOP, true
	}
	if r.HDOP != nil {
		t.st.hdop, t.st.hdopOK = *r.HDOP, true
	}
	if r.VDOP != nil {
		t.st.vdop, t.st.vdopOK = *r.VDOP, true
	}
}

func (t *Tracker) applyGSV(nowUTC time.Time, talker string, r *nmea.GSV) {
	for _, s := range r.Satellites {
		t.sky.Set(skyKey(talker, s.PRN), SkySatellite{
			Talker:       talker,
			PRN:          s.PRN,
			ElevationDeg: s.ElevationDeg,
			AzimuthDeg:   s.AzimuthDeg,
			SNR:          s.SNR,
			seen:         nowUTC,
		})
	}
	for key, s := range t.sky.Items() {
		if nowUTC.Sub(s.seen) > skyTTL {
			t.sky.Remove(key)
		}
	}
}

func (t *Tracker) applyVTG(r *nmea.VTG) {
	if r.SpeedKnots != nil {
		t.st.groundKt, t.st.gsOK = *r.SpeedKnots, true
	} else if r.SpeedKmh != nil {
		t.st.groundKt, t.st.gsOK = *r.SpeedKmh/nmea.KnotsToKmh, true
	}
	if r.TrueTrackDeg != nil {
		t.st.trackDeg, t.st.trkOK = normalizeTrack(*r.TrueTrackDeg), true
	}
}

func (t *Tracker) applyZDA(r *nmea.ZDA) {
	if r.Time != nil {
		c := *r.Time
		t.st.clock = &c
	}
	if d, ok := r.Date(); ok {
		t.st.date = &d
	}
}

// normalizeTrack maps a course into [0,360). In-range values pass through
// unchanged.
func normalizeTrack(deg float64) float64 {
	if deg >= 0 && deg < 360 {
		return deg
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func skyKey(talker string, prn int) string {
	return talker + ":" + strconv.Itoa(prn)
}

func (t *Tracker) Snapshot(nowUTC time.Time) Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	st := t.st
	used := append([]int(nil), st.used...)
	byType := make(map[string]uint64, len(st.byType))
	for k, v := range st.byType {
		byType[k] = v
	}
	t.mu.Unlock()

	out := Snapshot{
		Enabled:        true,
		Valid:          st.valid,
		LatDeg:         st.latDeg,
		LonDeg:         st.lonDeg,
		SatellitesUsed: used,
		Decoded:        st.decoded,
		Unsupported:    st.unsupported,
		Malformed:      st.malformed,
		ByType:         byType,
		LastError:      st.lastErr,
	}
	if st.altOK {
		v := st.altM
		out.AltitudeM = &v
		ft := int(math.Round(st.altM * metersToFeet))
		out.AltFeet = &ft
	}
	if st.geoidOK {
		v := st.geoidM
		out.GeoidSepM = &v
	}
	if st.gsOK {
		kt := st.groundKt
		kmh := st.groundKt * nmea.KnotsToKmh
		out.GroundKt = &kt
		out.GroundKmh = &kmh
	}
	if st.trkOK {
		v := st.trackDeg
		out.TrackDeg = &v
	}
	if st.magVarOK {
		v := st.magVarDeg
		out.MagVarDeg = &v
	}
	if st.fixQOK {
		v := int(st.fixQuality)
		out.FixQuality = &v
		out.FixQualityName = st.fixQuality.String()
	}
	if st.fixTypeOK {
		v := int(st.fixType)
		out.FixMode = &v
		out.FixModeName = st.fixType.String()
	}
	if st.satsOK {
		v := st.satellites
		out.Satellites = &v
	}
	if st.hdopOK {
		v := st.hdop
		out.HDOP = &v
	}
	if st.pdopOK {
		v := st.pdop
		out.PDOP = &v
	}
	if st.vdopOK {
		v := st.vdop
		out.VDOP = &v
	}
	if st.clock != nil {
		out.TimeUTC = st.clock.String()
		if st.date != nil {
			out.DateTimeUTC = st.date.At(*st.clock).Format(time.RFC3339Nano)
		}
	}
	if st.date != nil {
		out.DateUTC = st.date.String()
	}
	if !st.lastFix.IsZero() {
		out.LastFixUTC = st.lastFix.UTC().Format(time.RFC3339Nano)
		age := nowUTC.Sub(st.lastFix)
		out.FixAgeSec = age.Seconds()
		out.FixStale = age > fixStaleAfter
	}
	out.Sky = t.skyView(used)
	return out
}

func (t *Tracker) skyView(used []int) []SkySatellite {
	inSolution := make(map[int]bool, len(used))
	for _, id := range used {
		inSolution[id] = true
	}
	items := t.sky.Items()
	out := make([]SkySatellite, 0, len(items))
	for _, s := range items {
		s.InSolution = inSolution[s.PRN]
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Talker != out[j].Talker {
			return out[i].Talker < out[j].Talker
		}
		return out[i].PRN < out[j].PRN
	})
	return out
}
