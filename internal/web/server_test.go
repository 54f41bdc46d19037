package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gnss-nmea/internal/gps"
	"gnss-nmea/internal/nmea"
	"gnss-nmea/internal/pps"
)

func testMessage(t *testing.T, line string) gps.Message {
	t.Helper()
	rec, err := nmea.Decode(line)
	if err != nil {
		t.Fatalf("Decode(%q) error: %v", line, err)
	}
	return gps.Message{Received: time.Now().UTC(), Talker: "GP", Type: rec.Type(), Raw: line, Record: rec}
}

const (
	ggaLine = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	vtgLine = "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48"
)

func TestAPIStatus(t *testing.T) {
	st := NewStatus()
	st.SetGPS(func() gps.Snapshot { return gps.Snapshot{Enabled: true, Source: "replay", Lines: 3} })
	st.SetPPS(func(time.Time) pps.Snapshot { return pps.Snapshot{Enabled: true, Pulses: 7} })
	st.SetSink("udp", func() any { return map[string]int{"sent": 2} })

	ts := httptest.NewServer(Handler(st, NewHub(), nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "gnss-nmea" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.GPS == nil || snap.GPS.Source != "replay" || snap.GPS.Lines != 3 {
		t.Fatalf("gps=%+v", snap.GPS)
	}
	if snap.PPS == nil || snap.PPS.Pulses != 7 {
		t.Fatalf("pps=%+v", snap.PPS)
	}
	if len(snap.SinkNames) != 1 || snap.SinkNames[0] != "udp" {
		t.Fatalf("sinks=%v", snap.SinkNames)
	}
	if snap.Stream == nil || snap.Stream.Clients != 0 {
		t.Fatalf("stream=%+v", snap.Stream)
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil, nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("allow=%q", allow)
	}
}

func TestRootPage(t *testing.T) {
	st := NewStatus()
	st.SetGPS(func() gps.Snapshot { return gps.Snapshot{Source: "serial"} })
	ts := httptest.NewServer(Handler(st, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "source=serial") {
		t.Fatalf("body=%q", b)
	}

	resp2, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", resp2.StatusCode)
	}
}

func TestAPILines(t *testing.T) {
	lines := NewLineBuffer(2)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lines.Add(now, "$GPGGA,1")
	lines.Add(now, "  ")
	lines.Add(now, "$GPGGA,2")
	lines.Add(now, "$GPGGA,3")

	ts := httptest.NewServer(Handler(NewStatus(), nil, lines))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/lines?tail=5")
	if err != nil {
		t.Fatalf("get lines: %v", err)
	}
	defer resp.Body.Close()
	var out LinesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out.Dropped != 1 {
		t.Fatalf("dropped=%d want 1", out.Dropped)
	}
	if len(out.Lines) != 2 || out.Lines[0].Line != "$GPGGA,2" || out.Lines[1].Line != "$GPGGA,3" {
		t.Fatalf("lines=%+v", out.Lines)
	}
	if out.Lines[0].ReceivedUTC != "2024-03-01T12:00:00Z" {
		t.Fatalf("received_utc=%q", out.Lines[0].ReceivedUTC)
	}

	txt, err := http.Get(ts.URL + "/api/lines?tail=1&format=text")
	if err != nil {
		t.Fatalf("get lines text: %v", err)
	}
	defer txt.Body.Close()
	b, _ := io.ReadAll(txt.Body)
	if string(b) != "$GPGGA,3\n" {
		t.Fatalf("text=%q", b)
	}

	bad, err := http.Get(ts.URL + "/api/lines?tail=0")
	if err != nil {
		t.Fatalf("get lines bad tail: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad tail status=%d", bad.StatusCode)
	}
}

func TestAbout(t *testing.T) {
	ts := httptest.NewServer(Handler(nil, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/about")
	if err != nil {
		t.Fatalf("get about: %v", err)
	}
	defer resp.Body.Close()
	var out AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out.Service != "gnss-nmea" || len(out.Sentences) != 7 {
		t.Fatalf("about=%+v", out)
	}
}

func dialStream(t *testing.T, ts *httptest.Server, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Clients == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env map[string]any
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return env
}

func TestStream_PushesDecodedMessages(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(Handler(NewStatus(), hub, nil))
	defer ts.Close()

	conn := dialStream(t, ts, hub, "")
	hub.Publish(testMessage(t, ggaLine))

	env := readEnvelope(t, conn)
	if env["type"] != "GGA" || env["talker"] != "GP" || env["raw"] != ggaLine {
		t.Fatalf("envelope=%v", env)
	}
	rec, ok := env["record"].(map[string]any)
	if !ok {
		t.Fatalf("record=%T", env["record"])
	}
	if rec["altitude_m"] != 545.4 {
		t.Fatalf("altitude_m=%v", rec["altitude_m"])
	}
}

func TestStream_TypeFilter(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(Handler(NewStatus(), hub, nil))
	defer ts.Close()

	conn := dialStream(t, ts, hub, "?types=vtg")
	hub.Publish(testMessage(t, ggaLine))
	hub.Publish(testMessage(t, vtgLine))

	env := readEnvelope(t, conn)
	if env["type"] != "VTG" {
		t.Fatalf("type=%v want VTG", env["type"])
	}
}

func TestStream_UnsubscribesOnClose(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(Handler(NewStatus(), hub, nil))
	defer ts.Close()

	conn := dialStream(t, ts, hub, "")
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Clients != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream client not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStream_NotWebSocket(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), NewHub(), nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code=%d want 400", resp.StatusCode)
	}
}

func TestHub_LastMessageAndDrops(t *testing.T) {
	hub := NewHub()
	hub.Publish(testMessage(t, ggaLine))

	id, ch := hub.Subscribe(1)
	select {
	case msg := <-ch:
		if msg.Type != "GGA" {
			t.Fatalf("type=%q", msg.Type)
		}
	default:
		t.Fatalf("expected last message on subscribe")
	}

	hub.Publish(testMessage(t, vtgLine))
	hub.Publish(testMessage(t, vtgLine))
	if st := hub.Stats(); st.Dropped != 1 || st.Published != 3 || st.Clients != 1 {
		t.Fatalf("stats=%+v", st)
	}

	hub.Unsubscribe(id)
	if _, ok := <-ch; !ok {
		t.Fatalf("expected buffered message before close")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestParseTypes(t *testing.T) {
	if parseTypes(" ") != nil || parseTypes(",,") != nil {
		t.Fatalf("expected nil filter")
	}
	got := parseTypes("gga, RMC")
	if !got["GGA"] || !got["RMC"] || len(got) != 2 {
		t.Fatalf("filter=%v", got)
	}
}
