package publish

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gnss-nmea/internal/gps"
	"gnss-nmea/internal/nmea"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	connectErr error
	publishErr error

	mu           sync.Mutex
	sent         []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func testMessage(t *testing.T, line string) gps.Message {
	t.Helper()
	rec, err := nmea.Decode(line)
	if err != nil {
		t.Fatalf("Decode(%q) error: %v", line, err)
	}
	return gps.Message{
		Received: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Talker:   "GP",
		Type:     rec.Type(),
		Raw:      line,
		Record:   rec,
	}
}

func TestTopic(t *testing.T) {
	cases := []struct {
		prefix, typ, want string
	}{
		{"gnss/nmea", "GGA", "gnss/nmea/GGA"},
		{"boat/", "RMC", "boat/RMC"},
		{"", "ZDA", "ZDA"},
	}
	for _, tc := range cases {
		if got := Topic(tc.prefix, tc.typ); got != tc.want {
			t.Fatalf("Topic(%q,%q)=%q want %q", tc.prefix, tc.typ, got, tc.want)
		}
	}
}

func TestPublisher_PublishesEnvelope(t *testing.T) {
	fc := &fakeClient{}
	p, err := newPublisher(Config{Broker: "tcp://x:1883", QoS: 1, Retain: true}, fc)
	if err != nil {
		t.Fatalf("newPublisher() error: %v", err)
	}

	p.Enqueue(testMessage(t, "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"))
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if !fc.disconnected {
		t.Fatalf("expected Disconnect on Close")
	}
	if len(fc.sent) != 1 {
		t.Fatalf("sent=%d want 1", len(fc.sent))
	}
	got := fc.sent[0]
	if got.topic != "gnss/nmea/GGA" || got.qos != 1 || !got.retained {
		t.Fatalf("publish topic=%q qos=%d retained=%t", got.topic, got.qos, got.retained)
	}

	var env struct {
		Type   string         `json:"type"`
		Talker string         `json:"talker"`
		Record map[string]any `json:"record"`
	}
	if err := json.Unmarshal(got.payload, &env); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if env.Type != "GGA" || env.Talker != "GP" {
		t.Fatalf("envelope type=%q talker=%q", env.Type, env.Talker)
	}
	if sats, ok := env.Record["satellites"].(float64); !ok || sats != 8 {
		t.Fatalf("record.satellites=%v want 8", env.Record["satellites"])
	}

	st := p.Stats()
	if st.Published != 1 || st.Failed != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPublisher_ConnectError(t *testing.T) {
	wantErr := errors.New("refused")
	_, err := newPublisher(Config{Broker: "tcp://x:1883"}, &fakeClient{connectErr: wantErr})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
}

func TestPublisher_InvalidQoS(t *testing.T) {
	if _, err := newPublisher(Config{Broker: "tcp://x:1883", QoS: 3}, &fakeClient{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPublisher_PublishErrorCounted(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("not connected")}
	p, err := newPublisher(Config{Broker: "tcp://x:1883"}, fc)
	if err != nil {
		t.Fatalf("newPublisher() error: %v", err)
	}
	p.Enqueue(testMessage(t, "$GPZDA,201530.00,04,07,2002,00,00*60"))
	_ = p.Close()

	st := p.Stats()
	if st.Failed != 1 || st.Published != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if st.LastError == "" {
		t.Fatalf("expected last error")
	}
}

func TestPublisher_EnqueueAfterCloseIgnored(t *testing.T) {
	fc := &fakeClient{}
	p, err := newPublisher(Config{Broker: "tcp://x:1883"}, fc)
	if err != nil {
		t.Fatalf("newPublisher() error: %v", err)
	}
	_ = p.Close()
	_ = p.Close()
	p.Enqueue(testMessage(t, "$GPZDA,201530.00,04,07,2002,00,00*60"))
	if len(fc.sent) != 0 {
		t.Fatalf("sent=%d want 0", len(fc.sent))
	}
}

func TestNew_RequiresBroker(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
