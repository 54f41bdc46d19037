// Package publish forwards decoded sentences to an MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gnss-nmea/internal/gps"
)

const (
	DefaultTopicPrefix = "gnss/nmea"

	publishTimeout = 5 * time.Second
	queueLen       = 256
)

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Retain      bool

	ConnectTimeout time.Duration
}

// client is the part of mqtt.Client used here.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends each message as JSON to <prefix>/<type>. Messages are
// queued so the reader goroutine never waits on the broker; when the
// queue is full the message is dropped and counted.
type Publisher struct {
	cfg Config
	c   client

	queue chan gps.Message
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	lastErr   atomic.Value // string
}

type Stats struct {
	Broker    string `json:"broker"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	LastError string `json:"last_error,omitempty"`
}

func New(cfg Config) (*Publisher, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gnss-nmea"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost broker=%s err=%v", cfg.Broker, err)
		})
	return newPublisher(cfg, mqtt.NewClient(opts))
}

func newPublisher(cfg Config, c client) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	token := c.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect broker=%s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect broker=%s: %w", cfg.Broker, err)
	}

	p := &Publisher{
		cfg:   cfg,
		c:     c,
		queue: make(chan gps.Message, queueLen),
		done:  make(chan struct{}),
	}
	p.lastErr.Store("")
	go p.run()
	log.Printf("mqtt connected broker=%s client_id=%s prefix=%s", cfg.Broker, cfg.ClientID, cfg.TopicPrefix)
	return p, nil
}

// Topic returns the topic a sentence type is published to.
func Topic(prefix, sentenceType string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return sentenceType
	}
	return prefix + "/" + sentenceType
}

// Enqueue schedules msg for publishing. It never blocks.
func (p *Publisher) Enqueue(msg gps.Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.publish(msg); err != nil {
			p.failed.Add(1)
			p.lastErr.Store(err.Error())
			continue
		}
		p.published.Add(1)
	}
}

func (p *Publisher) publish(msg gps.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	topic := Topic(p.cfg.TopicPrefix, msg.Type)
	token := p.c.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish topic=%s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish topic=%s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	msg, _ := p.lastErr.Load().(string)
	return Stats{
		Broker:    p.cfg.Broker,
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		LastError: msg,
	}
}

// Close drains the queue and disconnects.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		<-p.done
		p.c.Disconnect(250)
	})
	return nil
}
