package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gnss-nmea/internal/nmea"
)

type Config struct {
	NMEA   NMEAConfig   `yaml:"nmea"`
	GPS    GPSConfig    `yaml:"gps"`
	Record RecordConfig `yaml:"record"`
	UDP    UDPConfig    `yaml:"udp"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Web    WebConfig    `yaml:"web"`
	PPS    PPSConfig    `yaml:"pps"`
}

type NMEAConfig struct {
	// RequireChecksum rejects sentences without a '*hh' suffix.
	RequireChecksum bool `yaml:"require_checksum"`
}

type GPSConfig struct {
	// Source: serial | gpsd | tcp | exec | replay | stdin
	Source   string       `yaml:"source"`
	Device   string       `yaml:"device"`
	Baud     int          `yaml:"baud"`
	GPSDAddr string       `yaml:"gpsd_addr"`
	TCPAddr  string       `yaml:"tcp_addr"`
	Exec     ExecConfig   `yaml:"exec"`
	Replay   ReplayConfig `yaml:"replay"`
}

// ExecConfig runs a program (e.g. `gpspipe -r`) and reads NMEA from its stdout.
type ExecConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Restart bool     `yaml:"restart"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
	Append bool   `yaml:"append"`
}

type UDPConfig struct {
	Enable bool     `yaml:"enable"`
	Dest   string   `yaml:"dest"`
	Types  []string `yaml:"types"`
}

type MQTTConfig struct {
	Enable      bool     `yaml:"enable"`
	Broker      string   `yaml:"broker"`
	ClientID    string   `yaml:"client_id"`
	TopicPrefix string   `yaml:"topic_prefix"`
	QoS         int      `yaml:"qos"`
	Retain      bool     `yaml:"retain"`
	Types       []string `yaml:"types"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type PPSConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Line   string `yaml:"line"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings. Error messages name the offending YAML key.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	g := &cfg.GPS
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	if g.Source == "" {
		g.Source = "serial"
	}
	switch g.Source {
	case "serial":
		if g.Baud == 0 {
			g.Baud = 9600
		}
		if g.Baud < 0 {
			return fmt.Errorf("gps.baud must be > 0")
		}
	case "gpsd":
		if strings.TrimSpace(g.GPSDAddr) == "" {
			g.GPSDAddr = "127.0.0.1:2947"
		}
	case "tcp":
		if strings.TrimSpace(g.TCPAddr) == "" {
			return fmt.Errorf("gps.tcp_addr is required when gps.source is 'tcp'")
		}
	case "exec":
		g.Exec.Command = strings.TrimSpace(g.Exec.Command)
		if g.Exec.Command == "" {
			return fmt.Errorf("gps.exec.command is required when gps.source is 'exec'")
		}
	case "replay":
		if strings.TrimSpace(g.Replay.Path) == "" {
			return fmt.Errorf("gps.replay.path is required when gps.source is 'replay'")
		}
		if g.Replay.Speed == 0 {
			g.Replay.Speed = 1
		}
		if g.Replay.Speed < 0 {
			return fmt.Errorf("gps.replay.speed must be > 0")
		}
	case "stdin":
	default:
		return fmt.Errorf("gps.source must be one of serial, gpsd, tcp, exec, replay, stdin (got %q)", g.Source)
	}

	if cfg.Record.Enable {
		if strings.TrimSpace(cfg.Record.Path) == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
		if g.Source == "replay" && cfg.Record.Path == g.Replay.Path {
			return fmt.Errorf("record.path must differ from gps.replay.path")
		}
	}

	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	types, err := normalizeTypes("udp.types", cfg.UDP.Types)
	if err != nil {
		return err
	}
	cfg.UDP.Types = types

	m := &cfg.MQTT
	if m.Enable && strings.TrimSpace(m.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if m.ClientID == "" {
		m.ClientID = "gnss-nmea"
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = "gnss/nmea"
	}
	types, err = normalizeTypes("mqtt.types", m.Types)
	if err != nil {
		return err
	}
	m.Types = types

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.PPS.Enable && strings.TrimSpace(cfg.PPS.Line) == "" {
		return fmt.Errorf("pps.line is required when pps.enable is true")
	}
	return nil
}

// normalizeTypes upper-cases a sentence type filter and rejects types the
// decoder does not produce. An empty filter passes everything.
func normalizeTypes(key string, in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	known := map[string]bool{}
	for _, t := range nmea.SupportedTypes() {
		known[t] = true
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if !known[t] {
			return nil, fmt.Errorf("%s: unsupported sentence type %q", key, t)
		}
		out = append(out, t)
	}
	return out, nil
}
