package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "gps: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "serial" || cfg.GPS.Baud != 9600 {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.NMEA.RequireChecksum {
		t.Fatalf("require_checksum should default to false")
	}
	if cfg.MQTT.ClientID != "gnss-nmea" || cfg.MQTT.TopicPrefix != "gnss/nmea" {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("web.listen=%q", cfg.Web.Listen)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, `
nmea:
  require_checksum: true
gps:
  source: Replay
  replay:
    path: ./capture.log
    speed: 4
    loop: true
record:
  enable: true
  path: ./out.log
udp:
  enable: true
  dest: 192.168.10.255:10110
  types: [gga, " rmc ", GGA]
mqtt:
  enable: true
  broker: tcp://localhost:1883
  qos: 1
  retain: true
web:
  enable: true
  listen: 127.0.0.1:9090
pps:
  enable: true
  line: GPIO18
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.NMEA.RequireChecksum {
		t.Fatalf("expected require_checksum")
	}
	if cfg.GPS.Source != "replay" || cfg.GPS.Replay.Speed != 4 || !cfg.GPS.Replay.Loop {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if !reflect.DeepEqual(cfg.UDP.Types, []string{"GGA", "RMC"}) {
		t.Fatalf("udp.types=%v", cfg.UDP.Types)
	}
	if cfg.MQTT.QoS != 1 || !cfg.MQTT.Retain || cfg.MQTT.Types != nil {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if cfg.Web.Listen != "127.0.0.1:9090" || cfg.PPS.Line != "GPIO18" {
		t.Fatalf("web=%+v pps=%+v", cfg.Web, cfg.PPS)
	}
}

func TestLoad_GPSDDefaultAddr(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "gps:\n  source: gpsd\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.GPSDAddr != "127.0.0.1:2947" {
		t.Fatalf("gpsd_addr=%q", cfg.GPS.GPSDAddr)
	}
}

func TestLoad_ExecSource(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "gps:\n  source: exec\n  exec:\n    command: \" gpspipe \"\n    args: [\"-r\"]\n    restart: true\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Exec.Command != "gpspipe" || len(cfg.GPS.Exec.Args) != 1 || !cfg.GPS.Exec.Restart {
		t.Fatalf("exec=%+v", cfg.GPS.Exec)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "UnknownSource",
			yaml: "gps:\n  source: bluetooth\n",
			want: `gps.source must be one of serial, gpsd, tcp, exec, replay, stdin (got "bluetooth")`,
		},
		{
			name: "NegativeBaud",
			yaml: "gps:\n  baud: -1\n",
			want: "gps.baud must be > 0",
		},
		{
			name: "TCPRequiresAddr",
			yaml: "gps:\n  source: tcp\n",
			want: "gps.tcp_addr is required when gps.source is 'tcp'",
		},
		{
			name: "ExecRequiresCommand",
			yaml: "gps:\n  source: exec\n  exec:\n    args: [\"-r\"]\n",
			want: "gps.exec.command is required when gps.source is 'exec'",
		},
		{
			name: "ReplayRequiresPath",
			yaml: "gps:\n  source: replay\n",
			want: "gps.replay.path is required when gps.source is 'replay'",
		},
		{
			name: "ReplayNegativeSpeed",
			yaml: "gps:\n  source: replay\n  replay:\n    path: a.log\n    speed: -2\n",
			want: "gps.replay.speed must be > 0",
		},
		{
			name: "RecordRequiresPath",
			yaml: "record:\n  enable: true\n",
			want: "record.path is required when record.enable is true",
		},
		{
			name: "RecordOverReplay",
			yaml: "gps:\n  source: replay\n  replay:\n    path: a.log\nrecord:\n  enable: true\n  path: a.log\n",
			want: "record.path must differ from gps.replay.path",
		},
		{
			name: "UDPRequiresDest",
			yaml: "udp:\n  enable: true\n",
			want: "udp.dest is required when udp.enable is true",
		},
		{
			name: "UDPUnknownType",
			yaml: "udp:\n  types: [GGA, XDR]\n",
			want: `udp.types: unsupported sentence type "XDR"`,
		},
		{
			name: "MQTTRequiresBroker",
			yaml: "mqtt:\n  enable: true\n",
			want: "mqtt.broker is required when mqtt.enable is true",
		},
		{
			name: "MQTTQoS",
			yaml: "mqtt:\n  qos: 3\n",
			want: "mqtt.qos must be 0, 1 or 2",
		},
		{
			name: "PPSRequiresLine",
			yaml: "pps:\n  enable: true\n",
			want: "pps.line is required when pps.enable is true",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "gps: [\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultAndValidate_Nil(t *testing.T) {
	requireErrEq(t, DefaultAndValidate(nil), "config is nil")
}
