package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
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

const (
	modemOn = "modem:\n  enable: true\n  device: /dev/ttyS0\n"
	minimal = "alert:\n  destination: '+15550100'\n" + modemOn
)

func TestLoad_RequiresDestination(t *testing.T) {
	path := writeTempConfig(t, modemOn)
	_, err := Load(path)
	requireErrEq(t, err, "alert.destination is required")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	g := cfg.GPS
	if g.Source != "serial" || g.Baud != 9600 || g.RingCapacity != 1024 || g.WorkCapacity != 256 {
		t.Fatalf("gps defaults=%+v", g)
	}
	if g.SilenceTimeout != time.Second || g.WaitTimeout != 100*time.Millisecond {
		t.Fatalf("gps timeouts=%s/%s", g.SilenceTimeout, g.WaitTimeout)
	}
	a := cfg.Alert
	if a.Debounce != 10*time.Second || a.PollInterval != 50*time.Millisecond || a.MessagePrefix != "EMERGENCY!" {
		t.Fatalf("alert defaults=%+v", a)
	}
	if cfg.GPIO.TriggerPin != 10 || cfg.GPIO.IndicatorPin != 25 {
		t.Fatalf("gpio defaults=%+v", cfg.GPIO)
	}
	if cfg.Modem.Baud != 9600 || cfg.Modem.CommandTimeout != 2*time.Second || cfg.Modem.SubmitTimeout != 60*time.Second {
		t.Fatalf("modem defaults=%+v", cfg.Modem)
	}
	if cfg.Web.Listen != "" {
		t.Fatalf("web should default to disabled")
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	path := writeTempConfig(t, modemOn+"gps:\n  silence_timeout: 750ms\nalert:\n  destination: '112'\n  debounce: 30s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.SilenceTimeout != 750*time.Millisecond || cfg.Alert.Debounce != 30*time.Second {
		t.Fatalf("silence=%s debounce=%s", cfg.GPS.SilenceTimeout, cfg.Alert.Debounce)
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
			yaml: minimal + "gps:\n  source: bluetooth\n",
			want: "gps.source must be one of serial, gpsd, replay",
		},
		{
			name: "ReplayNeedsPath",
			yaml: minimal + "gps:\n  source: replay\n",
			want: "gps.replay_path is required when gps.source is 'replay'",
		},
		{
			name: "UnsupportedBaud",
			yaml: minimal + "gps:\n  baud: 14400\n",
			want: "gps.baud must be one of 4800, 9600, 19200, 38400, 57600, 115200",
		},
		{
			name: "NegativeBaud",
			yaml: minimal + "gps:\n  baud: -9600\n",
			want: "gps.baud must be one of 4800, 9600, 19200, 38400, 57600, 115200",
		},
		{
			name: "TinyRing",
			yaml: minimal + "gps:\n  ring_capacity: 1\n",
			want: "gps.ring_capacity must be > 1",
		},
		{
			name: "TinyWorkRegion",
			yaml: minimal + "gps:\n  work_capacity: 40\n",
			want: "gps.work_capacity must be >= 82",
		},
		{
			name: "NegativeDebounce",
			yaml: modemOn + "alert:\n  destination: '1'\n  debounce: -1s\n",
			want: "alert.debounce must be > 0",
		},
		{
			name: "SamePins",
			yaml: minimal + "gpio:\n  trigger_pin: 17\n  indicator_pin: 17\n",
			want: "gpio.trigger_pin and gpio.indicator_pin must differ",
		},
		{
			name: "ModemNeedsDevice",
			yaml: "alert:\n  destination: '1'\nmodem:\n  enable: true\n",
			want: "modem.device is required when modem.enable is true",
		},
		{
			name: "MQTTNeedsBroker",
			yaml: "alert:\n  destination: '1'\nmqtt:\n  enable: true\n",
			want: "mqtt.broker is required when mqtt.enable is true",
		},
		{
			name: "NeedsANotifier",
			yaml: "alert:\n  destination: '1'\n",
			want: "at least one of modem.enable, mqtt.enable or udp.enable must be true",
		},
		{
			name: "UDPNeedsDest",
			yaml: "alert:\n  destination: '1'\nudp:\n  enable: true\n",
			want: "udp.dest is required when udp.enable is true",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MQTTOnly(t *testing.T) {
	path := writeTempConfig(t, "alert:\n  destination: ops\nmqtt:\n  enable: true\n  broker: tcp://127.0.0.1:1883\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MQTT.TopicPrefix != "sosbeacon" || cfg.MQTT.ClientID != "sosbeacon" {
		t.Fatalf("mqtt defaults=%+v", cfg.MQTT)
	}
}

func TestLoad_UDPOnly(t *testing.T) {
	path := writeTempConfig(t, "alert:\n  destination: lan\nudp:\n  enable: true\n  dest: 192.168.10.255:4500\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.UDP.Enable || cfg.UDP.Dest != "192.168.10.255:4500" {
		t.Fatalf("udp=%+v", cfg.UDP)
	}
}

func TestValidate_AfterReplayOverride(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.GPS.Source = "replay"
	requireErrEq(t, cfg.Validate(), "gps.replay_path is required when gps.source is 'replay'")
	cfg.GPS.ReplayPath = "testdata/drive.nmea"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
