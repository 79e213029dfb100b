package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GPS   GPSConfig   `yaml:"gps"`
	Alert AlertConfig `yaml:"alert"`
	GPIO  GPIOConfig  `yaml:"gpio"`
	Modem ModemConfig `yaml:"modem"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	UDP   UDPConfig   `yaml:"udp"`
	Web   WebConfig   `yaml:"web"`
}

type GPSConfig struct {
	// Source is "serial", "gpsd" or "replay".
	Source     string `yaml:"source"`
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	GPSDAddr   string `yaml:"gpsd_addr"`
	ReplayPath string `yaml:"replay_path"`

	RingCapacity    int           `yaml:"ring_capacity"`
	WorkCapacity    int           `yaml:"work_capacity"`
	SilenceTimeout  time.Duration `yaml:"silence_timeout"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

type AlertConfig struct {
	Destination    string        `yaml:"destination"`
	MessagePrefix  string        `yaml:"message_prefix"`
	IncludeMapLink bool          `yaml:"include_map_link"`
	Debounce       time.Duration `yaml:"debounce"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	HistorySize    int           `yaml:"history_size"`
}

type GPIOConfig struct {
	// Pins use BCM numbering.
	TriggerPin       int  `yaml:"trigger_pin"`
	TriggerActiveLow bool `yaml:"trigger_active_low"`
	IndicatorPin     int  `yaml:"indicator_pin"`
}

type ModemConfig struct {
	Enable         bool          `yaml:"enable"`
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	SubmitTimeout  time.Duration `yaml:"submit_timeout"`
}

type MQTTConfig struct {
	Enable         bool          `yaml:"enable"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	// PublishFixes also streams accepted fixes to <topic_prefix>/fix.
	PublishFixes bool `yaml:"publish_fixes"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	// Dest is host:port; a broadcast address works.
	Dest   string `yaml:"dest"`
}

type WebConfig struct {
	// Listen is host:port for the status server; empty disables it.
	Listen string `yaml:"listen"`
}

// gpsBauds are the tty rates the GPS serial feed can program.
var gpsBauds = []int{4800, 9600, 19200, 38400, 57600, 115200}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// finalize applies defaults and validates. Load calls it; callers that
// tweak a loaded Config (for example a -replay flag) call Validate again.
func (cfg *Config) finalize() error {
	g := &cfg.GPS
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	if g.Source == "" {
		g.Source = "serial"
	}
	if g.Baud == 0 {
		g.Baud = 9600
	}
	if g.GPSDAddr == "" {
		g.GPSDAddr = "127.0.0.1:2947"
	}
	if g.RingCapacity == 0 {
		g.RingCapacity = 1024
	}
	if g.WorkCapacity == 0 {
		g.WorkCapacity = 256
	}
	if g.SilenceTimeout == 0 {
		g.SilenceTimeout = 1 * time.Second
	}
	if g.WaitTimeout == 0 {
		g.WaitTimeout = 100 * time.Millisecond
	}
	if g.PublishInterval == 0 {
		g.PublishInterval = 10 * time.Second
	}

	a := &cfg.Alert
	if a.MessagePrefix == "" {
		a.MessagePrefix = "EMERGENCY!"
	}
	if a.Debounce == 0 {
		a.Debounce = 10 * time.Second
	}
	if a.PollInterval == 0 {
		a.PollInterval = 50 * time.Millisecond
	}
	if a.HistorySize == 0 {
		a.HistorySize = 20
	}

	if cfg.GPIO.TriggerPin == 0 {
		cfg.GPIO.TriggerPin = 10
	}
	if cfg.GPIO.IndicatorPin == 0 {
		cfg.GPIO.IndicatorPin = 25
	}

	m := &cfg.Modem
	if m.Baud == 0 {
		m.Baud = 9600
	}
	if m.CommandTimeout == 0 {
		m.CommandTimeout = 2 * time.Second
	}
	if m.SubmitTimeout == 0 {
		m.SubmitTimeout = 60 * time.Second
	}

	q := &cfg.MQTT
	if q.ClientID == "" {
		q.ClientID = "sosbeacon"
	}
	if q.TopicPrefix == "" {
		q.TopicPrefix = "sosbeacon"
	}
	if q.PublishTimeout == 0 {
		q.PublishTimeout = 5 * time.Second
	}

	return cfg.Validate()
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	g := cfg.GPS
	switch g.Source {
	case "serial", "gpsd":
	case "replay":
		if g.ReplayPath == "" {
			return fmt.Errorf("gps.replay_path is required when gps.source is 'replay'")
		}
	default:
		return fmt.Errorf("gps.source must be one of serial, gpsd, replay")
	}
	if !slices.Contains(gpsBauds, g.Baud) {
		return fmt.Errorf("gps.baud must be one of 4800, 9600, 19200, 38400, 57600, 115200")
	}
	if g.RingCapacity < 2 {
		return fmt.Errorf("gps.ring_capacity must be > 1")
	}
	if g.WorkCapacity < 82 {
		// One maximum-length NMEA sentence plus terminator.
		return fmt.Errorf("gps.work_capacity must be >= 82")
	}
	if g.SilenceTimeout < 0 {
		return fmt.Errorf("gps.silence_timeout must be > 0")
	}
	if g.WaitTimeout < 0 {
		return fmt.Errorf("gps.wait_timeout must be > 0")
	}
	if g.PublishInterval < 0 {
		return fmt.Errorf("gps.publish_interval must be >= 0")
	}

	a := cfg.Alert
	if strings.TrimSpace(a.Destination) == "" {
		return fmt.Errorf("alert.destination is required")
	}
	if a.Debounce < 0 {
		return fmt.Errorf("alert.debounce must be > 0")
	}
	if a.PollInterval < 0 {
		return fmt.Errorf("alert.poll_interval must be > 0")
	}
	if a.HistorySize < 0 {
		return fmt.Errorf("alert.history_size must be >= 0")
	}

	if cfg.GPIO.TriggerPin < 0 || cfg.GPIO.IndicatorPin < 0 {
		return fmt.Errorf("gpio pins must be > 0")
	}
	if cfg.GPIO.TriggerPin == cfg.GPIO.IndicatorPin {
		return fmt.Errorf("gpio.trigger_pin and gpio.indicator_pin must differ")
	}

	if cfg.Modem.Enable && strings.TrimSpace(cfg.Modem.Device) == "" {
		return fmt.Errorf("modem.device is required when modem.enable is true")
	}
	if cfg.Modem.CommandTimeout < 0 || cfg.Modem.SubmitTimeout < 0 {
		return fmt.Errorf("modem timeouts must be > 0")
	}
	if cfg.MQTT.Enable && strings.TrimSpace(cfg.MQTT.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	if !cfg.Modem.Enable && !cfg.MQTT.Enable && !cfg.UDP.Enable {
		return fmt.Errorf("at least one of modem.enable, mqtt.enable or udp.enable must be true")
	}
	return nil
}
