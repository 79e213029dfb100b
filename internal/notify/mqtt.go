package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sosbeacon/internal/nmea"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string

	PublishTimeout time.Duration
}

// AlertMessage is the JSON body published on <prefix>/alert.
type AlertMessage struct {
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_utc"`
}

// FixMessage is the JSON body published on <prefix>/fix.
type FixMessage struct {
	LatDeg    float64   `json:"lat_deg"`
	LonDeg    float64   `json:"lon_deg"`
	Source    string    `json:"source,omitempty"`
	TimeUTC   string    `json:"time_utc,omitempty"`
	UpdatedAt time.Time `json:"updated_utc"`
}

// publisher is the slice of mqtt.Client this package needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes alerts and position telemetry to a broker. The client
// reconnects on its own.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	pub    publisher
	now    func() time.Time
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("notify: mqtt broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sosbeacon"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "sosbeacon"
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("mqtt connected broker=%s", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost broker=%s: %v", cfg.Broker, err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	return &MQTT{cfg: cfg, client: client, pub: client, now: time.Now}, nil
}

// Connect starts the background connection. With connect-retry enabled
// the token only completes once the broker is reachable, so it is not
// waited on.
func (m *MQTT) Connect() {
	if m.client == nil {
		return
	}
	m.client.Connect()
	log.Printf("mqtt enabled broker=%s client_id=%s prefix=%s", m.cfg.Broker, m.cfg.ClientID, m.cfg.TopicPrefix)
}

func (m *MQTT) AlertTopic() string { return m.cfg.TopicPrefix + "/alert" }
func (m *MQTT) FixTopic() string   { return m.cfg.TopicPrefix + "/fix" }

// Send publishes the alert at QoS 1 and waits for the broker's ack.
func (m *MQTT) Send(ctx context.Context, dest, body string) error {
	payload, err := json.Marshal(AlertMessage{Destination: dest, Body: body, SentAt: m.now().UTC()})
	if err != nil {
		return fmt.Errorf("mqtt: marshal alert: %w", err)
	}
	token := m.pub.Publish(m.AlertTopic(), 1, false, payload)

	timer := time.NewTimer(m.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish alert: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt: publish alert: timeout after %s", m.cfg.PublishTimeout)
	}
}

// PublishFix sends the fix retained at QoS 0 without waiting, so a late
// subscriber immediately learns the last known position.
func (m *MQTT) PublishFix(fix nmea.Fix) error {
	payload, err := json.Marshal(FixMessage{
		LatDeg:    fix.Latitude,
		LonDeg:    fix.Longitude,
		Source:    fix.Source,
		TimeUTC:   fix.TimeUTC,
		UpdatedAt: fix.Updated,
	})
	if err != nil {
		return fmt.Errorf("mqtt: marshal fix: %w", err)
	}
	token := m.pub.Publish(m.FixTopic(), 0, true, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish fix: %w", err)
		}
	default:
	}
	return nil
}

func (m *MQTT) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(250)
}
