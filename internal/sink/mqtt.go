package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/telemetry"
)

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
	KeepAlive   time.Duration
}

const publishTimeout = 5 * time.Second

// MQTTSink publishes rows as JSON to <prefix>/<location>/<kind>.
type MQTTSink struct {
	pub    Publisher
	client mqtt.Client // nil when built around a bare Publisher
	prefix string
	qos    byte
}

// ConnectMQTT connects to the broker and returns a sink publishing on it.
func ConnectMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.WithField("broker", cfg.BrokerURL).Info("Connected to MQTT broker")

	s := NewMQTTSink(client, cfg.TopicPrefix, cfg.QoS)
	s.client = client
	return s, nil
}

// NewMQTTSink publishes through pub.
func NewMQTTSink(pub Publisher, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, prefix: prefix, qos: qos}
}

// Topic returns the topic for a location and row kind.
func (s *MQTTSink) Topic(locationCode, kind string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, locationCode, kind)
}

func (s *MQTTSink) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := s.pub.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// WriteFrame publishes the environment row, each string row and the jar
// rows of the frame as one batch.
func (s *MQTTSink) WriteFrame(loc model.Location, f telemetry.Frame) error {
	if err := s.publish(s.Topic(loc.Code, "environment"), f.Environment); err != nil {
		return err
	}
	for _, r := range f.Strings {
		if err := s.publish(s.Topic(loc.Code, "string"), r); err != nil {
			return err
		}
	}
	if len(f.Batteries) > 0 {
		if err := s.publish(s.Topic(loc.Code, "battery"), f.Batteries); err != nil {
			return err
		}
	}
	for _, st := range f.Failures {
		if err := s.publish(s.Topic(loc.Code, "failure"), st); err != nil {
			return err
		}
	}
	return nil
}

func (s *MQTTSink) WriteSummary(sum simulator.SiteSummary) error {
	return s.publish(s.Topic(sum.Location.Code, "summary"), sum)
}

func (s *MQTTSink) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
		log.Info("Disconnected from MQTT broker")
	}
	return nil
}
