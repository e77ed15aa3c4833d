package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AdhanCompanion/internal/config"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	mqttQoS             = 1
	mqttDisconnectQuiet = 250 // ms
	mqttPublishTimeout  = 5 * time.Second
	mqttConnectMaxWait  = 30 * time.Second
)

// MQTT publishes notices as JSON to <prefix>/<kind>, e.g.
// adhan-companion/adhan, for home-automation bridges.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// NewMQTT builds a client for conf. It does not connect.
func NewMQTT(conf config.MQTTConfig) *MQTT {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(conf.ClientID)
	if conf.Username != "" {
		opts.SetUsername(conf.Username)
		opts.SetPassword(conf.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", conf.Broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", conf.Broker).Msg("MQTT connection lost")
	}

	return &MQTT{
		client: mqtt.NewClient(opts),
		prefix: strings.TrimSuffix(conf.TopicPrefix, "/"),
	}
}

// Connect dials the broker, retrying with exponential backoff until ctx is
// done or the retry budget runs out.
func (m *MQTT) Connect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = mqttConnectMaxWait

	operation := func() error {
		token := m.client.Connect()
		token.Wait()
		return token.Error()
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("MQTT connect failed")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return fmt.Errorf("connect to MQTT broker: %w", err)
	}
	return nil
}

// Topic returns the topic a notice of kind is published to.
func (m *MQTT) Topic(kind Kind) string {
	return m.prefix + "/" + string(kind)
}

func (m *MQTT) Notify(_ context.Context, n Notice) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt: not connected")
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("mqtt: encode notice: %w", err)
	}

	topic := m.Topic(n.Kind)
	token := m.client.Publish(topic, mqttQoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).Msg("notice published")
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	if m.client.IsConnected() {
		m.client.Disconnect(mqttDisconnectQuiet)
	}
}
