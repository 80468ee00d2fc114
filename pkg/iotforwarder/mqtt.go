package iotforwarder

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTConfig describes how to reach the external IoT broker (ThingsBoard or
// equivalent, per the source's mqtt_client.py).
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// MQTTClient wraps an autopaho connection manager (grounded on
// nugget-thane-ai-agent's internal/mqtt.Publisher: ServerUrls/KeepAlive/
// OnConnectionUp/OnConnectError, minus the Home Assistant discovery
// specifics that package adds on top).
type MQTTClient struct {
	cfg MQTTConfig
	cm  *autopaho.ConnectionManager
}

// NewMQTTClient builds a client but does not connect; call Connect.
func NewMQTTClient(cfg MQTTConfig) *MQTTClient {
	return &MQTTClient{cfg: cfg}
}

// Connect dials the broker and blocks up to 30s for the first connection.
// On timeout it logs and returns nil: autopaho keeps retrying in the
// background, matching the teacher-adjacent publisher's fire-and-forget
// reconnect behavior.
func (c *MQTTClient) Connect(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("iotforwarder: parse mqtt broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			Logger.Info().Str("broker", c.cfg.BrokerURL).Msg("mqtt connected")
		},
		OnConnectError: func(err error) {
			Logger.Warn().Err(err).Msg("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{ClientID: c.cfg.ClientID},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("iotforwarder: mqtt connect: %w", err)
	}
	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		Logger.Warn().Err(err).Msg("mqtt initial connection timed out, will retry in background")
	}
	return nil
}

// Publish sends payload to topic at QoS 1.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.cm == nil {
		return fmt.Errorf("iotforwarder: mqtt client not connected")
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	})
	return err
}

// Disconnect closes the connection, if one was ever established.
func (c *MQTTClient) Disconnect(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	return c.cm.Disconnect(ctx)
}
