package mqttclient

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sensorsim/internal/publisher"
	"go.uber.org/zap"
)

type Options struct {
	BrokerURL      string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
	KeepAlive      time.Duration
	Logger         *zap.Logger
}

// Client is a paho session implementing publisher.Transport. Retrying the
// initial connect is left to the caller; once connected, paho reconnects
// on its own.
type Client struct {
	raw  mqtt.Client
	opts Options
	log  *zap.Logger
}

// BrokerURL builds a tcp:// broker address from host and port.
func BrokerURL(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// NewClientID returns a unique client id so parallel simulators never
// kick each other off the broker.
func NewClientID() string {
	return "sensorsim-" + uuid.NewString()
}

func New(opts Options) *Client {
	if opts.ClientID == "" {
		opts.ClientID = NewClientID()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 60 * time.Second
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.With(zap.String("broker", opts.BrokerURL), zap.String("client_id", opts.ClientID))

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(false)
	o.SetConnectTimeout(opts.ConnectTimeout)
	o.SetKeepAlive(opts.KeepAlive)
	o.SetAutoReconnect(true)
	o.SetOrderMatters(true)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	})
	o.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info("MQTT reconnecting")
	})

	return &Client{raw: mqtt.NewClient(o), opts: opts, log: log}
}

// Connect performs a single connect attempt bounded by ConnectTimeout.
func (c *Client) Connect(ctx context.Context) error {
	token := c.raw.Connect()
	if err := c.wait(ctx, token, c.opts.ConnectTimeout, publisher.ErrConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", c.opts.BrokerURL, err)
	}
	return nil
}

// Publish sends payload on topic and waits at most AckTimeout for the token.
// With QoS 0 the token completes once the message is handed to the network.
func (c *Client) Publish(ctx context.Context, topic, _ string, payload []byte) error {
	token := c.raw.Publish(topic, c.opts.QoS, false, payload)
	return c.wait(ctx, token, c.opts.AckTimeout, publisher.ErrAckTimeout)
}

func (c *Client) Close() {
	c.raw.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	return c.raw.IsConnected()
}

func (c *Client) String() string {
	return fmt.Sprintf("MQTTClient(%s)", c.opts.BrokerURL)
}

func (c *Client) wait(ctx context.Context, token mqtt.Token, timeout time.Duration, timeoutErr error) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return timeoutErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
