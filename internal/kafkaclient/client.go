package kafkaclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sensorsim/internal/publisher"
	"go.uber.org/zap"
)

type Options struct {
	Brokers        []string
	QoS            byte
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

// Client publishes readings to Kafka and implements publisher.Transport.
// Messages are keyed by sensor id so one sensor always lands on one partition.
type Client struct {
	opts Options
	log  *zap.Logger
	dial func(ctx context.Context, network, address string) (*kafka.Conn, error)

	mu     sync.Mutex
	writer *kafka.Writer
}

func New(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		opts: opts,
		log:  opts.Logger.With(zap.Strings("brokers", opts.Brokers)),
		dial: kafka.DialContext,
	}
}

// TopicName maps an MQTT style topic to a legal Kafka topic name.
func TopicName(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// RequiredAcks maps the publisher QoS onto Kafka acknowledgments.
func RequiredAcks(qos byte) kafka.RequiredAcks {
	if qos == 0 {
		return kafka.RequireNone
	}
	return kafka.RequireOne
}

// Connect verifies a broker is reachable, then prepares the writer.
func (c *Client) Connect(ctx context.Context) error {
	if len(c.opts.Brokers) == 0 {
		return errors.New("kafka connect: no brokers configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	conn, err := c.dial(dialCtx, "tcp", c.opts.Brokers[0])
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			err = publisher.ErrConnectTimeout
		}
		return fmt.Errorf("kafka connect %s: %w", c.opts.Brokers[0], err)
	}
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		c.writer = &kafka.Writer{
			Addr:                   kafka.TCP(c.opts.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           RequiredAcks(c.opts.QoS),
			WriteTimeout:           c.opts.WriteTimeout,
			AllowAutoTopicCreation: true,
		}
	}
	c.log.Info("Kafka writer ready", zap.Int("required_acks", int(RequiredAcks(c.opts.QoS))))
	return nil
}

func (c *Client) Publish(ctx context.Context, topic, key string, payload []byte) error {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		return publisher.ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	err := w.WriteMessages(writeCtx, kafka.Message{
		Topic: TopicName(topic),
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil && ctx.Err() == nil && errors.Is(writeCtx.Err(), context.DeadlineExceeded) {
		return publisher.ErrAckTimeout
	}
	return err
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return
	}
	if err := c.writer.Close(); err != nil {
		c.log.Warn("Failed to close kafka writer", zap.Error(err))
	}
	c.writer = nil
}
