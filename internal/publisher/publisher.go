package publisher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sensorsim/internal/models"
	"go.uber.org/zap"
)

// DefaultTopic is the channel every reading is published under unless a
// template is configured.
const DefaultTopic = "sensors/data"

// Transport is a broker session able to deliver raw payloads.
// Implementations must bound Connect and Publish by their own timeouts.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close()
}

type Options struct {
	// Topic may contain {tag} and {sensor_id} placeholders.
	Topic  string
	Retry  RetryPolicy
	Logger *zap.Logger
}

// Adapter owns a Transport: it connects with bounded retries, serializes
// readings and reports failures as typed errors.
type Adapter struct {
	transport Transport
	topic     string
	retry     RetryPolicy
	log       *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	connected bool
	closed    bool
}

func New(t Transport, opts Options) *Adapter {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Adapter{
		transport: t,
		topic:     opts.Topic,
		retry:     opts.Retry,
		log:       opts.Logger,
		sleep:     sleepContext,
	}
}

// Connect tries the transport up to Retry.Attempts times, backing off
// between attempts. A cancelled ctx stops the retry loop early.
func (a *Adapter) Connect(ctx context.Context) error {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= a.retry.Attempts; attempt++ {
		if attempt > 1 {
			delay := a.retry.Delay(attempt - 1)
			a.log.Warn("Broker connect failed, retrying",
				zap.Int("attempt", attempt-1),
				zap.Int("max_attempts", a.retry.Attempts),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := a.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		err := a.transport.Connect(ctx)
		if err == nil {
			a.mu.Lock()
			a.connected = true
			a.closed = false
			a.mu.Unlock()
			a.log.Info("Connected to broker", zap.Int("attempt", attempt), zap.String("topic", a.topic))
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return &ConnectionError{Attempts: attempts, Err: lastErr}
}

// Publish serializes r and sends it as one message. It never blocks longer
// than the transport's acknowledgment timeout.
func (a *Adapter) Publish(ctx context.Context, r models.Reading) error {
	topic := a.TopicFor(r)

	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	if !connected {
		return &PublishError{SensorID: r.SensorID, Topic: topic, Err: ErrNotConnected}
	}

	payload, err := r.Marshal()
	if err != nil {
		return &PublishError{SensorID: r.SensorID, Topic: topic, Err: fmt.Errorf("serialize: %w", err)}
	}
	if err := a.transport.Publish(ctx, topic, r.SensorID, payload); err != nil {
		return &PublishError{SensorID: r.SensorID, Topic: topic, Err: err}
	}
	a.log.Debug("Published reading", zap.String("topic", topic), zap.ByteString("payload", payload))
	return nil
}

// TopicFor resolves the configured topic template for r.
func (a *Adapter) TopicFor(r models.Reading) string {
	if !strings.Contains(a.topic, "{") {
		return a.topic
	}
	return strings.NewReplacer("{tag}", r.ClassTag(), "{sensor_id}", r.SensorID).Replace(a.topic)
}

// Close releases the transport. Calling it more than once is harmless.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.connected = false
	a.transport.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
