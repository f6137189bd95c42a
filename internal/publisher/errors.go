package publisher

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when publishing before Connect succeeded.
	ErrNotConnected = errors.New("publisher: not connected")
	// ErrAckTimeout is returned by transports when the broker did not
	// acknowledge a message within the configured wait.
	ErrAckTimeout = errors.New("publisher: acknowledgment timed out")
	// ErrConnectTimeout is returned by transports when a single connect
	// attempt exceeded its timeout.
	ErrConnectTimeout = errors.New("publisher: connect timed out")
)

// ConnectionError reports that no broker session could be established.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("broker connection failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PublishError reports that a single reading could not be sent.
type PublishError struct {
	SensorID string
	Topic    string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s to %s: %v", e.SensorID, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
