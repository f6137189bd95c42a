package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reading is a single timestamped sensor measurement as it travels on the bus.
// Timestamp is seconds since the Unix epoch with a fractional part.
type Reading struct {
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

// NewReading stamps value for sensorID with t.
func NewReading(sensorID string, value float64, t time.Time) Reading {
	return Reading{
		SensorID:  sensorID,
		Value:     value,
		Timestamp: EpochSeconds(t),
	}
}

// EpochSeconds converts t to fractional seconds since the epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Time returns the reading timestamp as a time.Time.
func (r Reading) Time() time.Time {
	return time.Unix(0, int64(r.Timestamp*float64(time.Second)))
}

// ClassTag extracts the class tag from an identifier of the form
// sensor-<tag>-<index>. It returns "" for identifiers that do not match.
func (r Reading) ClassTag() string {
	parts := strings.Split(r.SensorID, "-")
	if len(parts) != 3 || parts[0] != "sensor" {
		return ""
	}
	return parts[1]
}

// Marshal encodes the reading as the flat JSON payload published on the bus.
// The key order is fixed, so equal readings always encode to equal bytes.
func (r Reading) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ParseReading decodes a bus payload. All three keys must be present.
func ParseReading(payload []byte) (Reading, error) {
	var raw struct {
		SensorID  *string  `json:"sensor_id"`
		Value     *float64 `json:"value"`
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	switch {
	case raw.SensorID == nil:
		return Reading{}, errors.New("decode reading: missing sensor_id")
	case raw.Value == nil:
		return Reading{}, errors.New("decode reading: missing value")
	case raw.Timestamp == nil:
		return Reading{}, errors.New("decode reading: missing timestamp")
	}
	return Reading{SensorID: *raw.SensorID, Value: *raw.Value, Timestamp: *raw.Timestamp}, nil
}
