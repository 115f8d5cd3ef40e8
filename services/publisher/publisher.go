package publisher

import (
	"encoding/json"
	"time"
)

// MeasurementField is the stream entry field holding a measurement
const MeasurementField = "measurement"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to a stream
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// Measurement is one written sheet row as seen by downstream consumers
type Measurement struct {
	RunID  string         `json:"run_id"`
	Job    string         `json:"job"`
	Sheet  string         `json:"sheet"`
	Key    string         `json:"key"`
	Values map[string]any `json:"values"`
	At     time.Time      `json:"at"`
}

// Encode returns the JSON form of m
func (m Measurement) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// PublishMeasurement encodes m and publishes it under MeasurementField
func PublishMeasurement(p Publisher, m Measurement) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return p.Publish(MeasurementField, data)
}
