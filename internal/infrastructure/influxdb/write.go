package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the node.
const (
	measurementSensor  = "sensor_readings"
	measurementOutcome = "access_outcomes"
)

// RecordMeasurement stores one classified sensor sample. kind is
// "ultrasonic" or "magnetometer"; value is the distance or the squared
// magnitude deviation compared against the threshold.
func (c *Client) RecordMeasurement(kind string, value float64, detected bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(measurementPoint(c.site, kind, value, detected, time.Now()))
}

// RecordOutcome stores one appended audit event. user is the credential
// alias, or the placeholder used for sensor-originated events.
func (c *Client) RecordOutcome(event, user string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(outcomePoint(c.site, event, user, time.Now()))
}

func measurementPoint(site, kind string, value float64, detected bool, at time.Time) *write.Point {
	return write.NewPoint(
		measurementSensor,
		map[string]string{
			"site": site,
			"kind": kind,
		},
		map[string]any{
			"value":    value,
			"detected": detected,
		},
		at,
	)
}

func outcomePoint(site, event, user string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementOutcome,
		map[string]string{
			"site":  site,
			"event": event,
		},
		map[string]any{
			"user":  user,
			"count": 1,
		},
		at,
	)
}
