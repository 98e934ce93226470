package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensor = "sensor"
	MeasurementSystem = "system"
)

// SensorPoint builds the point for one sensor reading. Invalid readings carry
// valid=false and no value field.
//
// Example line protocol:
//
//	sensor,host=esp01,sensor=temp,type=temperature,unit=°C value=21.5,valid=true 1700000000000000000
func SensorPoint(host, name, typ, unit string, value float64, valid bool, ts time.Time) *write.Point {
	tags := map[string]string{
		"host":   host,
		"sensor": name,
	}
	if typ != "" {
		tags["type"] = typ
	}
	if unit != "" {
		tags["unit"] = unit
	}
	fields := map[string]interface{}{"valid": valid}
	if valid {
		fields["value"] = value
	}
	return write.NewPoint(MeasurementSensor, tags, fields, ts)
}

// SystemPoint builds the point for runtime statistics.
func SystemPoint(host string, freeHeap uint64, uptime time.Duration, loopsPerSecond float64, ts time.Time) *write.Point {
	return write.NewPoint(MeasurementSystem,
		map[string]string{"host": host},
		map[string]interface{}{
			"free_heap":  int64(freeHeap), //nolint:gosec // heap sizes fit in int64
			"uptime_s":   int64(uptime / time.Second),
			"loops_rate": loopsPerSecond,
		},
		ts)
}

// WriteSensor queues one sensor reading.
func (c *Client) WriteSensor(name, typ, unit string, value float64, valid bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(SensorPoint(c.host, name, typ, unit, value, valid, ts))
}

// WriteSystem queues runtime statistics.
func (c *Client) WriteSystem(freeHeap uint64, uptime time.Duration, loopsPerSecond float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(SystemPoint(c.host, freeHeap, uptime, loopsPerSecond, ts))
}

// WritePoint queues a custom point. The host tag is added when missing.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	p := write.NewPoint(measurement, tags, fields, ts)
	if _, ok := tags["host"]; !ok {
		p.AddTag("host", c.host)
	}
	c.writeAPI.WritePoint(p)
}
