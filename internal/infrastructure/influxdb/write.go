package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric records a single device measurement. The write is
// non-blocking; points are batched and sent asynchronously.
//
//	client.WriteDeviceMetric("node-proxmox", "latency_ms", 42)
//	client.WriteDeviceMetric("node-proxmox", "signal_strength", 70)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePresence records an online/offline transition so availability
// history can be charted alongside telemetry.
func (c *Client) WritePresence(deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if online {
		value = 1.0
	}

	point := write.NewPoint(
		"device_presence",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields. Tags should stay low-cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
