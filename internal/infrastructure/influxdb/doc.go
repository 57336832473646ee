// Package influxdb persists device telemetry history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. The hub records a
// latency and signal-strength point for every accepted telemetry report,
// so dashboards can chart link quality over time. Writes are batched and
// non-blocking; batch errors surface through an error callback rather
// than the write path, which keeps the relay's handlers from ever
// waiting on the sink.
//
// The integration is optional. When disabled in config the hub simply
// never constructs a client.
package influxdb
