// Package source provides the reading sources that feed each monitored line.
// Every source returns a Batch holding the current ordered reading sequence
// for its line; the compute engine analyses that sequence from scratch on
// every refresh.
//
// Implemented sources: CSV file (csv.go), CSV over HTTP (http.go),
// CSV object in S3-compatible storage (s3.go), Prometheus exposition scrape
// (prometheus.go), Kafka topic (kafka.go), MQTT subscription (mqtt.go) and a
// seeded synthetic generator (synthetic.go). Factory: New(config.Line).
//
// Streaming sources (prometheus, kafka, mqtt) keep the most recent max_readings in
// a ring buffer and assign strictly increasing indices as readings arrive.
// Authentication for HTTP-based sources is handled by the shared
// authRoundTripper in base.go.
package source
