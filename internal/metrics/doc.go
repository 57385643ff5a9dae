// Package metrics exposes per-line analytics as Prometheus metrics on a
// dedicated registry.
package metrics
