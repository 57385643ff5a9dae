// Package monitor drives the refresh cycle: it owns one reading source per
// configured line, fetches every line on each tick, analyses the batches
// and fans the results out to the store, the alert engine and metrics.
// Configuration reloads are applied in place.
package monitor
