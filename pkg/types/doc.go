// Package types defines shared Go types used by the analytics core and the
// host process. These are the canonical in-memory representations of sensor
// readings and the values derived from them, separate from any JSON wire
// format served by the API.
package types
