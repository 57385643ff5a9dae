// Package analytics derives monitoring statistics from a sequence of sensor
// readings.
//
// bounds.go provides ComputeFieldBounds, the population mean ± 2σ envelope
// and observed extrema of one field. Zero values are treated as missing and
// dropped before any statistic is taken.
//
// regions.go provides FindExtremeRegions, which scans the sequence once and
// returns the maximal runs of positions where any monitored field lies
// outside its bounds.
//
// indicators.go provides EstimateIndicators: failure probability over the
// recent window, a Low/Medium/High risk level from the latest reading, and a
// time-to-maintenance estimate from mean absolute successive differences.
//
// Every function is pure. Results are freshly allocated on each call and
// never alias the input, so callers may share them with renderers freely.
// Degenerate input (empty sequence, all values missing) yields documented
// zero values; invalid arguments yield errors matching the sentinels in
// errors.go.
package analytics
