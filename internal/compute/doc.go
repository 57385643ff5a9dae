// Package compute turns a source Batch into a Result for one production
// line. It runs the analytics core over the batch (bounds per monitored
// field, extreme regions, predictive indicators, chart domain) and keeps
// per-line refresh history so uptime can be reported across cycles.
package compute
