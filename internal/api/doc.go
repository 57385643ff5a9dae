// Package api implements the read-only REST API served under /api/v1/.
// Handlers read analysed line results from the store and active alerts from
// the alert engine, and return JSON. One write endpoint accepts an uploaded
// CSV for one-shot analysis.
package api
