// Package ws streams the live snapshot to browser dashboards over
// WebSocket. Every connected client receives the snapshot on connect and
// again on each broadcast tick.
package ws
