// Package store keeps the latest analysed Result for every production line
// in memory, with TTL eviction for lines that stop refreshing.
package store
