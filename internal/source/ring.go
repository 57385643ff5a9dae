package source

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/machinepulse/machinepulse/pkg/types"
)

// ring keeps the most recent readings of a streaming source and assigns
// each appended reading the next sequence index.
type ring struct {
	mu    sync.Mutex
	size  int
	next  int
	items []types.Reading
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 1
	}
	return &ring{size: size, items: make([]types.Reading, 0, size)}
}

// add appends a reading built from values and failure, evicting the oldest
// when full. Non-finite values are dropped.
func (r *ring) add(values map[types.FieldName]float64, failure bool) {
	for f, v := range values {
		if !finite(v) {
			delete(values, f)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= r.size {
		r.items = append(r.items[:0], r.items[1:]...)
	}
	r.items = append(r.items, types.Reading{Index: r.next, Values: values, HasFailure: failure})
	r.next++
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// streamMessage is the JSON payload of one reading on a topic. Producer
// indices are ignored; streaming sources number readings in arrival order.
type streamMessage struct {
	Values     map[types.FieldName]float64 `json:"values"`
	HasFailure bool                        `json:"has_failure"`
}

// addJSON decodes one streamMessage and appends it.
func (r *ring) addJSON(data []byte) error {
	var m streamMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode reading: %w", err)
	}
	if m.Values == nil {
		m.Values = map[types.FieldName]float64{}
	}
	r.add(m.Values, m.HasFailure)
	return nil
}

// snapshot returns a copy of the buffered readings, oldest first.
func (r *ring) snapshot() []types.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Reading, len(r.items))
	copy(out, r.items)
	return out
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
