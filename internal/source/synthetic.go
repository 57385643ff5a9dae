package source

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

// Generator shape. Temperatures are in kelvin, wear in minutes.
const (
	defaultSyntheticCount = 500

	baseAirTemp     = 300.0
	processOffset   = 10.0
	driftAmplitude  = 2.0
	driftPeriod     = 200.0
	airNoise        = 0.4
	processNoise    = 0.3
	spikeChance     = 0.01
	spikeMagnitude  = 6.0
	wearPerReading  = 0.5
	wearReplaceAt   = 240.0
	baseFailureRate = 0.005
	wornFailureRate = 0.05
)

// syntheticSource generates a deterministic sequence per refresh. Each Fetch
// advances the generation counter, so successive refreshes differ while a
// given (seed, generation) pair always yields the same data.
type syntheticSource struct {
	line  config.Line
	count int

	mu         sync.Mutex
	generation int64
}

func newSyntheticSource(line config.Line) *syntheticSource {
	n := line.Count
	if n <= 0 {
		n = defaultSyntheticCount
	}
	return &syntheticSource{line: line, count: n}
}

func (s *syntheticSource) Fetch(_ context.Context) (*Batch, error) {
	s.mu.Lock()
	gen := s.generation
	s.generation++
	s.mu.Unlock()

	b := newBatch(s.line)
	b.Readings = Generate(s.line.Seed+gen, s.count)
	return b, nil
}

// Generate returns n synthetic readings for seed: a slow sinusoidal drift
// with Gaussian noise, occasional temperature spikes, linearly increasing
// tool wear that resets on replacement, and failures that become more
// likely as the tool wears.
func Generate(seed int64, n int) []types.Reading {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // not crypto
	phase := rng.Float64() * 2 * math.Pi
	wear := rng.Float64() * wearReplaceAt

	out := make([]types.Reading, n)
	for i := 0; i < n; i++ {
		drift := driftAmplitude * math.Sin(phase+2*math.Pi*float64(i)/driftPeriod)
		air := baseAirTemp + drift + rng.NormFloat64()*airNoise
		spiked := rng.Float64() < spikeChance
		if spiked {
			air += spikeMagnitude
		}
		process := air + processOffset + rng.NormFloat64()*processNoise

		wear += wearPerReading
		if wear >= wearReplaceAt {
			wear = 0
		}

		p := baseFailureRate
		if wear > wearReplaceAt*0.8 || spiked {
			p = wornFailureRate
		}

		out[i] = types.Reading{
			Index: i,
			Values: map[types.FieldName]float64{
				types.FieldAirTemp:     air,
				types.FieldProcessTemp: process,
				types.FieldWear:        wear,
			},
			HasFailure: rng.Float64() < p,
		}
	}
	return out
}
