package simulation

import (
	"math/rand/v2"
)

// NormalSource yields standard normal variates
type NormalSource interface {
	NormFloat64() float64
}

// StreamFactory returns the randomness stream for a path index. Distinct
// indices must receive independent streams; the runner calls it once per
// path, possibly from several goroutines.
type StreamFactory func(path int) NormalSource

// SeededStreams returns reproducible PCG streams keyed by (seed, path index).
// The same seed yields the same paths regardless of how the work is split
// across workers.
func SeededStreams(seed uint64) StreamFactory {
	return func(path int) NormalSource {
		return rand.New(rand.NewPCG(seed, uint64(path)))
	}
}

// RandomStreams returns non-reproducible streams seeded from the runtime's
// global generator.
func RandomStreams() StreamFactory {
	return func(int) NormalSource {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// SingleStream hands the same source to every path. It is only safe with a
// sequential runner and exists for injecting scripted draws in tests and
// tools.
func SingleStream(src NormalSource) StreamFactory {
	return func(int) NormalSource { return src }
}
