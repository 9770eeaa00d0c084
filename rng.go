package desim

import (
	"math/rand/v2"
	"time"
)

// RNG is the simulation's single deterministic random source (§4.A). It
// wraps math/rand/v2's PCG generator, seeded explicitly from a [2]uint64
// seed; no method on RNG ever consults wall-clock time (I6), and the only
// mutators are the runtime loop (between handler invocations, for channel
// jitter) and explicit calls made from within a handler.
type RNG struct {
	r *rand.Rand
}

// NewRNG constructs an RNG seeded deterministically from seed. Two RNGs
// constructed with the same seed and subjected to the same sequence of
// calls produce an identical sequence of outputs, regardless of wall-clock
// time (I6).
func NewRNG(seed [2]uint64) *RNG {
	return &RNG{r: rand.New(rand.NewPCG(seed[0], seed[1]))}
}

// Uint64 returns the next raw 64-bit sample.
func (g *RNG) Uint64() uint64 { return g.r.Uint64() }

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// IntN returns a pseudo-random number in [0, n). Panics if n <= 0.
func (g *RNG) IntN(n int) int { return g.r.IntN(n) }

// Int64N returns a pseudo-random number in [0, n). Panics if n <= 0.
func (g *RNG) Int64N(n int64) int64 { return g.r.Int64N(n) }

// DurationRange returns a pseudo-random duration uniformly distributed in
// [lo, hi]. If hi <= lo, lo is returned without consuming entropy.
func (g *RNG) DurationRange(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int64(hi - lo)
	return lo + time.Duration(g.r.Int64N(span+1))
}

// Jitter returns a pseudo-random duration uniformly distributed in
// [-magnitude, +magnitude]. Used by Channel to sample propagation jitter
// (§4.E); callers clamp the resulting propagation delay to >= 0 (§9 Open
// Questions).
func (g *RNG) Jitter(magnitude time.Duration) time.Duration {
	if magnitude <= 0 {
		return 0
	}
	span := int64(2*magnitude) + 1
	return time.Duration(g.r.Int64N(span)) - magnitude
}
