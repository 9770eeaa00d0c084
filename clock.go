package desim

import (
	"fmt"
	"math"
	"time"
)

const nanosPerSecond = int64(time.Second)

// SimTime is simulated time elapsed since the start of a run: a
// non-negative, monotone quantity (I1) represented with nanosecond
// resolution over a total range of at least 10^4 simulated years, well
// beyond the ~292 years representable by a bare time.Duration. It is
// stored as whole seconds plus a nanosecond remainder so that comparison
// and ordering stay exact over that full range. The calendar queue's
// round/bucket arithmetic (calendar.go) does not use this split form: it
// works on a saturating time.Duration offset from Zero.
type SimTime struct {
	sec  int64
	nsec int32 // invariant: 0 <= nsec < nanosPerSecond
}

// Zero is the simulated instant at which a run begins.
var Zero SimTime

// NewSimTime constructs a SimTime from a duration since the start of a run.
// Negative durations are rejected by the calendar queue, not here (a
// negative SimTime is meaningful only as an intermediate of subtraction).
func NewSimTime(d time.Duration) SimTime {
	sec := int64(d) / nanosPerSecond
	nsec := int64(d) % nanosPerSecond
	if nsec < 0 {
		nsec += nanosPerSecond
		sec--
	}
	return SimTime{sec: sec, nsec: int32(nsec)}
}

// Duration returns t as a time.Duration, saturating at
// math.MaxInt64/math.MinInt64 nanoseconds if t lies outside the range a
// time.Duration can represent. Use this only where ~292 years of range is
// known to be sufficient (e.g. formatting for a human); prefer the SimTime
// arithmetic methods for anything that must hold for the full 10^4-year
// range requirement.
func (t SimTime) Duration() time.Duration {
	const maxSec = math.MaxInt64 / nanosPerSecond
	if t.sec > maxSec {
		return math.MaxInt64
	}
	if t.sec < -maxSec {
		return math.MinInt64
	}
	return time.Duration(t.sec*nanosPerSecond + int64(t.nsec))
}

// Seconds returns the whole-second component of t.
func (t SimTime) Seconds() int64 { return t.sec }

// Nanos returns the sub-second nanosecond remainder of t, in [0, 1e9).
func (t SimTime) Nanos() int32 { return t.nsec }

// Add returns t+d, reporting ErrTimeOverflow if the result overflows the
// int64 seconds component.
func (t SimTime) Add(d time.Duration) (SimTime, error) {
	dsec := int64(d) / nanosPerSecond
	dnsec := int64(d) % nanosPerSecond
	sec := t.sec + dsec
	if (d > 0 && sec < t.sec) || (d < 0 && sec > t.sec) {
		return SimTime{}, ErrTimeOverflow
	}
	nsec := int64(t.nsec) + dnsec
	if nsec >= nanosPerSecond {
		nsec -= nanosPerSecond
		sec++
	} else if nsec < 0 {
		nsec += nanosPerSecond
		sec--
	}
	return SimTime{sec: sec, nsec: int32(nsec)}, nil
}

// MustAdd is Add, panicking on overflow. Used in contexts where the caller
// has already bounds-checked (e.g. arithmetic against Zero with a
// configuration-validated delay).
func (t SimTime) MustAdd(d time.Duration) SimTime {
	r, err := t.Add(d)
	if err != nil {
		panic(err)
	}
	return r
}

// Sub returns t-u as a time.Duration, saturating on overflow rather than
// erroring: it is used for diagnostics and metrics, not scheduling
// decisions.
func (t SimTime) Sub(u SimTime) time.Duration {
	sec := t.sec - u.sec
	nsec := int64(t.nsec) - int64(u.nsec)
	const maxSec = math.MaxInt64 / nanosPerSecond
	if sec > maxSec {
		return math.MaxInt64
	}
	if sec < -maxSec {
		return math.MinInt64
	}
	return time.Duration(sec*nanosPerSecond + nsec)
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after u.
func (t SimTime) Compare(u SimTime) int {
	switch {
	case t.sec < u.sec:
		return -1
	case t.sec > u.sec:
		return 1
	case t.nsec < u.nsec:
		return -1
	case t.nsec > u.nsec:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly before u.
func (t SimTime) Before(u SimTime) bool { return t.Compare(u) < 0 }

// After reports whether t is strictly after u.
func (t SimTime) After(u SimTime) bool { return t.Compare(u) > 0 }

func (t SimTime) String() string {
	return fmt.Sprintf("%d.%09ds", t.sec, t.nsec)
}

// WireTime is the on-the-wire representation of §6: 64-bit nanoseconds
// since sim start when that fits losslessly, else a tagged 128-bit
// extended form (seconds, nanos).
type WireTime struct {
	Extended bool  `json:"extended,omitempty"`
	Nanos    int64 `json:"nanos,omitempty"`
	Sec      int64 `json:"sec,omitempty"`
	Nsec     int32 `json:"nsec,omitempty"`
}

// MarshalWire converts t to its wire representation, choosing the compact
// 64-bit form when it round-trips exactly.
func (t SimTime) MarshalWire() WireTime {
	const maxSec = math.MaxInt64 / nanosPerSecond
	if t.sec <= maxSec && t.sec >= -maxSec {
		return WireTime{Nanos: t.sec*nanosPerSecond + int64(t.nsec)}
	}
	return WireTime{Extended: true, Sec: t.sec, Nsec: t.nsec}
}

// UnmarshalWire is the inverse of MarshalWire.
func UnmarshalWire(w WireTime) SimTime {
	if w.Extended {
		return SimTime{sec: w.Sec, nsec: w.Nsec}
	}
	return NewSimTime(time.Duration(w.Nanos))
}
