package desim

import (
	"container/heap"
	"math"
	"sort"
	"time"
)

// calendarEntry is a single (time, insertion sequence, payload) tuple held
// by the calendar queue. seq is the deterministic tiebreaker of I2/P2.
type calendarEntry struct {
	t       SimTime
	seq     uint64
	payload any
}

// entryLess orders two entries by (time, seq), the calendar queue's total
// order (I2).
func entryLess(a, b calendarEntry) bool {
	if c := a.t.Compare(b.t); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// overflowHeap is a container/heap min-heap of calendarEntry, ordered by
// entryLess; it catches any entry whose computed round does not match the
// round currently occupying its home bucket (§4.B step 2).
type overflowHeap []calendarEntry

func (h overflowHeap) Len() int            { return len(h) }
func (h overflowHeap) Less(i, j int) bool  { return entryLess(h[i], h[j]) }
func (h overflowHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *overflowHeap) Push(x any)         { *h = append(*h, x.(calendarEntry)) }
func (h *overflowHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// bucket is one slot of the calendar queue's ring: an insertion-ordered,
// time-sorted sequence of entries that all share the same round (§4.B
// "Shape"). round is meaningful only while entries is non-empty.
type bucket struct {
	entries []calendarEntry
	round   int64
}

// CalendarQueue is the event scheduler of §4.B: a ring of N buckets plus an
// overflow heap, providing amortized O(1) Insert/ExtractMin when event
// times are near-uniformly distributed within a horizon of a few
// N*bucketSpan, and O(N + log K) worst case (K = overflow size) otherwise.
//
// Bucket/round arithmetic is computed relative to a fixed epoch (Zero, the
// start of a run) using time.Duration-width math. This is exact for any
// realistic scheduling horizon; it degrades gracefully only in the
// pathological case where a simulation's total elapsed time exceeds
// time.Duration's representable range: the offset saturates, so every such
// entry maps to the same bucket and round and is kept in that one bucket's
// sorted sequence (still correct, no longer amortized O(1)). Correctness of extraction order (P1, P2) never
// depends on this arithmetic: entries are always compared by their exact
// SimTime and insertion sequence, never by the derived bucket/round alone.
type CalendarQueue struct {
	buckets   []bucket
	n         int64
	span      time.Duration
	overflow  overflowHeap
	headIdx   int64
	headRound int64
	floor     SimTime // monotonicity floor: the latest time ever extracted
	nextSeq   uint64
	length    int
}

// NewCalendarQueue constructs a calendar queue with n buckets, each
// spanning span of simulated time. Panics if n <= 0 or span <= 0, matching
// the "must be > 0" requirement of §4.B "Parameters" — these are
// construction-time configuration errors, not runtime faults.
func NewCalendarQueue(n int, span time.Duration) *CalendarQueue {
	if n <= 0 {
		panic("desim: calendar queue bucket count must be positive")
	}
	if span <= 0 {
		panic("desim: calendar queue bucket span must be positive")
	}
	return &CalendarQueue{
		buckets: make([]bucket, n),
		n:       int64(n),
		span:    span,
	}
}

// tick computes the bucket index and round for t, relative to the queue's
// fixed epoch (Zero).
func (q *CalendarQueue) tick(t SimTime) (idx int64, round int64) {
	d := t.Sub(Zero)
	if d < 0 {
		d = 0
	}
	ticks := int64(d) / int64(q.span)
	idx = ticks % q.n
	round = ticks / q.n
	return
}

// Len returns the number of entries currently held.
func (q *CalendarQueue) Len() int { return q.length }

// IsEmpty reports whether the queue holds no entries.
func (q *CalendarQueue) IsEmpty() bool { return q.length == 0 }

// Insert adds an entry for t, returning its insertion sequence number. It
// fails with ErrTimeMonotonicityViolation if t is strictly before the
// latest time ever extracted (§4.B "Edge cases"); inserting at exactly the
// current floor is legal and will extract after all already-enqueued
// entries at that instant (I2).
func (q *CalendarQueue) Insert(t SimTime, payload any) (uint64, error) {
	if t.Before(q.floor) {
		return 0, ErrTimeMonotonicityViolation
	}
	seq := q.nextSeq
	q.nextSeq++
	e := calendarEntry{t: t, seq: seq, payload: payload}

	idx, round := q.tick(t)
	b := &q.buckets[idx]
	switch {
	case len(b.entries) == 0:
		b.round = round
		b.entries = append(b.entries, e)
	case b.round == round:
		pos := sort.Search(len(b.entries), func(i int) bool { return entryLess(e, b.entries[i]) })
		b.entries = append(b.entries, calendarEntry{})
		copy(b.entries[pos+1:], b.entries[pos:])
		b.entries[pos] = e
	default:
		heap.Push(&q.overflow, e)
	}
	q.length++
	return seq, nil
}

// PeekMin returns the earliest entry without removing it. ok is false iff
// the queue is empty.
func (q *CalendarQueue) PeekMin() (t SimTime, payload any, ok bool) {
	var best calendarEntry
	have := false
	for i := range q.buckets {
		if bk := &q.buckets[i]; len(bk.entries) > 0 {
			if c := bk.entries[0]; !have || entryLess(c, best) {
				best, have = c, true
			}
		}
	}
	if len(q.overflow) > 0 {
		if c := q.overflow[0]; !have || entryLess(c, best) {
			best, have = c, true
		}
	}
	if !have {
		return SimTime{}, nil, false
	}
	return best.t, best.payload, true
}

// ExtractMin removes and returns the earliest (time, payload) pair,
// breaking ties on insertion sequence (I2, P2). Fails with ErrQueueEmpty
// if the queue holds no entries.
func (q *CalendarQueue) ExtractMin() (SimTime, any, error) {
	if q.length == 0 {
		return SimTime{}, nil, ErrQueueEmpty
	}
	for {
		for i := int64(0); i < q.n; i++ {
			idx := (q.headIdx + i) % q.n
			b := &q.buckets[idx]
			if len(b.entries) == 0 || b.round != q.headRound {
				continue
			}
			q.headIdx = idx
			if len(q.overflow) > 0 {
				top := q.overflow[0]
				if _, topRound := q.tick(top.t); topRound == q.headRound && entryLess(top, b.entries[0]) {
					e := heap.Pop(&q.overflow).(calendarEntry)
					q.finishExtract(e.t)
					return e.t, e.payload, nil
				}
			}
			e := b.entries[0]
			b.entries = b.entries[1:]
			q.finishExtract(e.t)
			return e.t, e.payload, nil
		}

		if len(q.overflow) > 0 {
			if top := q.overflow[0]; func() bool { _, r := q.tick(top.t); return r == q.headRound }() {
				e := heap.Pop(&q.overflow).(calendarEntry)
				q.finishExtract(e.t)
				return e.t, e.payload, nil
			}
		}

		// no bucket or overflow entry matches the current round: advance to
		// the minimum round present anywhere, and rescan (§4.B "Extraction
		// algorithm" step 3).
		minRound := int64(math.MaxInt64)
		found := false
		for i := range q.buckets {
			if bk := &q.buckets[i]; len(bk.entries) > 0 && bk.round < minRound {
				minRound, found = bk.round, true
			}
		}
		if len(q.overflow) > 0 {
			if _, r := q.tick(q.overflow[0].t); !found || r < minRound {
				minRound, found = r, true
			}
		}
		if !found {
			// unreachable: q.length > 0 guarantees some bucket or overflow
			// entry exists.
			return SimTime{}, nil, ErrQueueEmpty
		}
		q.headRound = minRound
		q.headIdx = 0
	}
}

func (q *CalendarQueue) finishExtract(t SimTime) {
	q.length--
	q.floor = t
}
