package desim

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCalendarQueue_EmptyExtract(t *testing.T) {
	q := NewCalendarQueue(8, time.Millisecond)
	_, _, err := q.ExtractMin()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestCalendarQueue_MonotonicityViolation(t *testing.T) {
	q := NewCalendarQueue(8, time.Millisecond)
	_, err := q.Insert(NewSimTime(10*time.Millisecond), "a")
	require.NoError(t, err)
	_, _, err = q.ExtractMin()
	require.NoError(t, err)
	_, err = q.Insert(NewSimTime(5*time.Millisecond), "late")
	require.ErrorIs(t, err, ErrTimeMonotonicityViolation)
}

func TestCalendarQueue_InsertAtFloorIsLegal(t *testing.T) {
	q := NewCalendarQueue(8, time.Millisecond)
	_, err := q.Insert(Zero, "a")
	require.NoError(t, err)
	tm, _, err := q.ExtractMin()
	require.NoError(t, err)
	require.Equal(t, Zero, tm)
	_, err = q.Insert(Zero, "b")
	require.NoError(t, err)
}

// TestCalendarQueue_P1Ordering checks P1: extraction times are
// non-decreasing.
func TestCalendarQueue_P1Ordering(t *testing.T) {
	q := NewCalendarQueue(16, time.Millisecond)
	r := rand.New(rand.NewPCG(1, 2))
	const count = 5000
	for i := 0; i < count; i++ {
		d := time.Duration(r.Int64N(int64(200 * time.Millisecond)))
		_, err := q.Insert(NewSimTime(d), i)
		require.NoError(t, err)
	}
	var prev SimTime
	for i := 0; i < count; i++ {
		tm, _, err := q.ExtractMin()
		require.NoError(t, err)
		require.False(t, tm.Before(prev))
		prev = tm
	}
	require.True(t, q.IsEmpty())
}

// TestCalendarQueue_P2SameTimeFIFO checks P2: entries enqueued at an
// identical time, in call order, extract in that same order.
func TestCalendarQueue_P2SameTimeFIFO(t *testing.T) {
	q := NewCalendarQueue(4, time.Millisecond)
	at := NewSimTime(50 * time.Millisecond)
	for i := 0; i < 20; i++ {
		_, err := q.Insert(at, i)
		require.NoError(t, err)
	}
	for i := 0; i < 20; i++ {
		tm, payload, err := q.ExtractMin()
		require.NoError(t, err)
		require.Equal(t, at, tm)
		require.Equal(t, i, payload)
	}
}

// TestCalendarQueue_DegenerateN1 checks the N=1 boundary: the queue
// degenerates to a single sorted list but must still satisfy P1/P2.
func TestCalendarQueue_DegenerateN1(t *testing.T) {
	q := NewCalendarQueue(1, time.Millisecond)
	times := []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, 10 * time.Millisecond}
	for i, d := range times {
		_, err := q.Insert(NewSimTime(d), i)
		require.NoError(t, err)
	}
	want := []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	wantPayload := []int{1, 3, 2, 0}
	for i := range want {
		tm, payload, err := q.ExtractMin()
		require.NoError(t, err)
		require.Equal(t, NewSimTime(want[i]), tm)
		require.Equal(t, wantPayload[i], payload)
	}
}

func TestCalendarQueue_PeekDoesNotMutate(t *testing.T) {
	q := NewCalendarQueue(8, time.Millisecond)
	_, err := q.Insert(NewSimTime(5*time.Millisecond), "only")
	require.NoError(t, err)
	tm, payload, ok := q.PeekMin()
	require.True(t, ok)
	require.Equal(t, NewSimTime(5*time.Millisecond), tm)
	require.Equal(t, "only", payload)
	require.Equal(t, 1, q.Len())
	tm2, payload2, err := q.ExtractMin()
	require.NoError(t, err)
	require.Equal(t, tm, tm2)
	require.Equal(t, payload, payload2)
}

// TestCalendarQueue_AmortizedExtraction is grounded on S6: a large batch of
// near-uniformly distributed insertions must extract in non-decreasing time
// order with no entry lost. It does not measure or compare extraction time.
func TestCalendarQueue_AmortizedExtraction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping amortized-performance sanity check in short mode")
	}
	const (
		n    = 1024
		span = 5 * time.Millisecond
	)
	q := NewCalendarQueue(n, span)
	r := rand.New(rand.NewPCG(0xdeadbeef, 0))
	const count = 200000
	horizon := int64(2 * n * int(span))
	for i := 0; i < count; i++ {
		d := time.Duration(r.Int64N(horizon))
		_, err := q.Insert(NewSimTime(d), i)
		require.NoError(t, err)
	}
	var prev SimTime
	extracted := 0
	for !q.IsEmpty() {
		tm, _, err := q.ExtractMin()
		require.NoError(t, err)
		require.False(t, tm.Before(prev))
		prev = tm
		extracted++
	}
	require.Equal(t, count, extracted)
}
