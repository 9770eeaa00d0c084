package desim

// quantileEstimator is a streaming P² (P-Square) quantile estimator,
// grounded on the teacher's pSquareQuantile: O(1) per-observation update
// and O(1) read, without storing the observation stream. Not safe for
// concurrent use.
//
// Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for Dynamic
// Calculation of Quantiles and Histograms Without Storing Observations".
type quantileEstimator struct {
	p           float64
	q           [5]float64
	n           [5]int
	np          [5]float64
	dn          [5]float64
	count       int
	initBuffer  [5]float64
	initialized bool
}

func newQuantileEstimator(p float64) *quantileEstimator {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &quantileEstimator{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

func (e *quantileEstimator) Update(x float64) {
	e.count++
	if e.count <= 5 {
		e.initBuffer[e.count-1] = x
		if e.count == 5 {
			e.initialize()
		}
		return
	}

	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x >= e.q[4]:
		e.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if e.q[k] <= x && x < e.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.np[i] += e.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := e.np[i] - float64(e.n[i])
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := e.parabolic(i, sign)
			if e.q[i-1] < qPrime && qPrime < e.q[i+1] {
				e.q[i] = qPrime
			} else {
				e.q[i] = e.linear(i, sign)
			}
			e.n[i] += sign
		}
	}
}

func (e *quantileEstimator) initialize() {
	for i := 1; i < 5; i++ {
		key := e.initBuffer[i]
		j := i - 1
		for j >= 0 && e.initBuffer[j] > key {
			e.initBuffer[j+1] = e.initBuffer[j]
			j--
		}
		e.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		e.q[i] = e.initBuffer[i]
		e.n[i] = i
	}
	e.np = [5]float64{0, 2 * e.p, 4 * e.p, 2 + 2*e.p, 4}
	e.initialized = true
}

func (e *quantileEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(e.n[i]), float64(e.n[i-1]), float64(e.n[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (e.q[i+1] - e.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (e.q[i] - e.q[i-1]) / (ni - niPrev)
	return e.q[i] + term1*(term2+term3)
}

func (e *quantileEstimator) linear(i, d int) float64 {
	if d == 1 {
		return e.q[i] + (e.q[i+1]-e.q[i])/float64(e.n[i+1]-e.n[i])
	}
	return e.q[i] - (e.q[i]-e.q[i-1])/float64(e.n[i]-e.n[i-1])
}

// Quantile returns the current estimate.
func (e *quantileEstimator) Quantile() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		sorted := e.initBuffer
		n := e.count
		for i := 1; i < n; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		idx := int(float64(n-1) * e.p)
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}
	return e.q[2]
}

func (e *quantileEstimator) Count() int { return e.count }

// Max returns the largest observed value, grounded on the teacher's
// pSquareQuantile.Max: marker 4 holds the running maximum once the
// algorithm has initialized, same as marker 0 holds the running minimum.
func (e *quantileEstimator) Max() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		max := e.initBuffer[0]
		for i := 1; i < e.count; i++ {
			if e.initBuffer[i] > max {
				max = e.initBuffer[i]
			}
		}
		return max
	}
	return e.q[4]
}

// Metrics tracks dispatch-latency and channel-queue-depth percentiles
// (§8 P4, §6 expansion), gated by WithMetrics. Disabled by default to keep
// the hot dispatch path allocation-free.
type Metrics struct {
	enabled bool

	dispatchLatencyNs *quantileEstimator
	queueDepth        *quantileEstimator
}

// NewMetrics constructs a Metrics tracker. enabled is consulted by every
// observation method, so a disabled Metrics costs nothing beyond the
// struct itself.
func NewMetrics(enabled bool) *Metrics {
	return &Metrics{
		enabled:           enabled,
		dispatchLatencyNs: newQuantileEstimator(0.99),
		queueDepth:        newQuantileEstimator(0.99),
	}
}

// observeDispatch records the wall-clock cost of one handler invocation.
func (m *Metrics) observeDispatch(elapsedNs float64) {
	if !m.enabled {
		return
	}
	m.dispatchLatencyNs.Update(elapsedNs)
}

// observeQueueDepth records a channel's busy-period queue length.
func (m *Metrics) observeQueueDepth(depth int) {
	if !m.enabled {
		return
	}
	m.queueDepth.Update(float64(depth))
}

// DispatchLatencyP99 returns the estimated 99th percentile handler wall
// time, in nanoseconds.
func (m *Metrics) DispatchLatencyP99() float64 { return m.dispatchLatencyNs.Quantile() }

// QueueDepthP99 returns the estimated 99th percentile channel queue depth.
func (m *Metrics) QueueDepthP99() float64 { return m.queueDepth.Quantile() }

// MaxQueueDepth returns the largest channel queue depth observed.
func (m *Metrics) MaxQueueDepth() float64 { return m.queueDepth.Max() }
