package desim

import "sync"

// shutdownChunkSize is the number of requests per node in the chunked
// linked-list queue. Sized for the common case of a handful of shutdowns/
// restarts per tick, not the bulk task throughput the teacher's ingress
// queue targets.
const shutdownChunkSize = 32

// ShutdownRequestKind distinguishes the two globals-queue operations of
// §4.I: "handlers that call shutdown() or schedule_restart(at) append to
// this queue".
type ShutdownRequestKind uint8

const (
	// RequestShutdown ends a module (§4.F lifecycle: running -> ending ->
	// dead).
	RequestShutdown ShutdownRequestKind = iota
	// RequestRestart re-instantiates a module via PanicRestart's own
	// mechanism (§4.H), driven explicitly rather than by a panic.
	RequestRestart
)

// ShutdownRequest is one entry of the shutdown/restart queue (§3 Globals
// "shutdown_queue: Vec<(M, Option<T>)>").
type ShutdownRequest struct {
	Kind   ShutdownRequestKind
	Module ModuleID
	At     *SimTime // nil means "as soon as possible"
}

var shutdownChunkPool = sync.Pool{New: func() any { return &shutdownChunk{} }}

// shutdownChunk is a fixed-size node in the chunked linked-list, grounded
// on the teacher's ChunkedIngress chunk shape. Not safe for concurrent use:
// the runtime loop is the queue's sole caller, matching the teacher's own
// "caller must hold external mutex" contract, trivially satisfied here by
// single-threaded execution.
type shutdownChunk struct {
	items   [shutdownChunkSize]ShutdownRequest
	next    *shutdownChunk
	readPos int
	pos     int
}

func newShutdownChunk() *shutdownChunk {
	c := shutdownChunkPool.Get().(*shutdownChunk)
	c.pos, c.readPos, c.next = 0, 0, nil
	return c
}

func returnShutdownChunk(c *shutdownChunk) {
	for i := 0; i < c.pos; i++ {
		c.items[i] = ShutdownRequest{}
	}
	c.pos, c.readPos, c.next = 0, 0, nil
	shutdownChunkPool.Put(c)
}

// ShutdownQueue is the runtime's shutdown/restart queue (§4.I "Globals"),
// drained by the runtime loop after each handler invocation returns.
type ShutdownQueue struct {
	head   *shutdownChunk
	tail   *shutdownChunk
	length int
}

// NewShutdownQueue constructs an empty shutdown queue.
func NewShutdownQueue() *ShutdownQueue {
	return &ShutdownQueue{}
}

// Len returns the number of pending requests.
func (q *ShutdownQueue) Len() int { return q.length }

func (q *ShutdownQueue) push(req ShutdownRequest) {
	if q.tail == nil {
		q.tail = newShutdownChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.items) {
		nt := newShutdownChunk()
		q.tail.next = nt
		q.tail = nt
	}
	q.tail.items[q.tail.pos] = req
	q.tail.pos++
	q.length++
}

func (q *ShutdownQueue) pushShutdown(id ModuleID) {
	q.push(ShutdownRequest{Kind: RequestShutdown, Module: id})
}

func (q *ShutdownQueue) pushRestart(id ModuleID, at *SimTime) {
	q.push(ShutdownRequest{Kind: RequestRestart, Module: id, At: at})
}

// Pop removes and returns the earliest request. ok is false if the queue is
// empty.
func (q *ShutdownQueue) Pop() (req ShutdownRequest, ok bool) {
	if q.head == nil {
		return ShutdownRequest{}, false
	}
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
			return ShutdownRequest{}, false
		}
		old := q.head
		q.head = q.head.next
		returnShutdownChunk(old)
	}
	if q.head.readPos >= q.head.pos {
		return ShutdownRequest{}, false
	}
	req = q.head.items[q.head.readPos]
	q.head.items[q.head.readPos] = ShutdownRequest{}
	q.head.readPos++
	q.length--
	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos, q.head.readPos = 0, 0
			return req, true
		}
		old := q.head
		q.head = q.head.next
		returnShutdownChunk(old)
	}
	return req, true
}
