package scjson

import (
	"container/heap"
	"sync/atomic"
)

// seqCounter is the global, monotonic tie-breaker for the delayed-send
// heap. It is package-level rather than per-Runtime so that scheduling
// order stays stable across any number of runtimes, parent and children
// included.
var seqCounter int64

func nextSeq() int64 { return atomic.AddInt64(&seqCounter, 1) }

// delayedEntry is one scheduled send sitting in the heap.
type delayedEntry struct {
	due    int64
	seq    int64
	event  Event
	sendID string
	index  int // heap.Interface bookkeeping
}

// delayedHeap implements container/heap ordered by (due, seq); equal due
// times preserve schedule order.
type delayedHeap []*delayedEntry

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *delayedHeap) Push(x any) {
	e := x.(*delayedEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// eventQueue implements C2: the internal/external FIFOs, the delayed-send
// min-heap, and the pending_by_send_id cancellation index.
type eventQueue struct {
	internal []Event
	external []Event

	delayed  delayedHeap
	pending  map[string]*delayedEntry // send-id -> still-scheduled entry
	clock    Clock
}

func newEventQueue(clock Clock) *eventQueue {
	return &eventQueue{
		pending: make(map[string]*delayedEntry),
		clock:   clock,
	}
}

func (q *eventQueue) enqueueInternal(evt Event) {
	evt.Type = EventInternal
	q.internal = append(q.internal, evt)
}

func (q *eventQueue) enqueueExternal(evt Event) {
	evt.Type = EventExternal
	q.external = append(q.external, evt)
}

// schedule inserts evt into the delayed heap with due = now + delayMicro,
// indexed by sendID for later cancellation.
func (q *eventQueue) schedule(evt Event, delayMicro int64, sendID string) {
	e := &delayedEntry{
		due:    q.clock.NowMicro() + delayMicro,
		seq:    nextSeq(),
		event:  evt,
		sendID: sendID,
	}
	heap.Push(&q.delayed, e)
	if sendID != "" {
		q.pending[sendID] = e
	}
}

// cancel removes a still-scheduled entry; a no-op if the send-id is unknown
// or already delivered.
func (q *eventQueue) cancel(sendID string) {
	e, ok := q.pending[sendID]
	if !ok || e.index < 0 {
		return
	}
	heap.Remove(&q.delayed, e.index)
	delete(q.pending, sendID)
}

// advanceTime moves the virtual clock forward by deltaMicro and migrates
// every delayed entry with due <= now into the external queue in (due, seq)
// order.
func (q *eventQueue) advanceTime(deltaMicro int64) {
	now := q.clock.Advance(deltaMicro)
	for q.delayed.Len() > 0 && q.delayed[0].due <= now {
		e := heap.Pop(&q.delayed).(*delayedEntry)
		if e.sendID != "" {
			delete(q.pending, e.sendID)
		}
		q.enqueueExternal(e.event)
	}
}

// nextEvent implements the macrostep selection order: drain internal first; if
// empty, flush due delayed sends (advance_time(0)) then pop external. The
// bool reports whether an event was available.
func (q *eventQueue) nextEvent() (Event, bool) {
	if len(q.internal) > 0 {
		evt := q.internal[0]
		q.internal = q.internal[1:]
		return evt, true
	}
	q.advanceTime(0)
	if len(q.external) > 0 {
		evt := q.external[0]
		q.external = q.external[1:]
		return evt, true
	}
	return Event{}, false
}

func (q *eventQueue) hasInternal() bool { return len(q.internal) > 0 }
