package rtp

import "sync"

// FrameQueue collects the datagrams produced by one codec's fragmentation
// pass for a single access unit, so the marker bit can be stamped on the
// last one only after the whole unit is known (component B of the spec).
type FrameQueue struct {
	mu      sync.Mutex
	entries []queueEntry
}

type queueEntry struct {
	header  RTPHeader
	csrc    []uint32
	payload []byte
}

// NewFrameQueue returns an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{}
}

// EnqueueMessage appends one fragment's header and payload. The caller
// retains ownership of payload; FlushQueue copies it into the wire buffer.
func (q *FrameQueue) EnqueueMessage(header RTPHeader, csrc []uint32, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, queueEntry{header: header, csrc: csrc, payload: payload})
}

// GetMediaHeaders returns the RTP headers enqueued so far, in order,
// without draining the queue.
func (q *FrameQueue) GetMediaHeaders() []RTPHeader {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]RTPHeader, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.header
	}
	return out
}

// InitializeFUHeaders stamps the marker bit onto the last entry of the
// current queue contents, per RFC 3550 §5.1: the marker marks the final
// datagram of an access unit, never an interior fragment.
func (q *FrameQueue) InitializeFUHeaders() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return
	}
	q.entries[len(q.entries)-1].header.Marker = true
}

// FlushQueue marshals every queued entry to wire bytes via send, in order,
// then drains the queue. If send returns an error the remaining entries are
// still drained (so Release discipline is upheld) but the error is returned
// to the caller — the partially sent access unit is the caller's problem to
// retry or drop, matching spec.md §4.B's "queue drained on error" rule.
func (q *FrameQueue) FlushQueue(send func(hdr RTPHeader, csrc []uint32, payload []byte) error) error {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := send(e.header, e.csrc, e.payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return newError(StatusSendError, "FlushQueue", firstErr)
	}
	return nil
}

// Len reports how many fragments are currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
