package harness

import "sync"

// Lease is a handle on one popped RequestPayload. A worker must call
// Release exactly once, on every exit path (typically via defer), so the
// payload's session id becomes eligible for dispatch again. Requesting the
// payload after Release panics, matching the reference implementation's
// refusal to read a retired lease.
type Lease struct {
	q       *SessionQueue
	payload RequestPayload
	active  bool
}

// Payload returns the leased work item.
func (l *Lease) Payload() RequestPayload {
	if !l.active {
		panic("harness: Payload called on a released Lease")
	}
	return l.payload
}

// Release returns the lease's session id to the pool of eligible sessions.
// It is safe to call more than once; only the first call has an effect.
func (l *Lease) Release() {
	if !l.active {
		return
	}
	l.active = false
	if l.payload.SessionID != nil {
		l.q.release(*l.payload.SessionID)
	}
}

// SessionQueue holds the remaining work and tracks which session ids are
// currently checked out. A single mutex guards both pending and active so
// that "scan for an eligible payload, remove it, mark its session active"
// happens atomically; no caller ever observes a payload's session as both
// pending and active, or neither (SessionQueue's own queue-drained
// invariant).
type SessionQueue struct {
	mu      sync.Mutex
	pending []RequestPayload
	active  map[string]bool
}

// NewSessionQueue seeds a queue with the full input set, preserving order.
func NewSessionQueue(payloads []RequestPayload) *SessionQueue {
	q := &SessionQueue{
		pending: append([]RequestPayload(nil), payloads...),
		active:  make(map[string]bool),
	}
	return q
}

// GetItem returns the first pending payload whose session id (if any) is
// not currently active, scanned in insertion order and removed
// destructively (no requeueing). If no such payload exists right now,
// GetItem returns (nil, false) without blocking — the caller must consult
// Drained to distinguish "try again later" from "no more work ever".
func (q *SessionQueue) GetItem() (*Lease, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p.SessionID != nil && q.active[*p.SessionID] {
			continue
		}
		q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
		if p.SessionID != nil {
			q.active[*p.SessionID] = true
		}
		return &Lease{q: q, payload: p, active: true}, true
	}
	return nil, false
}

// Drained reports whether the queue has no pending work and no checked-out
// sessions: nothing left now, and nothing will become eligible later.
func (q *SessionQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && len(q.active) == 0
}

func (q *SessionQueue) release(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.active[sessionID] {
		panic(ErrQueueInvariantViolation)
	}
	delete(q.active, sessionID)
}
