package harness

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSessionQueue_DrainedInitiallyFalseThenTrue(t *testing.T) {
	t.Parallel()
	q := NewSessionQueue([]RequestPayload{{SessionID: strPtr("s1")}})
	assert.False(t, q.Drained(), "expected not drained with pending work")

	lease, ok := q.GetItem()
	require.True(t, ok)
	assert.False(t, q.Drained(), "expected not drained while a session is checked out")

	lease.Release()
	assert.True(t, q.Drained())
}

func TestSessionQueue_ExclusionAcrossSameSession(t *testing.T) {
	t.Parallel()
	q := NewSessionQueue([]RequestPayload{
		{SessionID: strPtr("s1")},
		{SessionID: strPtr("s1")},
	})

	lease1, ok := q.GetItem()
	require.True(t, ok)

	_, ok = q.GetItem()
	assert.False(t, ok, "the second payload shares s1's active session")
	assert.False(t, q.Drained())

	lease1.Release()
	lease2, ok := q.GetItem()
	require.True(t, ok, "expected the second s1 payload eligible after release")
	lease2.Release()
	assert.True(t, q.Drained())
}

func TestSessionQueue_NilSessionNeverExcluded(t *testing.T) {
	t.Parallel()
	q := NewSessionQueue([]RequestPayload{{}, {}, {}})
	count := 0
	for {
		lease, ok := q.GetItem()
		if !ok {
			break
		}
		count++
		lease.Release()
	}
	assert.Equal(t, 3, count)
}

func TestSessionQueue_PayloadPanicsAfterRelease(t *testing.T) {
	t.Parallel()
	q := NewSessionQueue([]RequestPayload{{SessionID: strPtr("s1")}})
	lease, _ := q.GetItem()
	lease.Release()

	assert.Panics(t, func() { lease.Payload() })
}

func TestSessionQueue_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	q := NewSessionQueue([]RequestPayload{{SessionID: strPtr("s1")}})
	lease, _ := q.GetItem()
	lease.Release()
	assert.NotPanics(t, func() { lease.Release() })
	assert.True(t, q.Drained())
}

func TestSessionQueue_ReleaseOfInactiveSessionPanics(t *testing.T) {
	t.Parallel()
	q := NewSessionQueue(nil)
	assert.PanicsWithError(t, ErrQueueInvariantViolation.Error(), func() { q.release("never-active") })
}

func TestSessionQueue_ConcurrentWorkersNeverShareASession(t *testing.T) {
	t.Parallel()
	const n = 50
	payloads := make([]RequestPayload, 0, n)
	for i := 0; i < n; i++ {
		payloads = append(payloads, RequestPayload{SessionID: strPtr("shared")})
	}
	q := NewSessionQueue(payloads)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inFlight   int
		maxInFlite int
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				lease, ok := q.GetItem()
				if !ok {
					if q.Drained() {
						return
					}
					continue
				}
				mu.Lock()
				inFlight++
				if inFlight > maxInFlite {
					maxInFlite = inFlight
				}
				mu.Unlock()

				mu.Lock()
				inFlight--
				mu.Unlock()
				lease.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlite, "at most 1 in-flight payload for the shared session")
}
