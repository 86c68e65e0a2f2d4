package harness

import "time"

// RequestTimer tracks the wall-clock shape of a single streaming request:
// when it started, when the first token arrived (TTFT), and the gaps
// between subsequent tokens (ITL). time.Now/time.Since already read Go's
// monotonic clock, so no separate monotonic source is needed.
type RequestTimer struct {
	startTime      time.Time
	firstTokenTime time.Time
	lastTokenTime  time.Time
	hasFirstToken  bool
	itl            []float64
}

// Start begins timing a request. It resets any prior state, so a single
// RequestTimer can be reused across requests.
func (t *RequestTimer) Start() {
	t.startTime = time.Now()
	t.firstTokenTime = time.Time{}
	t.lastTokenTime = time.Time{}
	t.hasFirstToken = false
	t.itl = nil
}

// MarkToken records the arrival of one content-bearing token chunk. The
// first call only establishes first_token_time/last_token_time; every
// subsequent call appends the gap since the previous token to the ITL
// series and advances last_token_time.
func (t *RequestTimer) MarkToken() {
	now := time.Now()
	if !t.hasFirstToken {
		t.firstTokenTime = now
		t.lastTokenTime = now
		t.hasFirstToken = true
		return
	}
	t.itl = append(t.itl, now.Sub(t.lastTokenTime).Seconds())
	t.lastTokenTime = now
}

// Finalize ends timing and returns (e2e, ttft, itl). If no token was ever
// observed, e2e falls back to now-start_time and ttft/itl are reported as
// absent (ok=false); this mirrors the reference implementation's
// `last_token_time or time.perf_counter()` fallback exactly. Finalize
// leaves the timer ready for Start to be called again.
func (t *RequestTimer) Finalize() (e2e float64, ttft float64, itl []float64, ok bool) {
	var end time.Time
	if t.hasFirstToken {
		end = t.lastTokenTime
	} else {
		end = time.Now()
	}
	e2e = end.Sub(t.startTime).Seconds()
	if !t.hasFirstToken {
		return e2e, 0, nil, false
	}
	ttft = t.firstTokenTime.Sub(t.startTime).Seconds()
	return e2e, ttft, t.itl, true
}
