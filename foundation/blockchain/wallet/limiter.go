package wallet

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default throttling applied to each sender.
const (
	DefaultPerMinute = 10
	DefaultBurst     = 10
)

// Limiter throttles transaction creation per sender. Time is supplied by
// the caller so a simulated clock drives the buckets.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	senders map[string]*rate.Limiter
}

// NewLimiter constructs a limiter allowing perMinute transactions per
// sender with the specified burst. A perMinute of zero disables throttling.
func NewLimiter(perMinute int, burst int) *Limiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}

	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limit:   limit,
		burst:   burst,
		senders: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the sender may create a transaction at now and
// consumes a token when it can.
func (l *Limiter) Allow(sender string, now time.Time) bool {
	_, ok := l.Reserve(sender, now)
	return ok
}

// Reserve takes a token for the sender at now. The returned func gives the
// token back when the transaction it was taken for is refused later on.
func (l *Limiter) Reserve(sender string, now time.Time) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, exists := l.senders[sender]
	if !exists {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.senders[sender] = lim
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}

	return func() { r.CancelAt(now) }, true
}

// Reset forgets every sender's history.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.senders = make(map[string]*rate.Limiter)
}
