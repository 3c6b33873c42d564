package realtime

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultReconnectDelay is the fixed wait between a close and the next dial.
const DefaultReconnectDelay = 3 * time.Second

// Clock arms one-shot timers. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// DelayPolicy maps the number of consecutive failed attempts on a channel
// (0 for the first retry) to the wait before the next one.
type DelayPolicy func(attempt int) time.Duration

// Fixed waits d before every retry.
func Fixed(d time.Duration) DelayPolicy {
	return func(int) time.Duration { return d }
}

// Exponential doubles the wait from initial up to max, with ±25 % jitter.
func Exponential(initial, max time.Duration) DelayPolicy {
	return func(attempt int) time.Duration {
		d := initial
		for i := 0; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		jitter := time.Duration(float64(d) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
		d += jitter
		if d < 0 {
			d = 0
		}
		return d
	}
}

// Scheduler keeps at most one pending reconnect timer per channel key.
type Scheduler struct {
	clock Clock
	delay DelayPolicy

	mu       sync.Mutex
	pending  map[string]*pendingTimer
	attempts map[string]int
	seq      uint64
	stopped  bool
}

type pendingTimer struct {
	id    uint64
	timer Timer
}

// NewScheduler returns a Scheduler. Nil arguments select the system clock
// and Fixed(DefaultReconnectDelay).
func NewScheduler(clock Clock, delay DelayPolicy) *Scheduler {
	if clock == nil {
		clock = systemClock{}
	}
	if delay == nil {
		delay = Fixed(DefaultReconnectDelay)
	}
	return &Scheduler{
		clock:    clock,
		delay:    delay,
		pending:  make(map[string]*pendingTimer),
		attempts: make(map[string]int),
	}
}

// Schedule arms a timer that calls fn once after the policy delay. It is a
// no-op, returning false, while a timer for key is already pending or after
// Stop.
func (s *Scheduler) Schedule(key string, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if _, ok := s.pending[key]; ok {
		return false
	}

	attempt := s.attempts[key]
	s.attempts[key] = attempt + 1

	s.seq++
	p := &pendingTimer{id: s.seq}
	s.pending[key] = p
	id := p.id
	p.timer = s.clock.AfterFunc(s.delay(attempt), func() { s.fire(key, id, fn) })
	return true
}

func (s *Scheduler) fire(key string, id uint64, fn func()) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || p.id != id {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()
	fn()
}

// Cancel clears the pending timer for key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
}

// Pending reports whether a timer is armed for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Reset zeroes the attempt counter for key after a successful connect.
func (s *Scheduler) Reset(key string) {
	s.mu.Lock()
	delete(s.attempts, key)
	s.mu.Unlock()
}

// Stop cancels every pending timer and refuses further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
}
