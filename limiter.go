package pixelprompt

import (
	"sync"
	"time"
)

// SignInLimiter locks an IP out of the sign-in callback after repeated
// failures (forged state, bad or expired tokens). The lockout window opens at
// the first failure and a successful sign-in clears it.
type SignInLimiter struct {
	mu       sync.Mutex
	failures map[string]*signInFailures
	max      int
	lockout  time.Duration
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

type signInFailures struct {
	first time.Time
	count int
}

// NewSignInLimiter allows max failures per IP within lockout. Call Stop to end
// the background sweep.
func NewSignInLimiter(max int, lockout time.Duration) *SignInLimiter {
	l := newSignInLimiter(max, lockout, time.Now)
	go l.sweep(lockout)
	return l
}

func newSignInLimiter(max int, lockout time.Duration, now func() time.Time) *SignInLimiter {
	return &SignInLimiter{
		failures: make(map[string]*signInFailures),
		max:      max,
		lockout:  lockout,
		now:      now,
		stop:     make(chan struct{}),
	}
}

func (l *SignInLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *SignInLimiter) prune() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, f := range l.failures {
		if l.expired(f, now) {
			delete(l.failures, ip)
		}
	}
}

func (l *SignInLimiter) expired(f *signInFailures, now time.Time) bool {
	return !now.Before(f.first.Add(l.lockout))
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (l *SignInLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// RetryAfter reports how long ip stays locked out; zero means it may try.
func (l *SignInLimiter) RetryAfter(ip string) time.Duration {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.failures[ip]
	if !ok {
		return 0
	}
	if l.expired(f, now) {
		delete(l.failures, ip)
		return 0
	}
	if f.count < l.max {
		return 0
	}
	return f.first.Add(l.lockout).Sub(now)
}

// Fail records a rejected callback from ip.
func (l *SignInLimiter) Fail(ip string) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.failures[ip]
	if !ok || l.expired(f, now) {
		f = &signInFailures{first: now}
		l.failures[ip] = f
	}
	f.count++
}

// Clear forgets the failures of ip after a successful sign-in.
func (l *SignInLimiter) Clear(ip string) {
	l.mu.Lock()
	delete(l.failures, ip)
	l.mu.Unlock()
}
