package receiver

import (
	"net/netip"
	"time"
)

const (
	defaultWarnBurst  = 20
	defaultWarnWindow = 10 * time.Second
)

// warnLimiter caps the decode warnings logged per sender address. Counts
// are kept per fixed window and reset when the window expires.
type warnLimiter struct {
	current      map[netip.Addr]int
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int

	suppressed uint64
}

func newWarnLimiter(maxPerWindow int, window time.Duration) *warnLimiter {
	return &warnLimiter{
		current:      make(map[netip.Addr]int),
		windowSize:   window,
		maxPerWindow: maxPerWindow,
	}
}

// Allow reports whether a warning about a datagram from addr may be logged.
func (l *warnLimiter) Allow(addr netip.Addr, now time.Time) bool {
	if now.Sub(l.windowStart) >= l.windowSize {
		clear(l.current)
		l.windowStart = now
	}

	l.current[addr]++
	if l.current[addr] > l.maxPerWindow {
		l.suppressed++
		return false
	}
	return true
}

// Suppressed returns the number of warnings dropped so far.
func (l *warnLimiter) Suppressed() uint64 {
	return l.suppressed
}
