package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// maxInFlight caps concurrent calculations across all clients.
const maxInFlight = 64

// limiter bounds concurrent calculations per client IP and globally.
type limiter struct {
	mu       sync.Mutex
	active   map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newLimiter(maxPerIP int) *limiter {
	if maxPerIP < 1 {
		maxPerIP = 1
	}
	return &limiter{
		active:   make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxInFlight,
	}
}

// acquire reserves a calculation slot for ip. It returns false when the IP
// or the global limit is reached.
func (l *limiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.active[ip] >= l.maxPerIP {
		return false
	}
	l.active[ip]++
	l.total++
	return true
}

// release frees a slot taken by acquire.
func (l *limiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active[ip]--
	l.total--
	if l.active[ip] <= 0 {
		delete(l.active, ip)
	}
}

// count returns the calculations in flight for ip.
func (l *limiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[ip]
}

// clientIP identifies the caller for limiting. Forwarding headers are only
// honored when trustProxy is set; the first X-Forwarded-For entry wins over
// X-Real-IP, and RemoteAddr is the fallback.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
