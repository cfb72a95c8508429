package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter enforces a per-client requests-per-minute budget, keyed by
// remote address. A zero or negative rpm disables limiting.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	rpm     int
}

func newClientLimiter(rpm int) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*rate.Limiter),
		rpm:     rpm,
	}
}

// allow reports whether the request fits in the client's budget.
func (cl *clientLimiter) allow(r *http.Request) bool {
	if cl.rpm <= 0 {
		return true
	}

	key := clientKey(r)

	cl.mu.Lock()
	lim, ok := cl.clients[key]
	if !ok {
		// Burst equals the full minute budget so short spikes pass.
		lim = rate.NewLimiter(rate.Limit(cl.rpm)/60, cl.rpm)
		cl.clients[key] = lim
	}
	cl.mu.Unlock()

	return lim.Allow()
}

// clientKey extracts the client host from the request, ignoring the port so
// one client does not get a fresh budget per connection.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
