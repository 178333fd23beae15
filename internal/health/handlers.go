package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCheckTimeout = 500 * time.Millisecond

// Check is a named dependency probe.
type Check struct {
	Name    string
	Timeout time.Duration
	Ping    func(ctx context.Context) error
}

// RedisCheck probes a Redis client with PING.
func RedisCheck(client redis.UniversalClient) Check {
	return Check{
		Name:    "redis",
		Timeout: 300 * time.Millisecond,
		Ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBCheck probes a database pool.
func DBCheck(db Pinger) Check {
	return Check{Name: "db", Timeout: defaultCheckTimeout, Ping: db.Ping}
}

// Gate holds the readiness flag that shutdown turns off.
type Gate struct {
	ready atomic.Bool
}

// NewGate returns a gate that starts ready.
func NewGate() *Gate {
	g := &Gate{}
	g.ready.Store(true)
	return g
}

// SetReady updates the readiness flag.
func (g *Gate) SetReady(ready bool) { g.ready.Store(ready) }

// Ready reports the readiness flag. A nil gate is always ready.
func (g *Gate) Ready() bool { return g == nil || g.ready.Load() }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
	Gate   *Gate
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on the gate and dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.Checks))
	healthy := h.Gate.Ready()
	if !healthy {
		results["server"] = "shutting down"
	}
	for _, c := range h.Checks {
		results[c.Name] = "ok"
		if err := run(r.Context(), c); err != nil {
			results[c.Name] = err.Error()
			healthy = false
		}
	}
	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": results})
}

func run(ctx context.Context, c Check) error {
	if c.Ping == nil {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Ping(ctx)
}
