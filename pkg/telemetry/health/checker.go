package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds one readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Status values.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const timeoutMessage = "health check timeout"

// CheckFunc reports a component's health: nil when healthy, otherwise an
// error describing the problem.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
}

// HealthStatus is the body of /health and /ready.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	UptimeS   int64                  `json:"uptime_s,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Checker runs the readiness checks of the control API: the gateway
// listener and, when enabled, the archive.
type Checker struct {
	timeout time.Duration
	started time.Time

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New creates a checker. A zero timeout uses DefaultCheckTimeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		timeout: timeout,
		started: time.Now(),
		checks:  make(map[string]CheckFunc),
	}
}

// RegisterCheck adds or replaces the check named name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// UnregisterCheck removes the check named name.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	delete(c.checks, name)
	c.mu.Unlock()
}

// GetCheck returns the check named name, or nil.
func (c *Checker) GetCheck(name string) CheckFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checks[name]
}

// CheckCount returns the number of registered checks.
func (c *Checker) CheckCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.checks)
}

// CheckLiveness reports that the process is up. The desktop shell polls it
// to learn when the control API is accepting calls.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	now := time.Now()
	return HealthStatus{
		Status:    StatusOK,
		UptimeS:   int64(now.Sub(c.started).Seconds()),
		Timestamp: now,
	}
}

// CheckReadiness runs every check concurrently. The result is "ready" when
// all pass and "degraded" otherwise.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	funcs := make([]CheckFunc, 0, len(c.checks))
	for name, fn := range c.checks {
		names = append(names, name)
		funcs = append(funcs, fn)
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(funcs))
	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		go func(i int, fn CheckFunc) {
			defer wg.Done()
			results[i] = c.run(ctx, fn)
		}(i, fn)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    StatusReady,
		Checks:    make(map[string]CheckResult, len(names)),
		Timestamp: time.Now(),
	}
	for i, name := range names {
		status.Checks[name] = results[i]
		if results[i].Status != StatusOK {
			status.Status = StatusDegraded
		}
	}
	return status
}

// run executes one check. A check that ignores its context is abandoned
// after the timeout.
func (c *Checker) run(ctx context.Context, check CheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- check(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		return CheckResult{Status: StatusUnhealthy, Message: timeoutMessage, DurationMs: ms(time.Since(start))}
	}

	res := CheckResult{Status: StatusOK, DurationMs: ms(time.Since(start))}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
