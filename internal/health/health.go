// Package health reports liveness and dependency readiness.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

const defaultCheckTimeout = 2 * time.Second

// CheckFunc reports a dependency failure as an error.
type CheckFunc func(ctx context.Context) error

// Checker runs named dependency checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  *logging.Logger
}

// Report is the readiness response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewChecker(logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{checks: map[string]CheckFunc{}, timeout: defaultCheckTimeout, logger: logger}
}

// Register adds or replaces a named check. A nil check is ignored.
func (c *Checker) Register(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Postgres pings db. A nil db yields a nil check.
func Postgres(db *sql.DB) CheckFunc {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// Redis pings client. A nil client yields a nil check.
func Redis(client *redis.Client) CheckFunc {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Run executes every check concurrently, each bounded by the checker timeout.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if err := checks[name](checkCtx); err != nil {
				c.logger.Warn("health check failed", "check", name, "error", err)
				results[i] = "error: " + err.Error()
				return
			}
			results[i] = "ok"
		}(i, name)
	}
	wg.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		report.Checks[name] = results[i]
		if results[i] != "ok" {
			report.Status = "degraded"
		}
	}
	return report
}

// Live always answers 200 while the process serves requests.
func (c *Checker) Live(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, Report{Status: "ok"})
}

// Ready answers 200 when every check passes and 503 otherwise.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	report := c.Run(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeReport(w, status, report)
}

func writeReport(w http.ResponseWriter, status int, report Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
