// Package health tracks scheduled runs and serves their status over HTTP.
package health

import (
	"sync"
	"time"
)

// SystemStatus represents the overall health state of the scheduler.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report is the detailed health view.
type Report struct {
	Status     SystemStatus `json:"status"`
	Running    bool         `json:"running"`
	Runs       int          `json:"runs"`
	LastRun    *time.Time   `json:"last_run,omitempty"`
	LastFailed int          `json:"last_failed"`
	LastError  string       `json:"last_error,omitempty"`
	NextRun    *time.Time   `json:"next_run,omitempty"`
}

// Monitor records run results for the health endpoints.
type Monitor struct {
	mu         sync.RWMutex
	staleAfter time.Duration
	running    bool
	runs       int
	lastRun    time.Time
	lastFailed int
	lastErr    error
	nextRun    time.Time
}

// NewMonitor creates a Monitor. A last run older than staleAfter reports
// degraded; zero disables the check.
func NewMonitor(staleAfter time.Duration) *Monitor {
	return &Monitor{staleAfter: staleAfter}
}

// RunStarted marks a run as in progress.
func (m *Monitor) RunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

// RunFinished stores the outcome of a run.
func (m *Monitor) RunFinished(at time.Time, failed int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.runs++
	m.lastRun = at
	m.lastFailed = failed
	m.lastErr = err
}

// SetNextRun records when the scheduler fires next.
func (m *Monitor) SetNextRun(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRun = t
}

// Check builds a report as of now.
func (m *Monitor) Check(now time.Time) Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := Report{
		Status:     StatusHealthy,
		Running:    m.running,
		Runs:       m.runs,
		LastFailed: m.lastFailed,
	}
	if !m.nextRun.IsZero() {
		next := m.nextRun
		r.NextRun = &next
	}
	if m.runs == 0 {
		return r
	}

	last := m.lastRun
	r.LastRun = &last
	switch {
	case m.lastErr != nil:
		r.Status = StatusCritical
		r.LastError = m.lastErr.Error()
	case m.lastFailed > 0:
		r.Status = StatusDegraded
	case m.staleAfter > 0 && now.Sub(m.lastRun) > m.staleAfter:
		r.Status = StatusDegraded
	}
	return r
}
