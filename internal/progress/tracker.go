package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Status represents the counters of one polling cycle
type Status struct {
	Cycle          int64
	Hosts          int64
	HostFailures   int64
	DoneFiles      int64
	FailedFiles    int64
	SkippedFiles   int64
	CommitFailures int64
	Bytes          int64
	StartTime      time.Time
	LastUpdateTime time.Time
	AverageSpeed   float64 // bytes/second since cycle start
}

// Processed returns the number of files that went through the pipeline
func (s Status) Processed() int64 {
	return s.DoneFiles + s.FailedFiles + s.SkippedFiles + s.CommitFailures
}

// Tracker tracks per-cycle progress
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.status.StartTime = t.now()
	t.status.LastUpdateTime = t.status.StartTime
	return t
}

// StartCycle resets the counters and bumps the cycle number
func (t *Tracker) StartCycle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.status = Status{
		Cycle:          t.status.Cycle + 1,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// AddHost records a visited host
func (t *Tracker) AddHost(failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Hosts++
	if failed {
		t.status.HostFailures++
	}
	t.touch()
}

// AddDone records a fully transferred file
func (t *Tracker) AddDone(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.DoneFiles++
	t.status.Bytes += bytes
	t.touch()
}

// AddFailed records a file left with a failure tag
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedFiles++
	t.touch()
}

// AddSkipped records a file left untouched for the next cycle
func (t *Tracker) AddSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SkippedFiles++
	t.touch()
}

// AddCommitFailure records a file that was deleted remotely but could not be moved locally
func (t *Tracker) AddCommitFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.CommitFailures++
	t.touch()
}

// touch must be called with lock held
func (t *Tracker) touch() {
	now := t.now()
	t.status.LastUpdateTime = now
	if elapsed := now.Sub(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.Bytes) / elapsed.Seconds()
	}
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// Summary renders the status as a single log-friendly line
func (s Status) Summary() string {
	return fmt.Sprintf("cycle %d: %d hosts (%d failed), %d files done, %d failed, %d skipped, %d commit failures, %s at %s/s",
		s.Cycle, s.Hosts, s.HostFailures,
		s.DoneFiles, s.FailedFiles, s.SkippedFiles, s.CommitFailures,
		humanize.IBytes(uint64(s.Bytes)), humanize.IBytes(uint64(s.AverageSpeed)))
}
