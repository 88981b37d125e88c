// Package journal keeps a history of per-file transfer outcomes.
//
// The journal is written after every run but never read to decide what to do
// with a remote file; the remote name alone carries that state.
package journal

import (
	"time"
)

// Entry represents the latest outcome recorded for one claimed file
type Entry struct {
	Host       string    `json:"host"`
	Folder     string    `json:"folder"`
	BaseName   string    `json:"base_name"`
	RemoteName string    `json:"remote_name"`
	Outcome    string    `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	Bytes      int64     `json:"bytes"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store defines the interface for journal persistence
type Store interface {
	// Record upserts e keyed by (host, base name) and bumps its attempt counter.
	Record(e *Entry) error
	// List returns entries with the given outcome, or all entries when outcome is empty.
	List(outcome string) ([]*Entry, error)

	Close() error
}

// Nop is a Store that discards everything
type Nop struct{}

func (Nop) Record(*Entry) error           { return nil }
func (Nop) List(string) ([]*Entry, error) { return nil, nil }
func (Nop) Close() error                  { return nil }
