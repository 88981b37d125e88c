// Package routing maps remote file names to local archive folders.
package routing

import (
	"strings"

	"edgelogd/internal/checkpoint"
)

// Rule routes names starting with Prefix to Folder.
type Rule struct {
	Prefix string
	Folder string
}

// FolderMapping is an ordered rule list consulted first-match-wins.
type FolderMapping []Rule

// Match returns the folder of the first rule whose prefix matches name.
func (m FolderMapping) Match(name string) (string, bool) {
	for _, r := range m {
		if strings.HasPrefix(name, r.Prefix) {
			return r.Folder, true
		}
	}
	return "", false
}

// Decision is the routing verdict for one remote name.
type Decision struct {
	Folder     string
	Checkpoint checkpoint.Checkpoint
	// Reason is set when the file is left untouched.
	Reason string
}

// Accepted reports whether the file should be fed to the transfer pipeline.
func (d Decision) Accepted() bool {
	return d.Reason == ""
}

// Router decides which listed files belong to the configured work set.
type Router struct {
	mapping FolderMapping
	work    map[string]struct{}
}

// NewRouter creates a router over mapping, accepting only folders in work.
func NewRouter(mapping FolderMapping, work []string) *Router {
	set := make(map[string]struct{}, len(work))
	for _, f := range work {
		set[f] = struct{}{}
	}
	return &Router{mapping: mapping, work: set}
}

// Route classifies name and picks its folder. Marked names carry their folder
// in the failure tag; staged names are matched on their pre-claim name.
func (r *Router) Route(name string) Decision {
	cp := checkpoint.Classify(name)

	var folder string
	switch cp.Kind {
	case checkpoint.ReadyForDelete, checkpoint.StagedIncomplete:
		folder = cp.Folder
	case checkpoint.Staged:
		original, _ := checkpoint.SplitTimestamp(cp.Base)
		f, ok := r.mapping.Match(original)
		if !ok {
			return Decision{Checkpoint: cp, Reason: "no folder mapping"}
		}
		folder = f
	default:
		f, ok := r.mapping.Match(name)
		if !ok {
			return Decision{Checkpoint: cp, Reason: "no folder mapping"}
		}
		folder = f
	}

	if _, ok := r.work[folder]; !ok {
		return Decision{Folder: folder, Checkpoint: cp, Reason: "folder not in work set"}
	}
	return Decision{Folder: folder, Checkpoint: cp}
}
