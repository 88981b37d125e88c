package transfer

import (
	"path/filepath"
)

// Layout computes the local directories a host's folder is staged and archived in.
type Layout struct {
	StagingRoot string
	FinalRoot   string
	// PerHost inserts the host address between the root and the folder.
	PerHost bool
}

// StagingDir returns <staging root>[/<host>]/<folder>.
func (l Layout) StagingDir(host, folder string) string {
	return l.dir(l.StagingRoot, host, folder)
}

// FinalDir returns <final root>[/<host>]/<folder>.
func (l Layout) FinalDir(host, folder string) string {
	return l.dir(l.FinalRoot, host, folder)
}

func (l Layout) dir(root, host, folder string) string {
	if l.PerHost {
		return filepath.Join(root, host, folder)
	}
	return filepath.Join(root, folder)
}
