// Package backup appends finalized log files to date-bucketed backup archives.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"edgelogd/internal/checkpoint"
	"edgelogd/internal/localfs"
)

// ErrBadName is returned when a file name carries no claim timestamp.
var ErrBadName = errors.New("file name does not match YYYYMMDD_HHMMSS_<name>")

// Merger appends files under the archive root into a sibling backup tree.
// Appends are not deduplicated: delivering the same file twice stores it twice.
type Merger struct {
	archiveRoot string
	backupRoot  string
}

// NewMerger creates a merger whose backup tree replaces the leaf segment of
// archiveRoot with backupTreeName.
func NewMerger(archiveRoot, backupTreeName string) *Merger {
	archiveRoot = filepath.Clean(archiveRoot)
	return &Merger{
		archiveRoot: archiveRoot,
		backupRoot:  filepath.Join(filepath.Dir(archiveRoot), backupTreeName),
	}
}

// BackupRoot returns the root of the backup tree.
func (m *Merger) BackupRoot() string {
	return m.backupRoot
}

// BackupDir maps a directory inside the archive tree to its backup twin.
func (m *Merger) BackupDir(finalDir string) (string, error) {
	rel, err := filepath.Rel(m.archiveRoot, filepath.Clean(finalDir))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside archive root %s", finalDir, m.archiveRoot)
	}
	return filepath.Join(m.backupRoot, rel), nil
}

// BackupPath returns the archive file that fileName is appended to:
// <backup dir>/bak_<YYYYMMDD>_<original>.
func (m *Merger) BackupPath(finalDir, fileName string) (string, error) {
	date, original, ok := checkpoint.ExtractDateAndOriginalName(fileName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadName, fileName)
	}
	dir, err := m.BackupDir(finalDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bak_"+date+"_"+original), nil
}

// Append copies finalPath onto the end of its backup archive followed by a newline.
// It returns the backup path written to.
func (m *Merger) Append(finalPath, fileName string) (string, error) {
	backupPath, err := m.BackupPath(filepath.Dir(finalPath), fileName)
	if err != nil {
		return "", err
	}
	if err := localfs.EnsureDir(filepath.Dir(backupPath)); err != nil {
		return "", err
	}

	src, err := os.Open(finalPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", finalPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open backup %s: %w", backupPath, err)
	}

	_, err = localfs.CopyChunked(dst, src)
	if err == nil {
		_, err = dst.Write([]byte("\n"))
	}
	if syncErr := dst.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", backupPath, err)
	}
	return backupPath, nil
}
