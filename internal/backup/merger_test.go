package backup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFinal(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestBackupDir(t *testing.T) {
	m := NewMerger("/data/raw_logs/", "bak_logs")
	assert.Equal(t, "/data/bak_logs", m.BackupRoot())

	dir, err := m.BackupDir("/data/raw_logs/10.0.0.1/grpc")
	require.NoError(t, err)
	assert.Equal(t, "/data/bak_logs/10.0.0.1/grpc", dir)

	_, err = m.BackupDir("/elsewhere/grpc")
	assert.Error(t, err)
}

func TestBackupPath(t *testing.T) {
	m := NewMerger("/data/raw_logs", "bak_logs")

	p, err := m.BackupPath("/data/raw_logs/grpc", "20240101_000000_grpc-app.log")
	require.NoError(t, err)
	assert.Equal(t, "/data/bak_logs/grpc/bak_20240101_grpc-app.log", p)

	_, err = m.BackupPath("/data/raw_logs/grpc", "grpc-app.log")
	assert.True(t, errors.Is(err, ErrBadName))
}

func TestAppend_CreatesArchive(t *testing.T) {
	root := t.TempDir()
	m := NewMerger(filepath.Join(root, "raw_logs"), "bak_logs")
	final := writeFinal(t, filepath.Join(root, "raw_logs", "grpc"), "20240101_000000_grpc-app.log", "line 1\nline 2")

	backupPath, err := m.Append(final, "20240101_000000_grpc-app.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bak_logs", "grpc", "bak_20240101_grpc-app.log"), backupPath)

	got, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", string(got))
}

func TestAppend_SameDayRotationsMerge(t *testing.T) {
	root := t.TempDir()
	m := NewMerger(filepath.Join(root, "raw_logs"), "bak_logs")
	dir := filepath.Join(root, "raw_logs", "grpc")

	morning := writeFinal(t, dir, "20240101_060000_grpc-app.log", "morning")
	evening := writeFinal(t, dir, "20240101_180000_grpc-app.log", "evening")
	nextDay := writeFinal(t, dir, "20240102_060000_grpc-app.log", "next")

	_, err := m.Append(morning, filepath.Base(morning))
	require.NoError(t, err)
	p, err := m.Append(evening, filepath.Base(evening))
	require.NoError(t, err)
	p2, err := m.Append(nextDay, filepath.Base(nextDay))
	require.NoError(t, err)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "morning\nevening\n", string(got))

	got, err = os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, "next\n", string(got))
}

// Re-delivering a file appends it again: at-least-once, bounded by the
// number of Append calls.
func TestAppend_RedeliveryDuplicatesOnce(t *testing.T) {
	root := t.TempDir()
	m := NewMerger(filepath.Join(root, "raw_logs"), "bak_logs")
	final := writeFinal(t, filepath.Join(root, "raw_logs", "api"), "20240101_000000_api.log", "payload")

	p, err := m.Append(final, filepath.Base(final))
	require.NoError(t, err)
	_, err = m.Append(final, filepath.Base(final))
	require.NoError(t, err)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "payload\npayload\n", string(got))
	assert.Equal(t, 2, strings.Count(string(got), "payload"))
}

func TestAppend_BadNameLeavesNoArchive(t *testing.T) {
	root := t.TempDir()
	m := NewMerger(filepath.Join(root, "raw_logs"), "bak_logs")
	final := writeFinal(t, filepath.Join(root, "raw_logs", "api"), "api.log", "payload")

	_, err := m.Append(final, "api.log")
	assert.True(t, errors.Is(err, ErrBadName))

	_, statErr := os.Stat(filepath.Join(root, "bak_logs"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAppend_LargeFile(t *testing.T) {
	root := t.TempDir()
	m := NewMerger(filepath.Join(root, "raw_logs"), "bak_logs")
	content := strings.Repeat("abcdefgh", 4096)
	final := writeFinal(t, filepath.Join(root, "raw_logs", "api"), "20240101_000000_api.log", content)

	p, err := m.Append(final, filepath.Base(final))
	require.NoError(t, err)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, content+"\n", string(got))
}
