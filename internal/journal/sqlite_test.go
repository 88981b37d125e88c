package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RecordUpsertsAndCountsAttempts(t *testing.T) {
	s := openStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(&Entry{
		Host: "10.0.0.1", Folder: "grpc", BaseName: "20240101_000000_grpc-app.log",
		RemoteName: "grpc_DF_20240101_000000_grpc-app.log", Outcome: "failed_df",
		Stage: "download", LastError: "connection reset", UpdatedAt: base,
	}))
	require.NoError(t, s.Record(&Entry{
		Host: "10.0.0.1", Folder: "grpc", BaseName: "20240101_000000_grpc-app.log",
		RemoteName: "grpc_DF_20240101_000000_grpc-app.log", Outcome: "done",
		Bytes: 42, UpdatedAt: base.Add(time.Minute),
	}))

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "done", all[0].Outcome)
	assert.Equal(t, 2, all[0].Attempts)
	assert.EqualValues(t, 42, all[0].Bytes)
	assert.Empty(t, all[0].LastError)
	assert.True(t, all[0].UpdatedAt.Equal(base.Add(time.Minute)))
}

func TestSQLiteStore_ListByOutcome(t *testing.T) {
	s := openStore(t)

	for i, e := range []*Entry{
		{Host: "a", Folder: "grpc", BaseName: "1", RemoteName: "1", Outcome: "done"},
		{Host: "a", Folder: "grpc", BaseName: "2", RemoteName: "grpc_RF_2", Outcome: "failed_rf", Stage: "delete"},
		{Host: "b", Folder: "api", BaseName: "1", RemoteName: "api_RF_1", Outcome: "failed_rf", Stage: "delete"},
	} {
		e.UpdatedAt = time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC)
		require.NoError(t, s.Record(e))
	}

	failed, err := s.List("failed_rf")
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "a", failed[0].Host)
	assert.Equal(t, "b", failed[1].Host)
	assert.Equal(t, "delete", failed[0].Stage)

	none, err := s.List("commit_failed")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(&Entry{Host: "a", Folder: "f", BaseName: "n", RemoteName: "n", Outcome: "done"}))
	require.NoError(t, s.Close())

	assert.Error(t, s.Record(&Entry{Host: "a"}))

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.List("")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	assert.NoError(t, s.Record(&Entry{}))
	entries, err := s.List("")
	assert.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, s.Close())
}
