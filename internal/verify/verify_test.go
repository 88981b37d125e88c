package verify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgelogd/internal/remote/remotetest"
	"edgelogd/internal/verify"
)

const helloMD5 = "5d41402abc4b2a76b9719d911017c592" // md5("hello")

func TestLocal(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	got, err := verify.Local(p)
	require.NoError(t, err)
	assert.Equal(t, helloMD5, got)
}

func TestLocal_LargerThanChunk(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	content := []byte(strings.Repeat("0123456789", 2000))
	require.NoError(t, os.WriteFile(p, content, 0o644))

	h := remotetest.NewHost("edge")
	h.Put("/logs/f", content)
	remoteSum, err := verify.Remote(context.Background(), h, "/logs/f")
	require.NoError(t, err)

	localSum, err := verify.Local(p)
	require.NoError(t, err)
	assert.True(t, verify.Match(localSum, remoteSum))
}

func TestLocal_Missing(t *testing.T) {
	_, err := verify.Local(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRemote(t *testing.T) {
	h := remotetest.NewHost("edge")
	h.Put("/logs/a.log", []byte("hello"))

	got, err := verify.Remote(context.Background(), h, "/logs/a.log")
	require.NoError(t, err)
	assert.Equal(t, helloMD5, got)
	assert.Contains(t, h.Commands()[0], "md5sum /logs/a.log")
}

func TestRemote_Failures(t *testing.T) {
	h := remotetest.NewHost("edge")
	h.Put("/logs/a.log", []byte("hello"))

	_, err := verify.Remote(context.Background(), h, "/logs/missing.log")
	assert.Error(t, err)

	h.FailNext("md5sum", 1)
	_, err = verify.Remote(context.Background(), h, "/logs/a.log")
	assert.Error(t, err)

	h.OverrideDigest("/logs/a.log", "")
	_, err = verify.Remote(context.Background(), h, "/logs/a.log")
	assert.True(t, errors.Is(err, verify.ErrEmptyDigest))
}

func TestMatch(t *testing.T) {
	assert.True(t, verify.Match("abc123", "abc123"))
	assert.False(t, verify.Match("abc123", "ABC123"))
	assert.False(t, verify.Match("abc123", "abc124"))
	assert.False(t, verify.Match("", ""))
}
