// Package verify compares local and remote MD5 digests of a transferred file.
package verify

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"

	"edgelogd/internal/localfs"
	"edgelogd/internal/remote"
)

// ErrEmptyDigest is returned when the remote side printed no usable digest.
var ErrEmptyDigest = errors.New("remote digest is empty or malformed")

var md5Hex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Local streams path through MD5 in fixed-size chunks.
func Local(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := localfs.CopyChunked(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remote runs md5sum on the edge host.
func Remote(ctx context.Context, r remote.Runner, path string) (string, error) {
	command := shellquote.Join("md5sum", path) + " | awk '{print $1}'"
	out, err := remote.Run(ctx, r, command)
	if err != nil {
		return "", err
	}

	digest := strings.TrimSpace(out)
	if !md5Hex.MatchString(digest) {
		return "", fmt.Errorf("%w: %q", ErrEmptyDigest, digest)
	}
	return digest, nil
}

// Match reports whether two digests are identical. Empty digests never match.
func Match(local, remote string) bool {
	return local != "" && local == remote
}
