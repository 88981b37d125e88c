package remote

import (
	"context"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Rename moves oldPath to newPath on the remote host.
func Rename(ctx context.Context, r Runner, oldPath, newPath string) error {
	_, err := Run(ctx, r, shellquote.Join("mv", oldPath, newPath))
	return err
}

// Remove deletes path on the remote host.
func Remove(ctx context.Context, r Runner, path string) error {
	_, err := Run(ctx, r, shellquote.Join("rm", path))
	return err
}

// List returns the entry names of dir in the order ls prints them.
func List(ctx context.Context, r Runner, dir string) ([]string, error) {
	out, err := Run(ctx, r, shellquote.Join("ls", "-1", dir))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}
