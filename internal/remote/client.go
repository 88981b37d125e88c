// Package remote is the command and file-transfer channel to edge hosts.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Runner executes a shell command on a remote host.
type Runner interface {
	Execute(ctx context.Context, command string) (stdout, stderr string, err error)
}

// Client is an open connection to one edge host.
type Client interface {
	Runner
	// CopyDown downloads remotePath to localPath, replacing any existing file.
	CopyDown(ctx context.Context, remotePath, localPath string) error
	Host() string
	Close() error
}

// Dialer opens connections to edge hosts.
type Dialer interface {
	Dial(ctx context.Context, host string) (Client, error)
}

// Config contains connection settings shared by all hosts
type Config struct {
	Username       string
	Password       string
	PrivateKeyFile string
	KnownHostsFile string
	Port           int
	ConnectTimeout time.Duration
}

// ErrCommandFailed is returned when a command exits non-zero or writes to stderr.
var ErrCommandFailed = errors.New("remote command failed")

// Run executes command and treats any stderr output as failure.
func Run(ctx context.Context, r Runner, command string) (string, error) {
	stdout, stderr, err := r.Execute(ctx, command)
	stderr = strings.TrimSpace(stderr)
	if err != nil {
		if stderr != "" {
			return "", fmt.Errorf("%w: %s: %v (%s)", ErrCommandFailed, command, err, stderr)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrCommandFailed, command, err)
	}
	if stderr != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrCommandFailed, command, stderr)
	}
	return stdout, nil
}
