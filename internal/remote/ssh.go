package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"edgelogd/internal/localfs"
)

// SSHDialer implements Dialer over SSH
type SSHDialer struct {
	cfg       Config
	sshConfig *ssh.ClientConfig
}

// NewSSHDialer builds an SSH client config from cfg
func NewSSHDialer(cfg Config) (*SSHDialer, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh credentials configured")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	if cfg.Port == 0 {
		cfg.Port = 22
	}

	return &SSHDialer{
		cfg: cfg,
		sshConfig: &ssh.ClientConfig{
			User:            cfg.Username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.ConnectTimeout,
		},
	}, nil
}

// Dial connects and authenticates to host. ConnectTimeout and ctx bound the
// whole exchange, including the banner and authentication.
func (d *SSHDialer) Dial(ctx context.Context, host string) (Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(d.cfg.Port))

	dialer := net.Dialer{Timeout: d.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if d.cfg.ConnectTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(d.cfg.ConnectTimeout)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
		}
	}

	var (
		c     ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
	)
	err = abortOnDone(ctx, func() { conn.Close() }, func() error {
		var err error
		c, chans, reqs, err = ssh.NewClientConn(conn, addr, d.sshConfig)
		return err
	})
	if err != nil {
		if c != nil {
			c.Close()
		}
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}

	return &sshClient{host: host, conn: ssh.NewClient(c, chans, reqs)}, nil
}

type sshClient struct {
	host string
	conn *ssh.Client

	sftpOnce sync.Once
	sftp     *sftp.Client
	sftpErr  error
}

func (c *sshClient) Host() string {
	return c.host
}

func (c *sshClient) Execute(ctx context.Context, command string) (string, string, error) {
	// opening a session waits on the host; a host that never answers is torn down
	var session *ssh.Session
	err := abortOnDone(ctx, func() { c.conn.Close() }, func() error {
		var err error
		session, err = c.conn.NewSession()
		return err
	})
	if err != nil {
		if session != nil {
			session.Close()
		}
		return "", "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		return stdout.String(), stderr.String(), err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		// the buffers still belong to session.Run
		return "", "", ctx.Err()
	}
}

// CopyDown downloads remotePath. When ctx ends first the connection is torn
// down, since a closed sftp handle does not unblock a read stuck on a silent
// host; the client is unusable afterwards.
func (c *sshClient) CopyDown(ctx context.Context, remotePath, localPath string) error {
	dst, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}

	err = abortOnDone(ctx, func() { c.conn.Close() }, func() error {
		client, err := c.sftpClient()
		if err != nil {
			return err
		}

		src, err := client.Open(remotePath)
		if err != nil {
			return fmt.Errorf("failed to open remote file: %w", err)
		}
		defer src.Close()

		_, err = localfs.CopyChunked(dst, src)
		return err
	})

	if syncErr := dst.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return nil
}

// abortOnDone runs op. If ctx ends first, abort is called and must make op
// return; ctx's error is then reported in place of op's.
func abortOnDone(ctx context.Context, abort func(), op func() error) error {
	stop := context.AfterFunc(ctx, abort)
	err := op()
	if !stop() {
		return ctx.Err()
	}
	return err
}

func (c *sshClient) sftpClient() (*sftp.Client, error) {
	c.sftpOnce.Do(func() {
		c.sftp, c.sftpErr = sftp.NewClient(c.conn)
		if c.sftpErr != nil {
			c.sftpErr = fmt.Errorf("failed to start sftp subsystem: %w", c.sftpErr)
		}
	})
	return c.sftp, c.sftpErr
}

func (c *sshClient) Close() error {
	if c.sftp != nil {
		c.sftp.Close()
	}
	return c.conn.Close()
}
