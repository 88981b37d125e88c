// Package remotetest provides an in-memory edge host for tests.
package remotetest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"edgelogd/internal/remote"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// Host is a fake edge host holding files in memory. It understands the
// mv, rm, ls and md5sum commands issued by the remote package.
type Host struct {
	mu       sync.Mutex
	name     string
	files    map[string][]byte
	order    []string
	failures map[string]int
	digests  map[string]string
	commands []string
	closed   bool
}

// NewHost creates an empty fake host.
func NewHost(name string) *Host {
	return &Host{
		name:     name,
		files:    make(map[string][]byte),
		failures: make(map[string]int),
		digests:  make(map[string]string),
	}
}

// Put creates or replaces a remote file.
func (h *Host) Put(p string, content []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.files[p]; !ok {
		h.order = append(h.order, p)
	}
	h.files[p] = content
}

// Get returns a remote file's content.
func (h *Host) Get(p string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.files[p]
	return b, ok
}

// Names returns the base names of the files under dir, in creation order.
func (h *Host) Names(dir string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.namesLocked(dir)
}

// FailNext makes the next n operations of kind fail. Kinds are the command
// names (mv, rm, ls, md5sum) and "copy" for downloads.
func (h *Host) FailNext(kind string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[kind] += n
}

// OverrideDigest makes md5sum report digest for p instead of the real one.
func (h *Host) OverrideDigest(p, digest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.digests[p] = digest
}

// Commands returns every command executed so far.
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// CommandCount returns how many executed commands start with name.
func (h *Host) CommandCount(name string) int {
	n := 0
	for _, c := range h.Commands() {
		if args, err := shellquote.Split(c); err == nil && len(args) > 0 && args[0] == name {
			n++
		}
	}
	return n
}

// Closed reports whether a client for this host was closed.
func (h *Host) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Host) Host() string { return h.name }

func (h *Host) Execute(_ context.Context, command string) (string, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = append(h.commands, command)
	args, err := shellquote.Split(command)
	if err != nil || len(args) == 0 {
		return "", "bad command", fmt.Errorf("exit status 2")
	}
	if h.consumeFailure(args[0]) {
		return "", "", ErrInjected
	}

	switch args[0] {
	case "mv":
		if len(args) != 3 {
			return "", "mv: usage", fmt.Errorf("exit status 1")
		}
		content, ok := h.files[args[1]]
		if !ok {
			return "", "mv: cannot stat '" + args[1] + "': No such file or directory", fmt.Errorf("exit status 1")
		}
		delete(h.files, args[1])
		h.files[args[2]] = content
		h.replaceOrder(args[1], args[2])
		return "", "", nil
	case "rm":
		if _, ok := h.files[args[1]]; !ok {
			return "", "rm: cannot remove '" + args[1] + "': No such file or directory", fmt.Errorf("exit status 1")
		}
		delete(h.files, args[1])
		h.removeOrder(args[1])
		return "", "", nil
	case "ls":
		dir := args[len(args)-1]
		return strings.Join(h.namesLocked(dir), "\n") + "\n", "", nil
	case "md5sum":
		content, ok := h.files[args[1]]
		if !ok {
			return "", "md5sum: " + args[1] + ": No such file or directory", fmt.Errorf("exit status 1")
		}
		if d, ok := h.digests[args[1]]; ok {
			return d + "\n", "", nil
		}
		sum := md5.Sum(content)
		return hex.EncodeToString(sum[:]) + "\n", "", nil
	}
	return "", args[0] + ": command not found", fmt.Errorf("exit status 127")
}

func (h *Host) CopyDown(_ context.Context, remotePath, localPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consumeFailure("copy") {
		return ErrInjected
	}
	content, ok := h.files[remotePath]
	if !ok {
		return fmt.Errorf("open %s: file does not exist", remotePath)
	}
	return os.WriteFile(localPath, content, 0o644)
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *Host) consumeFailure(kind string) bool {
	if h.failures[kind] > 0 {
		h.failures[kind]--
		return true
	}
	return false
}

func (h *Host) namesLocked(dir string) []string {
	var names []string
	for _, p := range h.order {
		if path.Dir(p) == path.Clean(dir) {
			names = append(names, path.Base(p))
		}
	}
	return names
}

func (h *Host) replaceOrder(oldPath, newPath string) {
	for i, p := range h.order {
		if p == oldPath {
			h.order[i] = newPath
			return
		}
	}
}

func (h *Host) removeOrder(p string) {
	for i, o := range h.order {
		if o == p {
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}

// Dialer hands out fake hosts by name.
type Dialer struct {
	mu    sync.Mutex
	hosts map[string]*Host
	fail  map[string]error
	dials []string
}

// NewDialer creates a dialer serving hosts.
func NewDialer(hosts ...*Host) *Dialer {
	d := &Dialer{hosts: make(map[string]*Host), fail: make(map[string]error)}
	for _, h := range hosts {
		d.hosts[h.name] = h
	}
	return d
}

// FailHost makes every dial to host return err.
func (d *Dialer) FailHost(host string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[host] = err
}

// Dials returns the hosts dialed so far, in order.
func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

func (d *Dialer) Dial(_ context.Context, host string) (remote.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, host)
	if err, ok := d.fail[host]; ok {
		return nil, err
	}
	h, ok := d.hosts[host]
	if !ok {
		return nil, fmt.Errorf("dial %s: no route to host", host)
	}
	return h, nil
}

// SortedNames is a helper returning Names sorted, for order-insensitive asserts.
func SortedNames(h *Host, dir string) []string {
	names := h.Names(dir)
	sort.Strings(names)
	return names
}
