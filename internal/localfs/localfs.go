// Package localfs holds the local filesystem helpers used by the transfer pipeline.
package localfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// ChunkSize is the fixed buffer size used for streaming file content.
const ChunkSize = 4096

// EnsureDir creates path and its parents if they do not exist.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// CopyChunked copies src into dst through a ChunkSize buffer.
// ReaderFrom/WriterTo shortcuts are hidden so memory use stays constant.
func CopyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	return io.CopyBuffer(writerOnly{dst}, readerOnly{src}, buf)
}

type writerOnly struct{ io.Writer }

type readerOnly struct{ io.Reader }

// Move renames src to dst, falling back to copy+remove across devices.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copy across devices: %w", err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := CopyChunked(out, in)
	syncErr := out.Sync()
	closeErr := out.Close()

	for _, err := range []error{copyErr, syncErr, closeErr} {
		if err != nil {
			_ = os.Remove(tmp)
			return err
		}
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp->final: %w", err)
	}
	return nil
}
