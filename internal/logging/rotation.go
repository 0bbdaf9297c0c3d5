package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig holds configuration for log rotation.
type RotationConfig struct {
	// MaxSizeMB is the size threshold in megabytes; 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept next to the live one.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotationConfig returns the rotation used when none is configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// RotatingWriter is an io.WriteCloser that renames the file to path.1 once
// it would exceed the configured size, shifting older backups up to
// MaxBackups. It is safe for concurrent use.
type RotatingWriter struct {
	mu     sync.Mutex
	path   string
	limit  int64
	cfg    RotationConfig
	file   *os.File
	size   int64
	gzipFn func(string) error
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:   path,
		limit:  int64(cfg.MaxSizeMB) * 1024 * 1024,
		cfg:    cfg,
		gzipFn: gzipFile,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would cross the size limit.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if rw.limit > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.limit {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "sharedsave: log rotation failed: %v\n", err)
			if rw.file == nil {
				return 0, err
			}
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// rotate must be called with mu held.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return err
	}
	rw.file = nil

	rw.shiftBackups()
	if rw.cfg.MaxBackups > 0 {
		first := rw.backup(1)
		if err := os.Rename(rw.path, first); err != nil {
			return errors.Join(err, rw.open())
		}
		if rw.cfg.Compress {
			go func() {
				if err := rw.gzipFn(first); err != nil {
					fmt.Fprintf(os.Stderr, "sharedsave: compress %s: %v\n", first, err)
				}
			}()
		}
	} else if err := os.Remove(rw.path); err != nil && !os.IsNotExist(err) {
		return errors.Join(err, rw.open())
	}
	return rw.open()
}

func (rw *RotatingWriter) shiftBackups() {
	if rw.cfg.MaxBackups <= 0 {
		return
	}
	oldest := rw.backup(rw.cfg.MaxBackups)
	_ = os.Remove(oldest)
	_ = os.Remove(oldest + ".gz")

	for i := rw.cfg.MaxBackups - 1; i >= 1; i-- {
		for _, ext := range []string{"", ".gz"} {
			from := rw.backup(i) + ext
			if _, err := os.Stat(from); err == nil {
				_ = os.Rename(from, rw.backup(i+1)+ext)
			}
		}
	}
}

func (rw *RotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// Close syncs and closes the file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	syncErr := rw.file.Sync()
	closeErr := rw.file.Close()
	rw.file = nil
	return errors.Join(syncErr, closeErr)
}

// Path returns the live log file path.
func (rw *RotatingWriter) Path() string {
	return rw.path
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}

	dst, err := os.Create(path + ".gz")
	if err != nil {
		_ = src.Close()
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = src.Close()
		_ = dst.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	// The source must be closed before removal on Windows.
	if err := errors.Join(zw.Close(), dst.Close(), src.Close()); err != nil {
		_ = os.Remove(path + ".gz")
		return err
	}
	return os.Remove(path)
}
