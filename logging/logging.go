package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

const (
	DefaultMaxSize = 2 * 1024 * 1024 // 2MB
	DefaultBackups = 1
)

var verbose atomic.Bool

// SetVerbose toggles Debugf output.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Verbose reports whether Debugf lines are written.
func Verbose() bool {
	return verbose.Load()
}

// Debugf logs only when verbose output is on.
func Debugf(format string, args ...any) {
	if !verbose.Load() {
		return
	}
	log.Output(2, "[debug] "+fmt.Sprintf(format, args...))
}

// RotatingWriter is a size-capped log file. Once it passes maxSize the file
// moves to path.1, older backups shift up and the oldest is dropped.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
	backups int
}

// Setup tees the standard logger to stdout and a rotating file.
func Setup(logPath string, maxSize int64, backups int) (*RotatingWriter, error) {
	rw, err := NewRotatingWriter(logPath, maxSize, backups)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(logPath string, maxSize int64, backups int) (*RotatingWriter, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if backups < 0 {
		backups = 0
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	w := &RotatingWriter{file: f, path: logPath, maxSize: maxSize, backups: backups}
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	}

	// An oversized file left by a previous process rotates before the first write.
	if w.size > maxSize {
		w.mu.Lock()
		w.rotate()
		w.mu.Unlock()
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if w.size > w.maxSize {
		w.rotate()
	}
	return n, err
}

func (w *RotatingWriter) backupName(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

// rotate must be called with mu held.
func (w *RotatingWriter) rotate() {
	w.file.Close()

	if w.backups == 0 {
		os.Remove(w.path)
	} else {
		os.Remove(w.backupName(w.backups))
		for i := w.backups - 1; i >= 1; i-- {
			os.Rename(w.backupName(i), w.backupName(i+1))
		}
		os.Rename(w.path, w.backupName(1))
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return
	}
	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
