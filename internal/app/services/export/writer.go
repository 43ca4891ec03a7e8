// Package export serializes tenant datasets to shared CSV files. Concurrent
// writers to the same path coordinate through an advisory lock file with
// bounded retries and a staleness window, so one crashed writer cannot wedge
// the dataset forever.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// ErrLockTimeout reports that the advisory lock could not be acquired within
// the retry budget.
var ErrLockTimeout = errors.New("tabular write lock acquisition timed out")

const (
	defaultLockAttempts = 10
	defaultLockBaseWait = 50 * time.Millisecond
	defaultLockMaxWait  = 2 * time.Second
	defaultStaleAfter   = 30 * time.Second
)

// TabularWriter writes CSV files under an advisory per-path lock.
//
// The lock is a "<path>.lock" sidecar created with O_EXCL. A lock file older
// than the staleness window is treated as abandoned by a crashed writer and
// reclaimed. Reclamation trades strict mutual exclusion for liveness: it is a
// best-effort property, not a hard guarantee across crash scenarios.
type TabularWriter struct {
	attempts   int
	baseWait   time.Duration
	maxWait    time.Duration
	staleAfter time.Duration
	log        *logger.Logger
}

// Option customises a TabularWriter.
type Option func(*TabularWriter)

// WithLockRetry overrides the retry budget and backoff bounds.
func WithLockRetry(attempts int, baseWait, maxWait time.Duration) Option {
	return func(w *TabularWriter) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if baseWait > 0 {
			w.baseWait = baseWait
		}
		if maxWait > 0 {
			w.maxWait = maxWait
		}
	}
}

// WithStaleAfter overrides the lock staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(w *TabularWriter) {
		if d > 0 {
			w.staleAfter = d
		}
	}
}

// NewTabularWriter builds a writer with bounded lock retries.
func NewTabularWriter(log *logger.Logger, opts ...Option) *TabularWriter {
	if log == nil {
		log = logger.NewDefault("export")
	}
	w := &TabularWriter{
		attempts:   defaultLockAttempts,
		baseWait:   defaultLockBaseWait,
		maxWait:    defaultLockMaxWait,
		staleAfter: defaultStaleAfter,
		log:        log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteAll writes header plus records to path under the lock. With append
// false any existing file is replaced; with append true records are added
// after the existing content. The output always ends with a newline. The
// lock is released on every path; a release failure is logged but does not
// fail the write since the data is already committed.
func (w *TabularWriter) WriteAll(ctx context.Context, path string, header []string, records [][]string, appendMode bool) error {
	release, err := w.acquireLock(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	return w.writeAllLocked(path, header, records, appendMode)
}

// AppendOne adds a single record to path under the lock. When the file
// already holds data beyond a header line the record is appended as one
// escaped row; otherwise the file is (re)written as header plus the record.
func (w *TabularWriter) AppendOne(ctx context.Context, path string, header []string, record []string) error {
	release, err := w.acquireLock(ctx, path)
	if err != nil {
		return err
	}
	defer release()

	hasData, err := hasRecordsBeyondHeader(path)
	if err != nil {
		return err
	}
	if !hasData {
		return w.writeAllLocked(path, header, [][]string{record}, false)
	}

	if err := ensureTrailingNewline(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}

	cw := csv.NewWriter(f)
	writeErr := cw.Write(record)
	cw.Flush()
	if writeErr == nil {
		writeErr = cw.Error()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("append record to %s: %w", path, writeErr)
	}
	return nil
}

// writeAllLocked performs the write body; the caller must hold the lock.
func (w *TabularWriter) writeAllLocked(path string, header []string, records [][]string, appendMode bool) error {
	if !appendMode {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("truncate %s: %w", path, err)
		}
	}

	existing, err := os.Stat(path)
	writeHeader := appendMode && (os.IsNotExist(err) || (err == nil && existing.Size() == 0)) || !appendMode
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if appendMode && !writeHeader {
		if err := ensureTrailingNewline(path); err != nil {
			return err
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o640)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	var writeErr error
	if writeHeader {
		writeErr = cw.Write(header)
	}
	for _, rec := range records {
		if writeErr != nil {
			break
		}
		writeErr = cw.Write(rec)
	}
	cw.Flush()
	if writeErr == nil {
		writeErr = cw.Error()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("write %s: %w", path, writeErr)
	}
	return nil
}

// acquireLock takes the advisory lock for path with exponential backoff. The
// returned release function is safe on every exit path.
func (w *TabularWriter) acquireLock(ctx context.Context, path string) (func(), error) {
	lockPath := path + ".lock"
	wait := w.baseWait

	for attempt := 0; attempt < w.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err == nil {
			// Owner metadata helps post-mortems of reclaimed locks.
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339) + "\n")
			_ = f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					w.log.WithError(err).WithField("lock", lockPath).Warn("failed to release tabular lock")
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %s: %w", lockPath, err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > w.staleAfter {
				w.log.WithField("lock", lockPath).Warn("reclaiming stale tabular lock")
				_ = os.Remove(lockPath)
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > w.maxWait {
			wait = w.maxWait
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
}

// hasRecordsBeyondHeader reports whether path holds more than one line of
// content.
func hasRecordsBeyondHeader(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) == 1 && len(bytes.TrimSpace(lines[0])) == 0 {
		return false, nil
	}
	return len(lines) > 1, nil
}

// ensureTrailingNewline appends a newline when the file's last byte is not
// one, so appended rows never merge with the previous record.
func ensureTrailingNewline(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o640)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil {
		return err
	}
	if buf[0] == '\n' {
		return nil
	}
	_, err = f.WriteAt([]byte("\n"), info.Size())
	return err
}
