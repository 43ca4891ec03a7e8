// Package backup implements checksum-verified file snapshotting: point-in-time
// copies of data files kept in a flat backup directory, identified by MD5
// checksum, with age-based retention.
package backup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// DefaultRetentionDays is the purge window applied when callers pass a
// non-positive max age.
const DefaultRetentionDays = 7

// Snapshot describes one backup file.
type Snapshot struct {
	Name       string
	SourcePath string
	Path       string
	Size       int64
	CreatedAt  time.Time
	Checksum   string
}

// Status summarises the backup directory.
type Status struct {
	Dir       string
	Count     int
	TotalSize int64
	Oldest    time.Time
	Newest    time.Time
}

// Service copies files into a dedicated backup directory and verifies them by
// checksum. The directory is explicit constructor state, not a process-wide
// implicit default.
type Service struct {
	dir string
	log *logger.Logger
}

// New creates the backup directory if needed and returns the service.
func New(dir string, log *logger.Logger) (*Service, error) {
	if dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if log == nil {
		log = logger.NewDefault("backup")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Service{dir: dir, log: log}, nil
}

// Dir returns the backup directory path.
func (s *Service) Dir() string { return s.dir }

// CreateSnapshot copies sourcePath into the backup directory and returns its
// metadata including the MD5 checksum of the copied bytes. When name is empty
// a timestamped name is derived from the source basename.
func (s *Service) CreateSnapshot(ctx context.Context, sourcePath, name string) (Snapshot, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("source file %s: %w", sourcePath, err)
	}
	if info.IsDir() {
		return Snapshot{}, fmt.Errorf("source %s is a directory", sourcePath)
	}

	createdAt := time.Now().UTC()
	if name == "" {
		name = snapshotName(filepath.Base(sourcePath), createdAt)
	}
	dest := filepath.Join(s.dir, name)

	size, err := copyFile(ctx, sourcePath, dest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("copy %s: %w", sourcePath, err)
	}

	sum, err := fileChecksum(dest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("checksum %s: %w", dest, err)
	}

	snap := Snapshot{
		Name:       name,
		SourcePath: sourcePath,
		Path:       dest,
		Size:       size,
		CreatedAt:  createdAt,
		Checksum:   sum,
	}
	s.log.WithField("snapshot", name).WithField("size", size).Info("snapshot created")
	return snap, nil
}

// CreateAll snapshots every regular file in dataDir. It fails on the first
// snapshot error; earlier snapshots remain.
func (s *Service) CreateAll(ctx context.Context, dataDir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory %s: %w", dataDir, err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		snap, err := s.CreateSnapshot(ctx, filepath.Join(dataDir, entry.Name()), "")
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// RestoreSnapshot overwrites targetPath with the named snapshot's bytes,
// creating the target if needed. A missing snapshot fails before the target
// is touched.
func (s *Service) RestoreSnapshot(ctx context.Context, snapshotName, targetPath string) error {
	src := filepath.Join(s.dir, filepath.Base(snapshotName))
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshotName, err)
	}
	if _, err := copyFile(ctx, src, targetPath); err != nil {
		return fmt.Errorf("restore %s: %w", snapshotName, err)
	}
	s.log.WithField("snapshot", snapshotName).WithField("target", targetPath).Info("snapshot restored")
	return nil
}

// ListSnapshots enumerates the backup directory. Entries whose metadata
// cannot be read are skipped rather than failing the listing.
func (s *Service) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.log.WithError(err).WithField("entry", entry.Name()).Warn("skipping unreadable backup entry")
			continue
		}
		snaps = append(snaps, Snapshot{
			Name:      entry.Name(),
			Path:      filepath.Join(s.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}
	return snaps, nil
}

// PurgeOlderThan deletes snapshots older than maxAgeDays (default 7) and
// returns how many were removed. Per-file deletion failures are logged and
// skipped; they do not fail the batch.
func (s *Service) PurgeOlderThan(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	snaps, err := s.ListSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, snap := range snaps {
		if !snap.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(snap.Path); err != nil {
			s.log.WithError(err).WithField("snapshot", snap.Name).Warn("failed to delete expired snapshot")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).WithField("max_age_days", maxAgeDays).Info("purged expired snapshots")
	}
	return deleted, nil
}

// VerifyIntegrity recomputes the snapshot's checksum and compares it with the
// expected value. A missing snapshot is reported as false, not as an error.
func (s *Service) VerifyIntegrity(ctx context.Context, snapshotName, expectedChecksum string) (bool, error) {
	path := filepath.Join(s.dir, filepath.Base(snapshotName))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat snapshot %s: %w", snapshotName, err)
	}

	sum, err := fileChecksum(path)
	if err != nil {
		return false, fmt.Errorf("checksum snapshot %s: %w", snapshotName, err)
	}
	return sum == expectedChecksum, nil
}

// Status reports the directory's aggregate state.
func (s *Service) Status(ctx context.Context) (Status, error) {
	snaps, err := s.ListSnapshots(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Dir: s.dir, Count: len(snaps)}
	for _, snap := range snaps {
		st.TotalSize += snap.Size
		if st.Oldest.IsZero() || snap.CreatedAt.Before(st.Oldest) {
			st.Oldest = snap.CreatedAt
		}
		if snap.CreatedAt.After(st.Newest) {
			st.Newest = snap.CreatedAt
		}
	}
	return st, nil
}

// snapshotName derives "<base>.backup-<timestamp>" with ':' and '.' in the
// RFC3339 timestamp replaced so the name is filesystem-safe everywhere.
func snapshotName(base string, at time.Time) string {
	ts := at.Format(time.RFC3339)
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return base + ".backup-" + ts
}

func copyFile(ctx context.Context, src, dst string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
