package rawstore

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when no file exists at the given path.
var ErrNotFound = fmt.Errorf("raw payload not found")

const backupMarker = ".bak."

// Store writes upstream payloads into a directory hierarchy mirroring the
// resource's natural hierarchy, e.g. raw/bill/117/HR/21/details.json. Before
// overwriting an existing file the old content is renamed to a
// timestamp-suffixed backup; writes go through a temp file and rename so a
// crash mid-write never corrupts the primary file.
type Store struct {
	root          string
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a store rooted at dir.
func New(dir string, retentionDays int, logger *slog.Logger) *Store {
	return &Store{
		root:          dir,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Save marshals payload as indented JSON and writes it under the joined path
// segments, returning the stored path. The final segment is the file name.
func (s *Store) Save(payload any, segments ...string) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("rawstore: no path segments")
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return s.SaveBytes(data, segments...)
}

// SaveBytes writes pre-encoded content under the joined path segments.
func (s *Store) SaveBytes(data []byte, segments ...string) (string, error) {
	path := s.path(segments...)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	// Back up the current file before it is replaced. The rename is atomic,
	// so a failed write below leaves the backup chain intact.
	if _, err := os.Stat(path); err == nil {
		stamp := s.now().Format("20060102_150405")
		backup := path + backupMarker + stamp
		if err := os.Rename(path, backup); err != nil {
			return "", fmt.Errorf("back up %s: %w", path, err)
		}
		s.logger.Debug("created backup", "path", backup)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize %s: %w", path, err)
	}

	return path, nil
}

// Load reads the JSON payload at the joined path segments into out. Returns
// ErrNotFound when the file does not exist.
func (s *Store) Load(out any, segments ...string) error {
	path := s.path(segments...)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LoadBytes reads raw content at the joined path segments, for non-JSON
// payloads such as cached bill XML. Returns ErrNotFound when absent.
func (s *Store) LoadBytes(segments ...string) ([]byte, error) {
	path := s.path(segments...)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Cleanup removes backup files older than the retention window. Primary
// files are never removed.
func (s *Store) Cleanup() (removed int, err error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)

	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.Contains(d.Name(), backupMarker) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("could not remove old backup", "path", path, "err", err)
				return nil
			}
			removed++
		}
		return nil
	})
	if walkErr != nil {
		return removed, fmt.Errorf("cleanup %s: %w", s.root, walkErr)
	}
	return removed, nil
}

func (s *Store) path(segments ...string) string {
	parts := append([]string{s.root}, segments...)
	return filepath.Join(parts...)
}
