// Package backup creates, lists, prunes and restores timestamped snapshots
// of working copies.
//
// A snapshot of repository "demo" taken at 2024-01-02 15:04:05 lives at
// {baseDir}/demo_20240102_150405. Snapshots are copied into a hidden
// temporary directory first and renamed into place, so a visible snapshot
// is always complete.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// TimestampLayout is the time format embedded in snapshot names.
const TimestampLayout = "20060102_150405"

const tempPrefix = ".tmp-"

// ErrBackupFailed is wrapped by every snapshot creation and restore error.
var ErrBackupFailed = errors.New("backup failed")

var snapshotPattern = regexp.MustCompile(`^(.+)_(\d{8}_\d{6})$`)

// Snapshot is one completed backup directory.
type Snapshot struct {
	CreatedAt  time.Time
	Repository string
	Path       string
}

// Name returns the directory name of the snapshot.
func (s Snapshot) Name() string {
	return filepath.Base(s.Path)
}

// Manager owns a backup directory.
type Manager struct {
	dir string
	fs  billy.Filesystem

	// Now overrides the clock used to name snapshots.
	Now func() time.Time
}

// New returns a Manager for baseDir, creating the directory if needed.
func New(baseDir string) (*Manager, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving backup directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory %s: %w", abs, err)
	}
	// Rooted at "/" so symlink targets are copied verbatim instead of being
	// rewritten relative to a chroot.
	return &Manager{dir: abs, fs: osfs.New(string(filepath.Separator))}, nil
}

// Dir returns the absolute backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// SnapshotName returns the directory name for a snapshot of repository at t.
func SnapshotName(repository string, t time.Time) string {
	return repository + "_" + t.Format(TimestampLayout)
}

// ParseName splits a snapshot directory name into repository and timestamp.
// Timestamps are interpreted in local time, matching how they are written.
func ParseName(name string) (repository string, createdAt time.Time, ok bool) {
	m := snapshotPattern.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, m[2], time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], t, true
}

// validRepository rejects names that would escape the backup directory or
// be hidden from List and collide with temporary snapshots.
func validRepository(repository string) error {
	switch {
	case repository == "":
		return errors.New("repository name is empty")
	case strings.ContainsAny(repository, `/\`):
		return errors.New("repository name contains a path separator")
	case strings.HasPrefix(repository, "."):
		return errors.New("repository name starts with '.'")
	}
	return nil
}

// CreateSnapshot copies src into a new snapshot for repository.
// It fails if src is missing, if a snapshot with the same name already
// exists, or if the copy fails; no partial snapshot is left behind.
func (m *Manager) CreateSnapshot(src, repository string) (Snapshot, error) {
	fail := func(format string, args ...any) (Snapshot, error) {
		return Snapshot{}, fmt.Errorf("%w: %s: %s", ErrBackupFailed, repository, fmt.Sprintf(format, args...))
	}

	if err := validRepository(repository); err != nil {
		return fail("%v", err)
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fail("resolving source: %v", err)
	}
	info, err := os.Stat(absSrc)
	if err != nil {
		return fail("source %s: %v", src, err)
	}
	if !info.IsDir() {
		return fail("source %s is not a directory", src)
	}

	created := m.now()
	name := SnapshotName(repository, created)
	dest := filepath.Join(m.dir, name)
	if _, err := os.Lstat(dest); err == nil {
		return fail("snapshot %s already exists", name)
	}

	tmp, err := os.MkdirTemp(m.dir, tempPrefix+name+"-*")
	if err != nil {
		return fail("creating temp directory: %v", err)
	}
	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := copyTree(m.fs, absSrc, m.fs, tmp); err != nil {
		return fail("copying %s: %v", src, err)
	}
	if err := os.Chmod(tmp, info.Mode().Perm()|0700); err != nil {
		return fail("setting permissions: %v", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fail("finalizing snapshot: %v", err)
	}

	success = true
	return Snapshot{Repository: repository, CreatedAt: created.Truncate(time.Second), Path: dest}, nil
}

// List returns the snapshots of repository, newest first. An empty
// repository lists every snapshot. Entries that do not follow the naming
// convention are ignored.
func (m *Manager) List(repository string) ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Snapshot
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		repo, created, ok := ParseName(e.Name())
		if !ok || (repository != "" && repo != repository) {
			continue
		}
		out = append(out, Snapshot{Repository: repo, CreatedAt: created, Path: filepath.Join(m.dir, e.Name())})
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(s []Snapshot) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.After(s[j].CreatedAt)
		}
		return s[i].Path > s[j].Path
	})
}

// Size returns the total size in bytes of the regular files below path.
func (m *Manager) Size(path string) (int64, error) {
	return treeSize(m.fs, path)
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
