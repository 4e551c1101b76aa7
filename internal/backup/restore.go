package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bianoble/repo-guardian/internal/sandbox"
)

// Resolve finds a snapshot by directory name or path. The snapshot must live
// directly inside the backup directory.
func (m *Manager) Resolve(nameOrPath string) (Snapshot, error) {
	name := filepath.Base(nameOrPath)
	if filepath.IsAbs(nameOrPath) {
		if filepath.Clean(filepath.Dir(nameOrPath)) != m.dir {
			return Snapshot{}, fmt.Errorf("%s is not in the backup directory %s", nameOrPath, m.dir)
		}
	}

	repo, created, ok := ParseName(name)
	if !ok {
		return Snapshot{}, fmt.Errorf("%q is not a snapshot name (want {repository}_YYYYMMDD_HHMMSS)", name)
	}
	path, err := sandbox.ValidatePath(m.dir, name)
	if err != nil {
		return Snapshot{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", name, err)
	}
	if !info.IsDir() {
		return Snapshot{}, fmt.Errorf("snapshot %s is not a directory", name)
	}
	return Snapshot{Repository: repo, CreatedAt: created, Path: filepath.Join(m.dir, name)}, nil
}

// Restore copies snapshot nameOrPath to dest. A non-empty dest is refused
// unless force is set, in which case it is replaced. A dest inside the
// backup directory, or one containing it, is always refused.
func (m *Manager) Restore(nameOrPath, dest string, force bool) (Snapshot, error) {
	snap, err := m.Resolve(nameOrPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: resolving destination: %v", ErrBackupFailed, err)
	}
	overlap, err := sandbox.Overlaps(m.dir, absDest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: checking destination: %v", ErrBackupFailed, err)
	}
	if overlap {
		return Snapshot{}, fmt.Errorf("%w: destination %s overlaps the backup directory %s", ErrBackupFailed, dest, m.dir)
	}
	if entries, err := os.ReadDir(absDest); err == nil && len(entries) > 0 {
		if !force {
			return Snapshot{}, fmt.Errorf("%w: destination %s is not empty (use --force to replace it)", ErrBackupFailed, dest)
		}
		if err := os.RemoveAll(absDest); err != nil {
			return Snapshot{}, fmt.Errorf("%w: clearing destination: %v", ErrBackupFailed, err)
		}
	}

	if err := copyTree(m.fs, snap.Path, m.fs, absDest); err != nil {
		return Snapshot{}, fmt.Errorf("%w: restoring %s: %v", ErrBackupFailed, snap.Name(), err)
	}
	return snap, nil
}
