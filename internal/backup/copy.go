package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// copyTree copies everything below srcRoot on src to dstRoot on dst.
// Directories and files keep their permission bits and modification times;
// symlinks are recreated as links with the same target.
func copyTree(src billy.Filesystem, srcRoot string, dst billy.Filesystem, dstRoot string) error {
	if err := dst.MkdirAll(dstRoot, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dstRoot, err)
	}

	var dirs []dirTimes
	err := util.Walk(src, srcRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := dst.Join(dstRoot, rel)

		switch mode := info.Mode(); {
		case mode&os.ModeSymlink != 0:
			return copySymlink(src, path, dst, target)
		case mode.IsDir():
			if err := dst.MkdirAll(target, mode.Perm()|0700); err != nil {
				return fmt.Errorf("creating directory %s: %w", rel, err)
			}
			dirs = append(dirs, dirTimes{path: target, mode: mode.Perm() | 0700, info: info})
			return nil
		case mode.IsRegular():
			return copyFile(src, path, dst, target, info)
		default:
			// Sockets, devices and pipes have no place in a backup.
			return nil
		}
	})
	if err != nil {
		return err
	}

	// Directory times are applied last; writing children bumps them. The
	// owner always keeps rwx so snapshots stay prunable.
	for i := len(dirs) - 1; i >= 0; i-- {
		applyMeta(dst, dirs[i].path, dirs[i].mode, dirs[i].info)
	}
	return nil
}

type dirTimes struct {
	path string
	mode os.FileMode
	info os.FileInfo
}

func copyFile(src billy.Filesystem, from string, dst billy.Filesystem, to string, info os.FileInfo) error {
	in, err := src.Open(from)
	if err != nil {
		return fmt.Errorf("opening %s: %w", from, err)
	}
	defer func() { _ = in.Close() }()

	out, err := dst.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", from, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", to, err)
	}

	applyMeta(dst, to, info.Mode().Perm(), info)
	return nil
}

func copySymlink(src billy.Filesystem, from string, dst billy.Filesystem, to string) error {
	target, err := src.Readlink(from)
	if err != nil {
		return fmt.Errorf("reading link %s: %w", from, err)
	}
	if err := dst.Symlink(target, to); err != nil {
		return fmt.Errorf("creating link %s: %w", to, err)
	}
	return nil
}

// applyMeta sets mode and modification time where the filesystem supports it.
func applyMeta(fs billy.Filesystem, path string, mode os.FileMode, info os.FileInfo) {
	ch, ok := fs.(billy.Change)
	if !ok {
		return
	}
	_ = ch.Chmod(path, mode)
	_ = ch.Chtimes(path, info.ModTime(), info.ModTime())
}

// treeSize sums the sizes of the regular files below root.
func treeSize(fs billy.Filesystem, root string) (int64, error) {
	var total int64
	err := util.Walk(fs, root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
