package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bianoble/repo-guardian/internal/sandbox"
)

// StaleTempAge is how old an abandoned temporary snapshot directory must be
// before Prune removes it.
const StaleTempAge = time.Hour

// PruneResult summarizes a Prune or Plan call.
type PruneResult struct {
	Removed []Snapshot
	Kept    []Snapshot
	Stale   []string
	Errors  []error
}

// Plan returns what Prune(maxKeep) would remove, without removing anything.
func (m *Manager) Plan(maxKeep int) (*PruneResult, error) {
	all, err := m.List("")
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]Snapshot)
	for _, s := range all {
		groups[s.Repository] = append(groups[s.Repository], s)
	}
	repos := make([]string, 0, len(groups))
	for r := range groups {
		repos = append(repos, r)
	}
	sort.Strings(repos)

	result := &PruneResult{}
	for _, r := range repos {
		snaps := groups[r]
		keep := maxKeep
		if keep < 0 {
			keep = 0
		}
		if keep > len(snaps) {
			keep = len(snaps)
		}
		result.Kept = append(result.Kept, snaps[:keep]...)
		result.Removed = append(result.Removed, snaps[keep:]...)
	}

	stale, err := m.staleTemps()
	if err != nil {
		return nil, err
	}
	result.Stale = stale
	return result, nil
}

// Prune keeps the maxKeep newest snapshots of every repository and removes
// the rest, together with stale temporary directories. Removal is best
// effort: a failed removal is recorded in Errors and pruning continues.
// Only a failure to read the backup directory is returned as an error.
func (m *Manager) Prune(maxKeep int) (*PruneResult, error) {
	plan, err := m.Plan(maxKeep)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Kept: plan.Kept}
	for _, s := range plan.Removed {
		if err := sandbox.SafeRemoveAll(m.dir, s.Name()); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("removing %s: %w", s.Name(), err))
			result.Kept = append(result.Kept, s)
			continue
		}
		result.Removed = append(result.Removed, s)
	}
	for _, name := range plan.Stale {
		if err := sandbox.SafeRemoveAll(m.dir, name); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("removing %s: %w", name, err))
			continue
		}
		result.Stale = append(result.Stale, name)
	}
	sortNewestFirst(result.Kept)
	return result, nil
}

func (m *Manager) staleTemps() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}
	cutoff := m.now().Add(-StaleTempAge)

	var stale []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := os.Lstat(filepath.Join(m.dir, e.Name()))
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		stale = append(stale, e.Name())
	}
	return stale, nil
}
