package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bianoble/repo-guardian/internal/backup"
	"github.com/bianoble/repo-guardian/internal/vcs"
)

var syncTime = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

const headCommit = "0123456789abcdef0123456789abcdef01234567"

// fakeVCS simulates a remote by writing a small tree on clone.
type fakeVCS struct {
	mu sync.Mutex

	// cloneErrs and pullErrs are consumed one per call, keyed by URL and
	// path respectively. A nil entry means success.
	cloneErrs map[string][]error
	pullErrs  map[string][]error

	// onClone runs before a clone completes.
	onClone func(url string)

	// head overrides the HEAD reported after a pull; headErr fails it.
	head    *vcs.Head
	headErr error

	clones    int
	pulls     int
	headReads int
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{cloneErrs: map[string][]error{}, pullErrs: map[string][]error{}}
}

func (f *fakeVCS) HasCheckout(path string) bool {
	return vcs.HasCheckout(path)
}

func (f *fakeVCS) Clone(_ context.Context, url, dest string, progress vcs.ProgressFunc) error {
	f.mu.Lock()
	f.clones++
	err := pop(f.cloneErrs, url)
	hook := f.onClone
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if err != nil {
		return err
	}
	if progress != nil {
		progress(40)
	}
	if err := os.MkdirAll(filepath.Join(dest, ".git"), 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "README.md"), []byte(url+"\n"), 0644)
}

func (f *fakeVCS) FetchAndPull(_ context.Context, path string, progress vcs.ProgressFunc) (vcs.PullResult, error) {
	f.mu.Lock()
	f.pulls++
	err := pop(f.pullErrs, path)
	f.mu.Unlock()

	if err != nil {
		return vcs.PullResult{Status: vcs.PullFailed, Error: err.Error()}, err
	}
	if progress != nil {
		progress(50)
	}
	return vcs.PullResult{Status: vcs.PullSuccess, Timestamp: syncTime, Branch: "main", HeadCommit: headCommit}, nil
}

func (f *fakeVCS) HeadInfo(context.Context, string) (vcs.Head, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headReads++
	if f.headErr != nil {
		return vcs.Head{}, f.headErr
	}
	if f.head != nil {
		return *f.head, nil
	}
	return vcs.Head{Branch: "main", Commit: headCommit}, nil
}

func (f *fakeVCS) counts() (clones, pulls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clones, f.pulls
}

func pop(m map[string][]error, key string) error {
	q := m[key]
	if len(q) == 0 {
		return nil
	}
	m[key] = q[1:]
	return q[0]
}

// recordingSink keeps every event in arrival order.
type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (s *recordingSink) Progress(e ProgressEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) forRepo(name string) []ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ProgressEvent
	for _, e := range s.events {
		if e.Repository == name {
			out = append(out, e)
		}
	}
	return out
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) UpsertRepository(context.Context, string, string, string) (int64, error) {
	return 0, errors.New("database is locked")
}

func (failingStore) UpdateLastSync(context.Context, int64, time.Time) error {
	return errors.New("database is locked")
}

// failingBackups rejects every snapshot.
type failingBackups struct{}

func (failingBackups) CreateSnapshot(string, string) (backup.Snapshot, error) {
	return backup.Snapshot{}, errors.Join(backup.ErrBackupFailed, errors.New("disk full"))
}

// failingMirror rejects every upload.
type failingMirror struct{}

func (failingMirror) Upload(context.Context, backup.Snapshot) error {
	return errors.New("bucket unreachable")
}

// countingPruner records Prune calls.
type countingPruner struct {
	mu    sync.Mutex
	calls []int
}

func (p *countingPruner) Prune(maxKeep int) (*backup.PruneResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, maxKeep)
	return &backup.PruneResult{}, nil
}

// noSleep records backoff delays without waiting.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *noSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}
