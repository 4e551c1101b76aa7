// Package vcs wraps the version-control operations repo-guardian needs:
// clone, fetch-and-pull, and reading HEAD. Every call makes exactly one
// attempt; callers decide whether and how to retry.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultRemoteName is the remote fetched and pulled from.
const DefaultRemoteName = "origin"

// Sentinel errors. Every error returned by a Client matches one of them
// under errors.Is.
var (
	ErrCloneFailed = errors.New("clone failed")
	ErrSyncFailed  = errors.New("sync failed")
)

// ProgressFunc receives completion percentages in [0, 100].
type ProgressFunc func(percent int)

// Client is the version-control capability used by the sync orchestrator.
type Client interface {
	// HasCheckout reports whether path already holds a working copy.
	HasCheckout(path string) bool

	// Clone replaces whatever is at dest with a fresh clone of url.
	// On failure dest is removed.
	Clone(ctx context.Context, url, dest string, progress ProgressFunc) error

	// FetchAndPull fetches from the remote and fast-forwards the current
	// branch. A working copy that is already up to date is a success.
	FetchAndPull(ctx context.Context, path string, progress ProgressFunc) (PullResult, error)

	// HeadInfo reads the checked-out branch and commit.
	HeadInfo(ctx context.Context, path string) (Head, error)
}

// PullStatus is the result state of FetchAndPull.
type PullStatus string

const (
	PullSuccess PullStatus = "success"
	PullFailed  PullStatus = "failed"
)

// PullResult describes one FetchAndPull call.
type PullResult struct {
	Timestamp  time.Time
	Status     PullStatus
	Branch     string
	HeadCommit string
	Error      string
	UpToDate   bool
}

// Head identifies the checked-out state of a working copy. Branch is
// "HEAD" when detached.
type Head struct {
	Branch string
	Commit string
}

// OpError records a failed operation against a repository.
type OpError struct {
	Op     string
	Target string
	Kind   error
	Err    error
	Hint   string
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Target, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// HasCheckout reports whether path contains a .git entry.
func HasCheckout(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

func report(progress ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
}
