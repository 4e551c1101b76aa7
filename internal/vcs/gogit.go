package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/bianoble/repo-guardian/internal/retry"
)

// GoGit implements Client with go-git. No git binary is required for
// HTTP(S) remotes.
type GoGit struct {
	// Auth resolves credentials per remote. Nil means anonymous.
	Auth AuthProvider

	// Depth makes clones shallow when greater than zero.
	Depth int

	// Now overrides the clock stamped on pull results.
	Now func() time.Time
}

var _ Client = (*GoGit)(nil)

// HasCheckout implements Client.
func (g *GoGit) HasCheckout(path string) bool {
	return HasCheckout(path)
}

// Clone implements Client.
func (g *GoGit) Clone(ctx context.Context, url, dest string, progress ProgressFunc) error {
	fail := func(err error, hint string) error {
		_ = os.RemoveAll(dest)
		return classify(&OpError{Op: "clone", Target: url, Kind: ErrCloneFailed, Err: err, Hint: hint})
	}

	if err := os.RemoveAll(dest); err != nil {
		return fail(fmt.Errorf("clearing destination: %w", err), "")
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fail(fmt.Errorf("creating destination: %w", err), "")
	}

	auth, err := g.method(url)
	if err != nil {
		return fail(err, "check auth settings")
	}

	_, err = git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:      url,
		Auth:     auth,
		Depth:    g.Depth,
		Progress: g.progressSink(progress),
	})
	if err != nil {
		return fail(err, hintFor(err))
	}
	return nil
}

// FetchAndPull implements Client.
func (g *GoGit) FetchAndPull(ctx context.Context, path string, progress ProgressFunc) (PullResult, error) {
	fail := func(op string, err error, hint string) (PullResult, error) {
		opErr := classify(&OpError{Op: op, Target: path, Kind: ErrSyncFailed, Err: err, Hint: hint})
		return PullResult{Timestamp: g.now(), Status: PullFailed, Error: opErr.Error()}, opErr
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return fail("open", err, "the working copy may be damaged; remove it to force a fresh clone")
	}

	remote, err := repo.Remote(DefaultRemoteName)
	if err != nil {
		return fail("fetch", err, "")
	}
	var remoteURL string
	if urls := remote.Config().URLs; len(urls) > 0 {
		remoteURL = urls[0]
	}
	auth, err := g.method(remoteURL)
	if err != nil {
		return fail("fetch", err, "check auth settings")
	}

	upToDate := false
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: DefaultRemoteName,
		Auth:       auth,
	})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		upToDate = true
	case err != nil:
		return fail("fetch", err, hintFor(err))
	}
	report(progress, 50)

	wt, err := repo.Worktree()
	if err != nil {
		return fail("pull", err, "")
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName: DefaultRemoteName,
		Auth:       auth,
	})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
	case err != nil:
		return fail("pull", err, hintFor(err))
	default:
		upToDate = false
	}
	report(progress, 100)

	head, err := headOf(repo)
	if err != nil {
		return fail("pull", err, "")
	}
	return PullResult{
		Timestamp:  g.now(),
		Status:     PullSuccess,
		Branch:     head.Branch,
		HeadCommit: head.Commit,
		UpToDate:   upToDate,
	}, nil
}

// HeadInfo implements Client.
func (g *GoGit) HeadInfo(_ context.Context, path string) (Head, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return Head{}, &OpError{Op: "open", Target: path, Kind: ErrSyncFailed, Err: err}
	}
	head, err := headOf(repo)
	if err != nil {
		return Head{}, &OpError{Op: "head", Target: path, Kind: ErrSyncFailed, Err: err}
	}
	return head, nil
}

func headOf(repo *git.Repository) (Head, error) {
	ref, err := repo.Head()
	if err != nil {
		return Head{}, fmt.Errorf("reading HEAD: %w", err)
	}
	branch := plumbing.HEAD.String()
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	return Head{Branch: branch, Commit: ref.Hash().String()}, nil
}

func (g *GoGit) method(remoteURL string) (transport.AuthMethod, error) {
	if g.Auth == nil || remoteURL == "" {
		return nil, nil
	}
	m, err := g.Auth.Method(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}
	return m, nil
}

func (g *GoGit) progressSink(fn ProgressFunc) io.Writer {
	if fn == nil {
		return nil
	}
	return newProgressWriter(fn)
}

func (g *GoGit) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// classify marks errors that no amount of retrying will fix.
func classify(err *OpError) error {
	if isPermanent(err.Err) {
		return retry.Permanent(err)
	}
	return err
}

func isPermanent(err error) bool {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, git.ErrRepositoryNotExists),
		errors.Is(err, git.ErrNonFastForwardUpdate),
		errors.Is(err, git.ErrWorktreeNotClean):
		return true
	}
	return false
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return "check the repository URL"
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return "check the token named by auth.token_env"
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return "local history diverged from the remote"
	case errors.Is(err, git.ErrWorktreeNotClean):
		return "the working copy has local changes"
	}
	return ""
}
