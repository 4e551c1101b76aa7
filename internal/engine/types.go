package engine

import (
	"errors"
	"sort"
	"time"

	"github.com/bianoble/repo-guardian/internal/backup"
	"github.com/bianoble/repo-guardian/internal/vcs"
)

// Sentinel errors carried by Outcome.Err. Match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrCloneFailed       = vcs.ErrCloneFailed
	ErrSyncFailed        = vcs.ErrSyncFailed
	ErrBackupFailed      = backup.ErrBackupFailed
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrCancelled         = errors.New("cancelled")
)

// Descriptor identifies one repository to process. Name must be unique
// within a run.
type Descriptor struct {
	Name      string
	URL       string
	LocalPath string
}

// Status is the final state of one repository.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage is a step of the per-repository pipeline.
type Stage string

const (
	StagePending    Stage = "pending"
	StageCloning    Stage = "cloning"
	StageSyncing    Stage = "syncing"
	StageBackingUp  Stage = "backing_up"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
)

// Outcome is the result of processing one repository.
type Outcome struct {
	Timestamp   time.Time
	Err         error
	Name        string
	Status      Status
	Branch      string
	HeadCommit  string
	BackupPath  string
	ErrorDetail string
	Attempts    int
	Cloned      bool
}

// ProgressEvent reports that a repository reached percent within stage.
type ProgressEvent struct {
	Repository string
	Stage      Stage
	Percent    int
}

// RunResult aggregates a RunAll call.
type RunResult struct {
	Started   time.Time
	Finished  time.Time
	Outcomes  map[string]Outcome
	Prune     *backup.PruneResult
	PruneErr  error
	Cancelled bool
}

// Names returns the repository names in sorted order.
func (r *RunResult) Names() []string {
	names := make([]string, 0, len(r.Outcomes))
	for n := range r.Outcomes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns how many outcomes have status s.
func (r *RunResult) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any repository failed.
func (r *RunResult) Failed() bool {
	return r.Count(StatusFailed) > 0
}
