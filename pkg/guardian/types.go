package guardian

import (
	"github.com/bianoble/repo-guardian/internal/backup"
	"github.com/bianoble/repo-guardian/internal/config"
	"github.com/bianoble/repo-guardian/internal/engine"
	"github.com/bianoble/repo-guardian/internal/report"
	"github.com/bianoble/repo-guardian/internal/store"
)

// Type aliases re-export internal types as the public API.
// Users import "github.com/bianoble/repo-guardian/pkg/guardian" and use
// guardian.RunResult, guardian.Snapshot, etc.

type Config = config.Config
type Descriptor = engine.Descriptor
type Outcome = engine.Outcome
type RunResult = engine.RunResult
type Status = engine.Status
type Stage = engine.Stage
type ProgressEvent = engine.ProgressEvent
type ProgressSink = engine.ProgressSink
type ProgressFunc = engine.ProgressFunc
type Snapshot = backup.Snapshot
type PruneResult = backup.PruneResult
type Repository = store.Repository
type Statistics = store.Statistics
type RunReport = report.RunReport

const (
	StatusSuccess   = engine.StatusSuccess
	StatusFailed    = engine.StatusFailed
	StatusCancelled = engine.StatusCancelled
)

// Sentinel errors carried by Outcome.Err.
var (
	ErrValidation        = engine.ErrValidation
	ErrCloneFailed       = engine.ErrCloneFailed
	ErrSyncFailed        = engine.ErrSyncFailed
	ErrBackupFailed      = engine.ErrBackupFailed
	ErrPersistenceFailed = engine.ErrPersistenceFailed
	ErrCancelled         = engine.ErrCancelled
)

// ErrRepositoryNotFound is returned by Client.Repository for unknown names.
var ErrRepositoryNotFound = store.ErrNotFound
