package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bianoble/repo-guardian/internal/backup"
	"github.com/bianoble/repo-guardian/internal/logging"
	"github.com/bianoble/repo-guardian/internal/repourl"
	"github.com/bianoble/repo-guardian/internal/retry"
	"github.com/bianoble/repo-guardian/internal/vcs"
)

// SnapshotCreator takes backups of working copies.
type SnapshotCreator interface {
	CreateSnapshot(src, repository string) (backup.Snapshot, error)
}

// RecordStore persists repository records and sync times.
type RecordStore interface {
	UpsertRepository(ctx context.Context, name, url, localPath string) (int64, error)
	UpdateLastSync(ctx context.Context, id int64, t time.Time) error
}

// Mirror copies a finished snapshot somewhere else.
type Mirror interface {
	Upload(ctx context.Context, snap backup.Snapshot) error
}

// Orchestrator drives one repository through validation, clone, sync,
// backup and persistence. It is safe for concurrent use as long as its
// collaborators are.
type Orchestrator struct {
	VCS       vcs.Client
	Validator *repourl.Validator
	Backups   SnapshotCreator

	// Records is optional; without it the persisting stage is skipped.
	Records RecordStore

	// Mirror is optional. Mirror failures are reported but not fatal.
	Mirror Mirror

	Progress ProgressSink
	Logger   *slog.Logger

	// Retry bounds clone and pull attempts. Sleep overrides the backoff wait.
	Retry retry.Policy
	Sleep retry.SleepFunc

	// OperationTimeout bounds each individual VCS attempt, mirror upload and
	// persistence step. Zero means no limit.
	OperationTimeout time.Duration

	Now func() time.Time
}

// task carries the per-repository state of one ProcessOne call.
type task struct {
	o   *Orchestrator
	ctx context.Context
	d   Descriptor
	log *slog.Logger
	out Outcome
}

// ProcessOne runs the pipeline for d and returns its outcome. It never
// panics and never returns an error; every failure is captured in the
// Outcome.
//
// Cancellation of ctx is observed between stages. A stage that has started
// runs to completion on a context detached from ctx, so a cancelled run
// never leaves a half-written clone or snapshot behind.
func (o *Orchestrator) ProcessOne(ctx context.Context, d Descriptor) (out Outcome) {
	t := &task{
		o:   o,
		ctx: ctx,
		d:   d,
		log: o.logger().With("repo", d.Name),
		out: Outcome{Name: d.Name},
	}
	defer func() {
		t.finish(recover())
		out = t.out
	}()

	t.run()
	return t.out
}

func (t *task) run() {
	// pending
	if t.cancelled(StagePending) {
		return
	}
	t.emit(StagePending, 0)
	if err := t.validate(); err != nil {
		t.fail(StagePending, err)
		return
	}
	t.emit(StagePending, 100)

	// cloning
	if !t.o.VCS.HasCheckout(t.d.LocalPath) {
		if t.cancelled(StageCloning) {
			return
		}
		t.emit(StageCloning, 0)
		t.log.Info("cloning", "url", t.d.URL, "dest", t.d.LocalPath)
		err := t.withRetry(StageCloning, func(ctx context.Context) error {
			return t.o.VCS.Clone(ctx, t.d.URL, t.d.LocalPath, t.forward(StageCloning))
		})
		if err != nil {
			t.fail(StageCloning, err)
			return
		}
		t.out.Cloned = true
		t.emit(StageCloning, 100)
	}

	// syncing
	if t.cancelled(StageSyncing) {
		return
	}
	t.emit(StageSyncing, 0)
	var pulled vcs.PullResult
	err := t.withRetry(StageSyncing, func(ctx context.Context) error {
		var err error
		pulled, err = t.o.VCS.FetchAndPull(ctx, t.d.LocalPath, t.forward(StageSyncing))
		return err
	})
	if err != nil {
		t.fail(StageSyncing, err)
		return
	}
	t.out.Timestamp = pulled.Timestamp
	if t.out.Timestamp.IsZero() {
		t.out.Timestamp = t.o.now()
	}
	t.out.Branch = pulled.Branch
	t.out.HeadCommit = pulled.HeadCommit
	t.readHead()
	t.log.Info("synced", "branch", t.out.Branch, "commit", shortHash(t.out.HeadCommit), "up_to_date", pulled.UpToDate)
	t.emit(StageSyncing, 100)

	// backing_up
	if t.cancelled(StageBackingUp) {
		return
	}
	t.emit(StageBackingUp, 0)
	snap, err := t.o.Backups.CreateSnapshot(t.d.LocalPath, t.d.Name)
	if err != nil {
		t.fail(StageBackingUp, err)
		return
	}
	t.out.BackupPath = snap.Path
	t.log.Info("snapshot created", "path", snap.Path)
	if t.o.Mirror != nil {
		ctx, cancel := t.stageContext()
		if err := t.o.Mirror.Upload(ctx, snap); err != nil {
			t.log.Warn("mirror upload failed", "err", err)
			t.addDetail("mirror upload failed: " + err.Error())
		}
		cancel()
	}
	t.emit(StageBackingUp, 100)

	// persisting
	if t.cancelled(StagePersisting) {
		return
	}
	t.out.Status = StatusSuccess
	if t.o.Records == nil {
		return
	}
	t.emit(StagePersisting, 0)
	if err := t.persist(t.out.Timestamp); err != nil {
		// The snapshot and working copy are already updated; keep the
		// success and surface the store failure alongside it.
		t.log.Error("persistence failed", "err", err)
		t.out.Err = fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
		t.addDetail(t.out.Err.Error())
		return
	}
	t.emit(StagePersisting, 100)
}

// readHead records the checked-out branch and commit the snapshot will
// capture. On failure the values reported by the pull are kept.
func (t *task) readHead() {
	ctx, cancel := t.stageContext()
	defer cancel()
	head, err := t.o.VCS.HeadInfo(ctx, t.d.LocalPath)
	if err != nil {
		t.log.Warn("reading HEAD failed", "err", err)
		return
	}
	t.out.Branch = head.Branch
	t.out.HeadCommit = head.Commit
}

// addDetail appends a non-fatal problem to the outcome's error detail.
func (t *task) addDetail(msg string) {
	if t.out.ErrorDetail == "" {
		t.out.ErrorDetail = msg
		return
	}
	t.out.ErrorDetail += "; " + msg
}

func (t *task) validate() error {
	switch {
	case t.d.Name == "":
		return fmt.Errorf("%w: repository name is empty", ErrValidation)
	case t.d.LocalPath == "":
		return fmt.Errorf("%w: local path is empty", ErrValidation)
	}
	v := t.o.Validator
	if v == nil {
		v = repourl.New()
	}
	if _, err := v.Normalize(t.d.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (t *task) persist(syncedAt time.Time) error {
	ctx, cancel := t.stageContext()
	defer cancel()

	id, err := t.o.Records.UpsertRepository(ctx, t.d.Name, t.d.URL, t.d.LocalPath)
	if err != nil {
		return err
	}
	return t.o.Records.UpdateLastSync(ctx, id, syncedAt)
}

// withRetry runs op under the retry policy. Each attempt gets a detached,
// optionally time-limited context; backoff sleeps stop when the run is
// cancelled.
func (t *task) withRetry(stage Stage, op func(ctx context.Context) error) error {
	exec := &retry.Executor{
		Policy: t.o.Retry,
		Sleep:  t.o.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			t.log.Warn("attempt failed, retrying", "stage", stage, "attempt", attempt+1, "delay", delay, "err", err)
		},
	}
	return exec.Do(t.ctx, func(context.Context) error {
		t.out.Attempts++
		ctx, cancel := t.stageContext()
		defer cancel()
		return op(ctx)
	})
}

func (t *task) stageContext() (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(t.ctx)
	if t.o.OperationTimeout > 0 {
		return context.WithTimeout(ctx, t.o.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

// cancelled is the checkpoint run before entering stage.
func (t *task) cancelled(stage Stage) bool {
	if t.ctx.Err() == nil {
		return false
	}
	t.markCancelled(stage, t.ctx.Err())
	return true
}

func (t *task) markCancelled(stage Stage, cause error) {
	t.out.Status = StatusCancelled
	t.out.Err = fmt.Errorf("%w before %s: %v", ErrCancelled, stage, cause)
	t.out.ErrorDetail = t.out.Err.Error()
	t.log.Info("cancelled", "stage", stage)
}

func (t *task) fail(stage Stage, err error) {
	// A backoff interrupted by cancellation is a cancellation, not a failure.
	if t.ctx.Err() != nil && errors.Is(err, t.ctx.Err()) {
		t.out.Status = StatusCancelled
		t.out.Err = fmt.Errorf("%w during %s: %w", ErrCancelled, stage, err)
		t.out.ErrorDetail = t.out.Err.Error()
		t.log.Info("cancelled", "stage", stage)
		return
	}
	t.out.Status = StatusFailed
	t.out.Err = err
	t.out.ErrorDetail = err.Error()
	t.log.Error("failed", "stage", stage, "err", err)
}

func (t *task) finish(r any) {
	if r != nil {
		t.out.Status = StatusFailed
		t.out.Err = fmt.Errorf("panic while processing %s: %v", t.d.Name, r)
		t.out.ErrorDetail = t.out.Err.Error()
		t.log.Error("panic recovered", "panic", r)
	}
	if t.out.Status == "" {
		t.out.Status = StatusFailed
	}
	if t.out.Timestamp.IsZero() {
		t.out.Timestamp = t.o.now()
	}
	t.emit(StageDone, 100)
}

func (t *task) emit(stage Stage, percent int) {
	if t.o.Progress == nil {
		return
	}
	t.o.Progress.Progress(ProgressEvent{Repository: t.d.Name, Stage: stage, Percent: percent})
}

func (t *task) forward(stage Stage) vcs.ProgressFunc {
	if t.o.Progress == nil {
		return nil
	}
	return func(p int) { t.emit(stage, p) }
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logging.Discard()
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
