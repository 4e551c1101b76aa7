package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bianoble/repo-guardian/internal/backup"
	"github.com/bianoble/repo-guardian/internal/logging"
)

const (
	// DefaultConcurrency is used when Runner.Concurrency is zero.
	DefaultConcurrency = 4

	// MaxConcurrency caps Runner.Concurrency.
	MaxConcurrency = 10
)

// Processor handles a single repository. *Orchestrator implements it.
type Processor interface {
	ProcessOne(ctx context.Context, d Descriptor) Outcome
}

// Pruner applies the snapshot retention policy. *backup.Manager implements it.
type Pruner interface {
	Prune(maxKeep int) (*backup.PruneResult, error)
}

// Runner processes many repositories with a bounded number of workers.
type Runner struct {
	Processor Processor

	// Pruner is optional. When set, it runs once after every repository has
	// settled, unless the run was cancelled.
	Pruner Pruner

	// Concurrency is clamped to [1, MaxConcurrency]; zero selects
	// DefaultConcurrency.
	Concurrency int

	// KeepBackups is the number of snapshots per repository kept by the
	// final prune. Zero or less skips pruning.
	KeepBackups int

	Logger *slog.Logger
	Now    func() time.Time
}

// Workers returns the effective worker count.
func (r *Runner) Workers() int {
	switch {
	case r.Concurrency <= 0:
		return DefaultConcurrency
	case r.Concurrency > MaxConcurrency:
		return MaxConcurrency
	default:
		return r.Concurrency
	}
}

// RunAll processes every descriptor and returns one outcome per descriptor
// name. A failing repository never affects its siblings. Once ctx is
// cancelled, descriptors that have not started are recorded as cancelled
// without being started; running ones stop at their next checkpoint.
//
// The returned error is reserved for invalid input such as duplicate names.
func (r *Runner) RunAll(ctx context.Context, descriptors []Descriptor) (*RunResult, error) {
	if r.Processor == nil {
		return nil, fmt.Errorf("runner has no processor")
	}
	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: descriptor with empty name", ErrValidation)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: duplicate repository name '%s'", ErrValidation, d.Name)
		}
		seen[d.Name] = true
	}

	log := r.logger()
	workers := r.Workers()
	result := &RunResult{
		Outcomes: make(map[string]Outcome, len(descriptors)),
		Started:  r.now(),
	}
	log.Info("run started", "repositories", len(descriptors), "workers", workers)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)
	record := func(o Outcome) {
		mu.Lock()
		result.Outcomes[o.Name] = o
		mu.Unlock()
	}

	for _, d := range descriptors {
		acquired := false
		select {
		case sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			if acquired {
				<-sem
			}
			record(r.notStarted(d, ctx.Err()))
			continue
		}

		wg.Add(1)
		go func(d Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			record(r.process(ctx, d))
		}(d)
	}
	wg.Wait()

	result.Cancelled = ctx.Err() != nil
	switch {
	case result.Cancelled:
		log.Warn("run cancelled, skipping prune")
	case r.Pruner == nil:
	case r.KeepBackups <= 0:
		log.Info("pruning disabled", "keep_backups", r.KeepBackups)
	default:
		pr, err := r.Pruner.Prune(r.KeepBackups)
		result.Prune, result.PruneErr = pr, err
		if err != nil {
			log.Error("prune failed", "err", err)
		} else {
			log.Info("prune finished", "removed", len(pr.Removed), "errors", len(pr.Errors))
		}
	}

	result.Finished = r.now()
	log.Info("run finished",
		"success", result.Count(StatusSuccess),
		"failed", result.Count(StatusFailed),
		"cancelled", result.Count(StatusCancelled),
		"duration", result.Finished.Sub(result.Started))
	return result, nil
}

// process runs one descriptor, converting a panic into a failed outcome.
func (r *Runner) process(ctx context.Context, d Descriptor) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger().Error("panic recovered", "repo", d.Name, "panic", p)
			out = Outcome{
				Name:      d.Name,
				Status:    StatusFailed,
				Timestamp: r.now(),
				Err:       fmt.Errorf("panic while processing %s: %v", d.Name, p),
			}
			out.ErrorDetail = out.Err.Error()
		}
	}()

	out = r.Processor.ProcessOne(ctx, d)
	out.Name = d.Name
	return out
}

func (r *Runner) notStarted(d Descriptor, cause error) Outcome {
	err := fmt.Errorf("%w before start: %v", ErrCancelled, cause)
	return Outcome{
		Name:        d.Name,
		Status:      StatusCancelled,
		Timestamp:   r.now(),
		Err:         err,
		ErrorDetail: err.Error(),
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.Discard()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
