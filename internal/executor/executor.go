// Package executor runs guarded statements against the relational store under
// a row cap, a time budget and a process-wide concurrency cap.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/guard"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

var (
	ErrTimeout   = errors.New("executor: time budget exceeded")
	ErrNotPassed = errors.New("executor: statement was not passed by the guard")
)

type Kind string

const (
	KindUnavailable   Kind = "unavailable"
	KindTargetMissing Kind = "target_missing"
	KindRuntime       Kind = "runtime"
	KindRejected      Kind = "rejected"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	RowCap        int
	TimeBudget    time.Duration
	MaxConcurrent int
	// QueueWait bounds how long a statement waits for a free slot.
	QueueWait time.Duration
}

func DefaultConfig() Config {
	return Config{RowCap: 1000, TimeBudget: 10 * time.Second, MaxConcurrent: 8, QueueWait: 5 * time.Second}
}

type Executor struct {
	store  tablestore.Store
	cfg    Config
	slots  *semaphore.Weighted
	logger *slog.Logger
}

func New(store tablestore.Store, cfg Config, logger *slog.Logger) *Executor {
	defaults := DefaultConfig()
	if cfg.RowCap <= 0 {
		cfg.RowCap = defaults.RowCap
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = defaults.TimeBudget
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.QueueWait <= 0 {
		cfg.QueueWait = defaults.QueueWait
	}
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Executor{
		store:  store,
		cfg:    cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger,
	}
}

// Execute runs a passed decision against entry's relation. Truncation is
// reported on the result, never as an error.
func (e *Executor) Execute(ctx context.Context, decision guard.Decision, entry catalog.Entry) (tablestore.Result, error) {
	if !decision.Passed {
		return tablestore.Result{}, ErrNotPassed
	}
	if err := e.acquire(ctx); err != nil {
		return tablestore.Result{}, err
	}
	defer e.slots.Release(1)

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.TimeBudget)
	defer cancel()

	logger := observability.StageLogger(ctx, e.logger, "execute").With(slog.String("target_id", entry.TargetID))
	start := time.Now()
	result, err := e.store.Execute(execCtx, tablestore.Request{
		TargetID:   entry.TargetID,
		ObjectPath: entry.ObjectPath,
		Statement:  decision.Statement.Text,
		RowCap:     e.cfg.RowCap,
		TimeBudget: e.cfg.TimeBudget,
	})
	elapsed := time.Since(start)
	if err != nil {
		mapped := e.mapError(ctx, execCtx, err)
		observability.ObserveExecution(resultLabel(mapped), elapsed, false)
		logger.Warn("execution failed", slog.String("error", err.Error()), slog.Duration("duration", elapsed))
		return tablestore.Result{}, mapped
	}
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	observability.ObserveExecution("ok", elapsed, result.Truncated)
	logger.Debug("execution finished",
		slog.Int("rows", result.RowCount()),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("duration", elapsed),
	)
	return result, nil
}

// acquire takes an execution slot, giving up after QueueWait with ErrTimeout.
func (e *Executor) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.QueueWait)
	defer cancel()
	if err := e.slots.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		observability.ObserveExecution("queue_timeout", e.cfg.QueueWait, false)
		return fmt.Errorf("%w: no execution slot within %s", ErrTimeout, e.cfg.QueueWait)
	}
	return nil
}

func (e *Executor) mapError(parent, execCtx context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	var runtimeErr *tablestore.RuntimeError
	switch {
	case errors.Is(err, tablestore.ErrTimeout), errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, tablestore.ErrRejected):
		return &Error{Kind: KindRejected, Err: err}
	case errors.Is(err, tablestore.ErrTargetMissing):
		return &Error{Kind: KindTargetMissing, Err: err}
	case errors.As(err, &runtimeErr):
		return &Error{Kind: KindRuntime, Err: err}
	default:
		return &Error{Kind: KindUnavailable, Err: err}
	}
}

func resultLabel(err error) string {
	var execErr *Error
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &execErr):
		return string(execErr.Kind)
	default:
		return "cancelled"
	}
}
