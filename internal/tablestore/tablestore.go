package tablestore

import (
	"context"
	"errors"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
)

var (
	ErrTimeout       = errors.New("tablestore: time budget exceeded")
	ErrTargetMissing = errors.New("tablestore: target missing")
	ErrUnavailable   = errors.New("tablestore: unavailable")
	// ErrRejected marks a statement the engine's parser does not accept as a
	// single read-only query over the target.
	ErrRejected = errors.New("tablestore: statement rejected")
)

// RuntimeError wraps a failure raised by the engine while running a statement.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return "tablestore: runtime error: " + e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

type Request struct {
	TargetID   string
	ObjectPath string
	Statement  string
	// RowCap bounds the returned rows; zero means unbounded.
	RowCap     int
	TimeBudget time.Duration
}

type Column struct {
	Name string             `json:"name"`
	Type catalog.ScalarType `json:"type"`
}

type Result struct {
	Columns   []Column
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

func (r Result) RowCount() int {
	return len(r.Rows)
}

func (r Result) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns))
	for _, column := range r.Columns {
		names = append(names, column.Name)
	}
	return names
}

type Store interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
