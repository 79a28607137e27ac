// Package synth drafts a candidate statement for a question by asking the
// completion oracle and pulling the statement out of its reply.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/conversation"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/oracle"
	"github.com/duckmesh/tabletalk/internal/sqltext"
)

var ErrNoStatement = errors.New("synth: reply contained no statement")

// Failure is returned once every attempt has been spent. Err is the error of
// the last attempt.
type Failure struct {
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("synth: no candidate after %d attempts: %v", f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type Request struct {
	Entry     catalog.Entry
	Utterance string
	History   []conversation.Turn
}

// Candidate is untrusted: Text is only shaped like a statement.
type Candidate struct {
	Text     string
	Raw      string
	Attempts int
}

type Config struct {
	Attempts      int
	Backoff       time.Duration
	Timeout       time.Duration
	HistoryWindow int
	SampleRows    int
}

func DefaultConfig() Config {
	return Config{
		Attempts:      2,
		Backoff:       300 * time.Millisecond,
		Timeout:       20 * time.Second,
		HistoryWindow: 3,
		SampleRows:    5,
	}
}

type Synthesizer struct {
	oracle oracle.Oracle
	cfg    Config
	logger *slog.Logger
}

func New(o oracle.Oracle, cfg Config, logger *slog.Logger) *Synthesizer {
	defaults := DefaultConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaults.Attempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = 0
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = defaults.SampleRows
	}
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Synthesizer{oracle: o, cfg: cfg, logger: logger}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (Candidate, error) {
	prompt, err := BuildPrompt(req, s.cfg.HistoryWindow, s.cfg.SampleRows)
	if err != nil {
		return Candidate{}, err
	}
	logger := observability.StageLogger(ctx, s.logger, "synthesize").With(slog.String("target_id", req.Entry.TargetID))

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if attempt > 1 && s.cfg.Backoff > 0 {
			timer := time.NewTimer(s.cfg.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Candidate{}, ctx.Err()
			case <-timer.C:
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		start := time.Now()
		raw, err := s.oracle.Complete(callCtx, prompt)
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Candidate{}, ctxErr
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, oracle.ErrTimeout) {
				err = errors.Join(oracle.ErrTimeout, err)
			}
			observability.ObserveOracleCall(oracleResult(err), time.Since(start))
			logger.Warn("oracle call failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			lastErr = err
			continue
		}

		text, ok := Extract(raw)
		if !ok {
			observability.ObserveOracleCall("no_statement", time.Since(start))
			logger.Warn("oracle reply had no statement", slog.Int("attempt", attempt), slog.Int("reply_bytes", len(raw)))
			lastErr = ErrNoStatement
			continue
		}
		observability.ObserveOracleCall("ok", time.Since(start))
		logger.Debug("candidate drafted", slog.Int("attempt", attempt))
		return Candidate{Text: text, Raw: raw, Attempts: attempt}, nil
	}
	return Candidate{}, &Failure{Attempts: s.cfg.Attempts, Err: lastErr}
}

func oracleResult(err error) string {
	switch {
	case errors.Is(err, oracle.ErrTimeout):
		return "timeout"
	case errors.Is(err, oracle.ErrEmpty):
		return "empty"
	default:
		return "unreachable"
	}
}

const systemInstruction = "You translate questions about one table into a single DuckDB SQL query. " +
	"DuckDB uses PostgreSQL-like SQL syntax. " +
	"Write exactly one read-only SELECT statement (a WITH clause is allowed). " +
	"Query only the table named in the context and no other table, file or function that reads files. " +
	"Wrap every table and column name in double quotes exactly as listed. " +
	"Return ONLY SQL. No markdown, no explanation."

type promptColumn struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Nullable       bool     `json:"nullable"`
	DistinctValues []string `json:"distinct_values,omitempty"`
}

type promptTurn struct {
	Question  string `json:"question"`
	Statement string `json:"sql,omitempty"`
}

type promptContext struct {
	Table      string         `json:"table"`
	Columns    []promptColumn `json:"columns"`
	SampleRows [][]any        `json:"sample_rows"`
	RowCount   int64          `json:"row_count"`
	Previous   []promptTurn   `json:"previous_turns,omitempty"`
}

// BuildPrompt renders the oracle prompt for req, keeping at most
// historyWindow trailing turns and sampleRows sample rows.
func BuildPrompt(req Request, historyWindow, sampleRows int) (oracle.Prompt, error) {
	pc := promptContext{
		Table:      req.Entry.TargetID,
		Columns:    make([]promptColumn, 0, len(req.Entry.Columns)),
		SampleRows: req.Entry.SampleRows,
		RowCount:   req.Entry.RowCount,
	}
	for _, column := range req.Entry.Columns {
		pc.Columns = append(pc.Columns, promptColumn{
			Name:           column.Name,
			Type:           string(column.Type),
			Nullable:       column.Nullable,
			DistinctValues: column.DistinctValues,
		})
	}
	if len(pc.SampleRows) > sampleRows {
		pc.SampleRows = pc.SampleRows[:sampleRows]
	}
	if pc.SampleRows == nil {
		pc.SampleRows = [][]any{}
	}
	history := req.History
	if historyWindow <= 0 {
		history = nil
	} else if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, turn := range history {
		pc.Previous = append(pc.Previous, promptTurn{Question: turn.Utterance, Statement: turn.Statement})
	}

	contextJSON, err := json.Marshal(pc)
	if err != nil {
		return oracle.Prompt{}, fmt.Errorf("marshal table context: %w", err)
	}
	user := fmt.Sprintf(
		"Table context (JSON):\n%s\n\nQuestion:\n%s\n\nRules:\n- Use only the table %s.\n- Use only listed columns.\n- Output a single SQL query only.",
		string(contextJSON),
		strings.TrimSpace(req.Utterance),
		sqltext.QuoteIdent(req.Entry.TargetID),
	)
	return oracle.Prompt{System: systemInstruction, User: user}, nil
}
