// Package chat answers one utterance at a time: it classifies the utterance
// and, for data questions, drives it through target resolution, synthesis,
// repair, guarding, execution and shape classification.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/conversation"
	"github.com/duckmesh/tabletalk/internal/executor"
	"github.com/duckmesh/tabletalk/internal/guard"
	"github.com/duckmesh/tabletalk/internal/insights"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/repair"
	"github.com/duckmesh/tabletalk/internal/resolve"
	"github.com/duckmesh/tabletalk/internal/shape"
	"github.com/duckmesh/tabletalk/internal/synth"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (synth.Candidate, error)
}

type Executor interface {
	Execute(ctx context.Context, decision guard.Decision, entry catalog.Entry) (tablestore.Result, error)
}

type Dependencies struct {
	Catalog        catalog.Index
	Resolver       *resolve.Resolver
	Synthesizer    Synthesizer
	Repairer       *repair.Repairer
	Guard          *guard.Guard
	Executor       Executor
	Shape          shape.Config
	HistoryWindow  int
	// InsightsBudget bounds all statements of one statistics request.
	InsightsBudget time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

type Pipeline struct {
	deps Dependencies
}

func New(deps Dependencies) *Pipeline {
	if deps.Resolver == nil {
		deps.Resolver = resolve.New(1, 1)
	}
	if deps.Repairer == nil {
		deps.Repairer = repair.New()
	}
	if deps.Guard == nil {
		deps.Guard = guard.New()
	}
	if deps.HistoryWindow <= 0 {
		deps.HistoryWindow = 3
	}
	if deps.InsightsBudget <= 0 {
		deps.InsightsBudget = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = observability.DiscardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}
}

// Result is the executed statement and its rows.
type Result struct {
	StatementText string              `json:"statement"`
	Columns       []tablestore.Column `json:"columns"`
	Rows          [][]any             `json:"rows"`
	RowCount      int                 `json:"row_count"`
	Truncated     bool                `json:"truncated"`
	DurationMS    int64               `json:"duration_ms"`
}

type Choice struct {
	Number   int    `json:"number"`
	TargetID string `json:"target_id"`
	Label    string `json:"label"`
}

type Clarification struct {
	Question string   `json:"question"`
	Choices  []Choice `json:"choices"`
}

// Response is the answer to one utterance. Turn is the record the caller
// appends to the conversation.
type Response struct {
	Message       string            `json:"message"`
	Outcome       Outcome           `json:"outcome"`
	Result        *Result           `json:"result,omitempty"`
	Visualization *shape.Directive  `json:"visualization,omitempty"`
	Clarification *Clarification    `json:"clarification,omitempty"`
	Turn          conversation.Turn `json:"turn"`
}

// Respond answers u for userID. The only error returned is the caller's
// context error; every pipeline failure becomes an Outcome.
func (p *Pipeline) Respond(ctx context.Context, userID string, u conversation.Utterance) (Response, error) {
	text := strings.TrimSpace(u.Text)
	in := intentFor(text, u.History)
	logger := observability.StageLogger(ctx, p.deps.Logger, "respond").With(
		slog.String("conversation_id", u.History.ConversationID),
		slog.String("category", string(in.category())),
	)

	var resp Response
	switch intent := in.(type) {
	case chitChat:
		resp = p.answer(OutcomeOK, chitChatMessage)
	case editInstruction:
		resp = p.answer(OutcomeOK, editMessage)
	case metadataQuestion:
		resp = p.describe(ctx, userID, text, u.History, logger)
	case visualizationControl:
		resp = p.revisualize(ctx, intent.view, u.History, logger)
	case dataQuestion:
		resp = p.query(ctx, userID, text, u.History, logger)
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	resp.Turn.TurnID = uuid.NewString()
	resp.Turn.Utterance = text
	resp.Turn.Category = string(in.category())
	resp.Turn.Outcome = string(resp.Outcome)
	resp.Turn.CreatedAt = p.deps.Now().UTC()
	observability.ObserveTurn(resp.Turn.Category, resp.Turn.Outcome)
	logger.Info("turn answered",
		slog.String("outcome", string(resp.Outcome)),
		slog.String("target_id", resp.Turn.TargetID),
	)
	return resp, nil
}

func (p *Pipeline) answer(outcome Outcome, message string) Response {
	if message == "" {
		message = outcome.Message()
	}
	return Response{Outcome: outcome, Message: message}
}

func (p *Pipeline) query(ctx context.Context, userID, text string, history conversation.History, logger *slog.Logger) Response {
	entries, err := p.deps.Catalog.GetEntries(ctx, userID)
	if err != nil {
		logger.Error("catalog lookup failed", slog.String("error", err.Error()))
		return p.answer(OutcomeCatalogUnavailable, "")
	}
	resolution, err := p.deps.Resolver.Resolve(text, entries, history)
	if errors.Is(err, resolve.ErrNoTargets) {
		return p.answer(OutcomeNoTargets, "")
	}
	if resolution.Ambiguous {
		return clarify(resolution)
	}
	entry, ok := find(entries, resolution.TargetID)
	if !ok {
		return p.answer(OutcomeNoTargets, "")
	}
	question := pendingQuestion(text, resolution, history)
	logger = logger.With(slog.String("target_id", entry.TargetID), slog.String("resolved_by", string(resolution.Method)))
	if insights.Requested(question) {
		return p.profile(ctx, entry, question, logger)
	}

	candidate, err := p.deps.Synthesizer.Synthesize(ctx, synth.Request{
		Entry:     entry,
		Utterance: question,
		History:   history.Window(p.deps.HistoryWindow),
	})
	if err != nil {
		logger.Warn("synthesis failed", slog.String("error", err.Error()))
		return p.failed(OutcomeSynthesisFailure, entry.TargetID, "")
	}

	statement, err := p.deps.Repairer.Repair(repair.Input{
		Candidate:    candidate.Text,
		Entry:        entry,
		Utterance:    question,
		KnownTargets: entries,
	})
	if err != nil {
		logger.Warn("statement unrepairable", slog.String("error", err.Error()), slog.String("candidate", candidate.Text))
		return p.failed(OutcomeUnrepairable, entry.TargetID, "")
	}
	observability.ObserveRepairRules(statement.Applied)
	if len(statement.Applied) > 0 {
		logger.Debug("statement repaired", slog.Any("rules", statement.Applied))
	}

	return p.run(ctx, statement, entry, shape.View(""), logger)
}

// run guards, executes and shapes a statement. A timed out execution is
// retried once with the same inputs.
func (p *Pipeline) run(ctx context.Context, statement repair.Statement, entry catalog.Entry, view shape.View, logger *slog.Logger) Response {
	result, failure, ok := p.execute(ctx, statement, entry, true, logger)
	if !ok {
		return failure
	}

	directive := shape.Classify(result, p.deps.Shape)
	message := summarize(directive, result)
	if view != "" {
		overridden, ok := shape.Override(directive, view)
		if ok {
			directive = overridden
		} else {
			message = viewMismatchMessage(view) + " " + message
		}
	}

	return answered(message, statement.Text, result, directive, entry.TargetID)
}

func answered(message, statement string, result tablestore.Result, directive shape.Directive, targetID string) Response {
	return Response{
		Outcome: OutcomeOK,
		Message: message,
		Result: &Result{
			StatementText: statement,
			Columns:       result.Columns,
			Rows:          result.Rows,
			RowCount:      result.RowCount(),
			Truncated:     result.Truncated,
			DurationMS:    result.Duration.Milliseconds(),
		},
		Visualization: &directive,
		Turn: conversation.Turn{
			TargetID:   targetID,
			Statement:  statement,
			Visualized: directive.Tag == shape.TagCategoryCount || directive.Tag == shape.TagTimeSeries,
		},
	}
}

// execute guards and runs a statement. When ok is false the response
// carries the failure outcome.
func (p *Pipeline) execute(ctx context.Context, statement repair.Statement, entry catalog.Entry, retry bool, logger *slog.Logger) (tablestore.Result, Response, bool) {
	decision := p.deps.Guard.Check(statement, entry)
	if !decision.Passed {
		logger.Warn("statement rejected",
			slog.String("reason", string(decision.Reason)),
			slog.String("detail", decision.Detail),
			slog.String("statement", statement.Text),
		)
		return tablestore.Result{}, p.failed(OutcomeGuardRejected, entry.TargetID, ""), false
	}

	result, err := p.deps.Executor.Execute(ctx, decision, entry)
	if retry && errors.Is(err, executor.ErrTimeout) && ctx.Err() == nil {
		logger.Warn("execution timed out, retrying once")
		result, err = p.deps.Executor.Execute(ctx, decision, entry)
	}
	switch {
	case errors.Is(err, executor.ErrTimeout):
		return tablestore.Result{}, p.failed(OutcomeExecutionTimeout, entry.TargetID, statement.Text), false
	case errors.Is(err, tablestore.ErrRejected):
		observability.ObserveGuardRejection("parser")
		logger.Warn("statement rejected by engine parser", slog.String("error", err.Error()), slog.String("statement", statement.Text))
		return tablestore.Result{}, p.failed(OutcomeGuardRejected, entry.TargetID, ""), false
	case err != nil:
		logger.Error("execution failed", slog.String("error", err.Error()), slog.String("statement", statement.Text))
		return tablestore.Result{}, p.failed(OutcomeExecutionError, entry.TargetID, statement.Text), false
	}
	return result, Response{}, true
}

func (p *Pipeline) revisualize(ctx context.Context, view shape.View, history conversation.History, logger *slog.Logger) Response {
	if view == "" {
		return p.answer(OutcomeOK, colorMessage)
	}
	last, ok := history.LastStatement()
	if !ok {
		return p.answer(OutcomeOK, nothingToRedrawMessage)
	}
	entry, err := p.deps.Catalog.GetEntry(ctx, last.TargetID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return p.answer(OutcomeNoTargets, "")
	case err != nil:
		logger.Error("catalog lookup failed", slog.String("error", err.Error()))
		return p.answer(OutcomeCatalogUnavailable, "")
	}
	logger = logger.With(slog.String("target_id", entry.TargetID))
	return p.run(ctx, repair.Statement{Text: last.Statement, TargetID: entry.TargetID}, entry, view, logger)
}

func (p *Pipeline) failed(outcome Outcome, targetID, statement string) Response {
	resp := p.answer(outcome, "")
	resp.Turn.TargetID = targetID
	resp.Turn.Statement = statement
	return resp
}

func clarify(resolution resolve.Resolution) Response {
	choices := make([]Choice, 0, len(resolution.Candidates))
	for i, entry := range resolution.Candidates {
		choices = append(choices, Choice{Number: i + 1, TargetID: entry.TargetID, Label: entry.Label()})
	}
	question := OutcomeClarification.Message()
	return Response{
		Outcome:       OutcomeClarification,
		Message:       question + "\n" + resolve.Describe(resolution.Candidates),
		Clarification: &Clarification{Question: question, Choices: choices},
	}
}

// pendingQuestion returns the question a short dataset pick answers: after a
// clarifying question, "2" or "the deals file" refers back to the question
// asked before it.
func pendingQuestion(text string, resolution resolve.Resolution, history conversation.History) string {
	if !history.AwaitingTarget() {
		return text
	}
	if resolution.Method != resolve.MethodOrdinal && resolution.Method != resolve.MethodExplicit {
		return text
	}
	if len(resolve.Keywords(text)) > 2 {
		return text
	}
	turns := history.Window(1)
	if len(turns) == 0 || strings.TrimSpace(turns[0].Utterance) == "" {
		return text
	}
	return turns[0].Utterance
}

func find(entries []catalog.Entry, targetID string) (catalog.Entry, bool) {
	for _, entry := range entries {
		if entry.TargetID == targetID {
			return entry, true
		}
	}
	return catalog.Entry{}, false
}
