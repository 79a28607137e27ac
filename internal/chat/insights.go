package chat

import (
	"context"
	"log/slog"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/insights"
	"github.com/duckmesh/tabletalk/internal/repair"
	"github.com/duckmesh/tabletalk/internal/shape"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

type insightStep struct {
	section   string
	statement func() (string, bool)
	read      func(tablestore.Result) error
	// shown steps replace the result attached to the response.
	shown bool
}

// profile answers a statistics request with generated aggregate statements.
// The quality statement must succeed; any later section that fails is left
// out of the report.
func (p *Pipeline) profile(ctx context.Context, entry catalog.Entry, question string, logger *slog.Logger) Response {
	logger = logger.With(slog.String("branch", "insights"))
	ctx, cancel := context.WithTimeout(ctx, p.deps.InsightsBudget)
	defer cancel()

	report := insights.New(entry, question)
	steps := []insightStep{
		{section: "quality", statement: report.QualityStatement, read: report.ReadQuality, shown: true},
		{section: "profile", statement: report.ProfileStatement, read: report.ReadProfile, shown: true},
		{section: "outliers", statement: report.OutlierStatement, read: report.ReadOutliers},
		{section: "correlations", statement: report.CorrelationStatement, read: report.ReadCorrelations},
		{section: "trend", statement: report.TrendStatement, read: report.ReadTrend, shown: true},
	}

	var (
		shownText   string
		shownResult tablestore.Result
	)
	for i, step := range steps {
		if ctx.Err() != nil {
			logger.Warn("insights budget exhausted", slog.String("section", step.section))
			break
		}
		text, ok := step.statement()
		if !ok {
			continue
		}
		stepLogger := logger.With(slog.String("section", step.section))
		result, failure, ok := p.execute(ctx, repair.Statement{Text: text, TargetID: entry.TargetID}, entry, false, stepLogger)
		if ok {
			if err := step.read(result); err != nil {
				stepLogger.Error("insights result unreadable", slog.String("error", err.Error()), slog.String("statement", text))
				failure, ok = p.failed(OutcomeExecutionError, entry.TargetID, text), false
			}
		}
		if !ok {
			if i == 0 {
				return failure
			}
			stepLogger.Warn("insights section skipped")
			continue
		}
		if step.shown && len(result.Rows) > 0 {
			shownText, shownResult = text, result
		}
	}

	directive := shape.Classify(shownResult, p.deps.Shape)
	return answered(report.Message(), shownText, shownResult, directive, entry.TargetID)
}
