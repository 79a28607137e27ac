package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/conversation"
	"github.com/duckmesh/tabletalk/internal/shape"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

const (
	chitChatMessage        = "Hi! Ask me anything about your uploaded datasets, for example \"how many rows does my file have?\""
	editMessage            = "I can only read your data, not change it. To change values, edit the file and upload it again."
	colorMessage           = "I can't change chart colours, but I can show the last result as a table, a bar chart or a line chart."
	nothingToRedrawMessage = "There is no result to redraw yet. Ask a question about your data first."
)

var (
	listingPattern    = regexp.MustCompile(`\b(files|datasets|tables|uploads)\b`)
	capabilityPattern = regexp.MustCompile(`\b(edit|modify|change|update)\b`)
)

// describe answers metadata questions from the catalog alone.
func (p *Pipeline) describe(ctx context.Context, userID, text string, history conversation.History, logger *slog.Logger) Response {
	lower := strings.ToLower(text)
	if capabilityPattern.MatchString(lower) {
		return p.answer(OutcomeOK, editMessage)
	}
	entries, err := p.deps.Catalog.GetEntries(ctx, userID)
	if err != nil {
		logger.Error("catalog lookup failed", slog.String("error", err.Error()))
		return p.answer(OutcomeCatalogUnavailable, "")
	}
	if len(entries) == 0 {
		return p.answer(OutcomeNoTargets, "")
	}
	if listingPattern.MatchString(lower) {
		return p.answer(OutcomeOK, listEntries(entries))
	}
	resolution, err := p.deps.Resolver.Resolve(text, entries, history)
	if err != nil || resolution.Ambiguous {
		return p.answer(OutcomeOK, listEntries(entries))
	}
	entry, ok := find(entries, resolution.TargetID)
	if !ok {
		return p.answer(OutcomeOK, listEntries(entries))
	}
	resp := p.answer(OutcomeOK, describeEntry(entry))
	resp.Turn.TargetID = entry.TargetID
	return resp
}

func listEntries(entries []catalog.Entry) string {
	var b strings.Builder
	if len(entries) == 1 {
		b.WriteString("You have 1 dataset:")
	} else {
		fmt.Fprintf(&b, "You have %d datasets:", len(entries))
	}
	for i, entry := range entries {
		fmt.Fprintf(&b, "\n%d. %s (%s, %s)", i+1, entry.Label(), plural(entry.RowCount, "row"), plural(int64(len(entry.Columns)), "column"))
	}
	return b.String()
}

func describeEntry(entry catalog.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %s and %s:", entry.Label(), plural(entry.RowCount, "row"), plural(int64(len(entry.Columns)), "column"))
	for _, column := range entry.Columns {
		details := []string{string(column.Type)}
		if column.Nullable {
			details = append(details, "may be empty")
		}
		if len(column.DistinctValues) > 0 {
			details = append(details, "values: "+strings.Join(column.DistinctValues, ", "))
		}
		fmt.Fprintf(&b, "\n- %s (%s)", column.Name, strings.Join(details, "; "))
	}
	return b.String()
}

func plural(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}

func summarize(d shape.Directive, result tablestore.Result) string {
	switch d.Tag {
	case shape.TagNarrative:
		return "No rows matched your question."
	case shape.TagSingleValue:
		return "The answer is " + formatValue(d.Value) + "."
	}
	message := "Here are the " + plural(int64(result.RowCount()), "row") + " I found."
	if result.RowCount() == 1 {
		message = "Here is the 1 row I found."
	}
	if result.Truncated {
		message += " The result was cut off at " + plural(int64(result.RowCount()), "row") + "; add a filter to see the rest."
	}
	return message
}

func viewMismatchMessage(view shape.View) string {
	return fmt.Sprintf("This result can't be drawn as a %s.", viewName(view))
}

func viewName(view shape.View) string {
	switch view {
	case shape.ViewBar:
		return "bar chart"
	case shape.ViewLine:
		return "line chart"
	default:
		return string(view)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "empty"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
