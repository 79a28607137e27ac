package repair

import (
	"strconv"
	"strings"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/sqltext"
)

// FilterRule adds a WHERE equality when the utterance quotes a known value of
// a column and the statement filters on nothing.
type FilterRule struct{}

func (FilterRule) Name() string { return "filter" }

func (FilterRule) Apply(text string, in Input) (string, error) {
	a := sqltext.Analyze(text)
	if !readOnly(a) || a.HasSetOperation() || a.Clause("FROM") < 0 || a.Clause("WHERE") >= 0 {
		return text, nil
	}
	column, value, ok := mentionedValue(in.Utterance, in.Entry)
	if !ok {
		return text, nil
	}
	for _, token := range a.Tokens {
		if token.Kind == sqltext.String && strings.EqualFold(token.Value(), value) {
			return text, nil
		}
	}
	clause := "WHERE " + sqltext.QuoteIdent(column) + " = " + sqltext.QuoteString(value)
	if at := clauseAfter(a, "GROUP", "HAVING", "QUALIFY", "WINDOW", "ORDER", "LIMIT", "OFFSET"); at >= 0 {
		return a.InsertBefore(at, clause), nil
	}
	return a.Append(clause), nil
}

// mentionedValue returns the longest distinct or sample value of a string
// column found as a phrase in the utterance.
func mentionedValue(utterance string, entry catalog.Entry) (string, string, bool) {
	lower := strings.ToLower(utterance)
	bestColumn, bestValue := "", ""
	for _, column := range entry.Columns {
		if column.Type != catalog.TypeString {
			continue
		}
		values := append(append([]string{}, column.DistinctValues...), entry.SampleValues(column.Name)...)
		for _, value := range values {
			if !filterable(value, entry) || len(value) <= len(bestValue) {
				continue
			}
			if containsPhrase(lower, strings.ToLower(value)) {
				bestColumn, bestValue = column.Name, value
			}
		}
	}
	return bestColumn, bestValue, bestValue != ""
}

func filterable(value string, entry catalog.Entry) bool {
	value = strings.TrimSpace(value)
	if len(value) < 3 {
		return false
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return false
	}
	_, isColumn := entry.Column(value)
	return !isColumn
}

func containsPhrase(text, phrase string) bool {
	from := 0
	for {
		index := strings.Index(text[from:], phrase)
		if index < 0 {
			return false
		}
		start := from + index
		end := start + len(phrase)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		from = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_')
}
