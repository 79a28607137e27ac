package repair

import (
	"regexp"
	"strings"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/sqltext"
)

var (
	byPattern   = regexp.MustCompile(`\b(?:by|per|for each|for every)\s+((?:[\p{L}\p{N}_]+\s*){1,3})`)
	sortedBy    = regexp.MustCompile(`\b(?:sort|sorted|order|ordered|rank|ranked|sorting|ordering)\s*$`)
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// GroupRule adds the GROUP BY an aggregate needs: the column named after
// "by" in the utterance, plus any bare column projected next to the
// aggregate.
type GroupRule struct{}

func (GroupRule) Name() string { return "group" }

func (GroupRule) Apply(text string, in Input) (string, error) {
	a := sqltext.Analyze(text)
	if !groupable(a) {
		return text, nil
	}
	items := a.SelectItems()
	hasAggregate := false
	for _, item := range items {
		if sqltext.ContainsAggregate(item) {
			hasAggregate = true
			break
		}
	}
	if !hasAggregate {
		return text, nil
	}

	if column, ok := groupColumn(in.Utterance, in.Entry); ok && !projects(items, column) {
		text = a.InsertBefore(a.SelectListStart(), sqltext.QuoteIdent(column)+",")
		a = sqltext.Analyze(text)
		items = a.SelectItems()
	}

	grouping := make([]string, 0)
	for _, item := range items {
		if name, ok := sqltext.BareColumn(item); ok {
			grouping = append(grouping, sqltext.QuoteIdent(name))
		}
	}
	if len(grouping) == 0 {
		return text, nil
	}
	clause := "GROUP BY " + strings.Join(grouping, ", ")
	if at := clauseAfter(a, "HAVING", "QUALIFY", "WINDOW", "ORDER", "LIMIT", "OFFSET"); at >= 0 {
		return a.InsertBefore(at, clause), nil
	}
	return a.Append(clause), nil
}

func groupable(a *sqltext.Analysis) bool {
	if !readOnly(a) || a.HasSetOperation() || a.Clause("FROM") < 0 || a.Clause("GROUP") >= 0 {
		return false
	}
	start := a.SelectListStart()
	if start < 0 || a.Tokens[start].Is("DISTINCT") {
		return false
	}
	for _, token := range a.Tokens {
		if token.Is("OVER") {
			return false
		}
	}
	return true
}

func projects(items [][]sqltext.Token, column string) bool {
	for _, item := range items {
		if name, ok := sqltext.BareColumn(item); ok && strings.EqualFold(name, column) {
			return true
		}
		// "stage" AS s still projects the column.
		if len(item) == 3 && item[1].Is("AS") {
			if name, ok := sqltext.BareColumn(item[:1]); ok && strings.EqualFold(name, column) {
				return true
			}
		}
	}
	return false
}

// groupColumn finds the column named after "by", "per" or "for each" in the
// utterance. Sorting phrases like "sorted by" do not count.
func groupColumn(utterance string, entry catalog.Entry) (string, bool) {
	lower := strings.ToLower(utterance)
	for _, match := range byPattern.FindAllStringSubmatchIndex(lower, -1) {
		if sortedBy.MatchString(strings.TrimSpace(lower[:match[0]])) {
			continue
		}
		words := wordPattern.FindAllString(lower[match[2]:match[3]], -1)
		for n := len(words); n >= 1; n-- {
			if column, ok := columnNamed(words[:n], entry); ok {
				return column, true
			}
		}
	}
	return "", false
}

func columnNamed(words []string, entry catalog.Entry) (string, bool) {
	phrase := normalizeName(strings.Join(words, ""))
	singularPhrase := normalizeName(strings.Join(append(append([]string{}, words[:len(words)-1]...), singular(words[len(words)-1])), ""))
	for _, column := range entry.Columns {
		name := normalizeName(column.Name)
		if name == phrase || name == singularPhrase {
			return column.Name, true
		}
	}
	return "", false
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == '_' || r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func singular(word string) string {
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return strings.TrimSuffix(word, "ies") + "y"
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return strings.TrimSuffix(word, "s")
	default:
		return word
	}
}
