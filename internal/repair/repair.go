// Package repair fixes the recurring defects of drafted statements with a
// fixed sequence of deterministic, idempotent rewrite rules. A rule only edits
// what it can trace back to the utterance or the catalog entry.
package repair

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/sqltext"
)

var ErrUnrepairable = errors.New("repair: statement cannot be repaired")

type Input struct {
	Candidate string
	Entry     catalog.Entry
	Utterance string
	// KnownTargets are the user's other entries. References to them are left
	// in place for the guard to reject.
	KnownTargets []catalog.Entry
}

type Statement struct {
	Text     string
	TargetID string
	Applied  []string
}

// Rule rewrites text or returns it unchanged. Apply(Apply(x)) must equal
// Apply(x).
type Rule interface {
	Name() string
	Apply(text string, in Input) (string, error)
}

type Repairer struct {
	Rules []Rule
}

func DefaultRules() []Rule {
	return []Rule{IdentifierRule{}, IsolateRule{}, GroupRule{}, FilterRule{}, OrderRule{}}
}

func New(rules ...Rule) *Repairer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Repairer{Rules: rules}
}

func (r *Repairer) Repair(in Input) (Statement, error) {
	// A trailing line comment would swallow any clause appended after it.
	text := strings.TrimSpace(sqltext.StripComments(in.Candidate))
	if text == "" {
		return Statement{}, fmt.Errorf("%w: empty candidate", ErrUnrepairable)
	}
	applied := make([]string, 0)
	for _, rule := range r.Rules {
		out, err := rule.Apply(text, in)
		if err != nil {
			return Statement{}, fmt.Errorf("%s: %w", rule.Name(), err)
		}
		out = strings.TrimSpace(out)
		if out != text {
			applied = append(applied, rule.Name())
			text = out
		}
	}
	return Statement{Text: text, TargetID: in.Entry.TargetID, Applied: applied}, nil
}

func readOnly(a *sqltext.Analysis) bool {
	switch a.FirstKeyword() {
	case "SELECT", "WITH":
		return true
	default:
		return false
	}
}

type edit struct {
	start int
	end   int
	text  string
}

// applyEdits replaces token ranges of a, which must not overlap.
func applyEdits(a *sqltext.Analysis, edits []edit) string {
	if len(edits) == 0 {
		return a.Source
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := a.Source
	for _, e := range edits {
		from := a.Tokens[e.start].Pos
		to := a.Tokens[e.end].End()
		out = out[:from] + e.text + out[to:]
	}
	return out
}

// clauseAfter returns the first top-level clause among keywords, or -1.
func clauseAfter(a *sqltext.Analysis, keywords ...string) int {
	first := -1
	for _, keyword := range keywords {
		if i := a.Clause(keyword); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}
