package repair

import (
	"fmt"
	"path"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/sqltext"
)

const minSimilarity = 0.6

var schemaPrefixes = map[string]struct{}{"main": {}, "base": {}, "memory.main": {}}

// IdentifierRule points relation references at the resolved target: schema
// prefixes are dropped and truncated or misspelled names are replaced by the
// quoted target id.
type IdentifierRule struct{}

func (IdentifierRule) Name() string { return "identifier" }

func (IdentifierRule) Apply(text string, in Input) (string, error) {
	statements := sqltext.Split(text)
	if len(statements) == 0 {
		return text, nil
	}
	changed := false
	for i, statement := range statements {
		a := sqltext.Analyze(statement)
		if !readOnly(a) {
			continue
		}
		edits, err := identifierEdits(a, in)
		if err != nil {
			return "", err
		}
		if len(edits) > 0 {
			statements[i] = applyEdits(a, edits)
			changed = true
		}
	}
	if !changed {
		return text, nil
	}
	if len(statements) == 1 {
		return statements[0], nil
	}
	return strings.Join(statements, ";\n"), nil
}

func identifierEdits(a *sqltext.Analysis, in Input) ([]edit, error) {
	target := in.Entry.TargetID
	quoted := sqltext.QuoteIdent(target)
	edits := make([]edit, 0)
	covered := map[int]struct{}{}

	for _, ref := range a.Relations {
		if ref.Function {
			continue
		}
		if ref.Qualifier == "" && a.IsCTE(ref.Name) {
			continue
		}
		qualified := ref.Qualifier != ""
		if qualified {
			if _, ok := schemaPrefixes[strings.ToLower(ref.Qualifier)]; !ok {
				continue
			}
		}
		switch {
		case ref.Name == target:
			if qualified {
				edits = append(edits, edit{start: ref.Start, end: ref.End, text: quoted})
			}
		case otherTarget(ref.Name, in):
		case matchesEntry(ref.Name, in.Entry):
			edits = append(edits, edit{start: ref.Start, end: ref.End, text: quoted})
		default:
			return nil, fmt.Errorf("%w: unknown relation %q", ErrUnrepairable, ref.Name)
		}
		for k := ref.Start; k <= ref.End; k++ {
			covered[k] = struct{}{}
		}
	}

	for _, ref := range a.Qualifiers {
		if _, done := covered[ref.Start]; done {
			continue
		}
		if a.IsAlias(ref.Name) || a.IsCTE(ref.Name) || ref.Name == target {
			continue
		}
		if _, prefix := schemaPrefixes[strings.ToLower(ref.Name)]; prefix {
			// main."deals_a1".amount: drop the schema part.
			if ref.Start+2 < len(a.Tokens) && a.Tokens[ref.Start+2].Identifier() && ref.Start+3 < len(a.Tokens) && a.Tokens[ref.Start+3].IsSymbol(".") {
				edits = append(edits, edit{start: ref.Start, end: ref.Start + 1, text: ""})
				covered[ref.Start+1] = struct{}{}
			}
			continue
		}
		if otherTarget(ref.Name, in) {
			continue
		}
		if matchesEntry(ref.Name, in.Entry) {
			edits = append(edits, edit{start: ref.Start, end: ref.End, text: quoted})
		}
	}
	return dedupe(edits), nil
}

func dedupe(edits []edit) []edit {
	seen := map[int]struct{}{}
	out := make([]edit, 0, len(edits))
	for _, e := range edits {
		if _, ok := seen[e.start]; ok {
			continue
		}
		seen[e.start] = struct{}{}
		out = append(out, e)
	}
	return out
}

func otherTarget(name string, in Input) bool {
	for _, entry := range in.KnownTargets {
		if entry.TargetID != in.Entry.TargetID && strings.EqualFold(entry.TargetID, name) {
			return true
		}
	}
	return false
}

// matchesEntry accepts a case variant, prefix, display name or close
// misspelling of the entry's id or display name.
func matchesEntry(name string, entry catalog.Entry) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	id := strings.ToLower(entry.TargetID)
	display := strings.ToLower(strings.TrimSpace(entry.DisplayName))
	stem := strings.TrimSuffix(display, path.Ext(display))
	for _, candidate := range []string{id, display, stem, strings.ReplaceAll(stem, " ", "_")} {
		if candidate == "" {
			continue
		}
		if name == candidate {
			return true
		}
		if len(name) >= 3 && strings.HasPrefix(candidate, name) {
			return true
		}
		if similarity(name, candidate) >= minSimilarity {
			return true
		}
	}
	return false
}

func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
