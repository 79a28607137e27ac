package repair

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/duckmesh/tabletalk/internal/sqltext"
)

var (
	topPattern     = regexp.MustCompile(`\btop\s+(\d+)\b`)
	bottomPattern  = regexp.MustCompile(`\bbottom\s+(\d+)\b`)
	firstPattern   = regexp.MustCompile(`\bfirst\s+(\d+)\b`)
	lastPattern    = regexp.MustCompile(`\blast\s+(\d+)\b`)
	rowsPattern    = regexp.MustCompile(`\b(?:first|last)\s+\d+\s+(?:rows?|records?|entries|lines)\b`)
	highestPattern = regexp.MustCompile(`\b(?:highest|largest|biggest|most|greatest|top)\b`)
	lowestPattern  = regexp.MustCompile(`\b(?:lowest|smallest|least|fewest|bottom)\b`)
)

type direction string

const (
	ascending  direction = "ASC"
	descending direction = "DESC"
)

// rankingCue is what the utterance says about ordering and size.
type rankingCue struct {
	dir   direction
	limit int
	rows  bool
	first bool
}

func cueFrom(utterance string) (rankingCue, bool) {
	lower := strings.ToLower(utterance)
	number := func(match []string) int {
		n, err := strconv.Atoi(match[1])
		if err != nil || n <= 0 {
			return 0
		}
		return n
	}
	switch {
	case topPattern.MatchString(lower):
		return rankingCue{dir: descending, limit: number(topPattern.FindStringSubmatch(lower))}, true
	case bottomPattern.MatchString(lower):
		return rankingCue{dir: ascending, limit: number(bottomPattern.FindStringSubmatch(lower))}, true
	case firstPattern.MatchString(lower):
		return rankingCue{dir: ascending, limit: number(firstPattern.FindStringSubmatch(lower)), rows: rowsPattern.MatchString(lower), first: true}, true
	case lastPattern.MatchString(lower):
		return rankingCue{dir: descending, limit: number(lastPattern.FindStringSubmatch(lower)), rows: rowsPattern.MatchString(lower)}, true
	case lowestPattern.MatchString(lower):
		return rankingCue{dir: ascending}, true
	case highestPattern.MatchString(lower):
		return rankingCue{dir: descending}, true
	default:
		return rankingCue{}, false
	}
}

// OrderRule completes ranking questions: an undirected ORDER BY gets the
// direction the utterance implies, a grouped aggregate gets ordered by its
// aggregate column and a missing LIMIT N is added.
type OrderRule struct{}

func (OrderRule) Name() string { return "order" }

func (OrderRule) Apply(text string, in Input) (string, error) {
	cue, ok := cueFrom(in.Utterance)
	if !ok {
		return text, nil
	}
	a := sqltext.Analyze(text)
	if !readOnly(a) || a.HasSetOperation() {
		return text, nil
	}

	if cue.rows && cue.limit > 0 && plainSelectAll(a) {
		if cue.first {
			return a.Append("LIMIT " + strconv.Itoa(cue.limit)), nil
		}
		offset := in.Entry.RowCount - int64(cue.limit)
		if offset <= 0 {
			return a.Append("LIMIT " + strconv.Itoa(cue.limit)), nil
		}
		return a.Append("LIMIT " + strconv.Itoa(cue.limit) + " OFFSET " + strconv.FormatInt(offset, 10)), nil
	}

	if orderAt := a.Clause("ORDER"); orderAt >= 0 {
		if end, undirected := firstSortKey(a, orderAt+2); undirected {
			if end+1 < len(a.Tokens) {
				text = a.InsertBefore(end+1, string(cue.dir))
			} else {
				text = a.Append(string(cue.dir))
			}
			a = sqltext.Analyze(text)
		}
	} else if a.Clause("GROUP") >= 0 {
		if position := aggregatePosition(a); position > 0 {
			clause := "ORDER BY " + strconv.Itoa(position) + " " + string(cue.dir)
			if at := clauseAfter(a, "LIMIT", "OFFSET"); at >= 0 {
				text = a.InsertBefore(at, clause)
			} else {
				text = a.Append(clause)
			}
			a = sqltext.Analyze(text)
		}
	}

	if cue.limit > 0 && a.Clause("LIMIT") < 0 && a.Clause("OFFSET") < 0 {
		text = a.Append("LIMIT " + strconv.Itoa(cue.limit))
	}
	return text, nil
}

// plainSelectAll matches SELECT * FROM <relation> with nothing after it.
func plainSelectAll(a *sqltext.Analysis) bool {
	if a.FirstKeyword() != "SELECT" {
		return false
	}
	items := a.SelectItems()
	if len(items) != 1 || len(items[0]) != 1 || !items[0][0].IsSymbol("*") {
		return false
	}
	if a.Clause("FROM") < 0 || len(a.Relations) != 1 {
		return false
	}
	return clauseAfter(a, "WHERE", "GROUP", "HAVING", "QUALIFY", "ORDER", "LIMIT", "OFFSET") < 0
}

// firstSortKey returns the index of the last token of the first ORDER BY key
// and whether that key lacks ASC/DESC.
func firstSortKey(a *sqltext.Analysis, start int) (int, bool) {
	base := a.Depth(start)
	end := start
	for i := start; i < len(a.Tokens); i++ {
		token := a.Tokens[i]
		if a.Depth(i) == base && (token.IsSymbol(",") || token.Kind == sqltext.Semicolon || token.Is("LIMIT", "OFFSET", "NULLS", "FETCH")) {
			break
		}
		if a.Depth(i) < base {
			break
		}
		if a.Depth(i) == base && token.Is("ASC", "DESC") {
			return i, false
		}
		end = i
	}
	if end < start || start >= len(a.Tokens) {
		return end, false
	}
	return end, true
}

// aggregatePosition returns the 1-based projection position of the first
// aggregate item, or 0.
func aggregatePosition(a *sqltext.Analysis) int {
	for i, item := range a.SelectItems() {
		if sqltext.ContainsAggregate(item) {
			return i + 1
		}
	}
	return 0
}
