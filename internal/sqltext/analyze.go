package sqltext

import (
	"strings"
)

// Reference is an identifier found in a relation or column position.
type Reference struct {
	Name      string
	Qualifier string
	Quoted    bool
	// Start and End are the indices (inclusive) of the significant tokens
	// making up the reference, qualifier included.
	Start    int
	End      int
	Function bool
}

// Analysis is a lexical view of a single statement: which relations it
// reads, which identifiers sit in column positions and where its top-level
// clauses start. It does not validate syntax.
type Analysis struct {
	Source     string
	Tokens     []Token
	Relations  []Reference
	Columns    []Reference
	Qualifiers []Reference
	aliases    map[string]struct{}
	ctes       map[string]struct{}
	depth      []int
	mainStart  int
}

// Functions whose argument lists use FROM as a separator.
var fromArgumentFunctions = toSet("EXTRACT", "SUBSTRING", "TRIM", "POSITION", "OVERLAY")

func Analyze(statement string) *Analysis {
	a := &Analysis{
		Source:  statement,
		Tokens:  Significant(Tokenize(statement)),
		aliases: map[string]struct{}{},
		ctes:    map[string]struct{}{},
	}
	a.computeDepth()
	consumed := make([]bool, len(a.Tokens))
	a.collectCTEs(consumed)
	a.collectRelations(consumed)
	a.collectAliases(consumed)
	a.collectColumns(consumed)
	return a
}

// FirstKeyword returns the upper-cased first word of the statement.
func (a *Analysis) FirstKeyword() string {
	if len(a.Tokens) == 0 || a.Tokens[0].Kind != Word {
		return ""
	}
	return a.Tokens[0].Upper()
}

func (a *Analysis) IsAlias(name string) bool {
	_, ok := a.aliases[strings.ToLower(name)]
	return ok
}

func (a *Analysis) IsCTE(name string) bool {
	_, ok := a.ctes[strings.ToLower(name)]
	return ok
}

// Depth returns the parenthesis nesting level of token i.
func (a *Analysis) Depth(i int) int {
	if i < 0 || i >= len(a.depth) {
		return 0
	}
	return a.depth[i]
}

// Clause returns the index of the main query's top-level clause keyword, or
// -1. GROUP and ORDER only match when followed by BY.
func (a *Analysis) Clause(keyword string) int {
	keyword = strings.ToUpper(keyword)
	for i := a.mainStart; i < len(a.Tokens); i++ {
		if a.depth[i] != 0 || !a.Tokens[i].Is(keyword) {
			continue
		}
		if keyword == "GROUP" || keyword == "ORDER" {
			if i+1 >= len(a.Tokens) || !a.Tokens[i+1].Is("BY") {
				continue
			}
		}
		return i
	}
	return -1
}

// HasSetOperation reports a top-level UNION, INTERSECT or EXCEPT.
func (a *Analysis) HasSetOperation() bool {
	for i := a.mainStart; i < len(a.Tokens); i++ {
		if a.depth[i] == 0 && a.Tokens[i].Is("UNION", "INTERSECT", "EXCEPT") {
			// SELECT * EXCLUDE/EXCEPT (col) is a projection modifier, not a set operation.
			if a.Tokens[i].Is("EXCEPT") && i+1 < len(a.Tokens) && a.Tokens[i+1].IsSymbol("(") {
				continue
			}
			return true
		}
	}
	return false
}

// SelectItems splits the main query's projection list on top-level commas.
func (a *Analysis) SelectItems() [][]Token {
	start, end := a.selectListBounds()
	if start < 0 {
		return nil
	}
	items := make([][]Token, 0)
	itemStart := start
	for i := start; i < end; i++ {
		if a.depth[i] == 0 && a.Tokens[i].IsSymbol(",") {
			items = append(items, a.Tokens[itemStart:i])
			itemStart = i + 1
		}
	}
	if itemStart < end {
		items = append(items, a.Tokens[itemStart:end])
	}
	return items
}

// SelectListStart returns the index of the first projection token.
func (a *Analysis) SelectListStart() int {
	start, _ := a.selectListBounds()
	return start
}

func (a *Analysis) selectListBounds() (int, int) {
	selectAt := a.Clause("SELECT")
	if selectAt < 0 {
		return -1, -1
	}
	start := selectAt + 1
	for start < len(a.Tokens) && a.Tokens[start].Is("DISTINCT", "ALL") {
		start++
	}
	if start < len(a.Tokens) && a.Tokens[start].Is("ON") && start+1 < len(a.Tokens) && a.Tokens[start+1].IsSymbol("(") {
		start = a.matchingParen(start+1) + 1
	}
	end := len(a.Tokens)
	for i := start; i < len(a.Tokens); i++ {
		if a.depth[i] == 0 && a.Tokens[i].Is("FROM", "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "UNION", "QUALIFY", "WINDOW") {
			end = i
			break
		}
	}
	return start, end
}

// ContainsAggregate reports whether tokens call an aggregate function.
func ContainsAggregate(tokens []Token) bool {
	for i, token := range tokens {
		if token.Kind == Word && IsAggregate(token.Text) && i+1 < len(tokens) && tokens[i+1].IsSymbol("(") {
			return true
		}
	}
	return false
}

// BareColumn returns the column an item projects when the item is just a
// (possibly qualified) identifier.
func BareColumn(item []Token) (string, bool) {
	switch {
	case len(item) == 1 && item[0].Identifier():
		return item[0].Value(), true
	case len(item) == 3 && item[0].Identifier() && item[1].IsSymbol(".") && item[2].Identifier():
		return item[2].Value(), true
	default:
		return "", false
	}
}

// InsertBefore returns the source with text inserted before token i.
func (a *Analysis) InsertBefore(i int, text string) string {
	if i < 0 || i >= len(a.Tokens) {
		return a.Append(text)
	}
	pos := a.Tokens[i].Pos
	head := ""
	if i > 0 {
		head = a.Source[:a.Tokens[i-1].End()] + " "
	}
	return head + text + " " + a.Source[pos:]
}

// Append returns the source with text appended after the last significant
// token. Trailing comments and semicolons are dropped.
func (a *Analysis) Append(text string) string {
	for i := len(a.Tokens) - 1; i >= 0; i-- {
		if a.Tokens[i].Kind != Semicolon {
			return a.Source[:a.Tokens[i].End()] + " " + text
		}
	}
	return text
}

// Replace returns the source with tokens start..end (inclusive) replaced.
func (a *Analysis) Replace(start, end int, text string) string {
	return a.Source[:a.Tokens[start].Pos] + text + a.Source[a.Tokens[end].End():]
}

// Text returns the source covered by tokens start..end (inclusive).
func (a *Analysis) Text(start, end int) string {
	return a.Source[a.Tokens[start].Pos:a.Tokens[end].End()]
}

func (a *Analysis) computeDepth() {
	a.depth = make([]int, len(a.Tokens))
	depth := 0
	a.mainStart = -1
	for i, token := range a.Tokens {
		if token.IsSymbol(")") && depth > 0 {
			depth--
		}
		a.depth[i] = depth
		if token.IsSymbol("(") {
			depth++
		}
		if a.mainStart < 0 && depth == 0 && token.Is("SELECT") {
			a.mainStart = i
		}
	}
	if a.mainStart < 0 {
		a.mainStart = 0
	}
}

func (a *Analysis) matchingParen(open int) int {
	depth := 0
	for i := open; i < len(a.Tokens); i++ {
		switch {
		case a.Tokens[i].IsSymbol("("):
			depth++
		case a.Tokens[i].IsSymbol(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(a.Tokens) - 1
}

func (a *Analysis) collectCTEs(consumed []bool) {
	for i := 0; i+2 < len(a.Tokens); i++ {
		token := a.Tokens[i]
		if !token.Identifier() || !a.Tokens[i+1].Is("AS") || !a.Tokens[i+2].IsSymbol("(") {
			continue
		}
		if i == 0 {
			continue
		}
		prev := a.Tokens[i-1]
		if !prev.Is("WITH", "RECURSIVE") && !prev.IsSymbol(",") {
			continue
		}
		a.ctes[strings.ToLower(token.Value())] = struct{}{}
		consumed[i] = true
	}
}

func (a *Analysis) collectRelations(consumed []bool) {
	functions := make([]string, 0)
	for i := 0; i < len(a.Tokens); i++ {
		token := a.Tokens[i]
		switch {
		case token.IsSymbol("("):
			name := ""
			if i > 0 && a.Tokens[i-1].Kind == Word {
				name = a.Tokens[i-1].Upper()
			}
			functions = append(functions, name)
			continue
		case token.IsSymbol(")"):
			if len(functions) > 0 {
				functions = functions[:len(functions)-1]
			}
			continue
		}

		if token.Is("FROM") {
			if len(functions) > 0 {
				if _, ok := fromArgumentFunctions[functions[len(functions)-1]]; ok {
					continue
				}
			}
			if i >= 1 && a.Tokens[i-1].Is("DISTINCT") && i >= 2 && a.Tokens[i-2].Is("IS", "NOT") {
				continue
			}
			a.parseRelationList(i+1, true, consumed)
		} else if token.Is("JOIN") {
			a.parseRelationList(i+1, false, consumed)
		}
	}
}

func (a *Analysis) parseRelationList(i int, allowComma bool, consumed []bool) {
	for i < len(a.Tokens) {
		i = a.parseRelation(i, consumed)
		if !allowComma || i >= len(a.Tokens) || !a.Tokens[i].IsSymbol(",") {
			return
		}
		i++
	}
}

func (a *Analysis) parseRelation(i int, consumed []bool) int {
	if i < len(a.Tokens) && a.Tokens[i].Is("LATERAL") {
		i++
	}
	if i >= len(a.Tokens) {
		return i
	}
	if a.Tokens[i].IsSymbol("(") {
		i = a.matchingParen(i) + 1
		return a.parseAlias(i, consumed)
	}
	if a.Tokens[i].Kind != Word && a.Tokens[i].Kind != QuotedIdent && a.Tokens[i].Kind != String {
		return i
	}

	ref := Reference{Start: i}
	parts := []Token{a.Tokens[i]}
	end := i
	for end+2 < len(a.Tokens) && a.Tokens[end+1].IsSymbol(".") && (a.Tokens[end+2].Kind == Word || a.Tokens[end+2].Kind == QuotedIdent) {
		end += 2
		parts = append(parts, a.Tokens[end])
	}
	last := parts[len(parts)-1]
	ref.Name = last.Value()
	ref.Quoted = last.Kind != Word
	ref.End = end
	if len(parts) > 1 {
		qualifiers := make([]string, 0, len(parts)-1)
		for _, part := range parts[:len(parts)-1] {
			qualifiers = append(qualifiers, part.Value())
		}
		ref.Qualifier = strings.Join(qualifiers, ".")
	}
	for k := i; k <= end; k++ {
		consumed[k] = true
	}
	next := end + 1
	if next < len(a.Tokens) && a.Tokens[next].IsSymbol("(") {
		ref.Function = true
		closing := a.matchingParen(next)
		ref.End = closing
		next = closing + 1
	}
	a.Relations = append(a.Relations, ref)
	return a.parseAlias(next, consumed)
}

func (a *Analysis) parseAlias(i int, consumed []bool) int {
	if i < len(a.Tokens) && a.Tokens[i].Is("AS") {
		i++
	}
	if i < len(a.Tokens) && a.Tokens[i].Identifier() {
		a.aliases[strings.ToLower(a.Tokens[i].Value())] = struct{}{}
		consumed[i] = true
		i++
		if i < len(a.Tokens) && a.Tokens[i].IsSymbol("(") {
			closing := a.matchingParen(i)
			for k := i; k <= closing; k++ {
				if a.Tokens[k].Identifier() {
					a.aliases[strings.ToLower(a.Tokens[k].Value())] = struct{}{}
				}
				consumed[k] = true
			}
			i = closing + 1
		}
	}
	return i
}

func (a *Analysis) collectAliases(consumed []bool) {
	for i, token := range a.Tokens {
		if consumed[i] || !token.Identifier() || i == 0 {
			continue
		}
		if i+1 < len(a.Tokens) && (a.Tokens[i+1].IsSymbol("(") || a.Tokens[i+1].IsSymbol(".")) {
			continue
		}
		prev := a.Tokens[i-1]
		explicit := prev.Is("AS")
		implicit := prev.IsSymbol(")") || prev.Kind == Number || prev.Kind == String || prev.Identifier() || prev.Is("END")
		if !explicit && !implicit {
			continue
		}
		a.aliases[strings.ToLower(token.Value())] = struct{}{}
		consumed[i] = true
	}
}

func (a *Analysis) collectColumns(consumed []bool) {
	for i, token := range a.Tokens {
		if consumed[i] || !token.Identifier() {
			continue
		}
		if i+1 < len(a.Tokens) {
			next := a.Tokens[i+1]
			if next.IsSymbol("(") || next.IsSymbol("->") {
				continue
			}
			if next.IsSymbol(".") {
				a.Qualifiers = append(a.Qualifiers, Reference{
					Name:   token.Value(),
					Quoted: token.Kind == QuotedIdent,
					Start:  i,
					End:    i,
				})
				continue
			}
		}
		ref := Reference{
			Name:   token.Value(),
			Quoted: token.Kind == QuotedIdent,
			Start:  i,
			End:    i,
		}
		if i >= 2 && a.Tokens[i-1].IsSymbol(".") && a.Tokens[i-2].Identifier() {
			ref.Qualifier = a.Tokens[i-2].Value()
			ref.Start = i - 2
		}
		a.Columns = append(a.Columns, ref)
	}
}
