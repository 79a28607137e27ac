// Package resolve picks which catalog entry an utterance is about.
package resolve

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/conversation"
)

var ErrNoTargets = errors.New("resolve: user has no datasets")

type Method string

const (
	MethodExplicit Method = "explicit"
	MethodOrdinal  Method = "ordinal"
	MethodSticky   Method = "sticky"
	MethodKeyword  Method = "keyword"
	MethodSole     Method = "sole"
)

// Resolution is either a chosen target or an ambiguity carrying the
// candidates the user should pick from.
type Resolution struct {
	TargetID   string
	Method     Method
	Ambiguous  bool
	Candidates []catalog.Entry
	Scores     map[string]int
}

// Resolver scores entries by keyword overlap. A keyword winner must reach
// MinScore and beat the runner-up by at least Margin.
type Resolver struct {
	Margin   int
	MinScore int
}

func New(margin, minScore int) *Resolver {
	if margin < 1 {
		margin = 1
	}
	if minScore < 1 {
		minScore = 1
	}
	return &Resolver{Margin: margin, MinScore: minScore}
}

var (
	ordinalNumberPattern = regexp.MustCompile(`\b(?:file|dataset|table|upload)\s*#?\s*(\d+)\b`)
	bareNumberPattern    = regexp.MustCompile(`^(?:the\s+)?#?(\d+)(?:st|nd|rd|th)?\s*(?:one)?$`)
	ordinalWordPattern   = regexp.MustCompile(`\b(first|second|third|fourth|fifth|last)\s+(?:file|dataset|table|upload|one)\b`)
	wordPattern          = regexp.MustCompile(`[\p{L}\p{N}]+`)
	ordinalWords         = map[string]int{"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5}
)

var stopWords = toSet(
	"show", "the", "last", "first", "rows", "row", "data", "me", "can", "you",
	"get", "give", "tell", "what", "is", "are", "in", "of", "with", "count",
	"how", "many", "much", "from", "select", "all", "display", "list", "and",
	"for", "per", "by", "top", "which", "where", "when", "who", "was", "were",
	"does", "did", "has", "have", "this", "that", "these", "those", "there",
	"their", "total", "number", "average", "sum", "max", "min", "than", "more",
	"less", "each", "every", "between", "over", "under", "into", "file",
	"dataset", "table", "please", "about", "any", "not", "only", "just",
	"same", "but", "chart", "graph", "plot", "value", "values",
)

func (r *Resolver) Resolve(text string, entries []catalog.Entry, history conversation.History) (Resolution, error) {
	if len(entries) == 0 {
		return Resolution{}, ErrNoTargets
	}
	lower := strings.ToLower(strings.TrimSpace(text))

	if entry, ok := ordinalMention(lower, entries, history.AwaitingTarget()); ok {
		return Resolution{TargetID: entry.TargetID, Method: MethodOrdinal}, nil
	}

	mentioned := explicitMentions(lower, entries)
	switch {
	case len(mentioned) == 1:
		return Resolution{TargetID: mentioned[0].TargetID, Method: MethodExplicit}, nil
	case len(mentioned) > 1:
		return ambiguous(entries, nil), nil
	}

	if last := history.LastTarget(); last != "" {
		for _, entry := range entries {
			if entry.TargetID == last {
				return Resolution{TargetID: last, Method: MethodSticky}, nil
			}
		}
	}

	if len(entries) == 1 {
		return Resolution{TargetID: entries[0].TargetID, Method: MethodSole}, nil
	}

	scores := make(map[string]int, len(entries))
	keywords := Keywords(lower)
	for _, entry := range entries {
		scores[entry.TargetID] = overlap(keywords, vocabulary(entry))
	}
	ranked := make([]catalog.Entry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].TargetID] > scores[ranked[j].TargetID]
	})
	best := scores[ranked[0].TargetID]
	runnerUp := scores[ranked[1].TargetID]
	if best >= r.MinScore && best-runnerUp >= r.Margin {
		return Resolution{TargetID: ranked[0].TargetID, Method: MethodKeyword, Scores: scores}, nil
	}

	return ambiguous(entries, scores), nil
}

// ambiguous lists every entry in catalog order so that a numbered reply maps
// back through ordinalMention.
func ambiguous(entries []catalog.Entry, scores map[string]int) Resolution {
	candidates := make([]catalog.Entry, len(entries))
	copy(candidates, entries)
	return Resolution{Ambiguous: true, Candidates: candidates, Scores: scores}
}

// Keywords returns the distinctive words of an utterance: stop words and
// words shorter than three characters are dropped.
func Keywords(text string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

// Describe renders candidates as a numbered list for a clarifying question.
func Describe(entries []catalog.Entry) string {
	lines := make([]string, 0, len(entries))
	for i, entry := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, entry.Label()))
	}
	return strings.Join(lines, "\n")
}

func ordinalMention(lower string, entries []catalog.Entry, awaiting bool) (catalog.Entry, bool) {
	pick := func(n int) (catalog.Entry, bool) {
		if n < 1 || n > len(entries) {
			return catalog.Entry{}, false
		}
		return entries[n-1], true
	}
	if match := ordinalNumberPattern.FindStringSubmatch(lower); match != nil {
		n, _ := strconv.Atoi(match[1])
		return pick(n)
	}
	if match := ordinalWordPattern.FindStringSubmatch(lower); match != nil {
		if match[1] == "last" {
			return pick(len(entries))
		}
		return pick(ordinalWords[match[1]])
	}
	if awaiting || len(lower) <= 10 {
		if match := bareNumberPattern.FindStringSubmatch(lower); match != nil {
			n, _ := strconv.Atoi(match[1])
			return pick(n)
		}
		if awaiting {
			if n, ok := ordinalWords[strings.TrimSuffix(strings.TrimPrefix(lower, "the "), " one")]; ok {
				return pick(n)
			}
		}
	}
	return catalog.Entry{}, false
}

func explicitMentions(lower string, entries []catalog.Entry) []catalog.Entry {
	out := make([]catalog.Entry, 0)
	for _, entry := range entries {
		for _, name := range mentionNames(entry) {
			if containsPhrase(lower, name) {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

func mentionNames(entry catalog.Entry) []string {
	names := []string{strings.ToLower(entry.TargetID)}
	display := strings.ToLower(strings.TrimSpace(entry.DisplayName))
	if display != "" {
		names = append(names, display)
		stem := strings.TrimSuffix(display, path.Ext(display))
		if len(stem) >= 3 && stem != display {
			if _, stop := stopWords[stem]; !stop {
				names = append(names, stem, strings.ReplaceAll(stem, "_", " "))
			}
		}
	}
	return names
}

func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
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

func vocabulary(entry catalog.Entry) map[string]struct{} {
	vocab := map[string]struct{}{}
	add := func(text string) {
		for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
			if len(word) < 3 {
				continue
			}
			vocab[word] = struct{}{}
			vocab[singular(word)] = struct{}{}
		}
	}
	add(strings.TrimSuffix(entry.DisplayName, path.Ext(entry.DisplayName)))
	for _, column := range entry.Columns {
		add(strings.ReplaceAll(column.Name, "_", " "))
		for _, value := range column.DistinctValues {
			add(value)
		}
		for _, value := range entry.SampleValues(column.Name) {
			add(value)
		}
	}
	return vocab
}

func overlap(keywords []string, vocab map[string]struct{}) int {
	score := 0
	for _, keyword := range keywords {
		if _, ok := vocab[keyword]; ok {
			score++
			continue
		}
		if _, ok := vocab[singular(keyword)]; ok {
			score++
		}
	}
	return score
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

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
