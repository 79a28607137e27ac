// Package classify routes an utterance to one of the pipeline branches using
// an ordered battery of lexical heuristics. Nothing here performs I/O, so the
// same utterance and context always produce the same category.
package classify

import (
	"regexp"
	"strings"
)

type Category string

const (
	ChitChat             Category = "chit_chat"
	MetadataQuestion     Category = "metadata_question"
	EditInstruction      Category = "edit_instruction"
	VisualizationControl Category = "visualization_control"
	DataQuestion         Category = "data_question"
)

// Context carries the conversation facts the heuristics depend on.
type Context struct {
	HasActiveVisualization bool
}

// View is a rendering explicitly requested by the user.
type View string

const (
	ViewNone  View = ""
	ViewTable View = "table"
	ViewBar   View = "bar"
	ViewLine  View = "line"
)

const editPrefix = `^(please\s+)?((can|could|would)\s+you\s+(please\s+)?)?`

var (
	chartChangePatterns = compile(
		`\b(show|see|display|view)\s+(the\s+)?(data|it|this|that)\s+(in|as|with)\s+(a\s+)?(different\s+)?(chart|graph|table)`,
		`\b(show|see|display|view)\s+(it|this|that|the\s+data)\s+as\s+(a\s+)?(bar|line|pie|table)`,
		`\b(chart|graph|visualization)\s+type\b`,
		`\b(bar\s+chart|line\s+chart|pie\s+chart|bar\s+graph|line\s+graph|table)\s+(instead|please|now)\b`,
		`\b(change|switch|convert|turn)\s+(it\s+)?(to|into)\s+(a\s+)?(bar|line|pie)?\s*(chart|graph|table)\b`,
		`^(as\s+)?(a\s+)?(bar|line|pie)\s+(chart|graph)\s*[.!?]*$`,
		`^(as\s+)?(a\s+)?table\s*[.!?]*$`,
	)
	colorPatterns = compile(
		`\b(change|modify|update|set|make)\s+(the\s+)?(color|colour|colours|colors)`,
		`\b(color|colour|colours|colors)\s+(of|for)\s+(the\s+)?(chart|graph|bar|bars|line)`,
		`\b(change|switch|make)\s+(it|the\s+chart|the\s+graph)\s+(to\s+)?(different\s+)?(color|colour|colours|colors)`,
	)
	editCapabilityPatterns = compile(
		`^can\s+i\s+(edit|modify|change|update)`,
		`^is\s+there\s+a\s+way\s+to\s+(edit|modify|change|update)`,
		`^how\s+(do|can)\s+i\s+(edit|modify|change|update)`,
		`^is\s+it\s+possible\s+to\s+(edit|modify|change|update)`,
	)
	// Edits must open the utterance as an imperative and name what changes,
	// so "how did revenue change from 2022 to 2023" stays a data question.
	editPatterns = compile(
		editPrefix+`set\s+(the\s+|all\s+)?[a-z0-9_"]+(\s+[a-z0-9_"]+)?(\s+(of|for|in)\s+.+)?\s+(to|=)\s+\S+`,
		editPrefix+`(increase|decrease|raise|lower|reduce|cut)\s+.+\s+by\s+\d+(\.\d+)?\s*(%|percent)?`,
		editPrefix+`(add|insert|create)\s+(a\s+)?(new\s+)?(row|record|entry)\b`,
		editPrefix+`(delete|remove|drop)\s+(the\s+|all\s+)?(row|rows|data|entry|entries|record|records)\b`,
		editPrefix+`(double|triple|halve)\s+(the|all|every)\s+`,
		editPrefix+`(multiply|divide)\s+.+\s+by\s+\d`,
		editPrefix+`(update|change|modify)\s+(the\s+)?[a-z0-9_"]+\s+(of|for)\s+.+\s+(to|=)\s+\S+`,
		editPrefix+`(update|change|modify)\s+(the\s+)?[a-z0-9_"]+\s+(to|=)\s+\S+\s+(where|for)\b`,
		editPrefix+`rename\s+(the\s+)?(column\s+)?[a-z0-9_"]+\s+to\s+\S+`,
	)
	schemaPatterns = compile(
		`\b(what|which)\s+(columns|fields|attributes)\b`,
		`\b(list|show)\s+(me\s+)?(the\s+|all\s+(the\s+)?)?(columns|fields|schema)\b`,
		`\b(describe|explain)\s+(the\s+)?(columns|fields|schema)\b`,
		`\b(what|which)\s+(files|datasets|tables)\s+(do\s+i\s+have|are\s+there|are\s+available|have\s+i)\b`,
		`\b(list|show)\s+(me\s+)?(my|all)\s+(files|datasets|tables|uploads)\b`,
	)
	dataIndicatorPatterns = compile(
		`what.*are.*(the|under|in)`,
		`list.*(the|all)`,
		`show.*(me|the|all)`,
		`count.*of`,
		`how.*many`,
		`how.*much`,
		`select.*from`,
		`get.*(the|all)`,
	)
	metadataPatterns = compile(
		`^what('?s|\s+is)?\s+(in\s+)?(this|the|my)\s+(file|dataset|data)$`,
		`^what\s+(file|dataset|data)\s+is\s+(this|it)$`,
		`\bdescribe\s+(the\s+|this\s+|my\s+)?(file|dataset|data)\b`,
		`\bexplain\s+(the\s+|this\s+|my\s+)?(file|dataset)\b`,
		`\btell\s+(me\s+)?about\s+(the\s+|this\s+|my\s+)?(file|dataset|data)\b`,
		`\b(file|dataset)\s+description\b`,
		`\bwhat\s+(does|is)\s+(the\s+|this\s+)?(file|dataset)\s+(contain|about)\b`,
		`\b(file|dataset)\s+(contains?|about)$`,
	)
	smallTalkPatterns = compile(
		`\b(hi|hello|hey|hiya|greetings|good\s+(morning|afternoon|evening))\b`,
		`\b(how\s+are\s+you(\s+doing)?|how'?s\s+it\s+going|what'?s\s+up)\b`,
		`\b(thanks|thank\s+you|thx|cheers|much\s+appreciated)\b`,
		`\b(bye|goodbye|see\s+you|see\s+ya|later)\b`,
		`\b(ok|okay|cool|great|nice|awesome|perfect)\b`,
	)
	fillerWords = map[string]struct{}{
		"a": {}, "so": {}, "very": {}, "much": {}, "again": {}, "there": {}, "you": {},
		"all": {}, "for": {}, "that": {}, "it": {}, "today": {}, "and": {}, "lot": {},
		"the": {}, "help": {}, "your": {}, "that's": {}, "is": {},
	}
	wordPattern = regexp.MustCompile(`[a-z0-9']+`)

	lineViewPattern  = regexp.MustCompile(`\bline\b`)
	barViewPattern   = regexp.MustCompile(`\b(bar|pie|column)\b`)
	tableViewPattern = regexp.MustCompile(`\b(table|grid|rows)\b`)
)

// Classify returns the category of an utterance. Checks run in a fixed order
// and the first match wins; anything unmatched is a data question.
func Classify(text string, ctx Context) Category {
	normalized := normalize(text)
	if normalized == "" {
		return DataQuestion
	}

	if ctx.HasActiveVisualization && (matchAny(chartChangePatterns, normalized) || matchAny(colorPatterns, normalized)) {
		return VisualizationControl
	}
	if matchAny(editCapabilityPatterns, normalized) {
		return MetadataQuestion
	}
	if matchAny(editPatterns, normalized) {
		return EditInstruction
	}
	if matchAny(schemaPatterns, normalized) {
		return MetadataQuestion
	}
	if !matchAny(dataIndicatorPatterns, normalized) && matchAny(metadataPatterns, normalized) {
		return MetadataQuestion
	}
	if isSmallTalk(normalized) {
		return ChitChat
	}
	return DataQuestion
}

// RequestedView returns the rendering named by the utterance, if any.
func RequestedView(text string) View {
	normalized := normalize(text)
	switch {
	case lineViewPattern.MatchString(normalized):
		return ViewLine
	case barViewPattern.MatchString(normalized):
		return ViewBar
	case tableViewPattern.MatchString(normalized):
		return ViewTable
	default:
		return ViewNone
	}
}

// isSmallTalk requires a small-talk phrase and nothing of substance besides
// it, so "hi, how many deals closed?" stays a data question.
func isSmallTalk(normalized string) bool {
	if !matchAny(smallTalkPatterns, normalized) {
		return false
	}
	remainder := normalized
	for _, pattern := range smallTalkPatterns {
		remainder = pattern.ReplaceAllString(remainder, " ")
	}
	leftover := 0
	for _, word := range wordPattern.FindAllString(remainder, -1) {
		if _, filler := fillerWords[word]; filler {
			continue
		}
		leftover++
	}
	return leftover == 0
}

func normalize(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.TrimRight(normalized, "?!. ")
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func compile(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}
