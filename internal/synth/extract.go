package synth

import (
	"regexp"
	"strings"
)

var (
	fencePattern     = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n(.*?)(?:```|$)")
	statementStart   = regexp.MustCompile(`(?i)^(SELECT|WITH|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|REPLACE|TRUNCATE|MERGE|ATTACH|DETACH|COPY|PRAGMA|EXPLAIN|CALL|INSTALL|LOAD|SET|EXPORT|IMPORT|VACUUM|GRANT|REVOKE|FROM)\b`)
	inlineSelect     = regexp.MustCompile(`(?i)\bselect\b`)
	labelPrefix      = regexp.MustCompile(`(?i)^(sql|query|answer)\s*:\s*`)
	narrativeOpeners = regexp.MustCompile(`(?i)^(this|that|here|note|explanation|the|it|i|these|which)\b[^;]*$`)
)

// Extract isolates the statement-shaped text in an oracle reply. A fenced
// block wins over surrounding prose. Within the chosen text the first line
// starting with a statement keyword opens a run that ends at a blank line, a
// terminating semicolon at end of line, or a line of narrative.
func Extract(raw string) (string, bool) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if match := fencePattern.FindStringSubmatch(text); match != nil && strings.TrimSpace(match[1]) != "" {
		text = match[1]
	}

	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		trimmed := labelPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		if statementStart.MatchString(trimmed) {
			lines[i] = trimmed
			start = i
			break
		}
	}
	if start < 0 {
		for i, line := range lines {
			if loc := inlineSelect.FindStringIndex(line); loc != nil {
				lines[i] = line[loc[0]:]
				start = i
				break
			}
		}
	}
	if start < 0 {
		return "", false
	}

	run := make([]string, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t`")
		if strings.TrimSpace(line) == "" {
			break
		}
		if i > start && narrativeOpeners.MatchString(strings.TrimSpace(line)) {
			break
		}
		run = append(run, line)
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			break
		}
	}
	statement := strings.TrimSpace(strings.Join(run, "\n"))
	if statement == "" {
		return "", false
	}
	return statement, true
}
