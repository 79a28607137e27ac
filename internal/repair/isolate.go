package repair

import "github.com/duckmesh/tabletalk/internal/sqltext"

// IsolateRule keeps the first read-only statement, or the first statement
// when none is read-only.
type IsolateRule struct{}

func (IsolateRule) Name() string { return "isolate" }

func (IsolateRule) Apply(text string, _ Input) (string, error) {
	statements := sqltext.Split(text)
	if len(statements) <= 1 {
		return text, nil
	}
	for _, statement := range statements {
		if readOnly(sqltext.Analyze(statement)) {
			return statement, nil
		}
	}
	return statements[0], nil
}
