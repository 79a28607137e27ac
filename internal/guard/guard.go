// Package guard decides whether a repaired statement may run. Checks run in
// a fixed order and the first failure is final.
package guard

import (
	"fmt"
	"strings"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/repair"
	"github.com/duckmesh/tabletalk/internal/sqltext"
)

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonStatementKind   Reason = "statement_kind"
	ReasonTargetWhitelist Reason = "target_whitelist"
	ReasonTokenBlacklist  Reason = "token_blacklist"
	ReasonColumnWhitelist Reason = "column_whitelist"
)

// Decision carries the statement with its verdict. Detail is for logs only.
type Decision struct {
	Statement repair.Statement
	Passed    bool
	Reason    Reason
	Detail    string
}

type Guard struct{}

func New() *Guard {
	return &Guard{}
}

type check func(a *sqltext.Analysis, entry catalog.Entry) (Reason, string)

func (g *Guard) Check(stmt repair.Statement, entry catalog.Entry) Decision {
	decision := g.check(stmt, entry)
	if !decision.Passed {
		observability.ObserveGuardRejection(string(decision.Reason))
	}
	return decision
}

func (g *Guard) check(stmt repair.Statement, entry catalog.Entry) Decision {
	reject := func(reason Reason, detail string) Decision {
		return Decision{Statement: stmt, Reason: reason, Detail: detail}
	}
	if stmt.TargetID != "" && stmt.TargetID != entry.TargetID {
		return reject(ReasonTargetWhitelist, fmt.Sprintf("statement was repaired for %q", stmt.TargetID))
	}

	statements := sqltext.Split(stmt.Text)
	if len(statements) != 1 {
		return reject(ReasonStatementKind, fmt.Sprintf("expected one statement, found %d", len(statements)))
	}
	a := sqltext.Analyze(statements[0])
	for _, c := range []check{statementKind, targetWhitelist, tokenBlacklist, columnWhitelist} {
		if reason, detail := c(a, entry); reason != ReasonNone {
			return reject(reason, detail)
		}
	}
	return Decision{Statement: stmt, Passed: true}
}

func statementKind(a *sqltext.Analysis, _ catalog.Entry) (Reason, string) {
	switch keyword := a.FirstKeyword(); keyword {
	case "SELECT", "WITH":
		return ReasonNone, ""
	default:
		return ReasonStatementKind, fmt.Sprintf("statement starts with %q", keyword)
	}
}

func targetWhitelist(a *sqltext.Analysis, entry catalog.Entry) (Reason, string) {
	referenced := false
	for _, ref := range a.Relations {
		switch {
		case ref.Function:
			return ReasonTargetWhitelist, fmt.Sprintf("table function %q", ref.Name)
		case ref.Qualifier != "":
			return ReasonTargetWhitelist, fmt.Sprintf("qualified relation %s.%s", ref.Qualifier, ref.Name)
		case strings.EqualFold(ref.Name, entry.TargetID):
			referenced = true
		case a.IsCTE(ref.Name):
		default:
			return ReasonTargetWhitelist, fmt.Sprintf("relation %q is not the target", ref.Name)
		}
	}
	for _, ref := range a.Qualifiers {
		if strings.EqualFold(ref.Name, entry.TargetID) {
			referenced = true
			continue
		}
		if a.IsAlias(ref.Name) || a.IsCTE(ref.Name) {
			continue
		}
		return ReasonTargetWhitelist, fmt.Sprintf("qualifier %q is not the target", ref.Name)
	}
	if !referenced {
		return ReasonTargetWhitelist, "statement does not read the target"
	}
	return ReasonNone, ""
}

func tokenBlacklist(a *sqltext.Analysis, _ catalog.Entry) (Reason, string) {
	for _, token := range a.Tokens {
		if token.Kind == sqltext.Word && sqltext.IsBlacklisted(token.Text) {
			return ReasonTokenBlacklist, fmt.Sprintf("token %q", token.Upper())
		}
	}
	return ReasonNone, ""
}

func columnWhitelist(a *sqltext.Analysis, entry catalog.Entry) (Reason, string) {
	for _, ref := range a.Columns {
		if _, ok := entry.Column(ref.Name); ok {
			continue
		}
		if a.IsAlias(ref.Name) || a.IsCTE(ref.Name) {
			continue
		}
		return ReasonColumnWhitelist, fmt.Sprintf("column %q is not in %s", ref.Name, entry.TargetID)
	}
	return ReasonNone, ""
}
