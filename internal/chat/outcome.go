package chat

// Outcome is the kind of answer a turn produced. Every outcome has exactly
// one user-facing message; lower-layer errors are only logged.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeClarification      Outcome = "clarification"
	OutcomeSynthesisFailure   Outcome = "synthesis_failure"
	OutcomeUnrepairable       Outcome = "unrepairable_statement"
	OutcomeGuardRejected      Outcome = "guard_rejected"
	OutcomeExecutionTimeout   Outcome = "execution_timeout"
	OutcomeExecutionError     Outcome = "execution_error"
	OutcomeNoTargets          Outcome = "no_targets"
	OutcomeCatalogUnavailable Outcome = "catalog_unavailable"
)

var outcomeMessages = map[Outcome]string{
	OutcomeOK:                 "Here is what I found.",
	OutcomeClarification:      "Which dataset do you mean? Reply with its number or name.",
	OutcomeSynthesisFailure:   "I couldn't turn that into a query. Try rephrasing the question with the column names you are interested in.",
	OutcomeUnrepairable:       "I couldn't build a valid query for that dataset. Try asking about the columns it has.",
	OutcomeGuardRejected:      "I can only run read-only questions against the selected dataset, so I didn't run that query.",
	OutcomeExecutionTimeout:   "That query took too long to run. Try narrowing it down, for example with a filter or a smaller top N.",
	OutcomeExecutionError:     "Something went wrong while running the query. Try rephrasing the question.",
	OutcomeNoTargets:          "You don't have any datasets yet. Upload a file first, then ask me about it.",
	OutcomeCatalogUnavailable: "I can't reach your datasets right now. Please try again in a moment.",
}

func (o Outcome) Message() string {
	return outcomeMessages[o]
}

// Retryable reports whether asking the same question again may succeed.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeSynthesisFailure, OutcomeExecutionTimeout, OutcomeCatalogUnavailable:
		return true
	default:
		return false
	}
}
