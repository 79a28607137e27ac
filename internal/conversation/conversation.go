package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrBusy = errors.New("conversation: another utterance is in flight")

// Turn is one completed exchange. Statement and TargetID are empty for turns
// that never reached synthesis.
type Turn struct {
	TurnID     string    `json:"turn_id"`
	Utterance  string    `json:"utterance"`
	Category   string    `json:"category"`
	TargetID   string    `json:"target_id,omitempty"`
	Statement  string    `json:"statement,omitempty"`
	Outcome    string    `json:"outcome"`
	Visualized bool      `json:"visualized"`
	CreatedAt  time.Time `json:"created_at"`
}

// History is the ordered, append-only record of a conversation. It is a
// value: Append returns a new History and never modifies the receiver.
type History struct {
	ConversationID string
	turns          []Turn
}

func NewHistory(conversationID string, turns ...Turn) History {
	copied := make([]Turn, len(turns))
	copy(copied, turns)
	return History{ConversationID: conversationID, turns: copied}
}

func (h History) Append(turn Turn) History {
	turns := make([]Turn, len(h.turns), len(h.turns)+1)
	copy(turns, h.turns)
	return History{ConversationID: h.ConversationID, turns: append(turns, turn)}
}

func (h History) Len() int {
	return len(h.turns)
}

func (h History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Window returns at most n trailing turns, oldest first.
func (h History) Window(n int) []Turn {
	if n <= 0 || len(h.turns) == 0 {
		return nil
	}
	start := len(h.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}

// LastTarget returns the most recently resolved target.
func (h History) LastTarget() string {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].TargetID != "" {
			return h.turns[i].TargetID
		}
	}
	return ""
}

// LastStatement returns the most recent turn that executed a statement.
func (h History) LastStatement() (Turn, bool) {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if strings.TrimSpace(h.turns[i].Statement) != "" {
			return h.turns[i], true
		}
	}
	return Turn{}, false
}

// AwaitingTarget reports whether the previous turn asked the user to pick a
// dataset.
func (h History) AwaitingTarget() bool {
	if len(h.turns) == 0 {
		return false
	}
	return h.turns[len(h.turns)-1].Outcome == "clarification"
}

// HasActiveVisualization reports whether the latest executed turn is still
// on screen as a chart.
func (h History) HasActiveVisualization() bool {
	turn, ok := h.LastStatement()
	return ok && turn.Visualized
}

// Utterance is one user message together with the conversation it belongs to.
type Utterance struct {
	Text    string
	History History
}

// Store persists conversation turns.
type Store interface {
	Load(ctx context.Context, userID, conversationID string) (History, error)
	Append(ctx context.Context, userID, conversationID string, turn Turn) error
}
