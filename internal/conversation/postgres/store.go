package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duckmesh/tabletalk/internal/conversation"
)

// Store persists conversation turns in the conversation_turn table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context, userID, conversationID string) (conversation.History, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT turn_id, utterance, category, target_id, statement, outcome, visualized, created_at
FROM conversation_turn
WHERE user_id = $1 AND conversation_id = $2
ORDER BY seq ASC`, userID, conversationID)
	if err != nil {
		return conversation.History{}, fmt.Errorf("load conversation turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]conversation.Turn, 0)
	for rows.Next() {
		var turn conversation.Turn
		if err := rows.Scan(
			&turn.TurnID,
			&turn.Utterance,
			&turn.Category,
			&turn.TargetID,
			&turn.Statement,
			&turn.Outcome,
			&turn.Visualized,
			&turn.CreatedAt,
		); err != nil {
			return conversation.History{}, fmt.Errorf("scan conversation turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return conversation.History{}, fmt.Errorf("iterate conversation turns: %w", err)
	}
	return conversation.NewHistory(conversationID, turns...), nil
}

func (s *Store) Append(ctx context.Context, userID, conversationID string, turn conversation.Turn) error {
	query := `
INSERT INTO conversation_turn (turn_id, user_id, conversation_id, seq, utterance, category, target_id, statement, outcome, visualized, created_at)
VALUES ($1, $2, $3,
	(SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turn WHERE user_id = $2 AND conversation_id = $3),
	$4, $5, $6, $7, $8, $9, $10)`
	if _, err := s.db.ExecContext(ctx, query,
		turn.TurnID,
		userID,
		conversationID,
		turn.Utterance,
		turn.Category,
		turn.TargetID,
		turn.Statement,
		turn.Outcome,
		turn.Visualized,
		turn.CreatedAt,
	); err != nil {
		return fmt.Errorf("append conversation turn: %w", err)
	}
	return nil
}
