package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

const entryColumns = `target_id, user_id, display_name, object_path, columns_json, samples_json, row_count, ordinal, created_at`

func (r *Repository) GetEntries(ctx context.Context, userID string) ([]catalog.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM dataset
WHERE user_id = $1
ORDER BY ordinal ASC, target_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]catalog.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return entries, nil
}

func (r *Repository) GetEntry(ctx context.Context, targetID string) (catalog.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM dataset
WHERE target_id = $1`, targetID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Entry{}, catalog.ErrNotFound
		}
		return catalog.Entry{}, err
	}
	return entry, nil
}

// UpsertEntry stores a profiled dataset. New datasets get the next ordinal of
// their user; re-profiling keeps the existing ordinal.
func (r *Repository) UpsertEntry(ctx context.Context, entry catalog.Entry) (catalog.Entry, error) {
	columnsJSON, err := json.Marshal(entry.Columns)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("encode dataset columns: %w", err)
	}
	samples := entry.SampleRows
	if samples == nil {
		samples = [][]any{}
	}
	samplesJSON, err := json.Marshal(samples)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("encode dataset samples: %w", err)
	}

	query := `
INSERT INTO dataset (target_id, user_id, display_name, object_path, columns_json, samples_json, row_count, ordinal)
VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7,
	(SELECT COALESCE(MAX(ordinal), 0) + 1 FROM dataset WHERE user_id = $2))
ON CONFLICT (target_id)
DO UPDATE SET display_name = EXCLUDED.display_name,
	object_path = EXCLUDED.object_path,
	columns_json = EXCLUDED.columns_json,
	samples_json = EXCLUDED.samples_json,
	row_count = EXCLUDED.row_count
RETURNING ordinal, created_at`

	var (
		ordinal   int
		createdAt time.Time
	)
	if err := r.db.QueryRowContext(ctx, query,
		entry.TargetID,
		entry.UserID,
		entry.DisplayName,
		entry.ObjectPath,
		string(columnsJSON),
		string(samplesJSON),
		entry.RowCount,
	).Scan(&ordinal, &createdAt); err != nil {
		return catalog.Entry{}, fmt.Errorf("upsert dataset: %w", err)
	}
	entry.Ordinal = ordinal
	entry.CreatedAt = createdAt
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (catalog.Entry, error) {
	var (
		entry       catalog.Entry
		columnsJSON []byte
		samplesJSON []byte
	)
	if err := row.Scan(
		&entry.TargetID,
		&entry.UserID,
		&entry.DisplayName,
		&entry.ObjectPath,
		&columnsJSON,
		&samplesJSON,
		&entry.RowCount,
		&entry.Ordinal,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Entry{}, err
		}
		return catalog.Entry{}, fmt.Errorf("scan dataset row: %w", err)
	}
	if len(columnsJSON) > 0 {
		if err := json.Unmarshal(columnsJSON, &entry.Columns); err != nil {
			return catalog.Entry{}, fmt.Errorf("decode columns of dataset %s: %w", entry.TargetID, err)
		}
	}
	if len(samplesJSON) > 0 {
		if err := json.Unmarshal(samplesJSON, &entry.SampleRows); err != nil {
			return catalog.Entry{}, fmt.Errorf("decode samples of dataset %s: %w", entry.TargetID, err)
		}
	}
	return entry, nil
}
