package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

// Index is the read side of the catalog consumed by the query pipeline.
type Index interface {
	GetEntries(ctx context.Context, userID string) ([]Entry, error)
	GetEntry(ctx context.Context, targetID string) (Entry, error)
}

type ScalarType string

const (
	TypeInteger  ScalarType = "integer"
	TypeFloat    ScalarType = "float"
	TypeBoolean  ScalarType = "boolean"
	TypeDate     ScalarType = "date"
	TypeDatetime ScalarType = "datetime"
	TypeString   ScalarType = "string"
)

func (t ScalarType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

func (t ScalarType) Chronological() bool {
	return t == TypeDate || t == TypeDatetime
}

type Cardinality string

const (
	CardinalityLow    Cardinality = "low"
	CardinalityHigh   Cardinality = "high"
	CardinalityUnique Cardinality = "unique"
)

type Column struct {
	Name        string      `json:"name"`
	Type        ScalarType  `json:"type"`
	Nullable    bool        `json:"nullable"`
	Cardinality Cardinality `json:"cardinality"`
	// DistinctValues is only populated for low-cardinality columns.
	DistinctValues []string `json:"distinct_values,omitempty"`
}

// Entry describes one uploaded dataset. Column names match the physical
// relation exactly.
type Entry struct {
	TargetID    string
	UserID      string
	DisplayName string
	ObjectPath  string
	Columns     []Column
	SampleRows  [][]any
	RowCount    int64
	Ordinal     int
	CreatedAt   time.Time
}

func (e Entry) Column(name string) (Column, bool) {
	for _, column := range e.Columns {
		if strings.EqualFold(column.Name, name) {
			return column, true
		}
	}
	return Column{}, false
}

func (e Entry) ColumnNames() []string {
	names := make([]string, 0, len(e.Columns))
	for _, column := range e.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Label is the name shown to users when listing datasets.
func (e Entry) Label() string {
	if strings.TrimSpace(e.DisplayName) != "" {
		return e.DisplayName
	}
	return e.TargetID
}

// SampleValues returns the non-empty string renderings of a column's sample
// values, in sample order and without duplicates.
func (e Entry) SampleValues(name string) []string {
	index := -1
	for i, column := range e.Columns {
		if strings.EqualFold(column.Name, name) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil
	}
	seen := map[string]struct{}{}
	values := make([]string, 0, len(e.SampleRows))
	for _, row := range e.SampleRows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		value, ok := row[index].(string)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
