// Package profile builds catalog entries from uploaded parquet objects. The
// physical schema and row count come from the parquet footer; column types,
// cardinality, distinct values and sample rows are computed by the relational
// store against the same view the query pipeline uses.
package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/sqltext"
	"github.com/duckmesh/tabletalk/internal/storage"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

var ErrEmptySchema = errors.New("profile: parquet object has no columns")

type Config struct {
	SampleRows          int
	LowCardinalityLimit int
}

func DefaultConfig() Config {
	return Config{SampleRows: 5, LowCardinalityLimit: 20}
}

type Request struct {
	TargetID    string
	UserID      string
	DisplayName string
	ObjectPath  string
}

type Profiler struct {
	objects storage.ObjectStore
	store   tablestore.Store
	cfg     Config
}

func New(objects storage.ObjectStore, store tablestore.Store, cfg Config) *Profiler {
	defaults := DefaultConfig()
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = defaults.SampleRows
	}
	if cfg.LowCardinalityLimit <= 0 {
		cfg.LowCardinalityLimit = defaults.LowCardinalityLimit
	}
	return &Profiler{objects: objects, store: store, cfg: cfg}
}

// Profile describes the object at req.ObjectPath. A blank TargetID gets one
// derived from the display name.
func (p *Profiler) Profile(ctx context.Context, req Request) (catalog.Entry, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return catalog.Entry{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(req.ObjectPath) == "" {
		return catalog.Entry{}, fmt.Errorf("object path is required")
	}
	if req.DisplayName == "" {
		req.DisplayName = path.Base(req.ObjectPath)
	}
	if req.TargetID == "" {
		req.TargetID = NewTargetID(req.DisplayName)
	} else if err := storage.ValidateTargetID(req.TargetID); err != nil {
		return catalog.Entry{}, err
	}

	footer, err := p.readFooter(ctx, req.ObjectPath)
	if err != nil {
		return catalog.Entry{}, err
	}

	entry := catalog.Entry{
		TargetID:    req.TargetID,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		ObjectPath:  req.ObjectPath,
		RowCount:    footer.rows,
	}
	relation := sqltext.QuoteIdent(req.TargetID)

	sample, err := p.run(ctx, req, fmt.Sprintf("SELECT * FROM %s LIMIT %d", relation, p.cfg.SampleRows))
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("sample rows: %w", err)
	}
	entry.SampleRows = sample.Rows

	stats, err := p.run(ctx, req, statsStatement(relation, sample.Columns))
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("column statistics: %w", err)
	}
	if len(stats.Rows) != 1 || len(stats.Rows[0]) != 2*len(sample.Columns) {
		return catalog.Entry{}, fmt.Errorf("column statistics: unexpected result shape")
	}

	for i, column := range sample.Columns {
		distinct := asInt64(stats.Rows[0][2*i])
		nonNull := asInt64(stats.Rows[0][2*i+1])
		profiled := catalog.Column{
			Name:        column.Name,
			Type:        column.Type,
			Nullable:    footer.optional[column.Name] || nonNull < footer.rows,
			Cardinality: p.cardinality(distinct, footer.rows),
		}
		if profiled.Cardinality == catalog.CardinalityLow && column.Type == catalog.TypeString && distinct > 0 {
			values, err := p.distinctValues(ctx, req, relation, column.Name)
			if err != nil {
				return catalog.Entry{}, fmt.Errorf("distinct values of %q: %w", column.Name, err)
			}
			profiled.DistinctValues = values
		}
		entry.Columns = append(entry.Columns, profiled)
	}
	return entry, nil
}

type footerInfo struct {
	rows     int64
	optional map[string]bool
}

func (p *Profiler) readFooter(ctx context.Context, objectPath string) (footerInfo, error) {
	reader, err := p.objects.Get(ctx, objectPath)
	if err != nil {
		return footerInfo{}, fmt.Errorf("get %q: %w", objectPath, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return footerInfo{}, fmt.Errorf("read %q: %w", objectPath, err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return footerInfo{}, fmt.Errorf("open parquet %q: %w", objectPath, err)
	}
	fields := file.Schema().Fields()
	if len(fields) == 0 {
		return footerInfo{}, ErrEmptySchema
	}
	info := footerInfo{rows: file.NumRows(), optional: make(map[string]bool, len(fields))}
	for _, field := range fields {
		info.optional[field.Name()] = field.Optional()
	}
	return info, nil
}

func (p *Profiler) run(ctx context.Context, req Request, statement string) (tablestore.Result, error) {
	return p.store.Execute(ctx, tablestore.Request{
		TargetID:   req.TargetID,
		ObjectPath: req.ObjectPath,
		Statement:  statement,
	})
}

func (p *Profiler) distinctValues(ctx context.Context, req Request, relation, column string) ([]string, error) {
	name := sqltext.QuoteIdent(column)
	result, err := p.run(ctx, req, fmt.Sprintf(
		"SELECT DISTINCT CAST(%s AS VARCHAR) AS v FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		name, relation, name, p.cfg.LowCardinalityLimit,
	))
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		if value, ok := row[0].(string); ok && strings.TrimSpace(value) != "" {
			values = append(values, value)
		}
	}
	return values, nil
}

func (p *Profiler) cardinality(distinct, rows int64) catalog.Cardinality {
	switch {
	case rows > 0 && distinct == rows:
		return catalog.CardinalityUnique
	case distinct <= int64(p.cfg.LowCardinalityLimit):
		return catalog.CardinalityLow
	default:
		return catalog.CardinalityHigh
	}
}

// statsStatement selects COUNT(DISTINCT c), COUNT(c) for every column in one
// pass.
func statsStatement(relation string, columns []tablestore.Column) string {
	items := make([]string, 0, 2*len(columns))
	for _, column := range columns {
		name := sqltext.QuoteIdent(column.Name)
		items = append(items, "COUNT(DISTINCT "+name+")", "COUNT("+name+")")
	}
	return "SELECT " + strings.Join(items, ", ") + " FROM " + relation
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9]+`)

// NewTargetID derives a relation-safe identifier from a display name, e.g.
// "Q3 Pipeline.csv" becomes "q3_pipeline_1a2b3c4d".
func NewTargetID(displayName string) string {
	stem := strings.TrimSuffix(path.Base(displayName), path.Ext(displayName))
	stem = strings.Trim(nonIdentChars.ReplaceAllString(strings.ToLower(stem), "_"), "_")
	if stem == "" || (stem[0] >= '0' && stem[0] <= '9') {
		stem = "dataset_" + stem
		stem = strings.TrimSuffix(stem, "_")
	}
	if len(stem) > 40 {
		stem = strings.TrimRight(stem[:40], "_")
	}
	return stem + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Upserter stores profiled entries; the Postgres repository and the memory
// index both satisfy it.
type Upserter interface {
	UpsertEntry(ctx context.Context, entry catalog.Entry) (catalog.Entry, error)
}

// Registrar profiles an uploaded object and records it in the catalog.
type Registrar struct {
	Profiler *Profiler
	Catalog  Upserter
}

func (r Registrar) Register(ctx context.Context, req Request) (catalog.Entry, error) {
	entry, err := r.Profiler.Profile(ctx, req)
	if err != nil {
		return catalog.Entry{}, err
	}
	stored, err := r.Catalog.UpsertEntry(ctx, entry)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("register %s: %w", entry.TargetID, err)
	}
	return stored, nil
}
