package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/storage"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

// Store executes statements against a dataset's parquet object. Each call
// materializes the object locally and exposes it as a view named after the
// target id, so statements address the dataset by its catalog identifier.
type Store struct {
	Objects storage.ObjectStore
	// Threads caps DuckDB worker threads per execution; zero keeps the default.
	Threads int
}

func NewStore(objects storage.ObjectStore) *Store {
	return &Store{Objects: objects}
}

func (s *Store) Execute(ctx context.Context, request tablestore.Request) (tablestore.Result, error) {
	if strings.TrimSpace(request.Statement) == "" {
		return tablestore.Result{}, fmt.Errorf("statement is required")
	}
	if strings.TrimSpace(request.TargetID) == "" || strings.TrimSpace(request.ObjectPath) == "" {
		return tablestore.Result{}, fmt.Errorf("target id and object path are required")
	}
	if s.Objects == nil {
		return tablestore.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	execCtx := ctx
	if request.TimeBudget > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, request.TimeBudget)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "tabletalk-exec-")
	if err != nil {
		return tablestore.Result{}, fmt.Errorf("create execution temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, sanitizeFileComponent(request.TargetID)+".parquet")
	if _, err := storage.Fetch(execCtx, s.Objects, request.ObjectPath, localPath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return tablestore.Result{}, fmt.Errorf("%w: %s", tablestore.ErrTargetMissing, request.TargetID)
		}
		if budgetErr := classifyContextErr(ctx, execCtx); budgetErr != nil {
			return tablestore.Result{}, budgetErr
		}
		return tablestore.Result{}, fmt.Errorf("%w: fetch %q: %v", tablestore.ErrUnavailable, request.ObjectPath, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return tablestore.Result{}, fmt.Errorf("%w: open duckdb: %v", tablestore.ErrUnavailable, err)
	}
	defer func() { _ = db.Close() }()
	// One connection keeps the view and the statement in the same session.
	db.SetMaxOpenConns(1)

	if s.Threads > 0 {
		if _, err := db.ExecContext(execCtx, fmt.Sprintf("SET threads TO %d", s.Threads)); err != nil {
			return tablestore.Result{}, fmt.Errorf("%w: configure duckdb: %v", tablestore.ErrUnavailable, err)
		}
	}

	if err := checkStatement(execCtx, db, request.Statement, request.TargetID); err != nil {
		if budgetErr := classifyContextErr(ctx, execCtx); budgetErr != nil {
			return tablestore.Result{}, budgetErr
		}
		return tablestore.Result{}, err
	}

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(request.TargetID), quoteString(localPath))
	if _, err := db.ExecContext(execCtx, viewSQL); err != nil {
		return tablestore.Result{}, fmt.Errorf("%w: create view for %q: %v", tablestore.ErrTargetMissing, request.TargetID, err)
	}

	statement := stripTrailingSemicolons(request.Statement)
	if statement == "" {
		return tablestore.Result{}, fmt.Errorf("statement is required")
	}
	if request.RowCap > 0 {
		// One extra row distinguishes an exact fit from a truncated result.
		// The line breaks keep a trailing line comment from swallowing the wrapper.
		statement = fmt.Sprintf("SELECT * FROM (\n%s\n) AS q LIMIT %d", statement, request.RowCap+1)
	}

	rows, err := db.QueryContext(execCtx, statement)
	if err != nil {
		if budgetErr := classifyContextErr(ctx, execCtx); budgetErr != nil {
			return tablestore.Result{}, budgetErr
		}
		return tablestore.Result{}, &tablestore.RuntimeError{Err: err}
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return tablestore.Result{}, &tablestore.RuntimeError{Err: fmt.Errorf("column types: %w", err)}
	}
	columns := make([]tablestore.Column, 0, len(columnTypes))
	for _, columnType := range columnTypes {
		columns = append(columns, tablestore.Column{
			Name: columnType.Name(),
			Type: scalarTypeOf(columnType.DatabaseTypeName()),
		})
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if request.RowCap > 0 && len(resultRows) == request.RowCap {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return tablestore.Result{}, &tablestore.RuntimeError{Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		if budgetErr := classifyContextErr(ctx, execCtx); budgetErr != nil {
			return tablestore.Result{}, budgetErr
		}
		return tablestore.Result{}, &tablestore.RuntimeError{Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return tablestore.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

// checkStatement runs the statement through DuckDB's own parser. It must
// parse to exactly one SELECT whose base tables are the target or its CTEs,
// with no table functions such as read_csv.
func checkStatement(ctx context.Context, db *sql.DB, statement, targetID string) error {
	var serialized string
	query := fmt.Sprintf("SELECT CAST(json_serialize_sql(%s) AS VARCHAR)", quoteString(statement))
	if err := db.QueryRowContext(ctx, query).Scan(&serialized); err != nil {
		return fmt.Errorf("%w: parse statement: %v", tablestore.ErrUnavailable, err)
	}
	var parsed struct {
		Error        bool              `json:"error"`
		ErrorType    string            `json:"error_type"`
		ErrorMessage string            `json:"error_message"`
		Statements   []json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal([]byte(serialized), &parsed); err != nil {
		return fmt.Errorf("%w: decode parse tree: %v", tablestore.ErrUnavailable, err)
	}
	if parsed.Error {
		if strings.EqualFold(parsed.ErrorType, "parser") {
			return &tablestore.RuntimeError{Err: errors.New(parsed.ErrorMessage)}
		}
		return fmt.Errorf("%w: %s", tablestore.ErrRejected, parsed.ErrorMessage)
	}
	if len(parsed.Statements) != 1 {
		return fmt.Errorf("%w: %d statements", tablestore.ErrRejected, len(parsed.Statements))
	}

	var tree any
	if err := json.Unmarshal(parsed.Statements[0], &tree); err != nil {
		return fmt.Errorf("%w: decode parse tree: %v", tablestore.ErrUnavailable, err)
	}
	refs := tableRefs{ctes: map[string]struct{}{}}
	refs.collect(tree)
	if len(refs.functions) > 0 {
		return fmt.Errorf("%w: table function %s", tablestore.ErrRejected, refs.functions[0])
	}
	for _, table := range refs.tables {
		if strings.EqualFold(table, targetID) {
			continue
		}
		if _, ok := refs.ctes[strings.ToLower(table)]; ok {
			continue
		}
		return fmt.Errorf("%w: relation %q", tablestore.ErrRejected, table)
	}
	return nil
}

type tableRefs struct {
	tables    []string
	functions []string
	ctes      map[string]struct{}
}

func (r *tableRefs) collect(node any) {
	switch v := node.(type) {
	case []any:
		for _, child := range v {
			r.collect(child)
		}
	case map[string]any:
		switch v["type"] {
		case "BASE_TABLE":
			if name, ok := v["table_name"].(string); ok {
				r.tables = append(r.tables, name)
			}
		case "TABLE_FUNCTION":
			name := "table function"
			if fn, ok := v["function"].(map[string]any); ok {
				if fnName, ok := fn["function_name"].(string); ok {
					name = fnName
				}
			}
			r.functions = append(r.functions, name)
		}
		if cteMap, ok := v["cte_map"].(map[string]any); ok {
			if entries, ok := cteMap["map"].([]any); ok {
				for _, entry := range entries {
					if kv, ok := entry.(map[string]any); ok {
						if key, ok := kv["key"].(string); ok {
							r.ctes[strings.ToLower(key)] = struct{}{}
						}
					}
				}
			}
		}
		for _, child := range v {
			r.collect(child)
		}
	}
}

// classifyContextErr separates an exhausted time budget from a caller that
// went away.
func classifyContextErr(parent, exec context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(exec.Err(), context.DeadlineExceeded) {
		return tablestore.ErrTimeout
	}
	return nil
}

func scalarTypeOf(databaseType string) catalog.ScalarType {
	name := strings.ToUpper(strings.TrimSpace(databaseType))
	switch {
	case name == "BOOLEAN":
		return catalog.TypeBoolean
	case name == "DATE":
		return catalog.TypeDate
	case strings.HasPrefix(name, "TIMESTAMP"):
		return catalog.TypeDatetime
	case strings.HasPrefix(name, "DECIMAL"), name == "DOUBLE", name == "FLOAT", name == "REAL":
		return catalog.TypeFloat
	case strings.HasSuffix(name, "INT"), strings.HasSuffix(name, "INTEGER"):
		// TINYINT, SMALLINT, INTEGER, BIGINT, HUGEINT and the unsigned variants.
		return catalog.TypeInteger
	default:
		return catalog.TypeString
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				f, _ := new(big.Float).SetInt(typed).Float64()
				normalized[i] = f
			}
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		case int32:
			normalized[i] = int64(typed)
		case int16:
			normalized[i] = int64(typed)
		case int8:
			normalized[i] = int64(typed)
		case float32:
			normalized[i] = float64(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "dataset"
	}
	return value
}

func stripTrailingSemicolons(statement string) string {
	trimmed := strings.TrimSpace(statement)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
