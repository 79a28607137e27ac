package sqltext

import "strings"

var keywords = toSet(
	"ALL", "AND", "ANTI", "ANY", "AS", "ASC", "ASOF", "BETWEEN", "BOTH", "BY",
	"CASE", "CAST", "COLLATE", "CROSS", "CUBE", "CURRENT", "CURRENT_DATE",
	"CURRENT_TIME", "CURRENT_TIMESTAMP", "DESC", "DISTINCT", "ELSE", "END",
	"ESCAPE", "EXCEPT", "EXCLUDE", "EXISTS", "FALSE", "FILTER", "FIRST",
	"FOLLOWING", "FOR", "FROM", "FULL", "GLOB", "GROUP", "GROUPING", "HAVING",
	"ILIKE", "IN", "INNER", "INTERSECT", "INTERVAL", "INTO", "IS", "ISNULL",
	"JOIN", "LAST", "LATERAL", "LEADING", "LEFT", "LIKE", "LIMIT", "NATURAL",
	"NOT", "NOTNULL", "NULL", "NULLS", "OFFSET", "ON", "OR", "ORDER", "OUTER",
	"OVER", "PARTITION", "PIVOT", "POSITIONAL", "PRECEDING", "QUALIFY", "RANGE",
	"RECURSIVE", "RIGHT", "ROLLUP", "ROW", "ROWS", "SELECT", "SEMI", "SIMILAR",
	"SOME", "TABLESAMPLE", "THEN", "TIES", "TRAILING", "TRUE", "UNBOUNDED",
	"UNION", "UNPIVOT", "USING", "VALUES", "WHEN", "WHERE", "WINDOW", "WITH",
	"WITHIN",
	// date parts
	"CENTURY", "DAY", "DAYS", "DECADE", "DOW", "DOY", "EPOCH", "HOUR", "HOURS",
	"ISODOW", "MICROSECOND", "MILLISECOND", "MINUTE", "MINUTES", "MONTH",
	"MONTHS", "QUARTER", "SECOND", "SECONDS", "WEEK", "WEEKS", "YEAR", "YEARS",
	// type names
	"BIGINT", "BLOB", "BOOL", "BOOLEAN", "CHAR", "DATE", "DECIMAL", "DOUBLE",
	"FLOAT", "HUGEINT", "INT", "INTEGER", "NUMERIC", "REAL", "SMALLINT", "TEXT",
	"TIME", "TIMESTAMP", "TIMESTAMPTZ", "TINYINT", "UBIGINT", "UINTEGER",
	"VARCHAR", "ZONE",
)

// Mutating or administrative statements and functions reaching outside the
// dataset. None of them may appear as a standalone token in a query.
var blacklist = toSet(
	"ALTER", "ATTACH", "CALL", "CHECKPOINT", "COPY", "CREATE", "DEALLOCATE",
	"DELETE", "DETACH", "DROP", "EXEC", "EXECUTE", "EXPORT", "GRANT", "IMPORT",
	"INSERT", "INSTALL", "LOAD", "MERGE", "PRAGMA", "PREPARE", "RESET",
	"REVOKE", "SET", "TRUNCATE", "UPDATE", "UPSERT", "USE", "VACUUM",
	"GETENV", "PARQUET_SCAN", "QUERY", "QUERY_TABLE", "READ_BLOB",
	"READ_CSV", "READ_CSV_AUTO", "READ_JSON", "READ_JSON_AUTO",
	"READ_JSON_OBJECTS", "READ_NDJSON", "READ_PARQUET", "READ_TEXT",
	"SNIFF_CSV", "SQLITE_SCAN", "POSTGRES_SCAN",
)

var aggregates = toSet(
	"AVG", "COUNT", "MAX", "MEDIAN", "MIN", "MODE", "STDDEV", "STDDEV_POP",
	"STDDEV_SAMP", "SUM", "VARIANCE", "VAR_POP", "VAR_SAMP", "ARG_MAX",
	"ARG_MIN", "APPROX_COUNT_DISTINCT", "STRING_AGG", "LIST", "ARRAY_AGG",
	"BOOL_AND", "BOOL_OR", "FIRST", "LAST", "ANY_VALUE",
)

func IsKeyword(word string) bool {
	_, ok := keywords[strings.ToUpper(word)]
	return ok
}

func IsBlacklisted(word string) bool {
	_, ok := blacklist[strings.ToUpper(word)]
	return ok
}

func IsAggregate(word string) bool {
	_, ok := aggregates[strings.ToUpper(word)]
	return ok
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
