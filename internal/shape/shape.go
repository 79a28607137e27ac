// Package shape picks a rendering for a result set from its column types and
// values alone. Column names never influence the choice.
package shape

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/tabletalk/internal/tablestore"
)

type Tag string

const (
	TagSingleValue   Tag = "single_value"
	TagCategoryCount Tag = "category_count"
	TagTimeSeries    Tag = "time_series"
	TagTabular       Tag = "tabular"
	TagNarrative     Tag = "narrative"
)

type Config struct {
	MaxCategoryRows int
	MaxSeriesRows   int
}

func DefaultConfig() Config {
	return Config{MaxCategoryRows: 20, MaxSeriesRows: 500}
}

type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Directive is the rendering for a result. Columns and Rows are always
// carried so that any directive can fall back to a table.
type Directive struct {
	Tag         Tag      `json:"tag"`
	Value       any      `json:"value,omitempty"`
	Points      []Point  `json:"points,omitempty"`
	LabelColumn string   `json:"label_column,omitempty"`
	ValueColumn string   `json:"value_column,omitempty"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
}

// Classify returns the first matching directive: no rows is narrative, one
// cell is a single value, a categorical column beside a numeric one is a
// category count or, when the categories are dates, a time series; anything
// else is tabular.
func Classify(result tablestore.Result, cfg Config) Directive {
	defaults := DefaultConfig()
	if cfg.MaxCategoryRows <= 0 {
		cfg.MaxCategoryRows = defaults.MaxCategoryRows
	}
	if cfg.MaxSeriesRows <= 0 {
		cfg.MaxSeriesRows = defaults.MaxSeriesRows
	}
	d := Directive{Tag: TagTabular, Columns: result.ColumnNames(), Rows: result.Rows}
	if d.Rows == nil {
		d.Rows = [][]any{}
	}

	switch {
	case result.RowCount() == 0:
		d.Tag = TagNarrative
		return d
	case len(result.Columns) == 1 && result.RowCount() == 1:
		d.Tag = TagSingleValue
		d.Value = result.Rows[0][0]
		return d
	case len(result.Columns) != 2:
		return d
	}

	labelIdx, valueIdx, ok := categoricalAndNumeric(result.Columns)
	if !ok {
		return d
	}
	values := make([]float64, 0, result.RowCount())
	for _, row := range result.Rows {
		value, ok := toFloat(row[valueIdx])
		if !ok {
			return d
		}
		values = append(values, value)
	}
	d.LabelColumn = result.Columns[labelIdx].Name
	d.ValueColumn = result.Columns[valueIdx].Name

	if times, ok := chronological(result, labelIdx); ok {
		if result.RowCount() > cfg.MaxSeriesRows {
			return d
		}
		order := make([]int, len(times))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })
		d.Points = make([]Point, 0, len(order))
		for _, i := range order {
			d.Points = append(d.Points, Point{Label: formatTime(times[i]), Value: values[i]})
		}
		d.Tag = TagTimeSeries
		return d
	}

	if result.RowCount() > cfg.MaxCategoryRows {
		return d
	}
	distinct := map[string]struct{}{}
	points := make([]Point, 0, result.RowCount())
	for i, row := range result.Rows {
		label := formatLabel(row[labelIdx])
		distinct[label] = struct{}{}
		points = append(points, Point{Label: label, Value: values[i]})
	}
	if len(distinct) > cfg.MaxCategoryRows {
		return d
	}
	d.Tag = TagCategoryCount
	d.Points = points
	return d
}

func categoricalAndNumeric(columns []tablestore.Column) (int, int, bool) {
	first, second := columns[0].Type, columns[1].Type
	switch {
	case !first.Numeric() && second.Numeric():
		return 0, 1, true
	case first.Numeric() && !second.Numeric():
		return 1, 0, true
	default:
		return 0, 0, false
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"01/02/2006",
	"Jan 2006",
	"January 2006",
}

// chronological returns the label column as times when every value is a
// date or parses as one.
func chronological(result tablestore.Result, idx int) ([]time.Time, bool) {
	times := make([]time.Time, 0, result.RowCount())
	for _, row := range result.Rows {
		switch value := row[idx].(type) {
		case time.Time:
			times = append(times, value)
		case string:
			parsed, ok := parseDate(value)
			if !ok {
				return nil, false
			}
			times = append(times, parsed)
		default:
			return nil, false
		}
	}
	return times, len(times) > 0
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func formatLabel(value any) string {
	switch v := value.(type) {
	case nil:
		return "(null)"
	case string:
		return v
	case time.Time:
		return formatTime(v)
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
