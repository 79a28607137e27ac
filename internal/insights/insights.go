// Package insights profiles a dataset with a fixed set of aggregate
// statements: per-column statistics, IQR outliers, pairwise correlations,
// empty-value counts and a trend over the first date column. Statements are
// generated from the catalog entry, so they pass the same guard as
// synthesized ones and run through the same executor.
package insights

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/sqltext"
	"github.com/duckmesh/tabletalk/internal/tablestore"
)

const (
	maxProfileColumns   = 8
	maxCorrelationPairs = 10
	strongCorrelation   = 0.7
	outlierFence        = 1.5
)

var requestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(statistics|stats|statistical|insights?)\b`),
	regexp.MustCompile(`\b(anomal(y|ies|ous)|outliers?|unusual\s+values?)\b`),
	regexp.MustCompile(`\bcorrelat(e|ed|es|ion|ions)\b`),
	regexp.MustCompile(`\b(data\s+quality|missing\s+values?|empty\s+values?)\b`),
	regexp.MustCompile(`\b(summarize|summarise|summary\s+of|profile|analy[sz]e)\s+(the\s+|this\s+|my\s+)?(data|dataset|file|table)\b`),
}

var ErrUnexpectedResult = errors.New("insights: unexpected result shape")

// Requested reports whether text asks for a statistical profile rather than
// a specific figure. Trends and distributions stay data questions: they have
// a direct query answer.
func Requested(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range requestPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}

type Profile struct {
	Column  string
	Present int64
	Missing int64
	Mean    float64
	Median  float64
	StdDev  float64
	Min     float64
	Max     float64
	Q1      float64
	Q3      float64
}

type Outlier struct {
	Column  string
	Count   int64
	Lower   float64
	Upper   float64
	Percent float64
}

type Correlation struct {
	A, B string
	R    float64
}

type ColumnCount struct {
	Column string
	Count  int64
}

type Trend struct {
	TimeColumn  string
	Measure     string
	Granularity string
	Periods     int
	First       Point
	Last        Point
	Peak        Point
}

type Point struct {
	Period string
	Value  float64
}

// Report accumulates the sections of a profile. Each section has a
// statement method and a matching Read method; a section whose statement
// method returns false has nothing to compute.
type Report struct {
	Label        string
	RowCount     int64
	ColumnCount  int
	Missing      []ColumnCount
	Profiles     []Profile
	Outliers     []Outlier
	Correlations []Correlation
	Trend        *Trend

	entry    catalog.Entry
	numeric  []catalog.Column
	timeCol  *catalog.Column
	spanDays float64
	hasSpan  bool
	fenced   []Outlier
	pairs    []Correlation
}

// New plans a report for entry. Numeric columns named in text narrow the
// profile; otherwise the first numeric columns are used.
func New(entry catalog.Entry, text string) *Report {
	r := &Report{Label: entry.Label(), ColumnCount: len(entry.Columns), entry: entry}
	lower := strings.ToLower(text)
	var named, all []catalog.Column
	for _, column := range entry.Columns {
		switch {
		case column.Type.Numeric():
			all = append(all, column)
			if mentions(lower, column.Name) {
				named = append(named, column)
			}
		case column.Type.Chronological():
			if r.timeCol == nil || (mentions(lower, column.Name) && !mentions(lower, r.timeCol.Name)) {
				c := column
				r.timeCol = &c
			}
		}
	}
	r.numeric = named
	if len(r.numeric) == 0 {
		r.numeric = all
	}
	if len(r.numeric) > maxProfileColumns {
		r.numeric = r.numeric[:maxProfileColumns]
	}
	return r
}

func mentions(lower, name string) bool {
	name = strings.ToLower(name)
	variants := []string{name, strings.ReplaceAll(name, "_", " ")}
	for _, variant := range variants {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(variant) + `\b`).MatchString(lower) {
			return true
		}
	}
	return false
}

func (r *Report) from() string {
	return " FROM " + sqltext.QuoteIdent(r.entry.TargetID)
}

// QualityStatement counts rows and empty values per column, plus the day span
// of the trend column when there is one.
func (r *Report) QualityStatement() (string, bool) {
	items := []string{`CAST(COUNT(*) AS DOUBLE) AS "row_count"`}
	for i, column := range r.entry.Columns {
		items = append(items, fmt.Sprintf(`CAST(COUNT(*) - COUNT(%s) AS DOUBLE) AS "missing_%d"`, sqltext.QuoteIdent(column.Name), i+1))
	}
	if r.timeCol != nil {
		quoted := sqltext.QuoteIdent(r.timeCol.Name)
		items = append(items, fmt.Sprintf(`CAST(date_diff('day', MIN(%s), MAX(%s)) AS DOUBLE) AS "span_days"`, quoted, quoted))
	}
	return "SELECT " + strings.Join(items, ", ") + r.from(), true
}

func (r *Report) ReadQuality(result tablestore.Result) error {
	want := 1 + len(r.entry.Columns)
	if r.timeCol != nil {
		want++
	}
	if len(result.Rows) != 1 || len(result.Rows[0]) != want {
		return ErrUnexpectedResult
	}
	row := result.Rows[0]
	rows, _ := number(row[0])
	r.RowCount = int64(rows)
	r.Missing = r.Missing[:0]
	for i, column := range r.entry.Columns {
		if missing, ok := number(row[i+1]); ok && missing > 0 {
			r.Missing = append(r.Missing, ColumnCount{Column: column.Name, Count: int64(missing)})
		}
	}
	if r.timeCol != nil {
		r.spanDays, r.hasSpan = number(row[want-1])
	}
	return nil
}

// ProfileStatement returns one row per profiled numeric column.
func (r *Report) ProfileStatement() (string, bool) {
	if len(r.numeric) == 0 {
		return "", false
	}
	selects := make([]string, 0, len(r.numeric))
	for _, column := range r.numeric {
		c := sqltext.QuoteIdent(column.Name)
		selects = append(selects, "SELECT "+strings.Join([]string{
			sqltext.QuoteString(column.Name) + ` AS "column_name"`,
			`CAST(COUNT(` + c + `) AS DOUBLE) AS "present"`,
			`CAST(COUNT(*) - COUNT(` + c + `) AS DOUBLE) AS "missing"`,
			`CAST(AVG(` + c + `) AS DOUBLE) AS "mean"`,
			`CAST(MEDIAN(` + c + `) AS DOUBLE) AS "median"`,
			`CAST(STDDEV_SAMP(` + c + `) AS DOUBLE) AS "std_dev"`,
			`CAST(MIN(` + c + `) AS DOUBLE) AS "min"`,
			`CAST(MAX(` + c + `) AS DOUBLE) AS "max"`,
			`CAST(quantile_cont(` + c + `, 0.25) AS DOUBLE) AS "q1"`,
			`CAST(quantile_cont(` + c + `, 0.75) AS DOUBLE) AS "q3"`,
		}, ", ")+r.from())
	}
	return strings.Join(selects, " UNION ALL "), true
}

func (r *Report) ReadProfile(result tablestore.Result) error {
	r.Profiles = r.Profiles[:0]
	for _, row := range result.Rows {
		if len(row) != 10 {
			return ErrUnexpectedResult
		}
		name, ok := row[0].(string)
		if !ok {
			return ErrUnexpectedResult
		}
		values := make([]float64, 9)
		for i := range values {
			values[i], _ = number(row[i+1])
		}
		r.Profiles = append(r.Profiles, Profile{
			Column:  name,
			Present: int64(values[0]),
			Missing: int64(values[1]),
			Mean:    values[2],
			Median:  values[3],
			StdDev:  values[4],
			Min:     values[5],
			Max:     values[6],
			Q1:      values[7],
			Q3:      values[8],
		})
	}
	return nil
}

// OutlierStatement counts values outside the 1.5 IQR fences of each profiled
// column with a non-zero spread.
func (r *Report) OutlierStatement() (string, bool) {
	r.fenced = r.fenced[:0]
	for _, profile := range r.Profiles {
		iqr := profile.Q3 - profile.Q1
		if profile.Present == 0 || iqr <= 0 {
			continue
		}
		r.fenced = append(r.fenced, Outlier{
			Column: profile.Column,
			Lower:  profile.Q1 - outlierFence*iqr,
			Upper:  profile.Q3 + outlierFence*iqr,
		})
	}
	if len(r.fenced) == 0 {
		return "", false
	}
	items := make([]string, 0, len(r.fenced))
	for i, fence := range r.fenced {
		c := sqltext.QuoteIdent(fence.Column)
		items = append(items, fmt.Sprintf(`CAST(SUM(CASE WHEN %s < %s OR %s > %s THEN 1 ELSE 0 END) AS DOUBLE) AS "outliers_%d"`,
			c, literal(fence.Lower), c, literal(fence.Upper), i+1))
	}
	return "SELECT " + strings.Join(items, ", ") + r.from(), true
}

func (r *Report) ReadOutliers(result tablestore.Result) error {
	if len(result.Rows) != 1 || len(result.Rows[0]) != len(r.fenced) {
		return ErrUnexpectedResult
	}
	present := map[string]int64{}
	for _, profile := range r.Profiles {
		present[profile.Column] = profile.Present
	}
	r.Outliers = r.Outliers[:0]
	for i, fence := range r.fenced {
		count, _ := number(result.Rows[0][i])
		if count <= 0 {
			continue
		}
		fence.Count = int64(count)
		if n := present[fence.Column]; n > 0 {
			fence.Percent = float64(fence.Count) / float64(n) * 100
		}
		r.Outliers = append(r.Outliers, fence)
	}
	sort.SliceStable(r.Outliers, func(i, j int) bool { return r.Outliers[i].Count > r.Outliers[j].Count })
	return nil
}

// CorrelationStatement computes the Pearson coefficient of each pair of
// profiled columns.
func (r *Report) CorrelationStatement() (string, bool) {
	r.pairs = r.pairs[:0]
	for i := 0; i < len(r.numeric) && len(r.pairs) < maxCorrelationPairs; i++ {
		for j := i + 1; j < len(r.numeric) && len(r.pairs) < maxCorrelationPairs; j++ {
			r.pairs = append(r.pairs, Correlation{A: r.numeric[i].Name, B: r.numeric[j].Name})
		}
	}
	if len(r.pairs) == 0 {
		return "", false
	}
	items := make([]string, 0, len(r.pairs))
	for i, pair := range r.pairs {
		items = append(items, fmt.Sprintf(`CAST(CORR(%s, %s) AS DOUBLE) AS "corr_%d"`, sqltext.QuoteIdent(pair.A), sqltext.QuoteIdent(pair.B), i+1))
	}
	return "SELECT " + strings.Join(items, ", ") + r.from(), true
}

func (r *Report) ReadCorrelations(result tablestore.Result) error {
	if len(result.Rows) != 1 || len(result.Rows[0]) != len(r.pairs) {
		return ErrUnexpectedResult
	}
	r.Correlations = r.Correlations[:0]
	for i, pair := range r.pairs {
		value, ok := number(result.Rows[0][i])
		if !ok || math.Abs(value) < strongCorrelation {
			continue
		}
		pair.R = value
		r.Correlations = append(r.Correlations, pair)
	}
	sort.SliceStable(r.Correlations, func(i, j int) bool {
		return math.Abs(r.Correlations[i].R) > math.Abs(r.Correlations[j].R)
	})
	return nil
}

// TrendStatement totals the first profiled column, or counts rows, per
// period of the trend column. The period follows the span read by
// ReadQuality.
func (r *Report) TrendStatement() (string, bool) {
	if r.timeCol == nil || !r.hasSpan {
		return "", false
	}
	t := sqltext.QuoteIdent(r.timeCol.Name)
	measure := `CAST(COUNT(*) AS DOUBLE) AS "row_count"`
	if len(r.numeric) > 0 {
		measure = `CAST(SUM(` + sqltext.QuoteIdent(r.numeric[0].Name) + `) AS DOUBLE) AS "total"`
	}
	return fmt.Sprintf(`SELECT CAST(date_trunc(%s, %s) AS DATE) AS "period", %s%s WHERE %s IS NOT NULL GROUP BY 1 ORDER BY 1`,
		sqltext.QuoteString(r.granularity()), t, measure, r.from(), t), true
}

func (r *Report) granularity() string {
	switch {
	case r.spanDays <= 92:
		return "day"
	case r.spanDays <= 3*366:
		return "month"
	default:
		return "year"
	}
}

func (r *Report) ReadTrend(result tablestore.Result) error {
	if len(result.Columns) != 2 {
		return ErrUnexpectedResult
	}
	r.Trend = nil
	if len(result.Rows) == 0 {
		return nil
	}
	trend := &Trend{TimeColumn: r.timeCol.Name, Granularity: r.granularity(), Periods: len(result.Rows)}
	if len(r.numeric) > 0 {
		trend.Measure = r.numeric[0].Name
	}
	for i, row := range result.Rows {
		value, _ := number(row[1])
		point := Point{Period: period(row[0]), Value: value}
		if i == 0 {
			trend.First, trend.Peak = point, point
		}
		if point.Value > trend.Peak.Value {
			trend.Peak = point
		}
		trend.Last = point
	}
	r.Trend = trend
	return nil
}

// Message renders the collected sections as a short plain-text report.
func (r *Report) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statistics for %s (%s, %s).", r.Label, count(r.RowCount, "row"), count(int64(r.ColumnCount), "column"))

	if len(r.Profiles) > 0 {
		b.WriteString("\n\nKey statistics")
		for _, p := range r.Profiles {
			if p.Present == 0 {
				fmt.Fprintf(&b, "\n- %s: no values", p.Column)
				continue
			}
			fmt.Fprintf(&b, "\n- %s: mean %s, median %s, range %s to %s, std dev %s (%s)",
				p.Column, format(p.Mean), format(p.Median), format(p.Min), format(p.Max), format(p.StdDev), count(p.Present, "value"))
		}
	}

	if len(r.Outliers) > 0 {
		b.WriteString("\n\nOutliers")
		for _, o := range r.Outliers {
			fmt.Fprintf(&b, "\n- %s: %s outside %s to %s (%s%%)", o.Column, count(o.Count, "value"), format(o.Lower), format(o.Upper), format(o.Percent))
		}
	} else if len(r.fenced) > 0 {
		b.WriteString("\n\nOutliers\n- No values fall outside the expected range.")
	}

	if len(r.Correlations) > 0 {
		b.WriteString("\n\nCorrelations")
		for _, c := range r.Correlations {
			direction := "move together"
			if c.R < 0 {
				direction = "move in opposite directions"
			}
			fmt.Fprintf(&b, "\n- %s and %s %s (r = %s)", c.A, c.B, direction, format(c.R))
		}
	}

	if t := r.Trend; t != nil {
		measure := "rows"
		if t.Measure != "" {
			measure = "total " + t.Measure
		}
		b.WriteString("\n\nTrend")
		if t.Periods == 1 {
			fmt.Fprintf(&b, "\n- %s: %s in a single %s (%s)", measure, format(t.First.Value), t.Granularity, t.First.Period)
		} else {
			fmt.Fprintf(&b, "\n- %s by %s of %s: %d periods, from %s (%s) to %s (%s)",
				measure, t.Granularity, t.TimeColumn, t.Periods, format(t.First.Value), t.First.Period, format(t.Last.Value), t.Last.Period)
			if t.First.Value != 0 {
				fmt.Fprintf(&b, ", %s%%", signed((t.Last.Value-t.First.Value)/math.Abs(t.First.Value)*100))
			}
			fmt.Fprintf(&b, "; peak %s (%s)", format(t.Peak.Value), t.Peak.Period)
		}
	}

	b.WriteString("\n\nData quality")
	cells := r.RowCount * int64(r.ColumnCount)
	var missing int64
	for _, m := range r.Missing {
		missing += m.Count
	}
	if missing == 0 || cells == 0 {
		b.WriteString("\n- No empty values.")
		return b.String()
	}
	fmt.Fprintf(&b, "\n- %d of %s empty (%s%%)", missing, count(cells, "cell"), format(float64(missing)/float64(cells)*100))
	for _, m := range r.Missing {
		fmt.Fprintf(&b, "\n- %s: %d empty", m.Column, m.Count)
	}
	return b.String()
}

func number(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case int:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func period(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02")
	case nil:
		return "unknown"
	default:
		return fmt.Sprint(v)
	}
}

func literal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func format(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func signed(v float64) string {
	if v > 0 {
		return "+" + format(v)
	}
	return format(v)
}

func count(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}
