package synth

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/conversation"
	"github.com/duckmesh/tabletalk/internal/oracle"
)

var dealsEntry = catalog.Entry{
	TargetID:    "deals_a1",
	DisplayName: "deals.csv",
	Columns: []catalog.Column{
		{Name: "stage", Type: catalog.TypeString, DistinctValues: []string{"Won", "Lost"}},
		{Name: "amount", Type: catalog.TypeFloat, Nullable: true},
	},
	SampleRows: [][]any{{"Won", 10.0}, {"Lost", 5.0}, {"Won", 7.5}},
	RowCount:   4821,
}

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "plain", raw: `SELECT COUNT(*) FROM "deals_a1"`, want: `SELECT COUNT(*) FROM "deals_a1"`, ok: true},
		{name: "fenced", raw: "Here you go:\n```sql\nSELECT *\nFROM \"deals_a1\";\n```\nThis lists every deal.", want: "SELECT *\nFROM \"deals_a1\";", ok: true},
		{name: "narrative after", raw: "SELECT \"stage\" FROM \"deals_a1\"\nThis query returns stages.", want: `SELECT "stage" FROM "deals_a1"`, ok: true},
		{name: "label", raw: "SQL: SELECT 1", want: "SELECT 1", ok: true},
		{name: "inline", raw: "Sure, run select 1 from t", want: "select 1 from t", ok: true},
		{name: "mutating kept for the guard", raw: "DROP TABLE \"deals_a1\";", want: "DROP TABLE \"deals_a1\";", ok: true},
		{name: "prose only", raw: "I cannot answer that question.", ok: false},
		{name: "empty", raw: "   ", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Extract(tc.raw)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Extract() = %q, %v; want %q, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestBuildPromptBoundsSamplesAndHistory(t *testing.T) {
	history := []conversation.Turn{
		{Utterance: "q1", Statement: "SELECT 1"},
		{Utterance: "q2", Statement: "SELECT 2"},
		{Utterance: "q3", Statement: "SELECT 3"},
	}
	prompt, err := BuildPrompt(Request{Entry: dealsEntry, Utterance: " total amount by stage ", History: history}, 2, 2)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if !strings.Contains(prompt.System, "DuckDB") || !strings.Contains(prompt.System, "read-only SELECT") {
		t.Fatalf("system = %q", prompt.System)
	}
	for _, want := range []string{`"table":"deals_a1"`, `"row_count":4821`, `"distinct_values":["Won","Lost"]`, "q2", "q3", "total amount by stage", `Use only the table "deals_a1"`} {
		if !strings.Contains(prompt.User, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, prompt.User)
		}
	}
	if strings.Contains(prompt.User, "q1") {
		t.Fatalf("history window not applied:\n%s", prompt.User)
	}
	if strings.Contains(prompt.User, "7.5") {
		t.Fatalf("sample rows not bounded:\n%s", prompt.User)
	}
}

func TestSynthesizeRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, p oracle.Prompt) (string, error) {
		if calls.Add(1) == 1 {
			return "", oracle.ErrUnreachable
		}
		return "```sql\nSELECT COUNT(*) FROM \"deals_a1\"\n```", nil
	})
	s := New(o, Config{Attempts: 2, Backoff: time.Millisecond}, nil)
	candidate, err := s.Synthesize(context.Background(), Request{Entry: dealsEntry, Utterance: "how many deals"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if candidate.Text != `SELECT COUNT(*) FROM "deals_a1"` || candidate.Attempts != 2 {
		t.Fatalf("candidate = %+v", candidate)
	}
}

func TestSynthesizeFailsAfterBudget(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, p oracle.Prompt) (string, error) {
		calls.Add(1)
		return "I am not sure what you mean.", nil
	})
	s := New(o, Config{Attempts: 2, Backoff: time.Millisecond}, nil)
	_, err := s.Synthesize(context.Background(), Request{Entry: dealsEntry, Utterance: "??"})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("Synthesize() error = %v, want *Failure", err)
	}
	if failure.Attempts != 2 || !errors.Is(err, ErrNoStatement) {
		t.Fatalf("failure = %+v", failure)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestSynthesizeAppliesPerCallTimeout(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, p oracle.Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := New(o, Config{Attempts: 1, Timeout: 20 * time.Millisecond}, nil)
	_, err := s.Synthesize(context.Background(), Request{Entry: dealsEntry, Utterance: "q"})
	if !errors.Is(err, oracle.ErrTimeout) {
		t.Fatalf("Synthesize() error = %v, want oracle.ErrTimeout", err)
	}
}

func TestSynthesizeStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	o := oracle.Func(func(context.Context, oracle.Prompt) (string, error) {
		calls.Add(1)
		cancel()
		return "", oracle.ErrUnreachable
	})
	s := New(o, Config{Attempts: 3, Backoff: time.Second}, nil)
	_, err := s.Synthesize(ctx, Request{Entry: dealsEntry, Utterance: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Synthesize() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}
