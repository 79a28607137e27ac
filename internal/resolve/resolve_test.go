package resolve

import (
	"errors"
	"testing"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/conversation"
)

var (
	deals = catalog.Entry{
		TargetID:    "deals_a1",
		DisplayName: "pipeline.csv",
		Columns: []catalog.Column{
			{Name: "deal_stage", Type: catalog.TypeString, DistinctValues: []string{"Won", "Lost", "Negotiation"}},
			{Name: "amount", Type: catalog.TypeFloat},
			{Name: "owner", Type: catalog.TypeString},
		},
	}
	employees = catalog.Entry{
		TargetID:    "staff_b2",
		DisplayName: "people.csv",
		Columns: []catalog.Column{
			{Name: "department", Type: catalog.TypeString, DistinctValues: []string{"Engineering", "Sales"}},
			{Name: "salary", Type: catalog.TypeFloat},
			{Name: "hire_date", Type: catalog.TypeDate},
		},
	}
)

func TestResolveNoTargets(t *testing.T) {
	_, err := New(1, 1).Resolve("how many deals?", nil, conversation.History{})
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("Resolve() error = %v, want ErrNoTargets", err)
	}
}

func TestResolveSoleEntryWins(t *testing.T) {
	res, err := New(1, 1).Resolve("what is the weather", []catalog.Entry{deals}, conversation.History{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Ambiguous || res.TargetID != "deals_a1" || res.Method != MethodSole {
		t.Fatalf("Resolve() = %+v", res)
	}
}

func TestResolveColumnUniqueToSecondEntry(t *testing.T) {
	res, err := New(1, 1).Resolve("what is the average salary", []catalog.Entry{deals, employees}, conversation.History{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Ambiguous || res.TargetID != "staff_b2" || res.Method != MethodKeyword {
		t.Fatalf("Resolve() = %+v", res)
	}
}

func TestResolveDistinctValueAndPluralOverlap(t *testing.T) {
	res, err := New(1, 1).Resolve("how many deals are in negotiation", []catalog.Entry{employees, deals}, conversation.History{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.TargetID != "deals_a1" {
		t.Fatalf("Resolve() = %+v", res)
	}
}

func TestResolveAmbiguousListsEveryCandidate(t *testing.T) {
	res, err := New(1, 1).Resolve("show me the last 5 rows", []catalog.Entry{deals, employees}, conversation.History{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Ambiguous {
		t.Fatalf("expected ambiguity, got %+v", res)
	}
	if len(res.Candidates) != 2 || res.Candidates[0].TargetID != "deals_a1" || res.Candidates[1].TargetID != "staff_b2" {
		t.Fatalf("Candidates = %+v", res.Candidates)
	}
	if got := Describe(res.Candidates); got != "1. pipeline.csv\n2. people.csv" {
		t.Fatalf("Describe() = %q", got)
	}
}

func TestResolveMarginBlocksNarrowWins(t *testing.T) {
	res, err := New(2, 1).Resolve("average salary", []catalog.Entry{deals, employees}, conversation.History{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Ambiguous {
		t.Fatalf("expected ambiguity under margin 2, got %+v", res)
	}
}

func TestResolveStickyTarget(t *testing.T) {
	history := conversation.NewHistory("c1", conversation.Turn{Utterance: "average salary", TargetID: "staff_b2", Outcome: "ok"})
	res, err := New(1, 1).Resolve("and the same by owner?", []catalog.Entry{deals, employees}, history)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.TargetID != "staff_b2" || res.Method != MethodSticky {
		t.Fatalf("Resolve() = %+v", res)
	}
}

func TestResolveExplicitMentionOverridesSticky(t *testing.T) {
	history := conversation.NewHistory("c1", conversation.Turn{TargetID: "staff_b2", Outcome: "ok"})
	res, err := New(1, 1).Resolve("now count rows in pipeline", []catalog.Entry{deals, employees}, history)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.TargetID != "deals_a1" || res.Method != MethodExplicit {
		t.Fatalf("Resolve() = %+v", res)
	}
}

func TestResolveOrdinals(t *testing.T) {
	entries := []catalog.Entry{deals, employees}
	cases := []struct {
		text    string
		history conversation.History
		want    string
	}{
		{text: "use file 2", want: "staff_b2"},
		{text: "the second dataset please", want: "staff_b2"},
		{text: "1", want: "deals_a1"},
		{text: "first", history: conversation.NewHistory("c", conversation.Turn{Outcome: "clarification"}), want: "deals_a1"},
	}
	for _, tc := range cases {
		res, err := New(1, 1).Resolve(tc.text, entries, tc.history)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tc.text, err)
		}
		if res.TargetID != tc.want || res.Method != MethodOrdinal {
			t.Fatalf("Resolve(%q) = %+v, want %s", tc.text, res, tc.want)
		}
	}
}

func TestKeywordsDropsStopWords(t *testing.T) {
	got := Keywords("Show me the total revenue by region for 2024")
	want := []string{"revenue", "region", "2024"}
	if len(got) != len(want) {
		t.Fatalf("Keywords() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keywords() = %v, want %v", got, want)
		}
	}
}
