package conversation

import (
	"context"
	"errors"
	"testing"
)

func TestHistoryAppendDoesNotMutateReceiver(t *testing.T) {
	base := NewHistory("c1", Turn{Utterance: "first", TargetID: "deals"})
	next := base.Append(Turn{Utterance: "second"})

	if base.Len() != 1 {
		t.Fatalf("base.Len() = %d", base.Len())
	}
	if next.Len() != 2 {
		t.Fatalf("next.Len() = %d", next.Len())
	}
	if next.LastTarget() != "deals" {
		t.Fatalf("LastTarget() = %q", next.LastTarget())
	}
}

func TestHistoryWindowKeepsTrailingTurns(t *testing.T) {
	h := NewHistory("c1")
	for _, text := range []string{"a", "b", "c", "d"} {
		h = h.Append(Turn{Utterance: text})
	}
	window := h.Window(3)
	if len(window) != 3 || window[0].Utterance != "b" || window[2].Utterance != "d" {
		t.Fatalf("Window(3) = %+v", window)
	}
	if got := h.Window(0); got != nil {
		t.Fatalf("Window(0) = %+v", got)
	}
}

func TestHistoryVisualizationAndClarificationState(t *testing.T) {
	h := NewHistory("c1",
		Turn{Utterance: "show stages", Statement: `SELECT 1`, Visualized: true, Outcome: "ok"},
		Turn{Utterance: "thanks", Outcome: "ok"},
	)
	if !h.HasActiveVisualization() {
		t.Fatal("expected active visualization")
	}
	if h.AwaitingTarget() {
		t.Fatal("did not expect pending clarification")
	}
	h = h.Append(Turn{Utterance: "how many?", Outcome: "clarification"})
	if !h.AwaitingTarget() {
		t.Fatal("expected pending clarification")
	}
}

func TestGateRejectsConcurrentUtterance(t *testing.T) {
	gate := NewGate()
	release, err := gate.Acquire("c1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := gate.Acquire("c1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire() error = %v, want ErrBusy", err)
	}
	if _, err := gate.Acquire("c2"); err != nil {
		t.Fatalf("Acquire(c2) error = %v", err)
	}
	release()
	release()
	if _, err := gate.Acquire("c1"); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
}

func TestMemoryStoreScopesByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Append(ctx, "u1", "c1", Turn{Utterance: "hello"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	mine, err := store.Load(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if mine.Len() != 1 {
		t.Fatalf("mine.Len() = %d", mine.Len())
	}
	theirs, err := store.Load(ctx, "u2", "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if theirs.Len() != 0 {
		t.Fatalf("theirs.Len() = %d", theirs.Len())
	}
}
