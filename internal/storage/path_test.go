package storage

import "testing"

func TestBuildDatasetPath(t *testing.T) {
	key, err := BuildDatasetPath("user-1", "deals_a1")
	if err != nil {
		t.Fatalf("BuildDatasetPath() error = %v", err)
	}
	if want := "user-1/deals_a1/data.parquet"; key != want {
		t.Fatalf("BuildDatasetPath() = %q, want %q", key, want)
	}
}

func TestBuildDatasetPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildDatasetPath("../oops", "deals"); err == nil {
		t.Fatal("expected invalid user id error")
	}
	if _, err := BuildDatasetPath("user-1", "deals/../../x"); err == nil {
		t.Fatal("expected invalid target id error")
	}
}

func TestParseDatasetPath(t *testing.T) {
	userID, targetID, err := ParseDatasetPath("user-1/deals_a1/data.parquet")
	if err != nil {
		t.Fatalf("ParseDatasetPath() error = %v", err)
	}
	if userID != "user-1" || targetID != "deals_a1" {
		t.Fatalf("ParseDatasetPath() = %q, %q", userID, targetID)
	}
	for _, key := range []string{
		"user-1/deals_a1/other.parquet",
		"user-1/data.parquet",
		"a/b/c/data.parquet",
		"../deals_a1/data.parquet",
	} {
		if _, _, err := ParseDatasetPath(key); err == nil {
			t.Errorf("ParseDatasetPath(%q) accepted", key)
		}
	}
}
