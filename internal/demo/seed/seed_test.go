package seed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duckmesh/tabletalk/internal/storage"
	storagememory "github.com/duckmesh/tabletalk/internal/storage/memory"
)

func TestRunUploadsAndRegistersMissingDatasets(t *testing.T) {
	var registered []registerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get("X-User-ID"); user != "demo-user" {
			t.Fatalf("X-User-ID = %q", user)
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/datasets":
			_, _ = w.Write([]byte(`{"datasets":[{"target_id":"people_1","display_name":"people.csv"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/datasets":
			var req registerRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode register request: %v", err)
			}
			registered = append(registered, req)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"target_id":"pipeline_1","display_name":"pipeline.csv","row_count":30}`))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.DealRows = 30
	cfg.Seed = 3
	objects := storagememory.NewStore()

	svc, err := NewService(cfg, objects, slog.New(slog.NewTextHandler(io.Discard, nil)), server.Client())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	out, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(out) != 1 || out[0].TargetID != "pipeline_1" || out[0].RowCount != 30 {
		t.Fatalf("registered = %#v", out)
	}
	if len(registered) != 1 || registered[0].ObjectPath != "demo-user/demo_pipeline/data.parquet" || registered[0].DisplayName != "pipeline.csv" {
		t.Fatalf("register requests = %#v", registered)
	}
	info, err := objects.Stat(context.Background(), "demo-user/demo_pipeline/data.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size == 0 {
		t.Fatal("uploaded object is empty")
	}
	if info.ContentType != storage.ParquetContentType || info.Metadata["display-name"] != "pipeline.csv" {
		t.Fatalf("object info = %+v", info)
	}
}

func TestRunStopsOnRegistrationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"datasets":[]}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.DealRows = 5
	svc, err := NewService(cfg, storagememory.NewStore(), nil, server.Client())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	_, err = svc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestNewServiceRequiresObjectStore(t *testing.T) {
	if _, err := NewService(DefaultConfig(), nil, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
