package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duckmesh/tabletalk/internal/auth"
	"github.com/duckmesh/tabletalk/internal/catalog"
	catalogmemory "github.com/duckmesh/tabletalk/internal/catalog/memory"
	"github.com/duckmesh/tabletalk/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["service"] != "tabletalk-api" {
		t.Fatalf("service = %v", body["service"])
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace id header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{
		"TABLETALK_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("k1:u1:reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Catalog: catalogmemory.NewIndex(
			catalog.Entry{TargetID: "deals_a1", UserID: "u1", DisplayName: "pipeline.csv", Ordinal: 1},
			catalog.Entry{TargetID: "staff_b2", UserID: "u2", DisplayName: "people.csv", Ordinal: 1},
		),
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	// The identity wins over a spoofed user header.
	authReq := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authReq.Header.Set("X-User-ID", "u2")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	var body struct {
		Datasets []datasetView `json:"datasets"`
	}
	if err := json.Unmarshal(authResp.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Datasets) != 1 || body.Datasets[0].TargetID != "deals_a1" {
		t.Fatalf("datasets = %#v", body.Datasets)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{
		"TABLETALK_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{Catalog: catalogmemory.NewIndex()})
	req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error_code"] != "AUTH_MIDDLEWARE_MISSING" {
		t.Fatalf("body = %#v", body)
	}
}

func TestUserIsRequiredWithoutAuth(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{Catalog: catalogmemory.NewIndex()})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error_code"] != "USER_REQUIRED" {
		t.Fatalf("body = %#v", body)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestConfigReadinessChecks(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	if err := CheckCatalogDSN(cfg)(context.Background()); err != nil {
		t.Fatalf("catalog check error = %v", err)
	}
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("object store check error = %v", err)
	}
	if err := CheckOracleConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected disabled oracle to fail readiness")
	}

	cfg.Catalog.DSN = ""
	cfg.ObjectStore.Bucket = ""
	cfg.AI.Enabled = true
	cfg.AI.APIKey = "sk-test"
	if err := CheckCatalogDSN(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	if err := CheckOracleConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("oracle check error = %v", err)
	}
}

func TestReadyUsesDependencyTimeout(t *testing.T) {
	cfg, err := config.Load("tabletalk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	var deadline time.Time
	h := NewHandler(cfg, Dependencies{
		DependencyTimeout: 50 * time.Millisecond,
		Readiness: func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		},
	})
	started := time.Now()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if deadline.IsZero() || deadline.Sub(started) > time.Second {
		t.Fatalf("deadline = %v", deadline)
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
