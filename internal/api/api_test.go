package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/autorestock/internal/api/middleware"
	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/andresuchdata/autorestock/internal/repository/memory"
	"github.com/andresuchdata/autorestock/internal/repository/sqlite"
	"github.com/andresuchdata/autorestock/internal/restock"
	"github.com/andresuchdata/autorestock/internal/schedule"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	runs := pipeline.NewRepository(db.DB)
	if err := runs.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	day := time.Date(2025, 4, 11, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	stock := 5
	store.PutProduct(domain.ProductVariant{
		Key:               domain.ProductKey{Code: 3, Variant: 1},
		Description:       "sapone",
		PackageSize:       12,
		PackageMultiplier: 1,
		Sector:            "Drogheria",
		Availability:      domain.AvailabilityYes,
	})
	store.PutStats(domain.ProductKey{Code: 3, Variant: 1}, domain.ProductStats{
		SoldHistory:      domain.NewMonthlyHistory(20, 60, 60, 60),
		BoughtHistory:    domain.NewMonthlyHistory(0, 60, 60, 60),
		RecentDailySales: domain.NewSalesLedger(domain.SalesEntry{Delta: 28, Days: 14}),
		Stock:            &stock,
		Verified:         true,
		LastUpdate:       day,
	})

	orchestrator := restock.NewOrchestrator(store, restock.DefaultConfig())
	runner := pipeline.NewRunner(runs, orchestrator, nil, pipeline.DefaultRunnerConfig())
	svc := service.NewRestockService(runner, runs, orchestrator, schedule.New(), nil, []string{"Drogheria"})
	return NewRouter(&Services{RestockService: svc}, nil)
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newTestRouter(t), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRunAndFetchSector(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, http.MethodPost, "/api/v1/restock/sectors/Drogheria/run", `{"coverage": 10, "date": "2025-04-11"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d body %s", w.Code, w.Body.String())
	}
	var run pipeline.RestockRun
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != pipeline.StatusCompleted || run.Coverage != 10 {
		t.Fatalf("run = %+v", run)
	}
	if len(run.Results.Decisions.Orders) != 1 || run.Results.Decisions.Orders[0].Quantity != 2 {
		t.Fatalf("orders = %+v, want 2 packages of 3.1", run.Results.Decisions.Orders)
	}

	w = serve(router, http.MethodGet, "/api/v1/restock/sectors/Drogheria/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest status = %d", w.Code)
	}

	w = serve(router, http.MethodGet, "/api/v1/restock/runs/"+jsonID(run.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("get run status = %d", w.Code)
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestRestockErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad body", http.MethodPost, "/api/v1/restock/sectors/Drogheria/run", `{"coverage": "x"}`, http.StatusBadRequest},
		{"negative coverage", http.MethodPost, "/api/v1/restock/sectors/Drogheria/run", `{"coverage": -1}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/v1/restock/sectors/Drogheria/run", `{"date": "11/04/2025"}`, http.StatusBadRequest},
		{"no latest run", http.MethodGet, "/api/v1/restock/sectors/Frutta/latest", "", http.StatusNotFound},
		{"bad run id", http.MethodGet, "/api/v1/restock/runs/abc", "", http.StatusBadRequest},
		{"missing run", http.MethodGet, "/api/v1/restock/runs/42", "", http.StatusNotFound},
		{"bad product key", http.MethodGet, "/api/v1/restock/sectors/Drogheria/explain/x/1", "", http.StatusBadRequest},
		{"unknown product", http.MethodGet, "/api/v1/restock/sectors/Drogheria/explain/99/1", "", http.StatusNotFound},
		{"product of another sector", http.MethodGet, "/api/v1/restock/sectors/Frutta/explain/3/1", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := serve(router, tt.method, tt.path, tt.body); w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestExplainEndpoint(t *testing.T) {
	w := serve(newTestRouter(t), http.MethodGet, "/api/v1/restock/sectors/Drogheria/explain/3/1?date=2025-04-11&coverage=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	var trace restock.Trace
	if err := json.Unmarshal(w.Body.Bytes(), &trace); err != nil {
		t.Fatalf("decode trace: %v", err)
	}
	if !trace.Decision.Ordered() || *trace.Decision.Quantity != 2 {
		t.Errorf("decision = %+v", trace.Decision)
	}
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, allowAll := normalizeAllowedOrigins([]string{"https://a.example, https://b.example", " ", "*"})
	if !allowAll {
		t.Error("expected allow all")
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(origins, want) {
		t.Errorf("origins = %v, want %v", origins, want)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(middleware.RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}
