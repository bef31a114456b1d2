package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := New(reg)
	router := chi.NewRouter()
	router.Use(m.Middleware())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return router, m, reg
}

func TestMiddlewareCountsMatchedRoute(t *testing.T) {
	router, m, _ := newTestRouter(t)

	for range 3 {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/health", "200"))
	if got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
}

func TestMiddlewareRecordsWrittenStatus(t *testing.T) {
	router, m, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/teapot", "418"))
	if got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	router, m, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/missing/123", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, RouteUnmatched, "404"))
	if got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestMiddlewareObservesDuration(t *testing.T) {
	router, _, reg := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	count, err := testutil.GatherAndCount(reg, "http_request_duration_seconds")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 histogram series, got %d", count)
	}
}

func TestRoutePatternWithoutRouteContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := routePattern(req); got != RouteUnmatched {
		t.Fatalf("expected %q, got %q", RouteUnmatched, got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	router, _, reg := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := httptest.NewRecorder()
	Handler(reg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	want := `http_requests_total{method="GET",route="/health",status="200"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in exposition, got:\n%s", want, body)
	}
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
