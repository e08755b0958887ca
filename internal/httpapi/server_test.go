package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/assessrec/assessrec/internal/embedding"
	"github.com/assessrec/assessrec/internal/engine"
	"github.com/assessrec/assessrec/internal/textnorm"
)

const testCatalog = `id,name,duration,test_type,adaptive_support,remote_support,url,description
numr-01,Numerical Reasoning,25,Ability,yes,yes,https://catalog.example/numr-01,numerical reasoning test
verb-02,Verbal Comprehension,20,Ability,no,yes,https://catalog.example/verb-02,verbal comprehension test
code-03,Coding Simulation,45,Skill,no,no,https://catalog.example/code-03,coding assessment
`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cache, err := embedding.NewCache(embedding.NewLocal(64), embedding.CacheConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eng, err := engine.New(engine.Config{WaitForReady: true}, engine.Deps{
		Normalizer: textnorm.New(0),
		Cache:      cache,
		Logger:     zap.NewNop(),
		OpenCatalog: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(testCatalog)), nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return NewServer(eng, zap.NewNop())
}

func TestRecommendEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestServer(t).Router()

	body := `{"job_description": "assess numerical reasoning skills", "max_results": 2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommend", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp recommendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Recommendations) == 0 || len(resp.Recommendations) > 2 {
		t.Fatalf("unexpected result count: %d", len(resp.Recommendations))
	}
	if !resp.ColdStart {
		t.Fatalf("first request must report cold start")
	}
	if resp.Recommendations[0].URL == "" || resp.Recommendations[0].Name == "" {
		t.Fatalf("expected record fields populated: %+v", resp.Recommendations[0])
	}
}

func TestRecommendEndpointValidation(t *testing.T) {
	t.Parallel()

	router := newTestServer(t).Router()

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "empty description", body: `{"job_description": ""}`, code: http.StatusBadRequest},
		{name: "not json", body: `job description here`, code: http.StatusBadRequest},
		{name: "bad filters", body: `{"job_description": "x", "filters": {"max_duration_minutes": {"nested": true}}}`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/recommend", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRecommendEndpointFilters(t *testing.T) {
	t.Parallel()

	router := newTestServer(t).Router()

	body := `{"job_description": "numerical reasoning and coding assessment", "filters": {"remote_only": true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommend", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp recommendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, item := range resp.Recommendations {
		if !item.RemoteTesting {
			t.Fatalf("filter leaked non-remote record %s", item.ID)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "warming") {
		t.Fatalf("expected warming status before bootstrap, got %s", rec.Body.String())
	}
}
