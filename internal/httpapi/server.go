package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/assessrec/assessrec/internal/catalog"
	"github.com/assessrec/assessrec/internal/embedding"
	"github.com/assessrec/assessrec/internal/engine"
)

// Server is the thin HTTP shell around the recommendation engine. It does no
// matching work of its own; it translates requests, errors and results.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewServer wires the engine into an HTTP surface.
func NewServer(eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: eng, logger: logger}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.POST("/api/v1/recommend", s.recommend)

	return r
}

type recommendRequest struct {
	JobDescription string         `json:"job_description"`
	MaxResults     int            `json:"max_results"`
	Filters        map[string]any `json:"filters"`
}

type recommendationItem struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	URL              string   `json:"url"`
	DurationMinutes  int      `json:"duration_minutes"`
	TestType         string   `json:"test_type"`
	Adaptive         bool     `json:"adaptive_support"`
	RemoteTesting    bool     `json:"remote_support"`
	SimilarityScore  float64  `json:"similarity_score"`
	RerankConfidence *float64 `json:"rerank_confidence,omitempty"`
}

type recommendResponse struct {
	Recommendations []recommendationItem `json:"recommendations"`
	ColdStart       bool                 `json:"cold_start"`
	Reranked        bool                 `json:"reranked"`
}

func (s *Server) recommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var filter *catalog.Filter
	if len(req.Filters) > 0 {
		filter = &catalog.Filter{}
		if err := mapstructure.WeakDecode(req.Filters, filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filters: " + err.Error()})
			return
		}
	}

	resp, err := s.engine.Recommend(c.Request.Context(), engine.Request{
		Text:       req.JobDescription,
		MaxResults: req.MaxResults,
		Filter:     filter,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	items := make([]recommendationItem, 0, len(resp.Recommendations))
	for _, rec := range resp.Recommendations {
		items = append(items, recommendationItem{
			ID:               rec.Record.ID,
			Name:             rec.Record.Name,
			URL:              rec.Record.URL,
			DurationMinutes:  rec.Record.DurationMinutes,
			TestType:         rec.Record.TestType,
			Adaptive:         rec.Record.Adaptive,
			RemoteTesting:    rec.Record.RemoteTesting,
			SimilarityScore:  rec.SimilarityScore,
			RerankConfidence: rec.RerankConfidence,
		})
	}

	c.JSON(http.StatusOK, recommendResponse{
		Recommendations: items,
		ColdStart:       resp.ColdStart,
		Reranked:        resp.Reranked,
	})
}

func (s *Server) health(c *gin.Context) {
	status := "warming"
	if s.engine.Warm() {
		status = "ready"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"catalog_size": s.engine.CatalogSize(),
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, embedding.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Error("recommendation request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
