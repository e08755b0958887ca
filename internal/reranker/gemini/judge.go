package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/assessrec/assessrec/internal/reranker"
	"github.com/assessrec/assessrec/internal/util"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

// Judge asks a Gemini model to reorder a similarity shortlist, producing a
// relevance confidence per candidate.
type Judge struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewJudge creates the LLM-backed reranker.
func NewJudge(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Judge{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Rerank sends the query and shortlist to the model and parses its verdict.
// Candidates the model forgot keep their similarity order after the judged
// ones. Backend failures surface as reranker.ErrUnavailable.
func (j *Judge) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt, err := buildPrompt(query, candidates)
	if err != nil {
		return nil, err
	}

	j.logger.Debug("gemini rerank request",
		zap.String("model", j.generator.Model()),
		zap.Int("candidates", len(candidates)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", util.TruncateForLog(prompt, j.maxLogLen)),
	)

	raw, err := j.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", reranker.ErrUnavailable, err)
	}

	j.logger.Debug("gemini rerank response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", util.TruncateForLog(raw, j.maxLogLen)),
	)

	results, err := parseResponse(raw, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", reranker.ErrUnavailable, err)
	}
	return results, nil
}

func buildPrompt(query string, candidates []reranker.Candidate) (string, error) {
	payload := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		payload = append(payload, map[string]any{
			"id":    c.ID,
			"text":  c.Text,
			"score": c.Score,
		})
	}

	candidatesJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates payload: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job description:\n{{QUERY}}\n\nCandidates:\n{{CANDIDATES_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{QUERY}}", query)
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATES_JSON}}", string(candidatesJSON))
	return prompt, nil
}

func parseResponse(raw string, candidates []reranker.Candidate) ([]reranker.Result, error) {
	cleaned := extractJSON(raw)

	var items []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	results := make([]reranker.Result, 0, len(candidates))
	judged := make(map[string]bool, len(items))
	for _, item := range items {
		id := coerceString(item["id"])
		if id == "" || !known[id] || judged[id] {
			continue
		}
		judged[id] = true

		confidence := coerceFloat(item["confidence"])
		if math.IsNaN(confidence) {
			confidence = 0
		}
		results = append(results, reranker.Result{ID: id, Confidence: clamp01(confidence)})
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("rerank response contained no known candidates")
	}

	// Candidates the model dropped keep their similarity order at the tail
	// with zero confidence.
	for _, c := range candidates {
		if !judged[c.ID] {
			results = append(results, reranker.Result{ID: c.ID, Confidence: 0})
		}
	}

	return results, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return ""
	}
}
