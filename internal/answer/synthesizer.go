// Package answer synthesizes a prose answer from top-ranked articles by
// calling an OpenAI-style chat-completions endpoint. Failures at this
// boundary degrade to an explanatory string; search results never become
// unusable because the analysis call broke.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/search"
)

const systemPrompt = "You are an expert research analyst. Analyze the provided " +
	"articles and answer the user's query with insights, key findings, and " +
	"synthesis from the articles."

// Config carries the completion endpoint settings.
type Config struct {
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Synthesizer turns a query plus ranked results into a prose answer.
type Synthesizer struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewSynthesizer builds a Synthesizer.
func NewSynthesizer(cfg Config, logger *zap.Logger) *Synthesizer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Configured reports whether an API key is present.
func (s *Synthesizer) Configured() bool {
	return s.cfg.APIKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Answer synthesizes an answer to query from the given ranked results. It
// always returns printable prose; any failure comes back as a fail-safe
// string, never an error.
func (s *Synthesizer) Answer(ctx context.Context, query string, results []search.Result) string {
	if !s.Configured() {
		return "Analysis unavailable: no API key configured."
	}
	if len(results) == 0 {
		return "Analysis unavailable: no matching articles to analyze."
	}
	return s.complete(ctx, query, BuildContext(results))
}

func (s *Synthesizer) complete(ctx context.Context, query, articlesText string) string {
	payload := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Query: %s\n\nArticles:\n%s", query, articlesText)},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return s.failSafe(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return s.failSafe(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return s.failSafe(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return s.failSafe(err)
	}
	if resp.StatusCode != http.StatusOK {
		return s.failSafe(fmt.Errorf("completion API returned %d", resp.StatusCode))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return s.failSafe(err)
	}
	if len(decoded.Choices) == 0 {
		return s.failSafe(fmt.Errorf("completion response had no choices"))
	}
	return decoded.Choices[0].Message.Content
}

func (s *Synthesizer) failSafe(err error) string {
	s.logger.Warn("answer synthesis failed", zap.Error(err))
	return fmt.Sprintf("Error calling analysis API: %v", err)
}

// BuildContext concatenates the ranked articles into the prompt context:
// title, authors, and the article's best available content.
func BuildContext(results []search.Result) string {
	sections := make([]string, 0, len(results))
	for _, res := range results {
		rec := res.Record
		authors := "Unknown"
		if len(rec.Authors) > 0 {
			authors = strings.Join(rec.Authors, ", ")
		}
		content := rec.SearchText()
		if content == "" {
			content = "No content"
		}
		sections = append(sections, fmt.Sprintf("**%s** by %s\n%s", rec.Title, authors, content))
	}
	return strings.Join(sections, "\n\n---\n\n")
}
