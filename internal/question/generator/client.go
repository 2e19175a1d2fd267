// Package generator calls the external problem generator used when the
// curated store has nothing for a difficulty and mode.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/question"
)

// Config holds connection details for the generator service.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client implements question.Generator.
type Client struct {
	httpClient  *http.Client
	config      Config
	logger      zerolog.Logger
	generateURL string
	enqueueURL  string
}

var _ question.Generator = (*Client)(nil)

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/")

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		config:      cfg,
		logger:      logger.With().Str("component", "problem_generator").Logger(),
		generateURL: base + "/generate",
		enqueueURL:  base + "/enqueue",
	}
}

// Generate synchronously asks for one problem.
func (c *Client) Generate(ctx context.Context, criteria question.Criteria) (question.Draft, error) {
	if c.config.URL == "" {
		return question.Draft{}, fmt.Errorf("generator endpoint not configured")
	}

	resp, err := c.post(ctx, c.generateURL, generateRequest{
		Difficulty:   criteria.Difficulty,
		QuestionType: criteria.QuestionType,
		Count:        1,
	})
	if err != nil {
		return question.Draft{}, err
	}
	defer resp.Body.Close()

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return question.Draft{}, fmt.Errorf("decode generator payload: %w", err)
	}
	if len(payload.Problems) == 0 {
		return question.Draft{}, fmt.Errorf("generator returned no problems")
	}
	return payload.Problems[0].draft(), nil
}

// Enqueue asks the generator to prepare count problems for later.
func (c *Client) Enqueue(ctx context.Context, criteria question.Criteria, count int) error {
	if c.config.URL == "" {
		return nil
	}
	resp, err := c.post(ctx, c.enqueueURL, generateRequest{
		Difficulty:   criteria.Difficulty,
		QuestionType: criteria.QuestionType,
		Count:        count,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.logger.Debug().Str("difficulty", criteria.Difficulty).Str("question_type", criteria.QuestionType).Int("count", count).Msg("generation enqueued")
	return nil
}

func (c *Client) post(ctx context.Context, url string, payload generateRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}
	return resp, nil
}

type generateRequest struct {
	Difficulty   string `json:"difficulty"`
	QuestionType string `json:"question_type"`
	Count        int    `json:"count"`
}

type generatedProblem struct {
	Title                 string               `json:"title"`
	Description           string               `json:"description"`
	TestCases             []execution.TestCase `json:"test_cases"`
	RecommendedComplexity string               `json:"recommended_complexity"`
	StarterCode           string               `json:"starter_code"`
}

// draft trims whitespace the model tends to leave around fields.
func (p generatedProblem) draft() question.Draft {
	cases := make([]execution.TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if strings.TrimSpace(tc.ExpectedOutput) == "" {
			continue
		}
		cases = append(cases, tc)
	}
	return question.Draft{
		Title:                 strings.TrimSpace(p.Title),
		Description:           strings.TrimSpace(p.Description),
		TestCases:             cases,
		RecommendedComplexity: strings.TrimSpace(p.RecommendedComplexity),
		StarterCode:           p.StarterCode,
	}
}

type generateResponse struct {
	Problems []generatedProblem `json:"problems"`
}
