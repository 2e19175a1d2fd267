package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gokatarajesh/codearena/internal/metrics"
)

// Config holds connection details for a Judge0-compatible sandbox.
type Config struct {
	BaseURL        string
	APIKey         string
	APIHost        string
	RequestTimeout time.Duration
	PollAttempts   uint64
	PollInterval   time.Duration
	RatePerSecond  float64
	RateBurst      int
	CPUTimeLimit   float64
	MemoryLimitKB  int
	// MaxParallelCases bounds concurrent test case runs per Execute call.
	MaxParallelCases int
}

// Client implements Executor and Runner over the Judge0 submissions API.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

var (
	_ Executor = (*Client)(nil)
	_ Runner   = (*Client)(nil)

	errPending = errors.New("submission still pending")
)

// NewClient builds a sandbox client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = 60
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.CPUTimeLimit <= 0 {
		cfg.CPUTimeLimit = 20
	}
	if cfg.MemoryLimitKB <= 0 {
		cfg.MemoryLimitKB = 512000
	}
	if cfg.MaxParallelCases <= 0 {
		cfg.MaxParallelCases = 4
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.With().Str("component", "sandbox_client").Logger(),
	}
}

// Execute runs code once per test case and grades each output.
// Any case that cannot be evaluated fails the whole call with ErrExecutionFailed.
func (c *Client) Execute(ctx context.Context, code, language string, cases []TestCase) (Report, error) {
	start := time.Now()
	if _, ok := LanguageID(language); !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	results := make([]CaseResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallelCases)
	for i, tc := range cases {
		g.Go(func() error {
			run, err := c.Run(gctx, code, language, tc.Input)
			if err != nil {
				return fmt.Errorf("case %d: %w", i+1, err)
			}
			results[i] = grade(tc, run)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.SandboxDuration.WithLabelValues(language, "failed").Observe(time.Since(start).Seconds())
		return Report{}, err
	}

	var total int64
	for _, r := range results {
		total += r.ElapsedMs
	}
	report := Report{Cases: results}
	if len(results) > 0 {
		report.ExecutionTimeMs = int64(math.Round(float64(total) / float64(len(results))))
	}

	metrics.SandboxDuration.WithLabelValues(language, "ok").Observe(time.Since(start).Seconds())
	return report, nil
}

// Run submits one program with stdin and waits for the sandbox verdict.
func (c *Client) Run(ctx context.Context, code, language, stdin string) (RunResult, error) {
	langID, ok := LanguageID(language)
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	started := time.Now()
	token, err := c.submit(ctx, judgeSubmission{
		SourceCode:   prepareSource(code, language),
		LanguageID:   langID,
		Stdin:        Normalize(stdin),
		CPUTimeLimit: c.cfg.CPUTimeLimit,
		MemoryLimit:  c.cfg.MemoryLimitKB,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("%w: submit: %v", ErrExecutionFailed, err)
	}

	res, err := c.wait(ctx, token)
	if err != nil {
		return RunResult{}, fmt.Errorf("%w: token %s: %v", ErrExecutionFailed, token, err)
	}

	elapsed := res.elapsedMs()
	if elapsed < 0 {
		elapsed = time.Since(started).Milliseconds()
	}

	return RunResult{
		Stdout:         deref(res.Stdout),
		Stderr:         deref(res.Stderr),
		CompileOutput:  deref(res.CompileOutput),
		Classification: classify(res.Status),
		ElapsedMs:      elapsed,
	}, nil
}

func (c *Client) submit(ctx context.Context, payload judgeSubmission) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var token string
	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var out judgeToken
		if err := c.do(ctx, "submit", http.MethodPost, "/submissions?base64_encoded=false&wait=false", body, &out); err != nil {
			return err
		}
		if out.Token == "" {
			return errors.New("sandbox returned empty token")
		}
		token = out.Token
		return nil
	})
	return token, err
}

func (c *Client) wait(ctx context.Context, token string) (judgeResult, error) {
	var result judgeResult
	path := "/submissions/" + token + "?base64_encoded=false&fields=stdout,stderr,compile_output,message,status,time,memory"

	backoff := retry.WithMaxRetries(c.cfg.PollAttempts-1, retry.NewConstant(c.cfg.PollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var res judgeResult
		if err := c.do(ctx, "poll", http.MethodGet, path, nil, &res); err != nil {
			return err
		}
		if res.Status.pending() {
			return retry.RetryableError(errPending)
		}
		if res.Status.internal() {
			return fmt.Errorf("sandbox internal error: %s", res.Status.Description)
		}
		result = res
		return nil
	})
	return result, err
}

// do performs one rate-limited HTTP call. Transient failures come back
// wrapped with retry.RetryableError.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SandboxRequests.WithLabelValues(op, "error").Inc()
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()
	metrics.SandboxRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode/100)+"xx").Inc()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("sandbox %s returned status %d", op, resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("sandbox rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("sandbox %s returned status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("undecodable sandbox payload")
		return fmt.Errorf("decode sandbox %s payload: %w", op, err)
	}
	return nil
}

func grade(tc TestCase, run RunResult) CaseResult {
	result := CaseResult{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   Normalize(run.Stdout),
		Classification: run.Classification,
		ElapsedMs:      run.ElapsedMs,
	}
	if run.Classification != Accepted {
		return result
	}
	if OutputsMatch(run.Stdout, tc.ExpectedOutput) {
		result.Passed = true
		return result
	}
	result.Classification = WrongAnswer
	return result
}

type judgeSubmission struct {
	SourceCode   string  `json:"source_code"`
	LanguageID   int     `json:"language_id"`
	Stdin        string  `json:"stdin,omitempty"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int     `json:"memory_limit,omitempty"`
}

type judgeToken struct {
	Token string `json:"token"`
}

type judgeStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

func (s judgeStatus) pending() bool {
	return s.ID == 1 || s.ID == 2
}

func (s judgeStatus) internal() bool {
	return s.ID == 13 || s.ID == 14
}

type judgeResult struct {
	Stdout        *string     `json:"stdout"`
	Stderr        *string     `json:"stderr"`
	CompileOutput *string     `json:"compile_output"`
	Message       *string     `json:"message"`
	Status        judgeStatus `json:"status"`
	Time          *string     `json:"time"`
	Memory        *int        `json:"memory"`
}

// elapsedMs returns the sandbox-reported run time, or -1 when absent.
func (r judgeResult) elapsedMs() int64 {
	if r.Time == nil {
		return -1
	}
	secs, err := strconv.ParseFloat(*r.Time, 64)
	if err != nil || secs < 0 {
		return -1
	}
	return int64(math.Round(secs * 1000))
}

// classify prefers the status description and falls back to Judge0 ids.
// Unknown outcomes classify as RuntimeError so they never pass.
func classify(s judgeStatus) Classification {
	desc := strings.ToLower(s.Description)
	switch {
	case strings.Contains(desc, "accepted"):
		return Accepted
	case strings.Contains(desc, "wrong answer"):
		return WrongAnswer
	case strings.Contains(desc, "time limit"):
		return TimeLimitExceeded
	case strings.Contains(desc, "memory"):
		return MemoryLimitExceeded
	case strings.Contains(desc, "compil"):
		return CompileError
	case strings.Contains(desc, "runtime"):
		return RuntimeError
	}

	switch s.ID {
	case 3:
		return Accepted
	case 4:
		return WrongAnswer
	case 5:
		return TimeLimitExceeded
	case 6:
		return CompileError
	default:
		return RuntimeError
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
