package execution

import (
	"context"
	"errors"
)

// Classification is the sandbox's verdict for a single run.
type Classification string

const (
	Accepted            Classification = "Accepted"
	WrongAnswer         Classification = "Wrong Answer"
	TimeLimitExceeded   Classification = "Time Limit Exceeded"
	MemoryLimitExceeded Classification = "Memory Limit Exceeded"
	RuntimeError        Classification = "Runtime Error"
	CompileError        Classification = "Compilation Error"
)

var (
	// ErrExecutionFailed means the sandbox did not produce a usable result
	// within the retry bound.
	ErrExecutionFailed = errors.New("execution failed")
	// ErrUnsupportedLanguage is returned before anything is sent to the sandbox.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// TestCase is one stdin/expected-stdout pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Explanation    string `json:"explanation,omitempty"`
}

// RunResult is the raw sandbox answer for one program run.
type RunResult struct {
	Stdout         string         `json:"stdout"`
	Stderr         string         `json:"stderr"`
	CompileOutput  string         `json:"compile_output,omitempty"`
	Classification Classification `json:"classification"`
	ElapsedMs      int64          `json:"elapsed_ms"`
}

// CaseResult is a graded test case.
type CaseResult struct {
	Input          string         `json:"input"`
	ExpectedOutput string         `json:"expected_output"`
	ActualOutput   string         `json:"actual_output"`
	Passed         bool           `json:"passed"`
	Classification Classification `json:"classification"`
	ElapsedMs      int64          `json:"elapsed_ms"`
}

// Report aggregates all cases of one submission. ExecutionTimeMs is the
// mean over cases.
type Report struct {
	Cases           []CaseResult `json:"cases"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
}

// Executor runs code against test cases.
type Executor interface {
	Execute(ctx context.Context, code, language string, cases []TestCase) (Report, error)
}

// Runner performs a single raw run with custom stdin.
type Runner interface {
	Run(ctx context.Context, code, language, stdin string) (RunResult, error)
}
