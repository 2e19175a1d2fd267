package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJudge mimics the Judge0 submissions API. respond maps stdin to the
// final result; pendingPolls controls how many polls report "Processing".
type fakeJudge struct {
	mu           sync.Mutex
	pendingPolls int
	respond      func(sub judgeSubmission) map[string]any
	subs         map[string]judgeSubmission
	polls        map[string]int
	submitStatus int
	pollCount    atomic.Int32
}

func newFakeJudge(respond func(sub judgeSubmission) map[string]any) *fakeJudge {
	return &fakeJudge{
		respond: respond,
		subs:    map[string]judgeSubmission{},
		polls:   map[string]int{},
	}
}

func (f *fakeJudge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost && r.URL.Path == "/submissions" {
		if f.submitStatus != 0 {
			w.WriteHeader(f.submitStatus)
			return
		}
		var sub judgeSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		token := "tok-" + string(rune('a'+len(f.subs)))
		f.subs[token] = sub
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/submissions/") {
		f.pollCount.Add(1)
		token := strings.TrimPrefix(r.URL.Path, "/submissions/")
		sub, ok := f.subs[token]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.polls[token]++
		if f.polls[token] <= f.pendingPolls {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": map[string]any{"id": 2, "description": "Processing"}})
			return
		}
		_ = json.NewEncoder(w).Encode(f.respond(sub))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func accepted(stdout, seconds string) map[string]any {
	return map[string]any{
		"stdout": stdout,
		"time":   seconds,
		"status": map[string]any{"id": 3, "description": "Accepted"},
	}
}

func newTestClient(url string, attempts uint64) *Client {
	return NewClient(Config{
		BaseURL:      url,
		PollAttempts: attempts,
		PollInterval: time.Millisecond,
	}, nil, zerolog.Nop())
}

func TestExecuteAllPass(t *testing.T) {
	judge := newFakeJudge(func(sub judgeSubmission) map[string]any {
		// echo program: output equals input, with CRLF noise
		return accepted(sub.Stdin+"\r\n", "0.040")
	})
	judge.pendingPolls = 2
	srv := httptest.NewServer(judge)
	defer srv.Close()

	client := newTestClient(srv.URL, 10)
	report, err := client.Execute(context.Background(), "print(input())", "python", []TestCase{
		{Input: "1 2", ExpectedOutput: "1 2"},
		{Input: "hello\r\n", ExpectedOutput: "hello\n"},
	})
	require.NoError(t, err)
	require.Len(t, report.Cases, 2)
	for _, c := range report.Cases {
		assert.True(t, c.Passed)
		assert.Equal(t, Accepted, c.Classification)
	}
	assert.Equal(t, int64(40), report.ExecutionTimeMs)
}

func TestExecuteWrongAnswerAndTimeout(t *testing.T) {
	judge := newFakeJudge(func(sub judgeSubmission) map[string]any {
		if sub.Stdin == "slow" {
			return map[string]any{"status": map[string]any{"id": 5, "description": "Time Limit Exceeded"}, "time": "20.0"}
		}
		return accepted("nope", "0.010")
	})
	srv := httptest.NewServer(judge)
	defer srv.Close()

	client := newTestClient(srv.URL, 3)
	report, err := client.Execute(context.Background(), "x", "javascript", []TestCase{
		{Input: "fast", ExpectedOutput: "yes"},
		{Input: "slow", ExpectedOutput: "yes"},
	})
	require.NoError(t, err)
	assert.False(t, report.Cases[0].Passed)
	assert.Equal(t, WrongAnswer, report.Cases[0].Classification)
	assert.False(t, report.Cases[1].Passed)
	assert.Equal(t, TimeLimitExceeded, report.Cases[1].Classification)
}

func TestExecutePollBoundExhausted(t *testing.T) {
	judge := newFakeJudge(func(sub judgeSubmission) map[string]any { return accepted("", "0.0") })
	judge.pendingPolls = 100
	srv := httptest.NewServer(judge)
	defer srv.Close()

	client := newTestClient(srv.URL, 4)
	_, err := client.Execute(context.Background(), "x", "python", []TestCase{{Input: "1", ExpectedOutput: "1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.Equal(t, int32(4), judge.pollCount.Load())
}

func TestExecuteRejectedCredentials(t *testing.T) {
	judge := newFakeJudge(nil)
	judge.submitStatus = http.StatusForbidden
	srv := httptest.NewServer(judge)
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	_, err := client.Execute(context.Background(), "x", "c", []TestCase{{Input: "1", ExpectedOutput: "1"}})
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", 1)
	_, err := client.Execute(context.Background(), "x", "cobol", nil)
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestRunWrapsCppFragment(t *testing.T) {
	judge := newFakeJudge(func(sub judgeSubmission) map[string]any {
		return accepted("3", "0.001")
	})
	srv := httptest.NewServer(judge)
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	res, err := client.Run(context.Background(), `cout << 3;`, "cpp", "")
	require.NoError(t, err)
	assert.Equal(t, "3", res.Stdout)

	judge.mu.Lock()
	got := judge.subs["tok-a"]
	judge.mu.Unlock()
	assert.Equal(t, 54, got.LanguageID)
	assert.Contains(t, got.SourceCode, "int main()")
	assert.Equal(t, 512000, got.MemoryLimit)
}

func TestClassifyFallsBackToIDs(t *testing.T) {
	assert.Equal(t, CompileError, classify(judgeStatus{ID: 6}))
	assert.Equal(t, RuntimeError, classify(judgeStatus{ID: 11, Description: "Runtime Error (NZEC)"}))
	assert.Equal(t, MemoryLimitExceeded, classify(judgeStatus{ID: 99, Description: "Memory Limit Exceeded"}))
	assert.Equal(t, RuntimeError, classify(judgeStatus{ID: 42}))
}
