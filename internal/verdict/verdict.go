// Package verdict reduces a sandbox report to a single pass/fail outcome.
package verdict

import (
	"fmt"
	"strings"

	"github.com/gokatarajesh/codearena/internal/execution"
)

// ExecutionFailedFeedback is shown when the sandbox could not evaluate code.
const ExecutionFailedFeedback = "Code execution failed. Please try again."

// DisqualifiedFeedback marks a submission recorded by disqualification.
const DisqualifiedFeedback = "disqualified"

// Verdict is the reduced outcome of a submission.
type Verdict struct {
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback"`
	Passed    int    `json:"passed"`
	Total     int    `json:"total"`
}

// Reduce grades a report. A case passes only when it says so and its
// classification is Accepted.
func Reduce(report execution.Report) Verdict {
	total := len(report.Cases)
	if total == 0 {
		return Verdict{Feedback: "No test cases were evaluated"}
	}

	passed := 0
	var kinds []string
	seen := map[execution.Classification]bool{}
	for _, c := range report.Cases {
		if c.Passed && c.Classification == execution.Accepted {
			passed++
			continue
		}
		kind := c.Classification
		if kind == "" || kind == execution.Accepted {
			kind = execution.WrongAnswer
		}
		if kind != execution.WrongAnswer && !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, string(kind))
		}
	}

	if passed == total {
		return Verdict{
			IsCorrect: true,
			Feedback:  fmt.Sprintf("All %d test cases passed", total),
			Passed:    passed,
			Total:     total,
		}
	}

	feedback := fmt.Sprintf("%d/%d test cases passed", passed, total)
	if len(kinds) > 0 {
		feedback += " (" + strings.Join(kinds, ", ") + ")"
	}
	return Verdict{Feedback: feedback, Passed: passed, Total: total}
}

// ExecutionFailed is the verdict recorded when the sandbox gave up.
func ExecutionFailed() Verdict {
	return Verdict{Feedback: ExecutionFailedFeedback}
}

// Disqualified is the verdict recorded for a disqualified participant.
func Disqualified() Verdict {
	return Verdict{Feedback: DisqualifiedFeedback}
}
