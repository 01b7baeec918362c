// pkg/evaluator/result.go
package evaluator

import (
	"time"

	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/schemas"
)

// BrowserSnapshot is an immutable capture of browser state tied to one
// executed action. It is owned solely by the ActionExecutionResult that
// references it and never mutated after creation.
type BrowserSnapshot struct {
	Iteration        int                    `json:"iteration"`
	Action           actions.Action         `json:"action"`
	HTMLBefore       string                 `json:"html_before"`
	HTMLAfter        string                 `json:"html_after"`
	ScreenshotBefore []byte                 `json:"screenshot_before,omitempty"`
	ScreenshotAfter  []byte                 `json:"screenshot_after,omitempty"`
	BackendEvents    []schemas.BackendEvent `json:"backend_events"`
	Timestamp        time.Time              `json:"timestamp"`
	CurrentURL       string                 `json:"current_url"`
}

// ActionExecutionResult is the outcome record for one action. Execution
// failures are values here, never exceptions: every action call yields one.
type ActionExecutionResult struct {
	Action               actions.Action  `json:"action"`
	ActionEventName      string          `json:"action_event_name"`
	SuccessfullyExecuted bool            `json:"successfully_executed"`
	Error                string          `json:"error,omitempty"`
	ExecutionTime        time.Duration   `json:"execution_time"`
	BrowserSnapshot      BrowserSnapshot `json:"browser_snapshot"`
}

// Feedback is a human-readable summary of an evaluation run.
type Feedback struct {
	Summary       string   `json:"summary"`
	PassedTests   int      `json:"passed_tests"`
	FailedTests   int      `json:"failed_tests"`
	FailedActions []string `json:"failed_actions,omitempty"`
	FinalURL      string   `json:"final_url,omitempty"`
	PageTitle     string   `json:"page_title,omitempty"`
}

// EvaluationResult is what every evaluator entry point hands back: always
// well-formed, with a score of zero standing in for any operational failure.
type EvaluationResult struct {
	WebAgentID       string                  `json:"web_agent_id"`
	FinalScore       float64                 `json:"final_score"`
	RawScore         float64                 `json:"raw_score"`
	TestResults      []schemas.TestResult    `json:"test_results"`
	Feedback         *Feedback               `json:"feedback,omitempty"`
	ExecutionHistory []ActionExecutionResult `json:"execution_history"`
	EvaluationTime   time.Duration           `json:"evaluation_time"`
	Stats            *EvaluationStats        `json:"stats,omitempty"`
	// GifRecording is a base64-encoded animated GIF, or empty when recording
	// was disabled or failed.
	GifRecording string `json:"gif_recording,omitempty"`
}

// Clone returns a deep copy. Mutating the clone's WebAgentID (or its stats)
// must never affect the original; grouped-solution result fan-out depends on
// this.
func (r *EvaluationResult) Clone() *EvaluationResult {
	cp := *r
	cp.TestResults = append([]schemas.TestResult(nil), r.TestResults...)
	cp.ExecutionHistory = append([]ActionExecutionResult(nil), r.ExecutionHistory...)
	if r.Feedback != nil {
		fb := *r.Feedback
		fb.FailedActions = append([]string(nil), r.Feedback.FailedActions...)
		cp.Feedback = &fb
	}
	if r.Stats != nil {
		cp.Stats = r.Stats.Clone()
	}
	return &cp
}

// ScoreDetails is the stateful path's continuous scoring signal: a fraction
// of tests passed, with success requiring every declared test.
type ScoreDetails struct {
	RawScore    float64              `json:"raw_score"`
	Success     bool                 `json:"success"`
	TestsPassed int                  `json:"tests_passed"`
	TestsTotal  int                  `json:"tests_total"`
	TestResults []schemas.TestResult `json:"test_results"`
}

// StepResult is returned by every stateful reset/step call.
type StepResult struct {
	Score        ScoreDetails           `json:"score"`
	Snapshot     *BrowserSnapshot       `json:"snapshot,omitempty"`
	ActionResult *ActionExecutionResult `json:"action_result,omitempty"`
}
