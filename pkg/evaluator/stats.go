// pkg/evaluator/stats.go
package evaluator

import "time"

// EvaluationStats aggregates timing and outcome counters for one run.
type EvaluationStats struct {
	WebAgentID          string        `json:"web_agent_id"`
	TaskID              string        `json:"task_id"`
	ActionCount         int           `json:"action_count"`
	FailedActions       int           `json:"failed_actions"`
	TestsPassed         int           `json:"tests_passed"`
	TestsTotal          int           `json:"tests_total"`
	HadErrors           bool          `json:"had_errors"`
	ErrorMessage        string        `json:"error_message,omitempty"`
	EarlyStopped        bool          `json:"early_stopped"`
	StartedAt           time.Time     `json:"started_at"`
	TotalTime           time.Duration `json:"total_time"`
	BrowserSetupTime    time.Duration `json:"browser_setup_time"`
	ActionExecutionTime time.Duration `json:"action_execution_time"`
	TestExecutionTime   time.Duration `json:"test_execution_time"`
}

func newEvaluationStats(taskID, webAgentID string) *EvaluationStats {
	return &EvaluationStats{
		WebAgentID: webAgentID,
		TaskID:     taskID,
		StartedAt:  time.Now(),
	}
}

// RecordError marks the run as failed. The first message wins so the root
// cause is not overwritten by follow-on cleanup errors.
func (s *EvaluationStats) RecordError(msg string) {
	s.HadErrors = true
	if s.ErrorMessage == "" {
		s.ErrorMessage = msg
	}
}

// Finalize stamps the total wall-clock duration.
func (s *EvaluationStats) Finalize() {
	s.TotalTime = time.Since(s.StartedAt)
}

func (s *EvaluationStats) Clone() *EvaluationStats {
	cp := *s
	return &cp
}
