// pkg/evaluator/tests.go
package evaluator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/webgym/webgym/pkg/schemas"
)

// TestRunner executes a task's declared tests against recorded backend
// events. A test that panics is recorded as failed; one broken test must
// never abort the rest of the suite.
type TestRunner struct {
	logger *zap.Logger
}

func NewTestRunner(logger *zap.Logger) *TestRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestRunner{logger: logger}
}

// RunGlobalTests evaluates every test against the full event stream of a
// completed run. Results are index-aligned with the input tests.
func (r *TestRunner) RunGlobalTests(tests []schemas.Test, events []schemas.BackendEvent) []schemas.TestResult {
	results := make([]schemas.TestResult, len(tests))
	for i, t := range tests {
		results[i] = r.runOne(t, events)
	}
	return results
}

// RunPartialTests evaluates tests mid-run, against the events accumulated in
// the execution history so far plus the current snapshot. It powers the
// stateful path's continuous score signal.
func (r *TestRunner) RunPartialTests(tests []schemas.Test, history []ActionExecutionResult, snapshot *BrowserSnapshot) []schemas.TestResult {
	events := collectEvents(history, snapshot)
	return r.RunGlobalTests(tests, events)
}

func (r *TestRunner) runOne(t schemas.Test, events []schemas.BackendEvent) (res schemas.TestResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("test panicked, recording failure",
				zap.String("test_type", t.Type()),
				zap.Any("panic", rec))
			res = schemas.TestResult{
				Success:   false,
				ExtraData: map[string]interface{}{"error": fmt.Sprint(rec)},
			}
		}
	}()
	return t.ExecuteGlobalTest(events)
}

// collectEvents flattens the per-action event captures into one stream. The
// backend reports events cumulatively, so the latest non-empty capture wins;
// the snapshot argument, when present, is the freshest view.
func collectEvents(history []ActionExecutionResult, snapshot *BrowserSnapshot) []schemas.BackendEvent {
	if snapshot != nil && len(snapshot.BackendEvents) > 0 {
		return snapshot.BackendEvents
	}
	for i := len(history) - 1; i >= 0; i-- {
		if len(history[i].BrowserSnapshot.BackendEvents) > 0 {
			return history[i].BrowserSnapshot.BackendEvents
		}
	}
	return nil
}
