// pkg/evaluator/iterative.go
package evaluator

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/backend"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/schemas"
)

// Agent proposes the next actions for a task given everything executed so
// far. Returning no actions signals the agent considers the task finished.
type Agent interface {
	NextActions(ctx context.Context, task *schemas.Task, history []ActionExecutionResult) ([]actions.Action, error)
}

// IterativeEvaluator runs an agent in a propose/execute loop until the agent
// stops, the iteration cap is hit, or failures trip the circuit breaker.
// Scoring matches the batch path: global tests over the final event stream,
// binary score, early stop forcing zero.
type IterativeEvaluator struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager browser.SessionManager
	factory BackendFactory

	runner   *TestRunner
	guard    *NavigationGuard
	recorder *GifRecorder
	feedback FeedbackGenerator
}

func NewIterativeEvaluator(cfg *config.Config, logger *zap.Logger, manager browser.SessionManager, factory BackendFactory) *IterativeEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if factory == nil {
		factory = func(task *schemas.Task) backend.Client {
			return backend.NewDemoWebClient(cfg.Backend, task.IsWebReal, logger)
		}
	}
	return &IterativeEvaluator{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		factory:  factory,
		runner:   NewTestRunner(logger),
		guard:    &NavigationGuard{TestingMode: cfg.Evaluator.TestingMode},
		recorder: NewGifRecorder(cfg.Recorder, logger),
	}
}

// EvaluateWithAgent drives the agent against the task and scores the run.
// Like the batch path it never panics outward and never returns nil.
func (e *IterativeEvaluator) EvaluateWithAgent(ctx context.Context, task *schemas.Task, agent Agent, webAgentID string) (result *EvaluationResult) {
	stats := newEvaluationStats(task.ID, webAgentID)
	result = &EvaluationResult{
		WebAgentID:  webAgentID,
		TestResults: []schemas.TestResult{},
		Stats:       stats,
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("iterative evaluation panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", rec))
			stats.RecordError("panic during iterative evaluation")
		}
		stats.Finalize()
		result.EvaluationTime = stats.TotalTime
	}()

	backendClient := e.factory(task)
	defer backendClient.Close()
	if err := resetBackend(ctx, backendClient, webAgentID); err != nil {
		stats.RecordError("backend reset failed: " + err.Error())
		return result
	}

	setupStart := time.Now()
	session, err := e.manager.InitializeSession(ctx, sessionOptions(task, webAgentID, e.cfg))
	stats.BrowserSetupTime = time.Since(setupStart)
	if err != nil {
		stats.RecordError("browser session init failed: " + err.Error())
		return result
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = session.Close(closeCtx)
	}()

	executor := NewBrowserExecutor(session, backendClient, e.logger)
	executor.CaptureScreenshots = e.cfg.Evaluator.ShouldRecordGIF

	if err := session.Navigate(task.URL); err != nil {
		stats.RecordError("initial navigation failed: " + err.Error())
		return result
	}

	history, earlyStopped := e.runLoop(ctx, task, agent, executor, session, webAgentID)
	result.ExecutionHistory = history
	stats.ActionCount = len(history)
	stats.EarlyStopped = earlyStopped
	for _, res := range history {
		if !res.SuccessfullyExecuted {
			stats.FailedActions++
		}
		stats.ActionExecutionTime += res.ExecutionTime
	}
	if earlyStopped {
		stats.RecordError("stopped after repeated consecutive failures")
	}

	testStart := time.Now()
	events, _ := backendClient.GetBackendEvents(ctx, webAgentID)
	if len(events) == 0 {
		events = collectEvents(history, nil)
	}
	result.TestResults = e.runner.RunGlobalTests(task.Tests, events)
	stats.TestExecutionTime = time.Since(testStart)
	stats.TestsTotal = len(result.TestResults)
	stats.TestsPassed = countPassed(result.TestResults)

	result.RawScore, result.FinalScore = BinaryScore(result.TestResults, earlyStopped)
	result.Feedback = e.feedback.Generate(task, history, result.TestResults)
	if e.cfg.Evaluator.ShouldRecordGIF {
		result.GifRecording = e.recorder.Render(history)
	}
	return result
}

// runLoop alternates agent proposals and execution. Agent errors count
// against the same consecutive-failure budget as failed actions.
func (e *IterativeEvaluator) runLoop(ctx context.Context, task *schemas.Task, agent Agent, executor *BrowserExecutor, session browser.Session, webAgentID string) ([]ActionExecutionResult, bool) {
	maxIterations := e.cfg.Evaluator.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}
	failureLimit := e.cfg.Evaluator.MaxConsecutiveActionFailures

	var history []ActionExecutionResult
	consecutive := 0
	for len(history) < maxIterations {
		if ctx.Err() != nil {
			return history, true
		}

		enriched := e.enrichTask(task, session)
		proposed, err := agent.NextActions(ctx, enriched, history)
		if err != nil {
			e.logger.Warn("agent proposal failed",
				zap.String("task_id", task.ID),
				zap.Error(err))
			consecutive++
			if failureLimit > 0 && consecutive >= failureLimit {
				return history, true
			}
			continue
		}
		if len(proposed) == 0 {
			return history, false
		}

		// Clamp the batch so the iteration cap holds even when the agent
		// over-proposes.
		if remaining := maxIterations - len(history); len(proposed) > remaining {
			proposed = proposed[:remaining]
		}

		for _, act := range proposed {
			// Agent-proposed navigations face the same sandbox as replayed
			// ones; a veto is a failed action, not an executed one.
			var res ActionExecutionResult
			if reason := e.guard.CheckAction(task, act); reason != "" {
				e.logger.Warn("agent navigation vetoed",
					zap.String("task_id", task.ID),
					zap.String("reason", reason))
				res = blockedActionResult(act, reason, len(history))
			} else {
				res = executor.ExecuteSingleAction(ctx, act, webAgentID, len(history))
			}
			history = append(history, res)
			if res.SuccessfullyExecuted {
				consecutive = 0
				continue
			}
			consecutive++
			if failureLimit > 0 && consecutive >= failureLimit {
				return history, true
			}
		}
	}
	return history, false
}

// enrichTask clones the task and folds current browser state into
// RelevantData so the agent sees where it is without mutating the shared
// task.
func (e *IterativeEvaluator) enrichTask(task *schemas.Task, session browser.Session) *schemas.Task {
	enriched := task.Clone()
	if enriched.RelevantData == nil {
		enriched.RelevantData = map[string]string{}
	}
	if url, err := session.CurrentURL(); err == nil {
		enriched.RelevantData["current_url"] = url
	}
	if html, err := session.HTML(); err == nil {
		enriched.RelevantData["page_html_length"] = strconv.Itoa(len(html))
	}
	return enriched
}
