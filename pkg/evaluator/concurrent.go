// pkg/evaluator/concurrent.go
package evaluator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/backend"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/schemas"
)

// BackendFactory builds the event client for one evaluation run. Each run
// gets its own client so closing one run cannot starve another.
type BackendFactory func(task *schemas.Task) backend.Client

// ConcurrentEvaluator scores batches of solutions against a task. Identical
// action sequences are evaluated once and the result fanned out, and
// concurrency is capped by the configured chunk size. Every entry point
// returns a well-formed result; operational failures surface as zero scores
// with the cause recorded in stats.
type ConcurrentEvaluator struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager browser.SessionManager
	factory BackendFactory

	runner   *TestRunner
	guard    *NavigationGuard
	recorder *GifRecorder
	feedback FeedbackGenerator
}

func NewConcurrentEvaluator(cfg *config.Config, logger *zap.Logger, manager browser.SessionManager, factory BackendFactory) *ConcurrentEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if factory == nil {
		factory = func(task *schemas.Task) backend.Client {
			return backend.NewDemoWebClient(cfg.Backend, task.IsWebReal, logger)
		}
	}
	return &ConcurrentEvaluator{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		factory:  factory,
		runner:   NewTestRunner(logger),
		guard:    &NavigationGuard{TestingMode: cfg.Evaluator.TestingMode},
		recorder: NewGifRecorder(cfg.Recorder, logger),
	}
}

// EvaluateTaskSolutions scores every solution for one task. The returned
// slice is index-aligned with the input; no solution's failure can remove
// another's result.
func (e *ConcurrentEvaluator) EvaluateTaskSolutions(ctx context.Context, task *schemas.Task, solutions []TaskSolution) ([]*EvaluationResult, error) {
	if task == nil {
		return nil, fmt.Errorf("evaluator: task is nil")
	}
	if len(solutions) == 0 {
		return []*EvaluationResult{}, nil
	}

	groups := groupSolutions(solutions, e.cfg.Evaluator.EnableGroupingTasks)
	results := make([]*EvaluationResult, len(solutions))

	e.logger.Info("evaluating task solutions",
		zap.String("task_id", task.ID),
		zap.Int("solutions", len(solutions)),
		zap.Int("groups", len(groups)))

	var completed atomic.Int64
	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go e.logProgress(progressCtx, task.ID, &completed, int64(len(groups)))

	chunk := int64(e.cfg.Evaluator.ChunkSize)
	if chunk < 1 {
		chunk = 1
	}
	sem := semaphore.NewWeighted(chunk)
	g, gctx := errgroup.WithContext(ctx)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			rep := solutions[group.indices[0]]
			result := e.EvaluateSingleTaskSolution(gctx, task, rep)
			for _, idx := range group.indices {
				clone := result.Clone()
				clone.WebAgentID = solutions[idx].WebAgentID
				if clone.Stats != nil {
					clone.Stats.WebAgentID = solutions[idx].WebAgentID
				}
				results[idx] = clone
			}
			completed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Cancellation mid-batch: fill the unreached slots so callers always
		// see an index-aligned slice.
		for i, res := range results {
			if res == nil {
				results[i] = e.zeroResult(task, solutions[i], err.Error())
			}
		}
		return results, err
	}
	return results, nil
}

// EvaluateSingleTaskSolution scores one solution end to end. It never
// panics outward and never returns nil.
func (e *ConcurrentEvaluator) EvaluateSingleTaskSolution(ctx context.Context, task *schemas.Task, solution TaskSolution) (result *EvaluationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("evaluation panicked",
				zap.String("task_id", task.ID),
				zap.String("web_agent_id", solution.WebAgentID),
				zap.Any("panic", rec))
			result = e.zeroResult(task, solution, fmt.Sprintf("panic: %v", rec))
		}
	}()
	return e.evaluate(ctx, task, solution)
}

func (e *ConcurrentEvaluator) evaluate(ctx context.Context, task *schemas.Task, solution TaskSolution) *EvaluationResult {
	stats := newEvaluationStats(task.ID, solution.WebAgentID)
	result := &EvaluationResult{
		WebAgentID:  solution.WebAgentID,
		TestResults: []schemas.TestResult{},
		Stats:       stats,
	}
	defer func() {
		stats.Finalize()
		result.EvaluationTime = stats.TotalTime
	}()

	if len(solution.Actions) == 0 {
		stats.RecordError("solution has no actions")
		result.TestResults = e.runner.RunGlobalTests(task.Tests, nil)
		stats.TestsTotal = len(result.TestResults)
		return result
	}

	if reason := e.guard.CheckSolution(task, solution.Actions); reason != "" {
		e.logger.Warn("solution rejected by navigation policy",
			zap.String("task_id", task.ID),
			zap.String("web_agent_id", solution.WebAgentID),
			zap.String("reason", reason))
		stats.RecordError("navigation policy violation: " + reason)
		return result
	}

	if delay := e.cfg.Evaluator.TaskDelay; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			stats.RecordError(ctx.Err().Error())
			return result
		}
	}

	backendClient := e.factory(task)
	defer backendClient.Close()
	if err := resetBackend(ctx, backendClient, solution.WebAgentID); err != nil {
		stats.RecordError("backend reset failed: " + err.Error())
		return result
	}

	setupStart := time.Now()
	session, err := e.manager.InitializeSession(ctx, sessionOptions(task, solution.WebAgentID, e.cfg))
	stats.BrowserSetupTime = time.Since(setupStart)
	if err != nil {
		stats.RecordError("browser session init failed: " + err.Error())
		return result
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			e.logger.Warn("session close failed", zap.Error(err))
		}
	}()

	executor := NewBrowserExecutor(session, backendClient, e.logger)
	executor.CaptureScreenshots = e.cfg.Evaluator.ShouldRecordGIF

	if err := session.Navigate(task.URL); err != nil {
		stats.RecordError("initial navigation failed: " + err.Error())
		return result
	}

	history, earlyStopped := e.runActions(ctx, executor, solution)
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
		stats.RecordError("stopped after repeated consecutive action failures")
	}

	testStart := time.Now()
	events := e.finalEvents(ctx, backendClient, solution.WebAgentID, history)
	result.TestResults = e.runner.RunGlobalTests(task.Tests, events)
	stats.TestExecutionTime = time.Since(testStart)
	stats.TestsTotal = len(result.TestResults)
	stats.TestsPassed = countPassed(result.TestResults)

	result.RawScore, result.FinalScore = BinaryScore(result.TestResults, earlyStopped)
	result.Feedback = e.feedback.Generate(task, history, result.TestResults)
	if e.cfg.Evaluator.ShouldRecordGIF {
		result.GifRecording = e.recorder.Render(history)
	}

	e.logger.Info("solution evaluated",
		zap.String("task_id", task.ID),
		zap.String("web_agent_id", solution.WebAgentID),
		zap.Float64("final_score", result.FinalScore),
		zap.Int("tests_passed", stats.TestsPassed),
		zap.Int("tests_total", stats.TestsTotal),
		zap.Bool("early_stopped", earlyStopped))
	return result
}

// runActions executes the sequence with the consecutive-failure circuit
// breaker. Successes reset the counter.
func (e *ConcurrentEvaluator) runActions(ctx context.Context, executor *BrowserExecutor, solution TaskSolution) ([]ActionExecutionResult, bool) {
	limit := e.cfg.Evaluator.MaxConsecutiveActionFailures
	history := make([]ActionExecutionResult, 0, len(solution.Actions))
	consecutive := 0
	for i, act := range solution.Actions {
		if ctx.Err() != nil {
			return history, true
		}
		res := executor.ExecuteSingleAction(ctx, act, solution.WebAgentID, i)
		history = append(history, res)
		if res.SuccessfullyExecuted {
			consecutive = 0
			continue
		}
		consecutive++
		if limit > 0 && consecutive >= limit {
			return history, true
		}
	}
	return history, false
}

// resetBackend clears the agent-scoped database and event state. Both resets
// must complete before any action executes; a run against a half-reset
// backend would score stale evidence, and grouped-result cloning assumes an
// identical starting state for identical sequences.
func resetBackend(ctx context.Context, client backend.Client, agentID string) error {
	if err := client.ResetDatabase(ctx, agentID); err != nil {
		return fmt.Errorf("database reset: %w", err)
	}
	if err := client.ResetWebAgentEvents(ctx, agentID); err != nil {
		return fmt.Errorf("event reset: %w", err)
	}
	return nil
}

// finalEvents prefers a fresh fetch so tests see everything the run caused,
// falling back to the last per-action capture.
func (e *ConcurrentEvaluator) finalEvents(ctx context.Context, client backend.Client, agentID string, history []ActionExecutionResult) []schemas.BackendEvent {
	events, err := client.GetBackendEvents(ctx, agentID)
	if err == nil && len(events) > 0 {
		return events
	}
	return collectEvents(history, nil)
}

func (e *ConcurrentEvaluator) zeroResult(task *schemas.Task, solution TaskSolution, reason string) *EvaluationResult {
	stats := newEvaluationStats(task.ID, solution.WebAgentID)
	stats.RecordError(reason)
	stats.Finalize()
	return &EvaluationResult{
		WebAgentID:  solution.WebAgentID,
		TestResults: []schemas.TestResult{},
		Stats:       stats,
	}
}

func (e *ConcurrentEvaluator) logProgress(ctx context.Context, taskID string, completed *atomic.Int64, total int64) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.logger.Info("evaluation progress",
				zap.String("task_id", taskID),
				zap.Int64("completed_groups", completed.Load()),
				zap.Int64("total_groups", total))
		}
	}
}

func sessionOptions(task *schemas.Task, agentID string, cfg *config.Config) browser.SessionOptions {
	opts := browser.SessionOptions{
		AgentID:        agentID,
		ViewportWidth:  cfg.Browser.WindowWidth,
		ViewportHeight: cfg.Browser.WindowHeight,
	}
	if spec := task.Specifications; spec.ViewportWidth > 0 && spec.ViewportHeight > 0 {
		opts.ViewportWidth = spec.ViewportWidth
		opts.ViewportHeight = spec.ViewportHeight
	}
	if task.Specifications.UserAgent != "" {
		opts.UserAgent = task.Specifications.UserAgent
	}
	return opts
}
