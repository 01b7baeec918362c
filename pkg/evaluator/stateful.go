// pkg/evaluator/stateful.go
package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/backend"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/schemas"
)

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateReady
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const defaultStepTimeout = 15 * time.Second

// StatefulSession exposes evaluation as a gym-style environment: Reset opens
// a fresh browser for a task, Step executes one action and reports a
// fractional score, Close releases everything. It is NOT safe for concurrent
// use; StatefulEvaluator provides the serialized blocking facade.
type StatefulSession struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager browser.SessionManager
	factory BackendFactory
	runner  *TestRunner
	guard   *NavigationGuard

	state    sessionState
	task     *schemas.Task
	agentID  string
	session  browser.Session
	executor *BrowserExecutor
	backend  backend.Client
	history  []ActionExecutionResult
}

func NewStatefulSession(cfg *config.Config, logger *zap.Logger, manager browser.SessionManager, factory BackendFactory) *StatefulSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if factory == nil {
		factory = func(task *schemas.Task) backend.Client {
			return backend.NewDemoWebClient(cfg.Backend, task.IsWebReal, logger)
		}
	}
	return &StatefulSession{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		factory: factory,
		runner:  NewTestRunner(logger),
		guard:   &NavigationGuard{TestingMode: cfg.Evaluator.TestingMode},
	}
}

// Reset tears down any in-progress run and starts a fresh one for the task.
// Valid from any state except closed.
func (s *StatefulSession) Reset(ctx context.Context, task *schemas.Task, webAgentID string) (StepResult, error) {
	if s.state == stateClosed {
		return StepResult{}, fmt.Errorf("stateful session: reset on %s session", s.state)
	}
	if task == nil {
		return StepResult{}, fmt.Errorf("stateful session: task is nil")
	}

	s.teardown(ctx)
	s.task = task
	s.agentID = webAgentID
	s.history = nil

	s.backend = s.factory(task)
	if err := resetBackend(ctx, s.backend, webAgentID); err != nil {
		s.teardown(ctx)
		return StepResult{}, fmt.Errorf("stateful session: backend reset: %w", err)
	}

	session, err := s.manager.InitializeSession(ctx, sessionOptions(task, webAgentID, s.cfg))
	if err != nil {
		s.teardown(ctx)
		return StepResult{}, fmt.Errorf("stateful session: browser init: %w", err)
	}
	s.session = session
	s.executor = NewBrowserExecutor(session, s.backend, s.logger)
	s.executor.CaptureScreenshots = s.cfg.Evaluator.ShouldRecordGIF

	// The initial navigation is an action like any other: it runs through
	// the executor and opens the history, so k steps leave k+1 entries.
	navigate := actions.Action{Type: actions.TypeNavigate, URL: task.URL}
	res := s.executor.ExecuteSingleAction(ctx, navigate, webAgentID, 0)
	if !res.SuccessfullyExecuted {
		s.teardown(ctx)
		return StepResult{}, fmt.Errorf("stateful session: initial navigation: %s", res.Error)
	}
	s.history = append(s.history, res)
	s.state = stateReady

	snap := res.BrowserSnapshot
	return StepResult{
		Score:        FractionalScore(s.runner.RunPartialTests(task.Tests, s.history, &snap)),
		Snapshot:     &snap,
		ActionResult: &res,
	}, nil
}

// Step executes one action. An action that overruns the step timeout yields
// a failed result rather than a hang; the session stays ready either way.
func (s *StatefulSession) Step(ctx context.Context, act actions.Action) (StepResult, error) {
	if s.state != stateReady {
		return StepResult{}, fmt.Errorf("stateful session: step on %s session", s.state)
	}

	// Stepped navigations face the same sandbox as replayed sequences.
	var res ActionExecutionResult
	if reason := s.guard.CheckAction(s.task, act); reason != "" {
		s.logger.Warn("step navigation vetoed", zap.String("reason", reason))
		res = blockedActionResult(act, reason, len(s.history))
	} else {
		res = s.executeWithTimeout(ctx, act)
	}
	s.history = append(s.history, res)

	snap := res.BrowserSnapshot
	score := FractionalScore(s.runner.RunPartialTests(s.task.Tests, s.history, &snap))
	return StepResult{
		Score:        score,
		Snapshot:     &snap,
		ActionResult: &res,
	}, nil
}

// Score recomputes the fractional score from the history so far.
func (s *StatefulSession) Score(ctx context.Context) (ScoreDetails, error) {
	if s.state != stateReady {
		return ScoreDetails{}, fmt.Errorf("stateful session: score on %s session", s.state)
	}
	events, err := s.backend.GetBackendEvents(ctx, s.agentID)
	if err != nil || len(events) == 0 {
		events = collectEvents(s.history, nil)
	}
	return FractionalScore(s.runner.RunGlobalTests(s.task.Tests, events)), nil
}

// History returns the results recorded since the last Reset.
func (s *StatefulSession) History() []ActionExecutionResult {
	return append([]ActionExecutionResult(nil), s.history...)
}

// Close releases the browser and backend client. Idempotent.
func (s *StatefulSession) Close(ctx context.Context) error {
	if s.state == stateClosed {
		return nil
	}
	s.teardown(ctx)
	s.state = stateClosed
	return nil
}

func (s *StatefulSession) teardown(ctx context.Context) {
	if s.session != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := s.session.Close(closeCtx); err != nil {
			s.logger.Warn("session close failed", zap.Error(err))
		}
		cancel()
		s.session = nil
		s.executor = nil
	}
	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
	if s.state == stateReady {
		s.state = stateUninitialized
	}
}

// executeWithTimeout bounds one action. On timeout the driver goroutine is
// left to finish against the live session; its result is discarded.
func (s *StatefulSession) executeWithTimeout(ctx context.Context, act actions.Action) ActionExecutionResult {
	timeout := s.cfg.Evaluator.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	done := make(chan ActionExecutionResult, 1)
	iteration := len(s.history)
	executor := s.executor
	go func() {
		done <- executor.ExecuteSingleAction(ctx, act, s.agentID, iteration)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
	case <-ctx.Done():
	}

	errMsg := "step timed out after " + timeout.String()
	if ctx.Err() != nil {
		errMsg = ctx.Err().Error()
	}
	s.logger.Warn("step did not complete",
		zap.String("action", act.String()),
		zap.String("error", errMsg))
	return ActionExecutionResult{
		Action:          act,
		ActionEventName: act.EventName(),
		Error:           errMsg,
		ExecutionTime:   timeout,
		BrowserSnapshot: BrowserSnapshot{
			Iteration: iteration,
			Action:    act,
			Timestamp: time.Now(),
		},
	}
}
