// pkg/evaluator/stateful_sync.go
package evaluator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/schemas"
)

// StatefulEvaluator is the blocking facade over StatefulSession. All calls
// are funneled through one worker goroutine, so the underlying session only
// ever sees serialized access and callers need no context plumbing. Safe for
// concurrent use.
type StatefulEvaluator struct {
	requests chan func(*StatefulSession)
	quit     chan struct{}

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewStatefulEvaluator(cfg *config.Config, logger *zap.Logger, manager browser.SessionManager, factory BackendFactory) *StatefulEvaluator {
	e := &StatefulEvaluator{
		requests: make(chan func(*StatefulSession)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	inner := NewStatefulSession(cfg, logger, manager, factory)
	go e.run(inner)
	return e
}

// run is the worker loop. It owns the inner session exclusively until quit
// is signaled, then tears it down.
func (e *StatefulEvaluator) run(inner *StatefulSession) {
	defer close(e.done)
	for {
		select {
		case req := <-e.requests:
			req(inner)
		case <-e.quit:
			_ = inner.Close(context.Background())
			return
		}
	}
}

var errEvaluatorClosed = fmt.Errorf("stateful evaluator: closed")

// submit runs fn on the worker goroutine and waits for it to finish.
func (e *StatefulEvaluator) submit(fn func(*StatefulSession)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errEvaluatorClosed
	}
	e.mu.Unlock()

	finished := make(chan struct{})
	select {
	case e.requests <- func(inner *StatefulSession) {
		defer close(finished)
		fn(inner)
	}:
	case <-e.done:
		return errEvaluatorClosed
	}
	<-finished
	return nil
}

// Reset starts a fresh run for the task, blocking until the browser is up
// and the task URL is loaded.
func (e *StatefulEvaluator) Reset(task *schemas.Task, webAgentID string) (StepResult, error) {
	var (
		res StepResult
		err error
	)
	if submitErr := e.submit(func(inner *StatefulSession) {
		res, err = inner.Reset(context.Background(), task, webAgentID)
	}); submitErr != nil {
		return StepResult{}, submitErr
	}
	return res, err
}

// Step executes one action and blocks until its result and score are known.
func (e *StatefulEvaluator) Step(act actions.Action) (StepResult, error) {
	var (
		res StepResult
		err error
	)
	if submitErr := e.submit(func(inner *StatefulSession) {
		res, err = inner.Step(context.Background(), act)
	}); submitErr != nil {
		return StepResult{}, submitErr
	}
	return res, err
}

// Score returns the current fractional score for the active run.
func (e *StatefulEvaluator) Score() (ScoreDetails, error) {
	var (
		details ScoreDetails
		err     error
	)
	if submitErr := e.submit(func(inner *StatefulSession) {
		details, err = inner.Score(context.Background())
	}); submitErr != nil {
		return ScoreDetails{}, submitErr
	}
	return details, err
}

// History returns the action results recorded since the last Reset.
func (e *StatefulEvaluator) History() ([]ActionExecutionResult, error) {
	var history []ActionExecutionResult
	if err := e.submit(func(inner *StatefulSession) {
		history = inner.History()
	}); err != nil {
		return nil, err
	}
	return history, nil
}

// Close shuts down the worker and releases all resources. Idempotent; it
// blocks until teardown completes.
func (e *StatefulEvaluator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return nil
	}
	e.closed = true
	close(e.quit)
	e.mu.Unlock()

	<-e.done
	return nil
}
