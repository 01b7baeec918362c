// pkg/evaluator/executor.go
package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/backend"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/schemas"
)

// BrowserExecutor drives a single browser session through actions one at a
// time. Failures are contained: every call returns a populated
// ActionExecutionResult and the session stays usable for the next action.
type BrowserExecutor struct {
	session browser.Session
	backend backend.Client
	logger  *zap.Logger

	// CaptureScreenshots controls whether before/after screenshots are taken.
	// HTML and URL are always captured; screenshots cost the most and feed
	// only the GIF recorder.
	CaptureScreenshots bool
}

func NewBrowserExecutor(session browser.Session, backendClient backend.Client, logger *zap.Logger) *BrowserExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserExecutor{
		session: session,
		backend: backendClient,
		logger:  logger,
	}
}

// ExecuteSingleAction runs one action with full state capture around it.
// It never returns an error; anything that goes wrong, including a panic in
// the driver, becomes a failed result with the session left open.
func (e *BrowserExecutor) ExecuteSingleAction(ctx context.Context, act actions.Action, agentID string, iteration int) (res ActionExecutionResult) {
	snap := BrowserSnapshot{
		Iteration: iteration,
		Action:    act,
		Timestamp: time.Now(),
	}
	res = ActionExecutionResult{
		Action:          act,
		ActionEventName: act.EventName(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("action execution panicked",
				zap.String("action", act.String()),
				zap.Any("panic", rec))
			res.SuccessfullyExecuted = false
			res.Error = fmt.Sprintf("panic: %v", rec)
		}
		res.BrowserSnapshot = snap
	}()

	snap.HTMLBefore, snap.ScreenshotBefore, _ = e.capture()

	start := time.Now()
	err := act.Execute(e.session)
	res.ExecutionTime = time.Since(start)

	// An action can trigger navigation; wait for the load signal so the
	// after capture sees the settled page. Best-effort like the captures.
	if waitErr := e.session.WaitLoad(); waitErr != nil {
		e.logger.Debug("post-action load wait failed", zap.Error(waitErr))
	}

	if err != nil {
		res.Error = err.Error()
		e.logger.Debug("action failed",
			zap.Int("iteration", iteration),
			zap.String("action", act.String()),
			zap.Error(err))
	} else {
		res.SuccessfullyExecuted = true
	}

	snap.HTMLAfter, snap.ScreenshotAfter, snap.CurrentURL = e.capture()
	snap.BackendEvents = e.fetchEvents(ctx, agentID)
	return res
}

// capture grabs page state on a best-effort basis. A failed capture yields
// empty values, never an error; capture problems must not fail the action.
func (e *BrowserExecutor) capture() (html string, screenshot []byte, currentURL string) {
	var err error
	if html, err = e.session.HTML(); err != nil {
		e.logger.Debug("html capture failed", zap.Error(err))
		html = ""
	}
	if currentURL, err = e.session.CurrentURL(); err != nil {
		currentURL = ""
	}
	if e.CaptureScreenshots {
		if screenshot, err = e.session.Screenshot(); err != nil {
			e.logger.Debug("screenshot capture failed", zap.Error(err))
			screenshot = nil
		}
	}
	return html, screenshot, currentURL
}

func (e *BrowserExecutor) fetchEvents(ctx context.Context, agentID string) []schemas.BackendEvent {
	events, err := e.backend.GetBackendEvents(ctx, agentID)
	if err != nil {
		e.logger.Debug("backend event fetch failed", zap.Error(err))
		return nil
	}
	return events
}
