// pkg/browser/types.go
package browser

import (
	"context"
)

// Session is the contract for one isolated browser tab. Every evaluation owns
// exactly one session for its entire lifetime; sessions are never shared.
type Session interface {
	ID() string

	Navigate(url string) error
	NavigateBack() error
	NavigateForward() error

	Click(selector string) error
	DoubleClick(selector string) error
	Hover(selector string) error
	Type(selector, text string) error
	SendKeys(selector, keys string) error
	Submit(selector string) error
	SelectOption(selector, value string) error
	DropdownOptions(selector string) ([]string, error)
	DragAndDrop(sourceSelector, targetSelector string) error

	ScrollPage(direction string) error
	ScrollBy(x, y float64) error

	WaitLoad() error
	WaitForAsync(milliseconds int) error

	HTML() (string, error)
	CurrentURL() (string, error)
	Screenshot() ([]byte, error)

	Close(ctx context.Context) error
}

// SessionOptions carries per-evaluation session settings.
type SessionOptions struct {
	// AgentID is propagated to the backend via the X-WebAgent-Id request
	// header so that backend events attribute to the right agent.
	AgentID string
	// ValidatorID identifies the evaluator instance driving the session.
	ValidatorID string
	// ViewportWidth/Height override the configured window size when non-zero.
	ViewportWidth  int
	ViewportHeight int
	// UserAgent overrides the configured user agent when non-empty.
	UserAgent string
}

// SessionManager owns the browser process and hands out isolated sessions.
type SessionManager interface {
	InitializeSession(ctx context.Context, opts SessionOptions) (Session, error)
	Shutdown(ctx context.Context) error
}
