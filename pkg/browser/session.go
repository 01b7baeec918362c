// pkg/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/config"
)

const closeTimeout = 10 * time.Second

// session manages a single, isolated browser tab over CDP.
type session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger
	opts   SessionOptions

	allocatorCtx context.Context

	sessionCtx     context.Context
	sessionCancel  context.CancelFunc
	deadlineCancel context.CancelFunc

	isClosed bool
	mu       sync.Mutex
}

var _ Session = (*session)(nil)

func newSession(allocCtx context.Context, cfg *config.Config, logger *zap.Logger, opts SessionOptions) *session {
	id := uuid.New().String()
	return &session{
		id:           id,
		cfg:          cfg,
		logger:       logger.With(zap.String("session_id", id[:8])),
		opts:         opts,
		allocatorCtx: allocCtx,
	}
}

// initialize creates the tab, applies the evaluation deadline, identity
// headers, and viewport overrides.
func (s *session) initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionCtx != nil {
		return fmt.Errorf("session already initialized")
	}

	parent := s.allocatorCtx
	if s.cfg.Evaluator.BrowserTimeout > 0 {
		parent, s.deadlineCancel = context.WithTimeout(parent, s.cfg.Evaluator.BrowserTimeout)
	}
	s.sessionCtx, s.sessionCancel = chromedp.NewContext(parent)

	headers := network.Headers{}
	if s.opts.AgentID != "" {
		headers["X-WebAgent-Id"] = s.opts.AgentID
	}
	if s.opts.ValidatorID != "" {
		headers["X-Validator-Id"] = s.opts.ValidatorID
	}

	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
	}
	if s.opts.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(s.opts.UserAgent))
	}
	if s.cfg.Browser.DisableCache {
		tasks = append(tasks, network.SetCacheDisabled(true))
	}
	if s.opts.ViewportWidth > 0 && s.opts.ViewportHeight > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(
			int64(s.opts.ViewportWidth), int64(s.opts.ViewportHeight)))
	}

	if err := chromedp.Run(s.sessionCtx, tasks); err != nil {
		s.closeLocked()
		return fmt.Errorf("failed to prepare browser tab: %w", err)
	}

	s.logger.Debug("Browser session initialized.",
		zap.String("agent_id", s.opts.AgentID))
	return nil
}

func (s *session) ID() string { return s.id }

// queryOption picks the chromedp query strategy. XPath expressions go through
// DOM search; everything else is treated as a CSS selector.
func queryOption(sel string) chromedp.QueryOption {
	if isXPath(sel) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(") || strings.HasPrefix(sel, "./")
}

// locatorJS builds a JS expression resolving the selector to an element.
func locatorJS(sel string) string {
	if isXPath(sel) {
		return fmt.Sprintf(
			`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			sel)
	}
	return fmt.Sprintf(`document.querySelector(%q)`, sel)
}

func (s *session) Navigate(url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	return chromedp.Run(s.sessionCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Network.PostLoadWait),
	)
}

func (s *session) NavigateBack() error {
	return chromedp.Run(s.sessionCtx,
		chromedp.NavigateBack(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *session) NavigateForward() error {
	return chromedp.Run(s.sessionCtx,
		chromedp.NavigateForward(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *session) Click(sel string) error {
	return chromedp.Run(s.sessionCtx, chromedp.Click(sel, queryOption(sel)))
}

func (s *session) DoubleClick(sel string) error {
	return chromedp.Run(s.sessionCtx, chromedp.DoubleClick(sel, queryOption(sel)))
}

func (s *session) Hover(sel string) error {
	x, y, err := s.nodeCenter(sel)
	if err != nil {
		return err
	}
	return chromedp.Run(s.sessionCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

func (s *session) Type(sel, text string) error {
	return chromedp.Run(s.sessionCtx,
		chromedp.Click(sel, queryOption(sel)),
		chromedp.Clear(sel, queryOption(sel)),
		chromedp.SendKeys(sel, text, queryOption(sel)),
	)
}

// specialKeys maps wire-level key names to CDP key runes.
var specialKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

func (s *session) SendKeys(sel, keys string) error {
	translated := keys
	if k, ok := specialKeys[keys]; ok {
		translated = k
	}
	if sel == "" {
		return chromedp.Run(s.sessionCtx, chromedp.KeyEvent(translated))
	}
	return chromedp.Run(s.sessionCtx, chromedp.SendKeys(sel, translated, queryOption(sel)))
}

func (s *session) Submit(sel string) error {
	return chromedp.Run(s.sessionCtx, chromedp.Submit(sel, queryOption(sel)))
}

func (s *session) SelectOption(sel, value string) error {
	js := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, locatorJS(sel), value)

	var ok bool
	if err := chromedp.Run(s.sessionCtx, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matched selector %q", sel)
	}
	return nil
}

func (s *session) DropdownOptions(sel string) ([]string, error) {
	js := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el || !el.options) return null;
		return Array.from(el.options).map(o => o.textContent.trim());
	})()`, locatorJS(sel))

	var options []string
	if err := chromedp.Run(s.sessionCtx, chromedp.Evaluate(js, &options)); err != nil {
		return nil, err
	}
	if options == nil {
		return nil, fmt.Errorf("no dropdown matched selector %q", sel)
	}
	return options, nil
}

func (s *session) DragAndDrop(sourceSel, targetSel string) error {
	sx, sy, err := s.nodeCenter(sourceSel)
	if err != nil {
		return fmt.Errorf("drag source: %w", err)
	}
	tx, ty, err := s.nodeCenter(targetSel)
	if err != nil {
		return fmt.Errorf("drag target: %w", err)
	}

	return chromedp.Run(s.sessionCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, sx, sy).
			WithButton(input.Left).WithClickCount(1)
		if err := press.Do(ctx); err != nil {
			return err
		}
		move := input.DispatchMouseEvent(input.MouseMoved, tx, ty).
			WithButton(input.Left)
		if err := move.Do(ctx); err != nil {
			return err
		}
		release := input.DispatchMouseEvent(input.MouseReleased, tx, ty).
			WithButton(input.Left).WithClickCount(1)
		return release.Do(ctx)
	}))
}

func (s *session) ScrollPage(direction string) error {
	js := `window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'})`
	if direction == "up" {
		js = `window.scrollTo({top: 0, behavior: 'instant'})`
	}
	return chromedp.Run(s.sessionCtx, chromedp.Evaluate(js, nil))
}

func (s *session) ScrollBy(x, y float64) error {
	js := fmt.Sprintf(`window.scrollBy(%f, %f)`, x, y)
	return chromedp.Run(s.sessionCtx, chromedp.Evaluate(js, nil))
}

func (s *session) WaitLoad() error {
	return chromedp.Run(s.sessionCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Network.PostLoadWait),
	)
}

func (s *session) WaitForAsync(milliseconds int) error {
	select {
	case <-time.After(time.Duration(milliseconds) * time.Millisecond):
		return nil
	case <-s.sessionCtx.Done():
		return s.sessionCtx.Err()
	}
}

func (s *session) HTML() (string, error) {
	var content string
	if err := chromedp.Run(s.sessionCtx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return content, nil
}

func (s *session) CurrentURL() (string, error) {
	var url string
	if err := chromedp.Run(s.sessionCtx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (s *session) Screenshot() ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(s.sessionCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// nodeCenter resolves the selector and returns the viewport center of its
// first match.
func (s *session) nodeCenter(sel string) (float64, float64, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(s.sessionCtx, chromedp.Nodes(sel, &nodes, queryOption(sel))); err != nil {
		return 0, 0, err
	}
	if len(nodes) == 0 {
		return 0, 0, fmt.Errorf("no element matched selector %q", sel)
	}

	var x, y float64
	err := chromedp.Run(s.sessionCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if len(box.Content) < 8 {
			return fmt.Errorf("degenerate box model for selector %q", sel)
		}
		x = (box.Content[0] + box.Content[4]) / 2
		y = (box.Content[1] + box.Content[5]) / 2
		return nil
	}))
	return x, y, err
}

func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *session) closeLocked() error {
	if s.isClosed {
		return nil
	}
	s.isClosed = true

	if s.sessionCancel != nil {
		s.sessionCancel()
	}
	if s.deadlineCancel != nil {
		s.deadlineCancel()
	}
	if s.sessionCtx == nil {
		return nil
	}

	select {
	case <-s.sessionCtx.Done():
		s.logger.Debug("Browser session closed gracefully.")
	case <-time.After(closeTimeout):
		s.logger.Warn("Timeout waiting for browser session to close.")
	}
	return nil
}
