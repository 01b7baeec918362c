// pkg/evaluator/mocks_test.go
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/schemas"
)

// fakeSession is a scriptable in-memory browser.Session. Errors are injected
// per method name; every call is recorded for assertions.
type fakeSession struct {
	mu sync.Mutex

	id         string
	calls      []string
	errs       map[string]error
	html       string
	currentURL string
	screenshot []byte
	options    []string
	delay      time.Duration
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		id:         "fake-session",
		errs:       map[string]error{},
		html:       "<html><head><title>Demo</title></head><body>ok</body></html>",
		currentURL: "http://localhost:8000/",
	}
}

func (s *fakeSession) failOn(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[method] = fmt.Errorf("%s failed", method)
}

func (s *fakeSession) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method)
	if s.delay > 0 {
		s.mu.Unlock()
		time.Sleep(s.delay)
		s.mu.Lock()
	}
	return s.errs[method]
}

func (s *fakeSession) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Navigate(url string) error {
	if err := s.record("Navigate"); err != nil {
		return err
	}
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) NavigateBack() error    { return s.record("NavigateBack") }
func (s *fakeSession) NavigateForward() error { return s.record("NavigateForward") }

func (s *fakeSession) Click(string) error              { return s.record("Click") }
func (s *fakeSession) DoubleClick(string) error        { return s.record("DoubleClick") }
func (s *fakeSession) Hover(string) error              { return s.record("Hover") }
func (s *fakeSession) Type(string, string) error       { return s.record("Type") }
func (s *fakeSession) SendKeys(string, string) error   { return s.record("SendKeys") }
func (s *fakeSession) Submit(string) error             { return s.record("Submit") }
func (s *fakeSession) SelectOption(string, string) error {
	return s.record("SelectOption")
}

func (s *fakeSession) DropdownOptions(string) ([]string, error) {
	if err := s.record("DropdownOptions"); err != nil {
		return nil, err
	}
	return s.options, nil
}

func (s *fakeSession) DragAndDrop(string, string) error { return s.record("DragAndDrop") }
func (s *fakeSession) ScrollPage(string) error          { return s.record("ScrollPage") }
func (s *fakeSession) ScrollBy(float64, float64) error  { return s.record("ScrollBy") }
func (s *fakeSession) WaitLoad() error                  { return s.record("WaitLoad") }
func (s *fakeSession) WaitForAsync(int) error           { return s.record("WaitForAsync") }

func (s *fakeSession) HTML() (string, error) {
	if err := s.record("HTML"); err != nil {
		return "", err
	}
	return s.html, nil
}

func (s *fakeSession) CurrentURL() (string, error) {
	if err := s.record("CurrentURL"); err != nil {
		return "", err
	}
	return s.currentURL, nil
}

func (s *fakeSession) Screenshot() ([]byte, error) {
	if err := s.record("Screenshot"); err != nil {
		return nil, err
	}
	return s.screenshot, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.record("Close")
}

// fakeManager hands out fake sessions and counts them.
type fakeManager struct {
	mu       sync.Mutex
	sessions []*fakeSession
	initErr  error
	// build customizes each new session before first use.
	build func(*fakeSession)
}

func (m *fakeManager) InitializeSession(_ context.Context, opts browser.SessionOptions) (browser.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return nil, m.initErr
	}
	sess := newFakeSession()
	sess.id = fmt.Sprintf("fake-%d-%s", len(m.sessions), opts.AgentID)
	if m.build != nil {
		m.build(sess)
	}
	m.sessions = append(m.sessions, sess)
	return sess, nil
}

func (m *fakeManager) Shutdown(context.Context) error { return nil }

func (m *fakeManager) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// fakeBackend is a scriptable backend.Client.
type fakeBackend struct {
	mu        sync.Mutex
	events    []schemas.BackendEvent
	eventsErr error
	resetErr  error
	dbResets  int
	resets    int
	closed    bool
}

func (b *fakeBackend) GetBackendEvents(context.Context, string) ([]schemas.BackendEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.eventsErr != nil {
		return nil, b.eventsErr
	}
	return append([]schemas.BackendEvent(nil), b.events...), nil
}

func (b *fakeBackend) ResetDatabase(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dbResets++
	return b.resetErr
}

func (b *fakeBackend) ResetWebAgentEvents(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	return b.resetErr
}

func (b *fakeBackend) SendEvent(context.Context, string, map[string]interface{}, string) error {
	return nil
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
