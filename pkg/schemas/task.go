// pkg/schemas/task.go
package schemas

import (
	"net/url"

	json "github.com/json-iterator/go"
)

// BrowserSpecification carries the viewport and identity hints a task wants
// the browser session to honor.
type BrowserSpecification struct {
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	ScreenWidth    int    `json:"screen_width,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// Task is one benchmark unit: a prompt, a target URL (optionally seeded), and
// the declarative tests that decide whether the agent solved it. Tasks are
// produced by the generation pipeline and are read-only inputs here.
type Task struct {
	ID             string               `json:"id"`
	Prompt         string               `json:"prompt"`
	URL            string               `json:"url"`
	Tests          []Test               `json:"-"`
	WebProjectID   string               `json:"web_project_id"`
	IsWebReal      bool                 `json:"is_web_real"`
	Specifications BrowserSpecification `json:"specifications"`

	// RelevantData holds auxiliary prompt context. Iterative evaluation
	// appends live browser state to a copy of this map, never the original.
	RelevantData map[string]string `json:"relevant_data,omitempty"`
}

// DecodeTask parses a task payload, routing the "tests" array through the
// test decoder since Test is an interface type.
func DecodeTask(raw []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, err
	}
	var envelope struct {
		Tests json.RawMessage `json:"tests"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Tests) > 0 {
		tests, err := DecodeTests(envelope.Tests)
		if err != nil {
			return nil, err
		}
		task.Tests = tests
	}
	return &task, nil
}

// Seed extracts the seed query parameter from the task URL. The second return
// reports whether the task URL carries a seed at all.
func (t *Task) Seed() (string, bool) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return "", false
	}
	seed := u.Query().Get("seed")
	return seed, seed != ""
}

// Clone returns a deep copy of the task. Test values themselves are shared:
// tests are immutable by contract.
func (t *Task) Clone() *Task {
	cp := *t
	if t.RelevantData != nil {
		cp.RelevantData = make(map[string]string, len(t.RelevantData))
		for k, v := range t.RelevantData {
			cp.RelevantData[k] = v
		}
	}
	cp.Tests = append([]Test(nil), t.Tests...)
	return &cp
}
