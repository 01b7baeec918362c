// pkg/evaluator/guard_test.go
package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/schemas"
)

func navTo(url string) actions.Action {
	return actions.Action{Type: actions.TypeNavigate, URL: url}
}

func TestNavigationGuard_DemoProjects(t *testing.T) {
	guard := &NavigationGuard{}
	task := &schemas.Task{ID: "t1", URL: "http://localhost:8000/"}

	tests := []struct {
		name    string
		actions []actions.Action
		allowed bool
	}{
		{"no navigation at all", []actions.Action{{Type: actions.TypeClick}}, true},
		{"localhost allowed", []actions.Action{navTo("http://localhost:8000/books")}, true},
		{"loopback ip allowed", []actions.Action{navTo("http://127.0.0.1:8000/")}, true},
		{"relative allowed", []actions.Action{navTo("/books/42")}, true},
		{"external host rejected", []actions.Action{navTo("http://example.com/")}, false},
		{"file scheme rejected", []actions.Action{navTo("file:///etc/passwd")}, false},
		{"javascript scheme rejected", []actions.Action{navTo("javascript:alert(1)")}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason := guard.CheckSolution(task, tc.actions)
			if tc.allowed {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestNavigationGuard_TestingModeAllowsRemoteDemoHosts(t *testing.T) {
	task := &schemas.Task{ID: "t1", URL: "http://demo.internal:8000/"}
	act := []actions.Action{navTo("http://demo.internal:8000/cart")}

	strict := &NavigationGuard{}
	assert.NotEmpty(t, strict.CheckSolution(task, act))

	relaxed := &NavigationGuard{TestingMode: true}
	assert.Empty(t, relaxed.CheckSolution(task, act))
}

func TestNavigationGuard_RealWebDomainContainment(t *testing.T) {
	guard := &NavigationGuard{}
	task := &schemas.Task{ID: "t1", URL: "https://shop.example.com/", IsWebReal: true}

	assert.Empty(t, guard.CheckSolution(task, []actions.Action{
		navTo("https://shop.example.com/checkout"),
	}))
	assert.Empty(t, guard.CheckSolution(task, []actions.Action{
		navTo("https://SHOP.EXAMPLE.COM/checkout"),
	}), "host comparison is case-insensitive")
	assert.NotEmpty(t, guard.CheckSolution(task, []actions.Action{
		navTo("https://evil.example.org/"),
	}))
}

func TestNavigationGuard_SeedContainment(t *testing.T) {
	guard := &NavigationGuard{}
	seeded := &schemas.Task{ID: "t1", URL: "http://localhost:8000/?seed=42"}
	unseeded := &schemas.Task{ID: "t2", URL: "http://localhost:8000/"}

	tests := []struct {
		name    string
		task    *schemas.Task
		target  string
		allowed bool
	}{
		{"matching seed", seeded, "http://localhost:8000/books?seed=42", true},
		{"wrong seed", seeded, "http://localhost:8000/books?seed=7", false},
		{"missing seed", seeded, "http://localhost:8000/books", false},
		{"relative with seed", seeded, "/books?seed=42", true},
		{"relative missing seed", seeded, "/books", false},
		{"unseeded task ignores seed", unseeded, "http://localhost:8000/books?seed=7", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason := guard.CheckSolution(tc.task, []actions.Action{navTo(tc.target)})
			if tc.allowed {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestNavigationGuard_ReportsFirstViolation(t *testing.T) {
	guard := &NavigationGuard{}
	task := &schemas.Task{ID: "t1", URL: "http://localhost:8000/"}

	reason := guard.CheckSolution(task, []actions.Action{
		navTo("http://localhost:8000/ok"),
		navTo("http://example.com/bad"),
		navTo("http://also-bad.com/"),
	})
	assert.Contains(t, reason, "action 1")
	assert.Contains(t, reason, "example.com")
}
