// pkg/evaluator/guard.go
package evaluator

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/schemas"
)

// NavigationGuard vets explicit navigation targets before a solution runs.
// Demo tasks must stay on loopback hosts unless testing mode widens that to
// any host; real-web tasks must stay on the task's own host. When the task
// URL carries a seed query parameter, every navigation must carry the same
// one.
type NavigationGuard struct {
	// TestingMode relaxes the loopback restriction for demo projects so
	// suites can run against remote fixtures.
	TestingMode bool
}

// CheckSolution walks the action list and returns a non-empty reason for the
// first navigation that violates policy. An empty reason means the solution
// may run.
func (g *NavigationGuard) CheckSolution(task *schemas.Task, acts []actions.Action) string {
	seed, hasSeed := task.Seed()
	for i, act := range acts {
		if !act.IsNavigation() || act.URL == "" {
			continue
		}
		if reason := g.checkTarget(task, act.URL, seed, hasSeed); reason != "" {
			return fmt.Sprintf("action %d (%s): %s", i, act.URL, reason)
		}
	}
	return ""
}

// CheckAction vets a single action at execution time, for the paths where
// actions arrive one at a time instead of as a pre-declared sequence.
// Non-navigation actions always pass.
func (g *NavigationGuard) CheckAction(task *schemas.Task, act actions.Action) string {
	if !act.IsNavigation() || act.URL == "" {
		return ""
	}
	seed, hasSeed := task.Seed()
	return g.checkTarget(task, act.URL, seed, hasSeed)
}

// blockedActionResult records a vetoed navigation as a failed execution. The
// action never reaches the browser, so there is no state to capture.
func blockedActionResult(act actions.Action, reason string, iteration int) ActionExecutionResult {
	return ActionExecutionResult{
		Action:          act,
		ActionEventName: act.EventName(),
		Error:           "navigation policy violation: " + reason,
		BrowserSnapshot: BrowserSnapshot{
			Iteration: iteration,
			Action:    act,
			Timestamp: time.Now(),
		},
	}
}

func (g *NavigationGuard) checkTarget(task *schemas.Task, target, seed string, hasSeed bool) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unparseable URL"
	}

	// Relative targets stay on the current origin and are always allowed.
	if u.Scheme == "" && u.Host == "" {
		return g.checkSeed(u, seed, hasSeed)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("scheme %q is not allowed", u.Scheme)
	}

	if task.IsWebReal {
		taskURL, err := url.Parse(task.URL)
		if err != nil {
			return "task URL is unparseable"
		}
		if !strings.EqualFold(u.Hostname(), taskURL.Hostname()) {
			return fmt.Sprintf("host %q is outside the task domain %q", u.Hostname(), taskURL.Hostname())
		}
	} else if !g.TestingMode && !isLoopback(u.Hostname()) {
		return fmt.Sprintf("host %q is not a loopback address", u.Hostname())
	}

	return g.checkSeed(u, seed, hasSeed)
}

// checkSeed enforces seed containment: when the task URL pins a seed, every
// navigation target must carry a matching one. A missing seed counts as a
// mismatch.
func (g *NavigationGuard) checkSeed(u *url.URL, seed string, hasSeed bool) string {
	if !hasSeed {
		return ""
	}
	got := u.Query().Get("seed")
	if got == "" {
		return fmt.Sprintf("missing required seed %q", seed)
	}
	if got != seed {
		return fmt.Sprintf("seed %q does not match task seed %q", got, seed)
	}
	return ""
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
