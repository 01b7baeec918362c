// pkg/evaluator/feedback.go
package evaluator

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/webgym/webgym/pkg/schemas"
)

// FeedbackGenerator summarizes a run for humans and for agents that consume
// evaluation transcripts. It only reads the history; generation can never
// change a score.
type FeedbackGenerator struct{}

func (FeedbackGenerator) Generate(task *schemas.Task, history []ActionExecutionResult, testResults []schemas.TestResult) *Feedback {
	fb := &Feedback{
		PassedTests: countPassed(testResults),
		FailedTests: len(testResults) - countPassed(testResults),
	}
	for _, res := range history {
		if !res.SuccessfullyExecuted {
			fb.FailedActions = append(fb.FailedActions,
				fmt.Sprintf("%s: %s", res.Action.String(), res.Error))
		}
	}
	if len(history) > 0 {
		last := history[len(history)-1].BrowserSnapshot
		fb.FinalURL = last.CurrentURL
		fb.PageTitle = pageTitle(last.HTMLAfter)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d tests passed", fb.PassedTests, len(testResults))
	if len(fb.FailedActions) > 0 {
		fmt.Fprintf(&b, "; %d of %d actions failed", len(fb.FailedActions), len(history))
	}
	if fb.PageTitle != "" {
		fmt.Fprintf(&b, "; finished on %q", fb.PageTitle)
	}
	fb.Summary = b.String()
	return fb
}

// pageTitle pulls the document title from raw HTML. Parse errors yield an
// empty title; feedback is advisory only.
func pageTitle(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	node := htmlquery.FindOne(doc, "//title")
	if node == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.InnerText(node))
}
