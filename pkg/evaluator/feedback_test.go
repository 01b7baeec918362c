// pkg/evaluator/feedback_test.go
package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgym/webgym/pkg/actions"
)

func TestFeedbackGenerator_Generate(t *testing.T) {
	gen := FeedbackGenerator{}
	task := demoTask()
	history := []ActionExecutionResult{
		{
			Action:               actions.Action{Type: actions.TypeClick},
			SuccessfullyExecuted: true,
			BrowserSnapshot: BrowserSnapshot{
				CurrentURL: "http://localhost:8000/checkout",
				HTMLAfter:  "<html><head><title>Checkout</title></head><body></body></html>",
			},
		},
		{
			Action:               actions.Action{Type: actions.TypeSubmit},
			SuccessfullyExecuted: false,
			Error:                "no element matched",
			BrowserSnapshot: BrowserSnapshot{
				CurrentURL: "http://localhost:8000/checkout",
				HTMLAfter:  "<html><head><title>Checkout</title></head><body></body></html>",
			},
		},
	}

	fb := gen.Generate(task, history, results(true, false))
	require.NotNil(t, fb)
	assert.Equal(t, 1, fb.PassedTests)
	assert.Equal(t, 1, fb.FailedTests)
	require.Len(t, fb.FailedActions, 1)
	assert.Contains(t, fb.FailedActions[0], "no element matched")
	assert.Equal(t, "http://localhost:8000/checkout", fb.FinalURL)
	assert.Equal(t, "Checkout", fb.PageTitle)
	assert.Contains(t, fb.Summary, "1/2 tests passed")
}

func TestFeedbackGenerator_EmptyHistory(t *testing.T) {
	gen := FeedbackGenerator{}
	fb := gen.Generate(demoTask(), nil, nil)
	require.NotNil(t, fb)
	assert.Empty(t, fb.FinalURL)
	assert.Empty(t, fb.FailedActions)
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Shop", pageTitle("<html><head><title> Shop </title></head></html>"))
	assert.Empty(t, pageTitle(""))
	assert.Empty(t, pageTitle("<html><body>no title</body></html>"))
}
