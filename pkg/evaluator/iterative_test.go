// pkg/evaluator/iterative_test.go
package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/backend"
	"github.com/webgym/webgym/pkg/schemas"
)

// scriptedAgent replays batches of actions, then stops.
type scriptedAgent struct {
	batches  [][]actions.Action
	errs     []error
	call     int
	seenURLs []string
}

func (a *scriptedAgent) NextActions(_ context.Context, task *schemas.Task, _ []ActionExecutionResult) ([]actions.Action, error) {
	a.seenURLs = append(a.seenURLs, task.RelevantData["current_url"])
	i := a.call
	a.call++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i >= len(a.batches) {
		return nil, nil
	}
	return a.batches[i], nil
}

func newIterativeUnderTest(manager *fakeManager, be *fakeBackend) *IterativeEvaluator {
	factory := func(*schemas.Task) backend.Client { return be }
	return NewIterativeEvaluator(testConfig(), nil, manager, factory)
}

func TestIterativeEvaluator_AgentCompletesTask(t *testing.T) {
	manager := &fakeManager{}
	be := &fakeBackend{events: []schemas.BackendEvent{purchaseEvent("agent-1")}}
	eval := newIterativeUnderTest(manager, be)

	agent := &scriptedAgent{batches: [][]actions.Action{
		{clickSolution("agent-1", "buy").Actions[0]},
		{}, // done
	}}
	res := eval.EvaluateWithAgent(context.Background(), demoTask(), agent, "agent-1")

	require.NotNil(t, res)
	assert.Equal(t, 1.0, res.FinalScore)
	assert.Len(t, res.ExecutionHistory, 1)
	assert.False(t, res.Stats.EarlyStopped)
}

func TestIterativeEvaluator_TaskEnrichment(t *testing.T) {
	manager := &fakeManager{}
	eval := newIterativeUnderTest(manager, &fakeBackend{})

	task := demoTask()
	agent := &scriptedAgent{}
	eval.EvaluateWithAgent(context.Background(), task, agent, "agent-1")

	require.NotEmpty(t, agent.seenURLs)
	assert.Equal(t, "http://localhost:8000/", agent.seenURLs[0])
	assert.Nil(t, task.RelevantData, "the shared task is never mutated")
}

func TestIterativeEvaluator_IterationCapClampsBatches(t *testing.T) {
	manager := &fakeManager{}
	eval := newIterativeUnderTest(manager, &fakeBackend{})
	eval.cfg.Evaluator.MaxIterations = 3

	big := make([]actions.Action, 10)
	for i := range big {
		big[i] = actions.Action{Type: actions.TypeScroll, Down: true}
	}
	agent := &scriptedAgent{batches: [][]actions.Action{big, big}}

	res := eval.EvaluateWithAgent(context.Background(), demoTask(), agent, "agent-1")
	assert.Len(t, res.ExecutionHistory, 3)
}

func TestIterativeEvaluator_AgentErrorsTripCircuitBreaker(t *testing.T) {
	manager := &fakeManager{}
	eval := newIterativeUnderTest(manager, &fakeBackend{})
	eval.cfg.Evaluator.MaxConsecutiveActionFailures = 2

	agent := &scriptedAgent{errs: []error{assert.AnError, assert.AnError, assert.AnError}}
	res := eval.EvaluateWithAgent(context.Background(), demoTask(), agent, "agent-1")

	assert.True(t, res.Stats.EarlyStopped)
	assert.Equal(t, 0.0, res.FinalScore)
	assert.Equal(t, 2, agent.call, "the loop stops at the failure limit")
}

func TestIterativeEvaluator_MixedFailuresResetOnSuccess(t *testing.T) {
	manager := &fakeManager{}
	eval := newIterativeUnderTest(manager, &fakeBackend{})
	eval.cfg.Evaluator.MaxConsecutiveActionFailures = 2

	scroll := actions.Action{Type: actions.TypeScroll, Down: true}
	agent := &scriptedAgent{
		errs:    []error{assert.AnError, nil},
		batches: [][]actions.Action{nil, {scroll}, {}},
	}
	res := eval.EvaluateWithAgent(context.Background(), demoTask(), agent, "agent-1")

	assert.False(t, res.Stats.EarlyStopped, "a success resets the consecutive counter")
	assert.Len(t, res.ExecutionHistory, 1)
}

func TestIterativeEvaluator_OffDomainNavigationIsVetoed(t *testing.T) {
	manager := &fakeManager{}
	eval := newIterativeUnderTest(manager, &fakeBackend{})
	eval.cfg.Evaluator.MaxConsecutiveActionFailures = 2

	agent := &scriptedAgent{batches: [][]actions.Action{
		{navTo("http://evil.example.com/"), navTo("http://evil.example.com/checkout")},
	}}
	res := eval.EvaluateWithAgent(context.Background(), demoTask(), agent, "agent-1")

	assert.True(t, res.Stats.EarlyStopped, "vetoed navigations count as failures")
	assert.Equal(t, 0.0, res.FinalScore)
	require.Len(t, res.ExecutionHistory, 2)
	for _, entry := range res.ExecutionHistory {
		assert.False(t, entry.SuccessfullyExecuted)
		assert.Contains(t, entry.Error, "navigation policy violation")
	}

	navigates := 0
	for _, call := range manager.sessions[0].callLog() {
		if call == "Navigate" {
			navigates++
		}
	}
	assert.Equal(t, 1, navigates, "only the initial task navigation reached the browser")
}
