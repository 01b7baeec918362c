// pkg/agent/scripted.go

// Package agent provides web agents that can be driven by the iterative
// evaluation loop: a scripted replay agent and an LLM-backed one.
package agent

import (
	"context"
	"sync"

	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/evaluator"
	"github.com/webgym/webgym/pkg/schemas"
)

// ScriptedAgent replays a fixed action sequence in batches. Once exhausted
// it reports completion by proposing nothing. Safe for concurrent use.
type ScriptedAgent struct {
	mu        sync.Mutex
	remaining []actions.Action
	batchSize int
}

// NewScriptedAgent builds an agent that replays script batchSize actions at
// a time. A batchSize below one replays the whole script in one proposal.
func NewScriptedAgent(script []actions.Action, batchSize int) *ScriptedAgent {
	if batchSize < 1 {
		batchSize = len(script)
	}
	return &ScriptedAgent{
		remaining: append([]actions.Action(nil), script...),
		batchSize: batchSize,
	}
}

func (a *ScriptedAgent) NextActions(_ context.Context, _ *schemas.Task, _ []evaluator.ActionExecutionResult) ([]actions.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.remaining) == 0 {
		return nil, nil
	}
	n := a.batchSize
	if n > len(a.remaining) {
		n = len(a.remaining)
	}
	batch := a.remaining[:n]
	a.remaining = a.remaining[n:]
	return batch, nil
}

var _ evaluator.Agent = (*ScriptedAgent)(nil)
