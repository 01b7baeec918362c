// pkg/evaluator/solution.go
package evaluator

import (
	"strconv"

	json "github.com/json-iterator/go"

	"github.com/webgym/webgym/pkg/actions"
)

// TaskSolution is one agent's proposed action sequence for a task.
type TaskSolution struct {
	TaskID     string           `json:"task_id"`
	Actions    []actions.Action `json:"actions"`
	WebAgentID string           `json:"web_agent_id"`
}

// UnmarshalJSON routes the action list through the tolerant action decoder
// so unknown action types survive as no-ops instead of failing the batch.
func (s *TaskSolution) UnmarshalJSON(data []byte) error {
	var env struct {
		TaskID     string          `json:"task_id"`
		Actions    json.RawMessage `json:"actions"`
		WebAgentID string          `json:"web_agent_id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.TaskID = env.TaskID
	s.WebAgentID = env.WebAgentID
	s.Actions = nil
	if len(env.Actions) > 0 {
		acts, err := actions.DecodeList(env.Actions)
		if err != nil {
			return err
		}
		s.Actions = acts
	}
	return nil
}

// DecodeSolutions parses a JSON array of solutions.
func DecodeSolutions(raw []byte) ([]TaskSolution, error) {
	var sols []TaskSolution
	if err := json.Unmarshal(raw, &sols); err != nil {
		return nil, err
	}
	return sols, nil
}

// solutionGroup collects the indices of all solutions sharing one action
// sequence. The representative is always the first index seen.
type solutionGroup struct {
	key     string
	indices []int
}

// groupSolutions buckets solutions by the hash of their action sequence,
// preserving first-seen order. With grouping disabled every solution gets
// its own bucket; the hash key is suffixed with the index so identical
// sequences still evaluate independently.
func groupSolutions(solutions []TaskSolution, enabled bool) []solutionGroup {
	var order []string
	byKey := make(map[string]*solutionGroup)
	for i, sol := range solutions {
		key, err := actions.HashSequence(sol.Actions)
		if err != nil || !enabled {
			key = key + "#" + strconv.Itoa(i)
		}
		g, ok := byKey[key]
		if !ok {
			g = &solutionGroup{key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.indices = append(g.indices, i)
	}
	groups := make([]solutionGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}
