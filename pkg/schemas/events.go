// pkg/schemas/events.go
package schemas

import "time"

// BackendEvent is a structured record emitted by the demo web backend when the
// agent's browser traffic triggers a tracked business action. Read-only from
// the evaluator's perspective.
type BackendEvent struct {
	EventName  string                 `json:"event_name"`
	Data       map[string]interface{} `json:"data"`
	Timestamp  time.Time              `json:"timestamp"`
	WebAgentID string                 `json:"web_agent_id"`
	UserID     string                 `json:"user_id,omitempty"`
}

// Field resolves a criterion field against the event. The event name itself is
// addressable as "event_name"; everything else is looked up in Data.
func (e *BackendEvent) Field(name string) (interface{}, bool) {
	if name == "event_name" {
		return e.EventName, true
	}
	v, ok := e.Data[name]
	return v, ok
}
