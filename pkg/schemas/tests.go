// pkg/schemas/tests.go
package schemas

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Operator is the comparison applied by one event criterion.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpGreaterEqual Operator = "greater_equal"
	OpLessEqual    Operator = "less_equal"
	OpInList       Operator = "in_list"
	OpNotInList    Operator = "not_in_list"
)

// Criterion constrains a single event field.
type Criterion struct {
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Matches reports whether a concrete field value satisfies the criterion.
// Unknown operators never match.
func (c Criterion) Matches(actual interface{}) bool {
	switch c.Operator {
	case OpEquals, "":
		return looseEqual(actual, c.Value)
	case OpNotEquals:
		return !looseEqual(actual, c.Value)
	case OpContains:
		return strings.Contains(asString(actual), asString(c.Value))
	case OpNotContains:
		return !strings.Contains(asString(actual), asString(c.Value))
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		a, okA := asFloat(actual)
		b, okB := asFloat(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Operator {
		case OpGreaterThan:
			return a > b
		case OpLessThan:
			return a < b
		case OpGreaterEqual:
			return a >= b
		default:
			return a <= b
		}
	case OpInList:
		return inList(actual, c.Value)
	case OpNotInList:
		return !inList(actual, c.Value)
	}
	return false
}

// TestResult is the outcome of one declarative test. Never mutated after
// creation.
type TestResult struct {
	Success   bool                   `json:"success"`
	ExtraData map[string]interface{} `json:"extra_data,omitempty"`
}

// Test is a declarative assertion evaluated against backend evidence. Tests
// are immutable and supplied by the task.
type Test interface {
	// Type identifies the test variant on the wire.
	Type() string
	// ExecuteGlobalTest scans accumulated backend events and reports whether
	// the assertion holds.
	ExecuteGlobalTest(events []BackendEvent) TestResult
}

// CheckEventTest asserts that at least one backend event with the given name
// exists whose fields satisfy every declared criterion.
type CheckEventTest struct {
	EventName     string               `json:"event_name"`
	EventCriteria map[string]Criterion `json:"event_criteria,omitempty"`
}

func (t *CheckEventTest) Type() string { return "CheckEventTest" }

func (t *CheckEventTest) ExecuteGlobalTest(events []BackendEvent) TestResult {
	for _, ev := range events {
		if ev.EventName != t.EventName {
			continue
		}
		if t.eventSatisfies(&ev) {
			return TestResult{
				Success: true,
				ExtraData: map[string]interface{}{
					"event_name": ev.EventName,
					"timestamp":  ev.Timestamp,
				},
			}
		}
	}
	return TestResult{
		Success:   false,
		ExtraData: map[string]interface{}{"event_name": t.EventName},
	}
}

func (t *CheckEventTest) eventSatisfies(ev *BackendEvent) bool {
	for field, criterion := range t.EventCriteria {
		actual, ok := ev.Field(field)
		if !ok {
			return false
		}
		if !criterion.Matches(actual) {
			return false
		}
	}
	return true
}

// testEnvelope is the wire form of a test: a type tag plus the variant body.
type testEnvelope struct {
	Type          string               `json:"type"`
	EventName     string               `json:"event_name"`
	EventCriteria map[string]Criterion `json:"event_criteria,omitempty"`
}

// DecodeTests parses a JSON array of test envelopes. Unknown test types are
// skipped rather than rejected so that task files from newer generators still
// load.
func DecodeTests(raw []byte) ([]Test, error) {
	var envelopes []testEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return nil, fmt.Errorf("failed to decode tests: %w", err)
	}
	tests := make([]Test, 0, len(envelopes))
	for _, env := range envelopes {
		switch env.Type {
		case "CheckEventTest", "":
			tests = append(tests, &CheckEventTest{
				EventName:     env.EventName,
				EventCriteria: env.EventCriteria,
			})
		}
	}
	return tests, nil
}

// -- loose value coercion helpers --

func looseEqual(a, b interface{}) bool {
	if fa, okA := asFloat(a); okA {
		if fb, okB := asFloat(b); okB {
			return fa == fb
		}
	}
	return asString(a) == asString(b)
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func inList(actual, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(actual, item) {
			return true
		}
	}
	return false
}
