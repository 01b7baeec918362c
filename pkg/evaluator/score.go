// pkg/evaluator/score.go
package evaluator

import "github.com/webgym/webgym/pkg/schemas"

// Two scoring policies coexist deliberately. Batch evaluation is binary: a
// run either demonstrated the behavior or it did not, and a circuit-broken
// run forfeits regardless of what the tests happened to match. The stateful
// path scores fractionally so a training loop sees partial progress.

// BinaryScore returns the raw and final scores for a completed batch run.
// Raw is 1.0 iff at least one test passed; final is forced to 0.0 when the
// run was stopped early by the action failure circuit breaker.
func BinaryScore(results []schemas.TestResult, earlyStopped bool) (raw, final float64) {
	for _, res := range results {
		if res.Success {
			raw = 1.0
			break
		}
	}
	final = raw
	if earlyStopped {
		final = 0.0
	}
	return raw, final
}

// FractionalScore summarizes partial-test results as passed/total, with
// Success requiring every declared test to pass. A task with no tests scores
// zero and is never successful.
func FractionalScore(results []schemas.TestResult) ScoreDetails {
	details := ScoreDetails{
		TestsTotal:  len(results),
		TestResults: results,
	}
	for _, res := range results {
		if res.Success {
			details.TestsPassed++
		}
	}
	if details.TestsTotal > 0 {
		details.RawScore = float64(details.TestsPassed) / float64(details.TestsTotal)
		details.Success = details.TestsPassed == details.TestsTotal
	}
	return details
}

func countPassed(results []schemas.TestResult) int {
	n := 0
	for _, res := range results {
		if res.Success {
			n++
		}
	}
	return n
}
