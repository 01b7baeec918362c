// pkg/store/store.go
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webgym/webgym/pkg/evaluator"
)

// DB is the subset of pgxpool.Pool the store uses. Narrowed so tests can
// substitute a mock pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store persists evaluation results to PostgreSQL.
type Store struct {
	db  DB
	log *zap.Logger
}

func New(db DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, log: logger.Named("store")}
}

// Connect opens a connection pool against the given URL and returns a store
// backed by it.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return New(pool, logger), pool, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS evaluation_results (
	id            BIGSERIAL PRIMARY KEY,
	task_id       TEXT        NOT NULL,
	web_agent_id  TEXT        NOT NULL,
	final_score   DOUBLE PRECISION NOT NULL,
	raw_score     DOUBLE PRECISION NOT NULL,
	had_errors    BOOLEAN     NOT NULL,
	error_message TEXT,
	tests_passed  INT         NOT NULL,
	tests_total   INT         NOT NULL,
	test_results  JSONB,
	feedback      JSONB,
	duration_ms   BIGINT      NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS action_results (
	id             BIGSERIAL PRIMARY KEY,
	task_id        TEXT    NOT NULL,
	web_agent_id   TEXT    NOT NULL,
	iteration      INT     NOT NULL,
	event_name     TEXT    NOT NULL,
	success        BOOLEAN NOT NULL,
	error          TEXT,
	duration_ms    BIGINT  NOT NULL,
	current_url    TEXT
);
CREATE INDEX IF NOT EXISTS idx_evaluation_results_task ON evaluation_results (task_id);
CREATE INDEX IF NOT EXISTS idx_action_results_task ON action_results (task_id, web_agent_id);
`

// EnsureSchema creates the result tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveResults persists a batch of results for one task in a single
// transaction. Action rows go through CopyFrom; batches can carry thousands
// of them.
func (s *Store) SaveResults(ctx context.Context, taskID string, results []*evaluator.EvaluationResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range results {
		if err := s.insertResult(ctx, tx, taskID, res); err != nil {
			return err
		}
	}
	if err := s.copyActionRows(ctx, tx, taskID, results); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	s.log.Debug("results persisted",
		zap.String("task_id", taskID),
		zap.Int("count", len(results)))
	return nil
}

func (s *Store) insertResult(ctx context.Context, tx pgx.Tx, taskID string, res *evaluator.EvaluationResult) error {
	testResultsJSON, err := json.Marshal(res.TestResults)
	if err != nil {
		return fmt.Errorf("failed to marshal test results: %w", err)
	}
	var feedbackJSON []byte
	if res.Feedback != nil {
		if feedbackJSON, err = json.Marshal(res.Feedback); err != nil {
			return fmt.Errorf("failed to marshal feedback: %w", err)
		}
	}

	var (
		hadErrors    bool
		errorMessage string
		testsPassed  int
		testsTotal   int
	)
	if res.Stats != nil {
		hadErrors = res.Stats.HadErrors
		errorMessage = res.Stats.ErrorMessage
		testsPassed = res.Stats.TestsPassed
		testsTotal = res.Stats.TestsTotal
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO evaluation_results
			(task_id, web_agent_id, final_score, raw_score, had_errors, error_message,
			 tests_passed, tests_total, test_results, feedback, duration_ms)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		taskID, res.WebAgentID, res.FinalScore, res.RawScore, hadErrors, errorMessage,
		testsPassed, testsTotal, testResultsJSON, feedbackJSON,
		res.EvaluationTime.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert result for agent %s: %w", res.WebAgentID, err)
	}
	return nil
}

func (s *Store) copyActionRows(ctx context.Context, tx pgx.Tx, taskID string, results []*evaluator.EvaluationResult) error {
	var rows [][]interface{}
	for _, res := range results {
		for _, ar := range res.ExecutionHistory {
			rows = append(rows, []interface{}{
				taskID, res.WebAgentID, ar.BrowserSnapshot.Iteration, ar.ActionEventName,
				ar.SuccessfullyExecuted, ar.Error, ar.ExecutionTime.Milliseconds(),
				ar.BrowserSnapshot.CurrentURL,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"action_results"},
		[]string{"task_id", "web_agent_id", "iteration", "event_name", "success", "error", "duration_ms", "current_url"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to bulk insert action rows: %w", err)
	}
	return nil
}
