// cmd/evaluate.go
package cmd

import (
	"context"
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/observability"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/evaluator"
	"github.com/webgym/webgym/pkg/schemas"
	"github.com/webgym/webgym/pkg/store"
)

var (
	evalTaskFile      string
	evalSolutionsFile string
	evalOutputFile    string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a batch of agent solutions against one task.",
	Long: `Evaluate replays every solution's action sequence in an isolated headless
browser, checks the task's tests against the backend events the run produced,
and writes one scored result per solution.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVarP(&evalTaskFile, "task", "t", "", "path to the task JSON file (required)")
	evaluateCmd.Flags().StringVarP(&evalSolutionsFile, "solutions", "s", "", "path to the solutions JSON file (required)")
	evaluateCmd.Flags().StringVarP(&evalOutputFile, "output", "o", "", "write results JSON to this file instead of stdout")
	evaluateCmd.MarkFlagRequired("task")
	evaluateCmd.MarkFlagRequired("solutions")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	ctx := cmd.Context()

	task, solutions, err := loadEvaluationInputs()
	if err != nil {
		return err
	}
	logger.Info("loaded evaluation inputs",
		zap.String("task_id", task.ID),
		zap.Int("solutions", len(solutions)))

	manager, err := browser.NewManager(ctx, logger, appCfg)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	eval := evaluator.NewConcurrentEvaluator(appCfg, logger, manager, nil)
	results, err := eval.EvaluateTaskSolutions(ctx, task, solutions)
	if err != nil {
		return fmt.Errorf("evaluation aborted: %w", err)
	}

	if appCfg.Store.Enabled {
		if err := persistResults(ctx, task.ID, results, logger); err != nil {
			// Persistence is auxiliary; the scored results still go out.
			logger.Error("failed to persist results", zap.Error(err))
		}
	}
	return writeResults(results)
}

func loadEvaluationInputs() (*schemas.Task, []evaluator.TaskSolution, error) {
	taskRaw, err := os.ReadFile(evalTaskFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read task file: %w", err)
	}
	task, err := schemas.DecodeTask(taskRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode task: %w", err)
	}

	solutionsRaw, err := os.ReadFile(evalSolutionsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read solutions file: %w", err)
	}
	solutions, err := evaluator.DecodeSolutions(solutionsRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode solutions: %w", err)
	}
	return task, solutions, nil
}

func persistResults(ctx context.Context, taskID string, results []*evaluator.EvaluationResult, logger *zap.Logger) error {
	s, pool, err := store.Connect(ctx, appCfg.Store.URL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	return s.SaveResults(ctx, taskID, results)
}

func writeResults(results []*evaluator.EvaluationResult) error {
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if evalOutputFile == "" {
		fmt.Println(string(payload))
		return nil
	}
	if err := os.WriteFile(evalOutputFile, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}
