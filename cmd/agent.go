// cmd/agent.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/observability"
	"github.com/webgym/webgym/pkg/agent"
	"github.com/webgym/webgym/pkg/browser"
	"github.com/webgym/webgym/pkg/evaluator"
	"github.com/webgym/webgym/pkg/schemas"
)

var agentTaskFile string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the built-in LLM agent against one task and score the run.",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentTaskFile, "task", "t", "", "path to the task JSON file (required)")
	agentCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	ctx := cmd.Context()

	taskRaw, err := os.ReadFile(agentTaskFile)
	if err != nil {
		return fmt.Errorf("failed to read task file: %w", err)
	}
	task, err := schemas.DecodeTask(taskRaw)
	if err != nil {
		return fmt.Errorf("failed to decode task: %w", err)
	}

	llm, err := agent.NewLLMAgent(appCfg.Agent, logger)
	if err != nil {
		return err
	}

	manager, err := browser.NewManager(ctx, logger, appCfg)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}()

	webAgentID := uuid.NewString()
	eval := evaluator.NewIterativeEvaluator(appCfg, logger, manager, nil)
	result := eval.EvaluateWithAgent(ctx, task, llm, webAgentID)

	logger.Info("agent run finished",
		zap.String("task_id", task.ID),
		zap.String("web_agent_id", webAgentID),
		zap.Float64("final_score", result.FinalScore),
		zap.Int("actions", len(result.ExecutionHistory)))
	return writeResults([]*evaluator.EvaluationResult{result})
}
