// pkg/agent/llm.go
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/config"
	"github.com/webgym/webgym/pkg/actions"
	"github.com/webgym/webgym/pkg/evaluator"
	"github.com/webgym/webgym/pkg/schemas"
)

const systemPrompt = `You are a web automation agent. You control a browser to complete the user's task.
Respond with a JSON array of browser actions. Supported action types: click, double_click, type, navigate, scroll, hover, submit, wait, send_keys, select, drag_and_drop.
Selectors use {"type":"attributeValueSelector","attribute":"id","value":"..."} or a plain CSS string.
Respond with an empty array when the task is complete.`

// LLMAgent proposes actions by prompting a Gemini-style generateContent
// endpoint and decoding the JSON action array it returns.
type LLMAgent struct {
	cfg        config.AgentConfig
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLLMAgent(cfg config.AgentConfig, logger *zap.Logger) (*LLMAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}
	return &LLMAgent{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		logger:     logger.Named("agent.llm"),
	}, nil
}

// -- Request/response payloads for the generateContent API --

type generationContent struct {
	Parts []generationPart `json:"parts"`
	Role  string           `json:"role,omitempty"`
}

type generationPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type generationRequest struct {
	Contents          []generationContent `json:"contents"`
	SystemInstruction *struct {
		Parts []generationPart `json:"parts"`
	} `json:"system_instruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationResponse struct {
	Candidates []struct {
		Content      generationContent `json:"content"`
		FinishReason string            `json:"finishReason"`
	} `json:"candidates"`
}

func (a *LLMAgent) NextActions(ctx context.Context, task *schemas.Task, history []evaluator.ActionExecutionResult) ([]actions.Action, error) {
	raw, err := a.generate(ctx, a.buildUserPrompt(task, history))
	if err != nil {
		return nil, err
	}
	proposed, err := actions.DecodeList([]byte(extractJSONArray(raw)))
	if err != nil {
		return nil, fmt.Errorf("agent returned an undecodable action list: %w", err)
	}
	return proposed, nil
}

func (a *LLMAgent) buildUserPrompt(task *schemas.Task, history []evaluator.ActionExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nStart URL: %s\n", task.Prompt, task.URL)
	for key, value := range task.RelevantData {
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}
	if len(history) > 0 {
		b.WriteString("\nActions executed so far:\n")
		for _, res := range history {
			status := "ok"
			if !res.SuccessfullyExecuted {
				status = "FAILED: " + res.Error
			}
			fmt.Fprintf(&b, "- %s (%s)\n", res.Action.String(), status)
		}
	}
	b.WriteString("\nPropose the next actions as a JSON array.")
	return b.String()
}

func (a *LLMAgent) generate(ctx context.Context, userPrompt string) (string, error) {
	payload := generationRequest{
		Contents: []generationContent{
			{Role: "user", Parts: []generationPart{{Text: userPrompt}}},
		},
		SystemInstruction: &struct {
			Parts []generationPart `json:"parts"`
		}{Parts: []generationPart{{Text: systemPrompt}}},
		GenerationConfig: generationConfig{
			Temperature:      float64(a.cfg.Temperature),
			ResponseMimeType: "application/json",
			MaxOutputTokens:  a.cfg.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var content string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", a.cfg.APIKey)

		resp, err := a.httpClient.Do(httpReq)
		if err != nil {
			a.logger.Warn("network error during generation, retrying", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return a.handleAPIError(resp.StatusCode, respBody)
		}

		var parsed generationResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return backoff.Permanent(fmt.Errorf("generation API returned no content"))
		}
		content = parsed.Candidates[0].Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (a *LLMAgent) handleAPIError(statusCode int, body []byte) error {
	a.logger.Error("generation API returned error status",
		zap.Int("status", statusCode),
		zap.ByteString("response", body))
	err := fmt.Errorf("generation API error: status %d", statusCode)
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err
	default:
		return backoff.Permanent(err)
	}
}

// extractJSONArray trims code fences and surrounding prose so responses like
// "```json\n[...]\n```" still decode.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "[]"
	}
	return s[start : end+1]
}

var _ evaluator.Agent = (*LLMAgent)(nil)
