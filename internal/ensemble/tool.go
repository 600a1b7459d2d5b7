package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
)

// RunTool exposes the executor as a model-callable tool so a supervising
// model can re-run the ensemble with refined queries. Gate, when set, is
// consulted before each run; returning an error vetoes the run and the
// error text is surfaced to the caller as the tool result.
type RunTool struct {
	Executor *Executor
	Gate     func() error
}

// Name implements tools.Tool.
func (t *RunTool) Name() string { return "run_models" }

// Description implements tools.Tool.
func (t *RunTool) Description() string {
	return "Run the configured ensemble of models on a query and return each " +
		"model's labeled output. Use this to gather fresh responses when the " +
		"existing answers disagree or leave the question unresolved."
}

// Parameters implements tools.Tool.
func (t *RunTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "the query to send to every model",
			},
		},
		"required": []string{"query"},
	}
}

// Invoke implements tools.Tool. The merged transcript is returned as the
// tool result; a vetoed run returns the gate's error.
func (t *RunTool) Invoke(ctx context.Context, argsJSON string) (string, error) {
	if t.Gate != nil {
		if err := t.Gate(); err != nil {
			return "", err
		}
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("run_models: invalid arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("run_models: query is required")
	}
	result, err := t.Executor.Run(ctx, args.Query)
	if err != nil {
		return "", err
	}
	return result.Render(), nil
}
