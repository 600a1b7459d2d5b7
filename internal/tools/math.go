package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// binaryArgs is the argument shape shared by all arithmetic tools.
type binaryArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// mathTool is a two-operand arithmetic tool.
type mathTool struct {
	name        string
	description string
	apply       func(a, b float64) (float64, error)
}

func (m *mathTool) Name() string        { return m.name }
func (m *mathTool) Description() string { return m.description }

func (m *mathTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number", "description": "first operand"},
			"b": map[string]any{"type": "number", "description": "second operand"},
		},
		"required": []string{"a", "b"},
	}
}

func (m *mathTool) Invoke(_ context.Context, argsJSON string) (string, error) {
	var args binaryArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("%s: invalid arguments: %w", m.name, err)
	}
	result, err := m.apply(args.A, args.B)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

// MathTools returns the basic arithmetic tools offered to model agents.
func MathTools() []Tool {
	return []Tool{
		&mathTool{
			name:        "add",
			description: "Add two numbers and return the sum.",
			apply:       func(a, b float64) (float64, error) { return a + b, nil },
		},
		&mathTool{
			name:        "subtract",
			description: "Subtract the second number from the first.",
			apply:       func(a, b float64) (float64, error) { return a - b, nil },
		},
		&mathTool{
			name:        "multiply",
			description: "Multiply two numbers and return the product.",
			apply:       func(a, b float64) (float64, error) { return a * b, nil },
		},
		&mathTool{
			name:        "divide",
			description: "Divide the first number by the second.",
			apply: func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, errors.New("cannot divide by zero")
				}
				return a / b, nil
			},
		},
	}
}
