package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dicklesworthstone/quorum/internal/ensemble"
	"github.com/Dicklesworthstone/quorum/internal/llm"
	"github.com/Dicklesworthstone/quorum/internal/tools"
)

const (
	// DefaultJudgeModel arbitrates when no judge model is configured.
	DefaultJudgeModel = "anthropic:claude-opus-4-5"
	// DefaultCallBudget caps ensemble runs per consensus session.
	DefaultCallBudget = 20
)

// TerminalState says how a consensus session ended.
type TerminalState string

const (
	// StateFinalAnswer means the judge produced a verdict on its own.
	StateFinalAnswer TerminalState = "final_answer"
	// StateBudgetExceeded means the session was cut off and the verdict
	// was degraded from the schema's fallback policy.
	StateBudgetExceeded TerminalState = "budget_exceeded"
	// StateJudgeFailure means the judge backend itself failed; the verdict
	// is degraded the same way, but callers can tell an outage from an
	// exhausted budget.
	StateJudgeFailure TerminalState = "judge_failure"
)

const judgeSystemPrompt = `You are the judge of an ensemble of language models. Several models have
answered the same query; their labeled outputs follow in the conversation.

Your job is to determine whether the models reached consensus and to produce
the single best-supported answer. If the outputs disagree or leave the
question unresolved, you may call the run_models tool to gather fresh
responses with a refined query. You have a budget of %d ensemble runs in
total; spend them only when another round can actually change the verdict.

When you are done, respond with ONLY a fenced JSON object with these fields:
%s`

const finalizeNudge = "Respond now with only the fenced JSON verdict. Do not call any tools."

// Config assembles a consensus session.
type Config struct {
	// Judge is the arbitrating chat model.
	Judge llm.ChatModel
	// JudgeModel is the judge's identifier, used only for reporting.
	JudgeModel string
	// Executor runs the underlying ensemble.
	Executor *ensemble.Executor
	// CallBudget caps ensemble runs, including the initial one.
	CallBudget int
	// Compactor shrinks the judge transcript when it grows too large.
	// Nil disables compaction.
	Compactor *Compactor
	// Schema is the verdict shape. Zero value means DefaultSchema.
	Schema Schema
	// Logger receives session events.
	Logger *slog.Logger
}

// Consensus orchestrates one judge session per Invoke call.
type Consensus struct {
	judge      llm.ChatModel
	judgeModel string
	executor   *ensemble.Executor
	budget     int
	compactor  *Compactor
	schema     Schema
	logger     *slog.Logger
}

// FinalResult is the outcome of a consensus session.
type FinalResult struct {
	Query       string                      `json:"query"`
	Verdict     Verdict                     `json:"verdict"`
	State       TerminalState               `json:"state"`
	JudgeModel  string                      `json:"judge_model"`
	Models      []string                    `json:"models"`
	RunsUsed    int                         `json:"runs_used"`
	RunLimit    int                         `json:"run_limit"`
	Agreement   *ensemble.AgreementAnalysis `json:"agreement,omitempty"`
	StartedAt   time.Time                   `json:"started_at"`
	CompletedAt time.Time                   `json:"completed_at"`
}

// New validates the configuration and builds a Consensus.
func New(cfg Config) (*Consensus, error) {
	if cfg.Judge == nil {
		return nil, errors.New("consensus: judge model is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("consensus: ensemble executor is required")
	}
	if cfg.JudgeModel == "" {
		cfg.JudgeModel = DefaultJudgeModel
	}
	if cfg.CallBudget <= 0 {
		cfg.CallBudget = DefaultCallBudget
	}
	if len(cfg.Schema.Fields) == 0 {
		cfg.Schema = DefaultSchema()
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("consensus: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consensus{
		judge:      cfg.Judge,
		judgeModel: cfg.JudgeModel,
		executor:   cfg.Executor,
		budget:     cfg.CallBudget,
		compactor:  cfg.Compactor,
		schema:     cfg.Schema,
		logger:     cfg.Logger,
	}, nil
}

// Invoke runs one full consensus session over the query. The returned error
// is non-nil only when the context is cancelled; every model-side failure
// degrades into a fallback verdict instead.
func (c *Consensus) Invoke(ctx context.Context, query string) (*FinalResult, error) {
	guard := NewBudgetGuard(c.budget, c.logger)
	result := &FinalResult{
		Query:      query,
		JudgeModel: c.judgeModel,
		Models:     c.executor.Agents(),
		RunLimit:   c.budget,
		StartedAt:  time.Now(),
	}

	// The initial scatter counts against the budget like any other run.
	if err := guard.Acquire(); err != nil {
		return c.finish(result, guard, StateBudgetExceeded, err.Error()), nil
	}
	first, err := c.executor.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	result.Agreement = ensemble.AnalyzeAgreement(first)

	registry := tools.NewRegistry()
	registry.Register(&ensemble.RunTool{Executor: c.executor, Gate: guard.Acquire})
	toolDefs := toolDefinitions(registry)

	msgs := []*llm.Message{
		llm.SystemMessage(fmt.Sprintf(judgeSystemPrompt, c.budget, c.schema.Describe())),
		llm.UserMessage(fmt.Sprintf("Query:\n%s\n\nModel outputs:\n%s", query, first.Render())),
	}

	// The loop bound is defensive: a cooperative judge terminates well
	// before it, and a looping one is cut off deterministically.
	maxIterations := 2*c.budget + 4
	exhausted := false

	for i := 0; i < maxIterations; i++ {
		if c.compactor != nil {
			msgs = c.compactor.Compact(ctx, msgs)
		}

		reply, err := c.judge.Chat(ctx, msgs, toolDefs)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Error("judge call failed", "error", err)
			return c.finish(result, guard, StateJudgeFailure, fmt.Sprintf("judge failed: %v", err)), nil
		}

		if len(reply.ToolCalls) == 0 {
			verdict, perr := ParseVerdict(reply.ExtractText())
			if perr == nil {
				result.Verdict = c.schema.Conform(verdict)
				return c.finish(result, guard, StateFinalAnswer, ""), nil
			}
			c.logger.Warn("judge verdict unparseable, nudging", "error", perr)
			msgs = append(msgs, reply, llm.UserMessage(finalizeNudge))
			continue
		}

		msgs = append(msgs, reply)
		for _, call := range reply.ToolCalls {
			out := c.runTool(ctx, registry, call)
			if errors.Is(out.err, ErrBudgetExceeded) {
				exhausted = true
			}
			msgs = append(msgs, llm.ToolMessage(out.text, call.ID, call.Name))
		}
		if exhausted {
			msgs = append(msgs, llm.UserMessage(finalizeNudge))
		}
	}

	return c.finish(result, guard, StateBudgetExceeded, "judge did not produce a verdict within the iteration limit"), nil
}

type toolOutcome struct {
	text string
	err  error
}

// runTool executes one judge tool call. Failures are reported back to the
// judge as text so the session keeps going.
func (c *Consensus) runTool(ctx context.Context, registry *tools.Registry, call llm.ToolCall) toolOutcome {
	tool, ok := registry.Get(call.Name)
	if !ok {
		return toolOutcome{text: fmt.Sprintf("error: unknown tool %q", call.Name)}
	}
	out, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		c.logger.Warn("judge tool failed", "tool", call.Name, "error", err)
		return toolOutcome{text: "error: " + err.Error(), err: err}
	}
	return toolOutcome{text: out}
}

// finish stamps the terminal state and, for degraded endings, synthesizes
// the fallback verdict.
func (c *Consensus) finish(result *FinalResult, guard *BudgetGuard, state TerminalState, reason string) *FinalResult {
	result.State = state
	result.RunsUsed = guard.State().Used
	result.CompletedAt = time.Now()
	if result.Verdict == nil {
		if reason == "" {
			reason = "session ended without a verdict"
		}
		result.Verdict = c.schema.Fallback(reason)
	}
	c.logger.Info("consensus session finished",
		"state", string(state),
		"runs_used", result.RunsUsed,
		"run_limit", result.RunLimit,
		"elapsed", result.CompletedAt.Sub(result.StartedAt))
	return result
}

// Answer returns the verdict's answer field as text, for rendering.
func (r *FinalResult) Answer() string {
	if r == nil || r.Verdict == nil {
		return ""
	}
	if s, ok := r.Verdict["answer"].(string); ok {
		return s
	}
	// Schema may use a different field name; fall back to the first string.
	for _, v := range r.Verdict {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ConsensusReached reports whether the verdict claims consensus.
func (r *FinalResult) ConsensusReached() bool {
	if r == nil || r.Verdict == nil {
		return false
	}
	b, _ := r.Verdict["consensus_reached"].(bool)
	return b
}

func toolDefinitions(registry *tools.Registry) []llm.ToolDefinition {
	list := registry.List()
	defs := make([]llm.ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
