package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dicklesworthstone/quorum/internal/llm"
)

// DefaultAgentTimeout bounds a single agent invocation.
const DefaultAgentTimeout = 120 * time.Second

// Executor fans a query out to every agent concurrently and merges the
// outcomes in agent order, regardless of completion order.
type Executor struct {
	agents  []llm.ModelAgent
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor builds an executor over the given agents. At least two agents
// with distinct identifiers are required; anything less is not an ensemble.
func NewExecutor(agents []llm.ModelAgent, timeout time.Duration, logger *slog.Logger) (*Executor, error) {
	if len(agents) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 agents, got %d", ErrConfiguration, len(agents))
	}
	seen := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		id := a.Identifier()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate agent identifier %q", ErrConfiguration, id)
		}
		seen[id] = struct{}{}
	}
	if timeout <= 0 {
		timeout = DefaultAgentTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{agents: agents, timeout: timeout, logger: logger}, nil
}

// Agents returns the identifiers of the executor's agents, in slot order.
func (e *Executor) Agents() []string {
	ids := make([]string, len(e.agents))
	for i, a := range e.agents {
		ids[i] = a.Identifier()
	}
	return ids
}

// Run invokes every agent with the query and returns the merged result.
// Each outcome lands in the slot matching its agent's position, so the
// transcript order is stable across runs. Run itself only fails when the
// parent context is cancelled before completion.
func (e *Executor) Run(ctx context.Context, query string) (*Result, error) {
	result := &Result{
		Query:     query,
		Outcomes:  make([]Outcome, len(e.agents)),
		StartedAt: time.Now(),
	}

	var wg sync.WaitGroup
	for i, agent := range e.agents {
		wg.Add(1)
		go func(slot int, agent llm.ModelAgent) {
			defer wg.Done()
			result.Outcomes[slot] = e.invoke(ctx, agent, query)
		}(i, agent)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result.CompletedAt = time.Now()
	e.logger.Info("ensemble run complete",
		"agents", len(e.agents),
		"succeeded", result.Succeeded(),
		"failed", result.Failed(),
		"elapsed", result.CompletedAt.Sub(result.StartedAt))
	return result, nil
}

// invoke runs one agent with a per-invocation timeout. Panics and errors are
// both converted into failure outcomes; they never escape the slot.
func (e *Executor) invoke(ctx context.Context, agent llm.ModelAgent, query string) (out Outcome) {
	out.Model = agent.Identifier()
	start := time.Now()
	defer func() {
		out.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			out.Text = ""
			out.TokenEstimate = 0
			out.FailureReason = fmt.Sprintf("panic: %v", r)
			e.logger.Error("agent panicked", "model", out.Model, "panic", r)
		}
	}()

	invokeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := agent.Invoke(invokeCtx, query)
	if err != nil {
		out.FailureReason = err.Error()
		e.logger.Warn("agent failed", "model", out.Model, "error", err, "elapsed", time.Since(start))
		return out
	}

	out.Text = reply.ExtractText()
	out.TokenEstimate = estimateOutcomeTokens(out.Text)
	e.logger.Debug("agent responded", "model", out.Model, "tokens", out.TokenEstimate, "elapsed", time.Since(start))
	return out
}
