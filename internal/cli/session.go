package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dicklesworthstone/quorum/internal/config"
	"github.com/Dicklesworthstone/quorum/internal/consensus"
	"github.com/Dicklesworthstone/quorum/internal/ensemble"
	"github.com/Dicklesworthstone/quorum/internal/llm"
	"github.com/Dicklesworthstone/quorum/internal/serve"
	"github.com/Dicklesworthstone/quorum/internal/tools"
)

const agentSystemPrompt = "Answer the user's question directly and concisely. " +
	"Use the available tools when the question needs current information or computation."

// sessionBuilder turns configuration into runnable consensus sessions.
// Building is cheap, so every session gets fresh components and budgets
// never carry over.
type sessionBuilder struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newSessionBuilder(cfg *config.Config, logger *slog.Logger) *sessionBuilder {
	return &sessionBuilder{cfg: cfg, logger: logger}
}

// chatModel builds the completion client for a "provider:model" identifier.
func (b *sessionBuilder) chatModel(id string) (llm.ChatModel, error) {
	provider, model, err := llm.SplitModelID(id)
	if err != nil {
		return nil, err
	}
	pc, ok := b.cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("model %q references unknown provider %q", id, provider)
	}
	return &llm.HTTPChatModel{Model: model, Provider: pc}, nil
}

// sessionOptions are per-session overrides on top of the loaded config.
// Zero values mean "use the configured default".
type sessionOptions struct {
	budget int
	models []string
	schema consensus.Schema
}

// build assembles a consensus session.
func (b *sessionBuilder) build(opts sessionOptions) (*consensus.Consensus, error) {
	registry := tools.DefaultRegistry(b.searchClient())

	ids := b.cfg.Models
	if len(opts.models) > 0 {
		ids = opts.models
	}
	agents := make([]llm.ModelAgent, 0, len(ids))
	for _, id := range ids {
		chat, err := b.chatModel(id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, &llm.ToolLoopAgent{
			Model:        id,
			Chat:         chat,
			Tools:        registry,
			SystemPrompt: agentSystemPrompt,
			Logger:       b.logger,
		})
	}

	executor, err := ensemble.NewExecutor(agents, b.cfg.AgentTimeout(), b.logger)
	if err != nil {
		return nil, err
	}

	judge, err := b.chatModel(b.cfg.JudgeModel)
	if err != nil {
		return nil, fmt.Errorf("judge_model: %w", err)
	}
	summarizer, err := b.chatModel(b.cfg.CompactionModel())
	if err != nil {
		return nil, fmt.Errorf("compaction model: %w", err)
	}

	compactor := consensus.NewCompactor(summarizer, b.logger)
	if b.cfg.Compaction.ThresholdTokens > 0 {
		compactor.Threshold = b.cfg.Compaction.ThresholdTokens
	}
	if b.cfg.Compaction.KeepTurns > 0 {
		compactor.Keep = b.cfg.Compaction.KeepTurns
	}

	budget := b.cfg.CallBudget
	if opts.budget > 0 {
		budget = opts.budget
	}

	return consensus.New(consensus.Config{
		Judge:      judge,
		JudgeModel: b.cfg.JudgeModel,
		Executor:   executor,
		CallBudget: budget,
		Compactor:  compactor,
		Schema:     opts.schema,
		Logger:     b.logger,
	})
}

func (b *sessionBuilder) searchClient() *tools.SearchClient {
	if b.cfg.Search.APIKey == "" {
		return nil
	}
	client := tools.NewSearchClient(b.cfg.Search.APIKey)
	if b.cfg.Search.MaxResults > 0 {
		client.MaxResults = b.cfg.Search.MaxResults
	}
	return client
}

// Run implements serve.SessionRunner for the API server.
func (b *sessionBuilder) Run(ctx context.Context, req serve.ConsensusRequest) (*consensus.FinalResult, error) {
	session, err := b.build(sessionOptions{
		budget: req.CallBudget,
		models: req.Models,
		schema: consensus.Schema{Fields: req.Schema},
	})
	if err != nil {
		return nil, err
	}
	return session.Invoke(ctx, req.Query)
}
