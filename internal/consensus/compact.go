package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dicklesworthstone/quorum/internal/llm"
	"github.com/Dicklesworthstone/quorum/internal/tokens"
)

const (
	// DefaultCompactionThreshold is the transcript token estimate above
	// which compaction kicks in.
	DefaultCompactionThreshold = 200_000
	// DefaultCompactionKeep is how many trailing turns survive verbatim.
	DefaultCompactionKeep = 5
)

const summaryPreamble = "Summary of earlier conversation turns (compacted to stay within context):"

const compactionPrompt = "Summarize the following conversation excerpt in a compact form. " +
	"Preserve every fact, intermediate result, model output, and open question " +
	"that later turns might depend on. Do not add commentary.\n\n"

// Compactor shrinks a judge transcript once it grows past a token threshold.
// The system turn, the first user turn, and the last Keep turns are preserved
// verbatim; everything between them is replaced by a single summary turn
// produced by the summarizer model. A failed summarization leaves the
// transcript untouched.
type Compactor struct {
	Threshold  int
	Keep       int
	Summarizer llm.ChatModel
	Logger     *slog.Logger
}

// NewCompactor returns a compactor with standard defaults applied.
func NewCompactor(summarizer llm.ChatModel, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		Threshold:  DefaultCompactionThreshold,
		Keep:       DefaultCompactionKeep,
		Summarizer: summarizer,
		Logger:     logger,
	}
}

// Compact returns the transcript, compacted if it exceeds the threshold.
// The input slice is never mutated. Compact is idempotent: a transcript
// below the threshold, or one too short to have a compressible middle,
// comes back unchanged.
func (c *Compactor) Compact(ctx context.Context, msgs []*llm.Message) []*llm.Message {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultCompactionThreshold
	}
	keep := c.Keep
	if keep <= 0 {
		keep = DefaultCompactionKeep
	}

	estimate := transcriptTokens(msgs)
	if estimate <= threshold {
		return msgs
	}

	// Head is the system turn plus the first user turn, in that order.
	head := 0
	if head < len(msgs) && msgs[head].Role == llm.RoleSystem {
		head++
	}
	if head < len(msgs) && msgs[head].Role == llm.RoleUser {
		head++
	}

	tailStart := len(msgs) - keep
	// A tool result must stay with the assistant turn that called for it:
	// a tail opening on tool turns pulls that turn back in, since backends
	// reject a tool turn whose tool call was summarized away.
	for tailStart > 0 && msgs[tailStart].Role == llm.RoleTool {
		tailStart--
	}
	if tailStart <= head {
		return msgs
	}

	middle := msgs[head:tailStart]
	summary, err := c.summarize(ctx, middle)
	if err != nil {
		c.Logger.Warn("compaction failed, keeping full transcript",
			slog.Int("tokens", estimate), slog.Any("error", err))
		return msgs
	}

	compacted := make([]*llm.Message, 0, head+1+len(msgs)-tailStart)
	compacted = append(compacted, msgs[:head]...)
	compacted = append(compacted, llm.UserMessage(summaryPreamble+"\n"+summary))
	compacted = append(compacted, msgs[tailStart:]...)

	c.Logger.Info("transcript compacted",
		slog.Int("before_turns", len(msgs)),
		slog.Int("after_turns", len(compacted)),
		slog.Int("before_tokens", estimate),
		slog.Int("after_tokens", transcriptTokens(compacted)))
	return compacted
}

func (c *Compactor) summarize(ctx context.Context, middle []*llm.Message) (string, error) {
	if c.Summarizer == nil {
		return "", fmt.Errorf("no summarizer model configured")
	}

	var excerpt strings.Builder
	for _, m := range middle {
		excerpt.WriteString(m.String())
		excerpt.WriteString("\n\n")
	}

	reply, err := c.Summarizer.Chat(ctx, []*llm.Message{
		llm.UserMessage(compactionPrompt + excerpt.String()),
	}, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply.ExtractText())
	if text == "" {
		return "", fmt.Errorf("summarizer returned empty text")
	}
	return text, nil
}

func transcriptTokens(msgs []*llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += tokens.EstimateTokensWithLanguageHint(m.ExtractText(), tokens.ContentMarkdown)
	}
	return total
}
