package consensus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/quorum/internal/llm"
)

// summarizerStub answers every chat with a fixed summary.
type summarizerStub struct {
	summary string
	err     error
	calls   int
}

func (s *summarizerStub) Chat(_ context.Context, _ []*llm.Message, _ []llm.ToolDefinition) (*llm.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return llm.AssistantMessage(s.summary, nil), nil
}

func longTranscript(turns int) []*llm.Message {
	msgs := []*llm.Message{
		llm.SystemMessage("you are the judge"),
		llm.UserMessage("the original query"),
	}
	filler := strings.Repeat("tokens tokens tokens ", 50)
	for i := 0; i < turns; i++ {
		msgs = append(msgs, llm.AssistantMessage(filler, nil))
	}
	return msgs
}

func TestCompactBelowThresholdIsNoop(t *testing.T) {
	c := NewCompactor(&summarizerStub{summary: "s"}, quietLogger())
	msgs := longTranscript(3)
	got := c.Compact(context.Background(), msgs)
	if len(got) != len(msgs) {
		t.Fatalf("below-threshold transcript changed: %d -> %d turns", len(msgs), len(got))
	}
}

func TestCompactKeepsHeadAndTail(t *testing.T) {
	sum := &summarizerStub{summary: "condensed history"}
	c := &Compactor{Threshold: 100, Keep: 5, Summarizer: sum, Logger: quietLogger()}

	msgs := longTranscript(20)
	got := c.Compact(context.Background(), msgs)

	// system + first user + summary + last 5
	if len(got) != 8 {
		t.Fatalf("compacted to %d turns, want 8", len(got))
	}
	if got[0].Role != llm.RoleSystem || got[1].ExtractText() != "the original query" {
		t.Error("head turns not preserved verbatim")
	}
	if !strings.Contains(got[2].ExtractText(), "condensed history") {
		t.Errorf("summary turn = %q", got[2].ExtractText())
	}
	for i := 0; i < 5; i++ {
		if got[3+i] != msgs[len(msgs)-5+i] {
			t.Fatalf("tail turn %d not preserved", i)
		}
	}
	if sum.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", sum.calls)
	}
}

func TestCompactKeepsToolPairsTogether(t *testing.T) {
	// Keep=5 would cut the transcript right at a tool result, orphaning it
	// from the assistant turn that issued the call. The boundary must move
	// back so the pair survives together.
	sum := &summarizerStub{summary: "condensed history"}
	c := &Compactor{Threshold: 100, Keep: 5, Summarizer: sum, Logger: quietLogger()}

	filler := strings.Repeat("tokens tokens tokens ", 50)
	msgs := []*llm.Message{
		llm.SystemMessage("you are the judge"),
		llm.UserMessage("the original query"),
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, llm.AssistantMessage(filler, nil))
	}
	caller := llm.AssistantMessage("", []llm.ToolCall{{
		ID:        "call-9",
		Name:      "run_models",
		Arguments: `{"query": "again"}`,
	}})
	msgs = append(msgs, caller, llm.ToolMessage("a:\nfresh answer", "call-9", "run_models"))
	for i := 0; i < 4; i++ {
		msgs = append(msgs, llm.AssistantMessage(filler, nil))
	}

	got := c.Compact(context.Background(), msgs)

	// system + first user + summary + assistant tool call + tool result + 4
	if len(got) != 9 {
		t.Fatalf("compacted to %d turns, want 9", len(got))
	}
	if got[3] != caller {
		t.Fatalf("turn after summary = %+v, want the tool-call turn", got[3])
	}
	if got[4].Role != llm.RoleTool {
		t.Fatalf("tool result not kept with its call, got role %q", got[4].Role)
	}
	if got[0].Role != llm.RoleSystem {
		t.Error("head not preserved")
	}
}

func TestCompactDoesNotMutateInput(t *testing.T) {
	c := &Compactor{Threshold: 100, Keep: 5, Summarizer: &summarizerStub{summary: "s"}, Logger: quietLogger()}
	msgs := longTranscript(20)
	before := len(msgs)
	_ = c.Compact(context.Background(), msgs)
	if len(msgs) != before {
		t.Fatal("input slice mutated")
	}
}

func TestCompactFailureIsNoop(t *testing.T) {
	c := &Compactor{Threshold: 100, Keep: 5, Summarizer: &summarizerStub{err: errors.New("down")}, Logger: quietLogger()}
	msgs := longTranscript(20)
	got := c.Compact(context.Background(), msgs)
	if len(got) != len(msgs) {
		t.Fatal("failed compaction must leave transcript untouched")
	}
}

func TestCompactNoSummarizerIsNoop(t *testing.T) {
	c := &Compactor{Threshold: 100, Keep: 5, Logger: quietLogger()}
	msgs := longTranscript(20)
	if got := c.Compact(context.Background(), msgs); len(got) != len(msgs) {
		t.Fatal("compaction without a summarizer must be a no-op")
	}
}

func TestCompactTooShortToCompress(t *testing.T) {
	// Over threshold but no middle between head and tail.
	c := &Compactor{Threshold: 1, Keep: 5, Summarizer: &summarizerStub{summary: "s"}, Logger: quietLogger()}
	msgs := longTranscript(4)
	if got := c.Compact(context.Background(), msgs); len(got) != len(msgs) {
		t.Fatal("transcript with no compressible middle must pass through")
	}
}

func TestCompactIdempotent(t *testing.T) {
	sum := &summarizerStub{summary: "short"}
	c := &Compactor{Threshold: 2000, Keep: 5, Summarizer: sum, Logger: quietLogger()}
	msgs := longTranscript(40)
	once := c.Compact(context.Background(), msgs)
	twice := c.Compact(context.Background(), once)
	if len(twice) != len(once) {
		t.Fatalf("second compaction changed a compacted transcript: %d -> %d", len(once), len(twice))
	}
}
