package consensus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Dicklesworthstone/quorum/internal/ensemble"
	"github.com/Dicklesworthstone/quorum/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAgent is a fixed-reply ModelAgent.
type stubAgent struct {
	id    string
	reply string
	err   error
}

func (s *stubAgent) Identifier() string { return s.id }

func (s *stubAgent) Invoke(_ context.Context, _ string) (*llm.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return llm.AssistantMessage(s.reply, nil), nil
}

// scriptedJudge replays canned replies and records what it saw.
type scriptedJudge struct {
	replies []*llm.Message
	calls   int
	lastMsg []*llm.Message
	err     error
}

func (j *scriptedJudge) Chat(_ context.Context, msgs []*llm.Message, _ []llm.ToolDefinition) (*llm.Message, error) {
	j.lastMsg = msgs
	if j.err != nil {
		return nil, j.err
	}
	if j.calls >= len(j.replies) {
		// Keep replaying the last reply if the script runs out.
		j.calls++
		return j.replies[len(j.replies)-1], nil
	}
	reply := j.replies[j.calls]
	j.calls++
	return reply, nil
}

func newExecutor(t *testing.T, agents ...llm.ModelAgent) *ensemble.Executor {
	t.Helper()
	ex, err := ensemble.NewExecutor(agents, 0, quietLogger())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return ex
}

func verdictReply(body string) *llm.Message {
	return llm.AssistantMessage("```json\n"+body+"\n```", nil)
}

func runModelsReply(id, query string) *llm.Message {
	return llm.AssistantMessage("", []llm.ToolCall{{
		ID:        id,
		Name:      "run_models",
		Arguments: `{"query": "` + query + `"}`,
	}})
}

func TestInvokeImmediateVerdict(t *testing.T) {
	// Four models, one down; the judge decides from the first scatter.
	ex := newExecutor(t,
		&stubAgent{id: "openai:gpt-5", reply: "Paris"},
		&stubAgent{id: "anthropic:claude", reply: "Paris"},
		&stubAgent{id: "google:gemini", reply: "Paris"},
		&stubAgent{id: "mistral:large", err: errors.New("connection refused")},
	)
	judge := &scriptedJudge{replies: []*llm.Message{
		verdictReply(`{"consensus_reached": true, "answer": "Paris", "reasoning": "three of four models agree"}`),
	}}

	c, err := New(Config{Judge: judge, Executor: ex, CallBudget: 5, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Invoke(context.Background(), "capital of France?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if result.State != StateFinalAnswer {
		t.Errorf("State = %q, want final_answer", result.State)
	}
	if !result.ConsensusReached() {
		t.Error("ConsensusReached() = false")
	}
	if result.Answer() != "Paris" {
		t.Errorf("Answer() = %q", result.Answer())
	}
	if result.RunsUsed != 1 {
		t.Errorf("RunsUsed = %d, want 1 (initial scatter only)", result.RunsUsed)
	}

	// The failed model must still be visible to the judge.
	transcript := judge.lastMsg[1].ExtractText()
	if !strings.Contains(transcript, "mistral:large:\nno response: connection refused") {
		t.Errorf("judge transcript missing failure placeholder:\n%s", transcript)
	}
	if result.Agreement == nil || result.Agreement.OverallScore < 0.99 {
		t.Errorf("Agreement = %+v, want near-perfect for three identical answers", result.Agreement)
	}
}

func TestInvokeRerunWithinBudget(t *testing.T) {
	ex := newExecutor(t,
		&stubAgent{id: "a", reply: "maybe 4"},
		&stubAgent{id: "b", reply: "maybe 5"},
	)
	judge := &scriptedJudge{replies: []*llm.Message{
		runModelsReply("call-1", "what is 2+2, answer with one digit"),
		verdictReply(`{"consensus_reached": true, "answer": "4", "reasoning": "second round converged"}`),
	}}

	c, err := New(Config{Judge: judge, Executor: ex, CallBudget: 3, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Invoke(context.Background(), "what is 2+2?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if result.State != StateFinalAnswer {
		t.Errorf("State = %q", result.State)
	}
	if result.RunsUsed != 2 {
		t.Errorf("RunsUsed = %d, want 2 (scatter + one re-run)", result.RunsUsed)
	}

	// The re-run's transcript must have come back as a tool turn.
	var sawToolTurn bool
	for _, m := range judge.lastMsg {
		if m.Role == llm.RoleTool && strings.Contains(m.ExtractText(), "a:\nmaybe 4") {
			sawToolTurn = true
		}
	}
	if !sawToolTurn {
		t.Error("judge transcript missing run_models tool result")
	}
}

func TestInvokeBudgetExhaustion(t *testing.T) {
	// Budget of 1: the initial scatter spends everything, and a judge
	// that keeps asking for re-runs must be cut off with a degraded
	// verdict rather than an error.
	ex := newExecutor(t,
		&stubAgent{id: "a", reply: "east"},
		&stubAgent{id: "b", reply: "west"},
	)
	judge := &scriptedJudge{replies: []*llm.Message{
		runModelsReply("call-1", "try again"),
	}}

	c, err := New(Config{Judge: judge, Executor: ex, CallBudget: 1, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Invoke(context.Background(), "which way?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if result.State != StateBudgetExceeded {
		t.Errorf("State = %q, want budget_exceeded", result.State)
	}
	if result.ConsensusReached() {
		t.Error("degraded verdict must not claim consensus")
	}
	answer := result.Answer()
	if !strings.Contains(answer, "no consensus reached") {
		t.Errorf("Answer() = %q, want failure explanation", answer)
	}
	if result.RunsUsed != 1 {
		t.Errorf("RunsUsed = %d, want 1", result.RunsUsed)
	}
	if judge.calls > 2*1+4 {
		t.Errorf("judge called %d times, exceeds iteration cap", judge.calls)
	}
}

func TestInvokeVerdictConformedToSchema(t *testing.T) {
	// The judge invents a field and omits two; the caller must still see
	// exactly the configured shape.
	ex := newExecutor(t,
		&stubAgent{id: "a", reply: "yes"},
		&stubAgent{id: "b", reply: "yes"},
	)
	judge := &scriptedJudge{replies: []*llm.Message{
		verdictReply(`{"answer": "yes", "totally_unrequested": 42}`),
	}}
	schema := Schema{Fields: []Field{
		{Name: "consensus_reached", Kind: KindBool},
		{Name: "answer", Kind: KindString},
		{Name: "confidence", Kind: KindNumber},
	}}

	c, err := New(Config{Judge: judge, Executor: ex, CallBudget: 2, Schema: schema, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Invoke(context.Background(), "is it?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if len(result.Verdict) != 3 {
		t.Errorf("verdict has %d fields, want exactly 3: %v", len(result.Verdict), result.Verdict)
	}
	if _, ok := result.Verdict["totally_unrequested"]; ok {
		t.Error("field outside the schema survived")
	}
	if result.Verdict["answer"] != "yes" {
		t.Errorf("answer = %v", result.Verdict["answer"])
	}
	if result.Verdict["consensus_reached"] != false {
		t.Errorf("omitted bool = %v, want false", result.Verdict["consensus_reached"])
	}
	if result.Verdict["confidence"] != 0.0 {
		t.Errorf("omitted number = %v, want 0", result.Verdict["confidence"])
	}
}

func TestInvokeUnparseableVerdictNudged(t *testing.T) {
	ex := newExecutor(t,
		&stubAgent{id: "a", reply: "yes"},
		&stubAgent{id: "b", reply: "yes"},
	)
	judge := &scriptedJudge{replies: []*llm.Message{
		llm.AssistantMessage("I think the answer is probably yes, let me explain at length...", nil),
		verdictReply(`{"consensus_reached": true, "answer": "yes", "reasoning": "unanimous"}`),
	}}

	c, err := New(Config{Judge: judge, Executor: ex, CallBudget: 2, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Invoke(context.Background(), "is it?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.State != StateFinalAnswer {
		t.Errorf("State = %q", result.State)
	}
	if judge.calls != 2 {
		t.Errorf("judge calls = %d, want 2 (prose reply then nudged verdict)", judge.calls)
	}
	last := judge.lastMsg[len(judge.lastMsg)-1]
	if last.ExtractText() != finalizeNudge {
		t.Errorf("nudge turn = %q", last.ExtractText())
	}
}

func TestInvokeJudgeFailureDegrades(t *testing.T) {
	ex := newExecutor(t,
		&stubAgent{id: "a", reply: "x"},
		&stubAgent{id: "b", reply: "y"},
	)
	judge := &scriptedJudge{err: errors.New("503 overloaded")}

	c, err := New(Config{Judge: judge, Executor: ex, CallBudget: 2, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := c.Invoke(context.Background(), "q")
	if err != nil {
		t.Fatalf("Invoke should degrade, not fail: %v", err)
	}
	if result.State != StateJudgeFailure {
		t.Errorf("State = %q, want judge_failure", result.State)
	}
	if !strings.Contains(result.Answer(), "judge failed") {
		t.Errorf("Answer() = %q, want judge failure explanation", result.Answer())
	}
}

func TestInvokeCancelledContext(t *testing.T) {
	ex := newExecutor(t,
		&stubAgent{id: "a", reply: "x"},
		&stubAgent{id: "b", reply: "y"},
	)
	judge := &scriptedJudge{replies: []*llm.Message{verdictReply(`{"answer": "x"}`)}}

	c, err := New(Config{Judge: judge, Executor: ex, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Invoke(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Invoke err = %v, want context.Canceled", err)
	}
}

func TestNewValidation(t *testing.T) {
	ex := newExecutor(t,
		&stubAgent{id: "a"},
		&stubAgent{id: "b"},
	)
	if _, err := New(Config{Executor: ex}); err == nil {
		t.Error("missing judge should fail")
	}
	if _, err := New(Config{Judge: &scriptedJudge{}}); err == nil {
		t.Error("missing executor should fail")
	}
	bad := Schema{Fields: []Field{{Name: "x", Kind: "blob"}}}
	if _, err := New(Config{Judge: &scriptedJudge{}, Executor: ex, Schema: bad}); err == nil {
		t.Error("invalid schema kind should fail")
	}

	c, err := New(Config{Judge: &scriptedJudge{}, Executor: ex, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.budget != DefaultCallBudget {
		t.Errorf("budget = %d, want default %d", c.budget, DefaultCallBudget)
	}
	if c.judgeModel != DefaultJudgeModel {
		t.Errorf("judgeModel = %q, want default", c.judgeModel)
	}
	if len(c.schema.Fields) == 0 {
		t.Error("schema not defaulted")
	}
}
