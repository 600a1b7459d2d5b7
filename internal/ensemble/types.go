// Package ensemble runs a query across multiple model agents concurrently and
// merges their outputs into a single ordered transcript. Agent failures are
// captured per slot and surface as placeholder entries rather than aborting
// the run.
package ensemble

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dicklesworthstone/quorum/internal/tokens"
)

// ErrConfiguration indicates a caller-supplied agent set that cannot form a
// valid ensemble (too few agents, duplicate identifiers).
var ErrConfiguration = errors.New("ensemble: invalid configuration")

// Outcome is the result of a single agent's invocation.
type Outcome struct {
	// Model is the agent identifier that produced this outcome.
	Model string `json:"model"`
	// Text is the agent's textual response. Empty on failure.
	Text string `json:"text,omitempty"`
	// FailureReason describes why the agent failed, empty on success.
	FailureReason string `json:"failure_reason,omitempty"`
	// Elapsed is wall-clock invocation time.
	Elapsed time.Duration `json:"elapsed"`
	// TokenEstimate is a heuristic token count for Text.
	TokenEstimate int `json:"token_estimate"`
}

// OK reports whether the agent produced a usable response.
func (o Outcome) OK() bool { return o.FailureReason == "" }

// Entry renders the outcome as one labelled block of the merged transcript.
// Failed agents contribute an explicit placeholder so the judge can see which
// models were unavailable.
func (o Outcome) Entry() string {
	if !o.OK() {
		return fmt.Sprintf("%s:\nno response: %s", o.Model, o.FailureReason)
	}
	return fmt.Sprintf("%s:\n%s", o.Model, o.Text)
}

// Result is the merged outcome of one ensemble run.
type Result struct {
	Query       string    `json:"query"`
	Outcomes    []Outcome `json:"outcomes"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Render joins all outcome entries, in agent registration order, into the
// transcript handed to the judge.
func (r *Result) Render() string {
	entries := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		entries = append(entries, o.Entry())
	}
	return strings.Join(entries, "\n\n")
}

// Succeeded returns the count of agents that produced a response.
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed returns the count of agents that did not produce a response.
func (r *Result) Failed() int { return len(r.Outcomes) - r.Succeeded() }

// TokenEstimate sums the per-outcome token estimates.
func (r *Result) TokenEstimate() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.TokenEstimate
	}
	return total
}

func estimateOutcomeTokens(text string) int {
	return tokens.EstimateTokensWithLanguageHint(text, tokens.ContentMarkdown)
}
