// Package output provides the JSON response envelopes and terminal
// rendering shared by the CLI and the HTTP API.
package output

import (
	"time"

	"github.com/Dicklesworthstone/quorum/internal/consensus"
)

// ErrorResponse is the standard JSON error format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewError creates a new error response
func NewError(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// NewErrorWithCode creates a new error response with a code
func NewErrorWithCode(code, msg string) ErrorResponse {
	return ErrorResponse{Error: msg, Code: code}
}

// NewErrorWithDetails creates a new error response with details
func NewErrorWithDetails(msg, details string) ErrorResponse {
	return ErrorResponse{Error: msg, Details: details}
}

// SuccessResponse is a simple success indicator
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NewSuccess creates a success response
func NewSuccess(msg string) SuccessResponse {
	return SuccessResponse{Success: true, Message: msg}
}

// TimestampedResponse adds a timestamp to any response
type TimestampedResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// NewTimestamped creates a timestamped response base
func NewTimestamped() TimestampedResponse {
	return TimestampedResponse{GeneratedAt: Timestamp()}
}

// Timestamp returns the canonical response timestamp.
func Timestamp() time.Time {
	return time.Now().UTC()
}

// AgreementPair is one model pair's similarity in robot output.
type AgreementPair struct {
	ModelA     string  `json:"model_a"`
	ModelB     string  `json:"model_b"`
	Similarity float64 `json:"similarity"`
}

// ConsensusResponse is the output format for a consensus session.
type ConsensusResponse struct {
	TimestampedResponse
	Query            string            `json:"query"`
	State            string            `json:"state"`
	ConsensusReached bool              `json:"consensus_reached"`
	Verdict          consensus.Verdict `json:"verdict"`
	JudgeModel       string            `json:"judge_model"`
	Models           []string          `json:"models"`
	RunsUsed         int               `json:"runs_used"`
	RunLimit         int               `json:"run_limit"`
	AgreementScore   float64           `json:"agreement_score"`
	AgreementPairs   []AgreementPair   `json:"agreement_pairs,omitempty"`
	ElapsedSeconds   float64           `json:"elapsed_seconds"`
}

// NewConsensusResponse converts a session result into the wire envelope.
func NewConsensusResponse(r *consensus.FinalResult) ConsensusResponse {
	resp := ConsensusResponse{
		TimestampedResponse: NewTimestamped(),
		Query:               r.Query,
		State:               string(r.State),
		ConsensusReached:    r.ConsensusReached(),
		Verdict:             r.Verdict,
		JudgeModel:          r.JudgeModel,
		Models:              r.Models,
		RunsUsed:            r.RunsUsed,
		RunLimit:            r.RunLimit,
		ElapsedSeconds:      r.CompletedAt.Sub(r.StartedAt).Seconds(),
	}
	if r.Agreement != nil {
		resp.AgreementScore = r.Agreement.OverallScore
		for _, p := range r.Agreement.PairwiseScores {
			resp.AgreementPairs = append(resp.AgreementPairs, AgreementPair{
				ModelA:     p.ModelA,
				ModelB:     p.ModelB,
				Similarity: p.Similarity,
			})
		}
	}
	return resp
}
