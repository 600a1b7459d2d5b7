package ensemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// AgreementAnalysis measures how closely the ensemble's outputs align.
// Higher overall score means the models largely agree.
type AgreementAnalysis struct {
	// OverallScore ranges from 0-1, the mean pairwise similarity.
	OverallScore float64 `json:"overall_score"`

	// PairwiseScores holds similarity data for each model pair,
	// sorted by similarity descending.
	PairwiseScores []PairSimilarity `json:"pairwise_scores"`
}

// PairSimilarity measures textual similarity between two model outputs.
type PairSimilarity struct {
	ModelA string `json:"model_a"`
	ModelB string `json:"model_b"`

	// Similarity ranges from 0-1, where 1 means identical text.
	Similarity float64 `json:"similarity"`
}

// AnalyzeAgreement computes pairwise output similarity over the successful
// outcomes of a run. Failed outcomes are excluded; fewer than two successes
// yields an empty analysis.
func AnalyzeAgreement(result *Result) *AgreementAnalysis {
	var ok []Outcome
	for _, o := range result.Outcomes {
		if o.OK() {
			ok = append(ok, o)
		}
	}
	if len(ok) < 2 {
		return &AgreementAnalysis{}
	}

	dmp := diffmatchpatch.New()
	var pairs []PairSimilarity
	total := 0.0
	for i := 0; i < len(ok); i++ {
		for j := i + 1; j < len(ok); j++ {
			sim := textSimilarity(dmp, ok[i].Text, ok[j].Text)
			pairs = append(pairs, PairSimilarity{
				ModelA:     ok[i].Model,
				ModelB:     ok[j].Model,
				Similarity: sim,
			})
			total += sim
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})

	return &AgreementAnalysis{
		OverallScore:   total / float64(len(pairs)),
		PairwiseScores: pairs,
	}
}

// textSimilarity returns 1 - normalized Levenshtein distance over the diff
// of the two texts. Case and surrounding whitespace are ignored.
func textSimilarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)
	sim := 1.0 - float64(distance)/float64(longest)
	if sim < 0 {
		sim = 0
	}
	return sim
}

// Render produces a human-readable agreement report.
func (a *AgreementAnalysis) Render() string {
	if a == nil || len(a.PairwiseScores) == 0 {
		return "No agreement data available"
	}

	var b strings.Builder
	b.WriteString("Agreement Analysis:\n")
	fmt.Fprintf(&b, "Overall Score: %.2f (%s)\n", a.OverallScore, interpretAgreement(a.OverallScore))
	for _, pair := range a.PairwiseScores {
		fmt.Fprintf(&b, "%s vs %s: %.2f\n", pair.ModelA, pair.ModelB, pair.Similarity)
	}
	return b.String()
}

func interpretAgreement(score float64) string {
	switch {
	case score >= 0.7:
		return "strong consensus"
	case score >= 0.4:
		return "partial agreement"
	default:
		return "models diverge"
	}
}
