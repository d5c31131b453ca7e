package scanner

import (
	"strings"

	"curator/internal/types"
)

// Aggregate combines the pattern and semantic results into a final
// verdict via an explicit precedence table, first match wins:
//
//  1. Pattern HIGH            -> UNSAFE (semantic output irrelevant)
//  2. Semantic UNSAFE         -> UNSAFE
//  3. Semantic UNCERTAIN      -> NEEDS_REVIEW
//  4. Pattern LOW + Sem SAFE  -> NEEDS_REVIEW (a heuristic flag is
//     never fully overridden by a model's safe call)
//  5. Pattern NONE + Sem SAFE -> SAFE
//
// Rationale strings from both scanners are concatenated for the human
// reviewer, never discarded.
func Aggregate(pattern types.PatternResult, semantic types.SemanticResult) (types.Verdict, string) {
	verdict := verdictFor(pattern, semantic)
	return verdict, combinedRationale(pattern, semantic)
}

func verdictFor(pattern types.PatternResult, semantic types.SemanticResult) types.Verdict {
	switch {
	case pattern.Severity == types.SeverityHigh:
		return types.VerdictUnsafe
	case semantic.Verdict == types.SemanticUnsafe:
		return types.VerdictUnsafe
	case semantic.Verdict != types.SemanticSafe:
		// UNCERTAIN, or the judge was never consulted. Anything short
		// of an explicit SAFE goes to a human.
		return types.VerdictNeedsReview
	case pattern.Severity == types.SeverityLow:
		return types.VerdictNeedsReview
	default:
		return types.VerdictSafe
	}
}

func combinedRationale(pattern types.PatternResult, semantic types.SemanticResult) string {
	var parts []string
	for _, flag := range pattern.Flags {
		parts = append(parts, "pattern: "+flag)
	}
	if semantic.Invoked && semantic.Rationale != "" {
		parts = append(parts, "judge: "+semantic.Rationale)
	}
	return strings.Join(parts, "; ")
}
