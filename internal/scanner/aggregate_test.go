package scanner

import (
	"strings"
	"testing"

	"curator/internal/types"
)

func pat(sev types.Severity, flags ...string) types.PatternResult {
	p := types.PatternResult{Severity: sev, Flags: flags}
	for range flags {
		p.MatchedRules = append(p.MatchedRules, "r")
	}
	return p
}

func sem(v types.SemanticVerdict, rationale string) types.SemanticResult {
	return types.SemanticResult{Verdict: v, Rationale: rationale, Invoked: true}
}

func TestAggregatePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		pattern  types.PatternResult
		semantic types.SemanticResult
		want     types.Verdict
	}{
		{"high_wins", pat(types.SeverityHigh, "piped curl"), sem(types.SemanticSafe, "looks fine"), types.VerdictUnsafe},
		{"high_wins_over_unsafe", pat(types.SeverityHigh, "piped curl"), sem(types.SemanticUnsafe, "bad"), types.VerdictUnsafe},
		{"semantic_unsafe", pat(types.SeverityNone), sem(types.SemanticUnsafe, "disguised exec"), types.VerdictUnsafe},
		{"uncertain_reviews", pat(types.SeverityNone), sem(types.SemanticUncertain, "unclear"), types.VerdictNeedsReview},
		{"low_never_overridden", pat(types.SeverityLow, "external url"), sem(types.SemanticSafe, "fine"), types.VerdictNeedsReview},
		{"clean", pat(types.SeverityNone), sem(types.SemanticSafe, "fine"), types.VerdictSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Aggregate(tt.pattern, tt.semantic)
			if got != tt.want {
				t.Errorf("verdict = %s, want %s", got, tt.want)
			}
		})
	}
}

// Pattern HIGH yields UNSAFE regardless of anything the semantic stage
// reports, including the zero value of a stage that never ran.
func TestAggregateMonotonicCaution(t *testing.T) {
	for _, semantic := range []types.SemanticResult{
		sem(types.SemanticSafe, "judge says safe"),
		sem(types.SemanticUncertain, "judge call failed: timeout"),
		{}, // never invoked
	} {
		got, _ := Aggregate(pat(types.SeverityHigh, "fork bomb"), semantic)
		if got != types.VerdictUnsafe {
			t.Errorf("semantic %+v diluted a HIGH pattern to %s", semantic, got)
		}
	}
}

// No combination of LOW pattern output and semantic output yields SAFE.
func TestAggregateNoFullOverride(t *testing.T) {
	for _, semantic := range []types.SemanticResult{
		sem(types.SemanticSafe, "fine"),
		sem(types.SemanticUncertain, ""),
		{},
	} {
		got, _ := Aggregate(pat(types.SeverityLow, "sudo"), semantic)
		if got == types.VerdictSafe {
			t.Errorf("LOW pattern + semantic %+v produced SAFE", semantic)
		}
	}
}

// A skipped or disabled semantic stage never defaults to SAFE.
func TestAggregateSemanticNeverRan(t *testing.T) {
	got, _ := Aggregate(pat(types.SeverityNone), types.SemanticResult{})
	if got != types.VerdictNeedsReview {
		t.Errorf("verdict without a semantic pass = %s, want NEEDS_REVIEW", got)
	}
}

func TestAggregateRationaleKeepsBothSides(t *testing.T) {
	_, rationale := Aggregate(
		pat(types.SeverityLow, "External URL", "Privilege escalation"),
		sem(types.SemanticSafe, "ordinary workflow advice"),
	)
	for _, want := range []string{"pattern: External URL", "pattern: Privilege escalation", "judge: ordinary workflow advice"} {
		if !strings.Contains(rationale, want) {
			t.Errorf("rationale %q missing %q", rationale, want)
		}
	}
}
