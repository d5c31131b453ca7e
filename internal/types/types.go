// Package types holds the core domain records shared across the curator
// pipeline: tips, safety verdicts, synthesized instructions, and merge plans.
package types

import (
	"fmt"
	"time"
)

// Source identifies the platform a tip was ingested from.
type Source string

const (
	SourceReddit Source = "reddit"
	SourceGitHub Source = "github"
)

// Valid reports whether s is a known source platform.
func (s Source) Valid() bool {
	return s == SourceReddit || s == SourceGitHub
}

// Status is the lifecycle state of a tip. Transitions are forward-only:
// PENDING may move to APPROVED or REJECTED; both are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CanTransition reports whether the two-edge state machine permits
// moving from s to next. Terminal states permit nothing.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusApproved || next == StatusRejected
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Verdict is the aggregated safety classification for a tip.
type Verdict string

const (
	VerdictSafe        Verdict = "SAFE"
	VerdictUnsafe      Verdict = "UNSAFE"
	VerdictNeedsReview Verdict = "NEEDS_REVIEW"
)

// Category is a coarse content class used to pick the default steering
// file a tip's instruction lands in.
type Category string

const (
	CategoryClaudeMD      Category = "claude-md"
	CategoryHook          Category = "hook"
	CategoryWorkflow      Category = "workflow"
	CategoryCommand       Category = "command"
	CategoryPromptPattern Category = "prompt-pattern"
)

// OriginMetadata is provenance attached to a tip. It is informational
// only and must never feed a safety decision.
type OriginMetadata struct {
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Tip is a unit of ingested content. RawText is immutable once stored;
// the verdict is set exactly once by the scanning pipeline.
type Tip struct {
	ID       string         `json:"id"`
	Source   Source         `json:"source"`
	NativeID string         `json:"native_id"`
	Title    string         `json:"title"`
	RawText  string         `json:"raw_text"`
	Category Category       `json:"category"`
	Origin   OriginMetadata `json:"origin"`
	DedupKey string         `json:"dedup_key"`
	Status   Status         `json:"status"`

	// Verdict is empty until the scanning pipeline has run.
	Verdict   Verdict `json:"verdict,omitempty"`
	Rationale string  `json:"rationale,omitempty"`

	AddedAt         time.Time `json:"added_at"`
	ApprovedAt      time.Time `json:"approved_at,omitempty"`
	RejectedAt      time.Time `json:"rejected_at,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

// Scanned reports whether the scanning pipeline has produced a verdict.
func (t *Tip) Scanned() bool {
	return t.Verdict != ""
}

// Severity is the pattern scanner's escalation level.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "HIGH"
	case SeverityLow:
		return "LOW"
	default:
		return "NONE"
	}
}

// RuleID names a single pattern-scanner rule.
type RuleID string

// PatternResult is the outcome of the deterministic rule-table scan.
type PatternResult struct {
	MatchedRules []RuleID
	Severity     Severity
	// Flags holds one human-readable line per matched rule, carried
	// into the reviewer-facing rationale.
	Flags []string
}

// SemanticVerdict is the LLM judge's three-way answer.
type SemanticVerdict string

const (
	SemanticSafe      SemanticVerdict = "SAFE"
	SemanticUnsafe    SemanticVerdict = "UNSAFE"
	SemanticUncertain SemanticVerdict = "UNCERTAIN"
)

// SemanticResult is the parsed judge response for one tip.
type SemanticResult struct {
	Verdict    SemanticVerdict
	Rationale  string
	Confidence float64
	// Invoked is false when the pattern scanner short-circuited and
	// the judge was never called.
	Invoked bool
}

// ScanReport bundles everything the pipeline learned about one tip.
// The rationale concatenates both scanners' output for the reviewer.
type ScanReport struct {
	TipID     string
	Pattern   PatternResult
	Semantic  SemanticResult
	Verdict   Verdict
	Rationale string
}

// SynthesizedInstruction is the structured instruction block derived
// from an approved tip. It lives for one integration run only.
type SynthesizedInstruction struct {
	Title              string
	TargetSectionTitle string
	Body               string
	SourceTipID        string
}

// Operation classifies how an instruction combines with the document.
type Operation string

const (
	OpAddition     Operation = "ADDITION"
	OpModification Operation = "MODIFICATION"
	OpReplacement  Operation = "REPLACEMENT"
)

// MergePlan is the merge planner's output, consumed by the external
// change-review sink. Not persisted.
type MergePlan struct {
	Operation          Operation
	TargetSectionTitle string
	NewDocumentText    string
	Summary            string
}

// ValidationError marks a malformed record. It fails the single
// operation it belongs to and never aborts a batch.
type ValidationError struct {
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.ID, e.Reason)
}

// JudgeUnavailable marks a failed language-model call: timeout,
// transport error, or a response that violates the output contract.
// In the scan path callers degrade to UNCERTAIN; in synthesis and merge
// classification it is a hard failure.
type JudgeUnavailable struct {
	Op  string
	Err error
}

func (e *JudgeUnavailable) Error() string {
	return fmt.Sprintf("judge unavailable during %s: %v", e.Op, e.Err)
}

func (e *JudgeUnavailable) Unwrap() error { return e.Err }
