// Package merge plans how a synthesized instruction combines with the
// current configuration document. The planner guarantees two things:
// a three-way classification (ADDITION, MODIFICATION, REPLACEMENT) and
// byte-identity of every section it did not touch. How it classifies is
// an internal strategy; today it asks the language-model judge.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"curator/internal/document"
	"curator/internal/judge"
	"curator/internal/logging"
	"curator/internal/types"
)

// newSectionLevel is the heading depth for appended sections.
const newSectionLevel = 2

const classifySystemPrompt = `You compare an existing section of a configuration document against proposed new content for that section, and decide how they combine.

- MODIFICATION: the new content extends or refines the existing content without contradicting it. Existing lines stay; new lines are added.
- REPLACEMENT: the new content contradicts the existing content or is a full rewrite of the section.

Respond with a single JSON object and nothing else:
{"operation": "MODIFICATION" | "REPLACEMENT", "reason": "<one sentence>"}`

type classifyResponse struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

// Planner produces MergePlans for one document at a time.
type Planner struct {
	client  judge.LLMClient
	timeout time.Duration

	// DefaultParent, when set, names the section that additions are
	// nested under instead of landing at the document end. An unknown
	// or ambiguous parent falls back to the document end.
	DefaultParent string
}

// NewPlanner wraps a judge client with a per-call timeout for the
// classification step.
func NewPlanner(client judge.LLMClient, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Planner{client: client, timeout: timeout}
}

// Plan classifies the operation and produces the new document text.
//
// Target resolution decides the operation class first: a title that
// resolves to no section, or to several equally close sections, becomes
// an ADDITION appended at the document end. An incorrect addition is
// reversible in review; an incorrect modification corrupts trusted
// content. For an existing unambiguous target, the judge classifies
// MODIFICATION versus REPLACEMENT; a failed judge call is a hard error
// and nothing is written.
func (p *Planner) Plan(ctx context.Context, doc *document.Document, ins *types.SynthesizedInstruction) (*types.MergePlan, error) {
	timer := logging.StartTimer(logging.CategoryMerge, "Plan")
	defer timer.Stop()

	if ins == nil {
		return nil, &types.ValidationError{ID: "", Reason: "nil instruction"}
	}
	if strings.TrimSpace(ins.Body) == "" {
		return nil, &types.ValidationError{ID: ins.SourceTipID, Reason: "instruction body is empty"}
	}

	title := ins.TargetSectionTitle
	if strings.TrimSpace(title) == "" {
		title = ins.Title
	}

	idx, err := doc.FindSection(title)
	switch {
	case errors.Is(err, document.ErrSectionNotFound):
		return p.planAddition(doc, ins, title, "no existing section matched"), nil
	case errors.Is(err, document.ErrAmbiguousSection):
		logging.Merge("target %q is ambiguous, escalating to addition", title)
		return p.planAddition(doc, ins, title, "target title was ambiguous"), nil
	case err != nil:
		return nil, err
	}

	sec, err := doc.Section(idx)
	if err != nil {
		return nil, err
	}
	existing := doc.Body(idx)

	// An effectively empty section has nothing to contradict; skip the
	// judge and treat it as a modification.
	op := types.OpModification
	reason := "existing section is empty"
	if strings.TrimSpace(existing) != "" {
		op, reason, err = p.classify(ctx, sec.Title, existing, ins.Body)
		if err != nil {
			return nil, err
		}
	}

	var body string
	switch op {
	case types.OpModification:
		body = mergeBodies(existing, ins.Body)
	case types.OpReplacement:
		body = ins.Body
	}

	text, err := doc.WithBody(idx, body)
	if err != nil {
		return nil, err
	}

	logging.MergeDebug("planned %s for section %q (%s)", op, sec.Title, reason)
	return &types.MergePlan{
		Operation:          op,
		TargetSectionTitle: sec.Title,
		NewDocumentText:    text,
		Summary:            fmt.Sprintf("%s of section %q: %s", strings.ToLower(string(op)), sec.Title, reason),
	}, nil
}

func (p *Planner) planAddition(doc *document.Document, ins *types.SynthesizedInstruction, title, why string) *types.MergePlan {
	sectionTitle := strings.TrimSpace(ins.Title)
	if sectionTitle == "" {
		sectionTitle = strings.TrimSpace(title)
	}

	var text string
	if parent := strings.TrimSpace(p.DefaultParent); parent != "" {
		if idx, err := doc.FindSection(parent); err == nil {
			if nested, err := doc.WithChildAppended(idx, sectionTitle, ins.Body); err == nil {
				text = nested
				why += fmt.Sprintf(", placed under %q", parent)
			}
		}
	}
	if text == "" {
		text = doc.WithAppended(sectionTitle, newSectionLevel, ins.Body)
	}

	logging.MergeDebug("planned addition of section %q (%s)", sectionTitle, why)
	return &types.MergePlan{
		Operation:          types.OpAddition,
		TargetSectionTitle: sectionTitle,
		NewDocumentText:    text,
		Summary:            fmt.Sprintf("addition of new section %q: %s", sectionTitle, why),
	}
}

// classify asks the judge whether the new content extends or rewrites
// the existing section. Every failure mode is a JudgeUnavailable; the
// planner never guesses an operation from a failed call.
func (p *Planner) classify(ctx context.Context, sectionTitle, existing, proposed string) (types.Operation, string, error) {
	if p.client == nil {
		return "", "", &types.JudgeUnavailable{Op: "merge classification", Err: errors.New("no judge client configured")}
	}

	prompt := fmt.Sprintf("Section: %s\n\nExisting content:\n```\n%s\n```\n\nProposed new content:\n```\n%s\n```",
		sectionTitle, existing, proposed)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.client.CompleteWithSystem(callCtx, classifySystemPrompt, prompt)
	if err != nil {
		return "", "", &types.JudgeUnavailable{Op: "merge classification", Err: err}
	}

	op, reason, err := parseClassification(raw)
	if err != nil {
		return "", "", &types.JudgeUnavailable{Op: "merge classification", Err: err}
	}
	return op, reason, nil
}

func parseClassification(raw string) (types.Operation, string, error) {
	candidates := judge.FindJSONCandidates(raw)
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("no JSON object in response")
	}

	var lastErr error
	for _, candidate := range candidates {
		var resp classifyResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
			lastErr = err
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(resp.Operation)) {
		case string(types.OpModification):
			return types.OpModification, strings.TrimSpace(resp.Reason), nil
		case string(types.OpReplacement):
			return types.OpReplacement, strings.TrimSpace(resp.Reason), nil
		default:
			lastErr = fmt.Errorf("operation %q outside contract", resp.Operation)
		}
	}
	return "", "", fmt.Errorf("no candidate matched the schema: %v", lastErr)
}

// mergeBodies combines an existing section body with new content for a
// MODIFICATION: every existing line survives, and each new line not
// already present (modulo whitespace) is appended. Line order within
// each side is preserved.
func mergeBodies(existing, proposed string) string {
	seen := make(map[string]bool)
	for _, line := range strings.Split(existing, "\n") {
		if key := normalizeLine(line); key != "" {
			seen[key] = true
		}
	}

	out := strings.TrimRight(existing, "\n")
	var added []string
	for _, line := range strings.Split(proposed, "\n") {
		key := normalizeLine(line)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		added = append(added, line)
	}

	if len(added) == 0 {
		return existing
	}
	if out == "" {
		return strings.Join(added, "\n") + "\n"
	}
	return out + "\n" + strings.Join(added, "\n") + "\n"
}

func normalizeLine(line string) string {
	return strings.Join(strings.Fields(line), " ")
}
