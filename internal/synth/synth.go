// Package synth turns an approved tip into a structured instruction
// block via a constrained language-model call. Synthesis runs only
// after the human approval gate; it never sees unscanned content.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"curator/internal/judge"
	"curator/internal/logging"
	"curator/internal/types"
)

// ErrNoActionableContent is the model's valid "nothing to extract"
// answer. It is distinct from a contract violation: callers skip the
// tip and move on rather than failing the run.
var ErrNoActionableContent = errors.New("tip contains no actionable instruction")

const systemPrompt = `You distill community tips into instruction blocks for an AI coding assistant's configuration file. Given a tip, extract the single concrete, reusable instruction it contains.

Rules:
- The body must be imperative instructions in Markdown, not narrative or commentary.
- Keep the body short: bullets or a short paragraph, no preamble.
- target_section is your best guess at the existing document heading this belongs under.
- If the tip contains no concrete, reusable instruction (it is a question, an anecdote, a complaint, or pure discussion), set actionable to false.

Respond with a single JSON object and nothing else:
{"title": "<short section title>", "target_section": "<heading guess>", "body": "<markdown instruction text>", "actionable": true | false}`

// synthResponse is the strict output schema for the synthesis call.
type synthResponse struct {
	Title         string `json:"title"`
	TargetSection string `json:"target_section"`
	Body          string `json:"body"`
	Actionable    bool   `json:"actionable"`
}

// Synthesizer wraps a judge client for instruction extraction.
type Synthesizer struct {
	client  judge.LLMClient
	timeout time.Duration
}

// New returns a Synthesizer with a per-call timeout.
func New(client judge.LLMClient, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Synthesizer{client: client, timeout: timeout}
}

// Synthesize extracts an instruction block from an approved tip.
// Returns ErrNoActionableContent when the model validly answers that
// there is nothing to extract, a ValidationError when the tip is not in
// a synthesizable state, and JudgeUnavailable for every model-side
// failure (transport, timeout, schema violation). No instruction is
// ever fabricated from a failed call.
func (s *Synthesizer) Synthesize(ctx context.Context, tip *types.Tip) (*types.SynthesizedInstruction, error) {
	timer := logging.StartTimer(logging.CategoryJudge, "Synthesize")
	defer timer.Stop()

	if tip == nil {
		return nil, &types.ValidationError{ID: "", Reason: "nil tip"}
	}
	if tip.Status != types.StatusApproved {
		return nil, &types.ValidationError{
			ID:     tip.ID,
			Reason: fmt.Sprintf("synthesis requires approved status, tip is %s", tip.Status),
		}
	}
	if s.client == nil {
		return nil, &types.JudgeUnavailable{Op: "synthesize", Err: errors.New("no judge client configured")}
	}

	prompt := fmt.Sprintf("Tip title: %s\nCategory: %s\n\nTip content:\n```\n%s\n```",
		tip.Title, tip.Category, tip.RawText)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.CompleteWithSystem(callCtx, systemPrompt, prompt)
	if err != nil {
		logging.Judge("synthesis call failed for tip %s: %v", tip.ID, err)
		return nil, &types.JudgeUnavailable{Op: "synthesize", Err: err}
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		logging.Judge("synthesis response rejected for tip %s: %v", tip.ID, err)
		return nil, &types.JudgeUnavailable{Op: "synthesize", Err: err}
	}

	if !parsed.Actionable {
		logging.JudgeDebug("tip %s judged not actionable", tip.ID)
		return nil, ErrNoActionableContent
	}

	ins := &types.SynthesizedInstruction{
		Title:              strings.TrimSpace(parsed.Title),
		TargetSectionTitle: strings.TrimSpace(parsed.TargetSection),
		Body:               strings.TrimSpace(parsed.Body),
		SourceTipID:        tip.ID,
	}
	logging.JudgeDebug("synthesized instruction for tip %s: target=%q", tip.ID, ins.TargetSectionTitle)
	return ins, nil
}

// parseResponse enforces the output schema. An actionable answer with
// an empty title or body is a contract violation, not a silently-empty
// instruction.
func parseResponse(raw string) (*synthResponse, error) {
	candidates := judge.FindJSONCandidates(raw)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var lastErr error
	for _, candidate := range candidates {
		var resp synthResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
			lastErr = err
			continue
		}
		if resp.Actionable && (strings.TrimSpace(resp.Title) == "" || strings.TrimSpace(resp.Body) == "") {
			lastErr = fmt.Errorf("actionable response with empty title or body")
			continue
		}
		return &resp, nil
	}
	return nil, fmt.Errorf("no candidate matched the schema: %v", lastErr)
}
