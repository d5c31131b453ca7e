// Package scanner implements the multi-stage safety pipeline: the
// deterministic pattern scanner, the LLM-backed semantic scanner, and
// the verdict aggregator that combines them.
package scanner

import (
	"regexp"

	"curator/internal/logging"
	"curator/internal/types"
)

// Rule is a single entry in the static rule table. Rules are evaluated
// in order; each is independently testable.
type Rule struct {
	ID          types.RuleID
	Category    string
	Severity    types.Severity
	Description string
	pattern     *regexp.Regexp
}

// Matches reports whether the rule fires on text.
func (r *Rule) Matches(text string) bool {
	return r.pattern.MatchString(text)
}

func rule(id, category string, sev types.Severity, desc, expr string) Rule {
	return Rule{
		ID:          types.RuleID(id),
		Category:    category,
		Severity:    sev,
		Description: desc,
		pattern:     regexp.MustCompile(`(?im)` + expr),
	}
}

// ruleTable is the fixed, ordered set of matchers. HIGH severity rules
// are grouped first: shell execution, destructive commands, credential
// material, then prompt-injection phrasing. LOW severity heuristics
// follow; they can never reject on their own, only force human review.
var ruleTable = []Rule{
	// Shell-command injection and destructive commands
	rule("shell.pipe-curl", "shell-injection", types.SeverityHigh,
		"Piped curl to shell execution", `curl\s+[^\n|]*\|\s*(ba|z)?sh`),
	rule("shell.pipe-wget", "shell-injection", types.SeverityHigh,
		"Piped wget to shell execution", `wget\s+[^\n|]*\|\s*(ba|z)?sh`),
	rule("shell.eval", "shell-injection", types.SeverityHigh,
		"eval() execution", `\beval\s*\(`),
	rule("shell.exec", "shell-injection", types.SeverityHigh,
		"exec() execution", `\bexec\s*\(`),
	rule("shell.base64-decode", "shell-injection", types.SeverityHigh,
		"Base64 decoding of payloads", `base64\s+(--)?d(ecode)?\b`),
	rule("shell.script-tag", "shell-injection", types.SeverityHigh,
		"Script tag injection", `<script[^>]*>`),
	rule("shell.rm-rf", "destructive", types.SeverityHigh,
		"Dangerous recursive delete", `rm\s+-(rf|fr)\s+[/~]`),
	rule("shell.fork-bomb", "destructive", types.SeverityHigh,
		"Fork bomb", `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`),
	rule("shell.chmod-777", "destructive", types.SeverityHigh,
		"World-writable permissions", `chmod\s+777`),
	rule("shell.nc-listener", "destructive", types.SeverityHigh,
		"Netcat listener", `\bnc\s+-[el]`),
	rule("cred.passwd-file", "credential", types.SeverityHigh,
		"Password file access", `/etc/passwd`),
	rule("cred.shadow-file", "credential", types.SeverityHigh,
		"Shadow file access", `/etc/shadow`),
	rule("cred.aws-key", "credential", types.SeverityHigh,
		"AWS access key literal", `\bAKIA[0-9A-Z]{16}\b`),
	rule("cred.github-pat", "credential", types.SeverityHigh,
		"GitHub token literal", `\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	rule("cred.private-key", "credential", types.SeverityHigh,
		"Private key block", `-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	rule("cred.exfil-secrets", "credential", types.SeverityHigh,
		"Secret exfiltration phrasing", `(send|post|upload|exfiltrate)\s+(your|the|all)\s+[^\n]{0,40}(key|token|secret|credential)s?`),

	// Prompt-injection phrasing aimed at an AI agent
	rule("inject.ignore-instructions", "prompt-injection", types.SeverityHigh,
		"Prompt injection", `ignore\s+(previous|all|above)\s+instructions?`),
	rule("inject.disregard", "prompt-injection", types.SeverityHigh,
		"Prompt injection", `disregard\s+[^\n]{0,40}instructions?`),
	rule("inject.role-hijack", "prompt-injection", types.SeverityHigh,
		"Role hijacking", `you\s+are\s+now\b`),
	rule("inject.pretend", "prompt-injection", types.SeverityHigh,
		"Role hijacking", `pretend\s+(to\s+be|you('re)?)`),
	rule("inject.memory-wipe", "prompt-injection", types.SeverityHigh,
		"Memory wipe", `forget\s+(everything|all)\b`),
	rule("inject.system-prompt", "prompt-injection", types.SeverityHigh,
		"System prompt injection", `^\s*system\s*:`),
	rule("inject.unrestricted-tools", "prompt-injection", types.SeverityHigh,
		"Unrestricted tool access request", `(grant|give|allow)\s+[^\n]{0,30}(unrestricted|full|root)\s+(tool|shell|file|system)\s+access`),

	// Warning heuristics - worth a human look, never auto-reject
	rule("warn.external-url", "heuristic", types.SeverityLow,
		"External URL", `https?://[^\s]+`),
	rule("warn.chmod", "heuristic", types.SeverityLow,
		"Permission modification", `chmod\s+[0-7]+`),
	rule("warn.env-export", "heuristic", types.SeverityLow,
		"Environment variable export", `export\s+\w+=`),
	rule("warn.pip-install", "heuristic", types.SeverityLow,
		"Package installation", `pip\s+install`),
	rule("warn.npm-install", "heuristic", types.SeverityLow,
		"NPM installation", `npm\s+install`),
	rule("warn.cmd-chain", "heuristic", types.SeverityLow,
		"Command chaining", `&&`),
	rule("warn.sudo", "heuristic", types.SeverityLow,
		"Privilege escalation", `\bsudo\s+`),
	rule("warn.git-clone", "heuristic", types.SeverityLow,
		"Git clone", `git\s+clone`),
	rule("warn.cmd-subst", "heuristic", types.SeverityLow,
		"Command substitution", `\$\([^)]+\)`),
}

// Rules returns the rule table, for enumeration in tests and docs.
func Rules() []Rule {
	out := make([]Rule, len(ruleTable))
	copy(out, ruleTable)
	return out
}

// ScanPatterns runs the full rule table over text. It is pure, total,
// and deterministic: malformed or empty input yields SeverityNone and
// never panics. The result severity is the maximum across matches.
func ScanPatterns(text string) types.PatternResult {
	result := types.PatternResult{Severity: types.SeverityNone}
	if text == "" {
		return result
	}

	for i := range ruleTable {
		r := &ruleTable[i]
		if !r.Matches(text) {
			continue
		}
		result.MatchedRules = append(result.MatchedRules, r.ID)
		result.Flags = append(result.Flags, r.Description)
		if r.Severity > result.Severity {
			result.Severity = r.Severity
		}
	}

	if len(result.MatchedRules) > 0 {
		logging.ScannerDebug("pattern scan: %d rules matched, severity=%s",
			len(result.MatchedRules), result.Severity)
	}

	return result
}
