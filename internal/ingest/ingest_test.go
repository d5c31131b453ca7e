package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/types"
)

func testFilterConfig() config.IngestConfig {
	return config.IngestConfig{
		MinScore:     20,
		LookbackDays: 7,
		MinLength:    50,
		Keywords:     []string{"claude", "prompt", "workflow"},
	}
}

func goodCandidate() Candidate {
	return Candidate{
		Source:    types.SourceReddit,
		NativeID:  "t3_good",
		Title:     "A workflow tip",
		Text:      "I ask claude to draft a plan before touching any files, works great for big refactors.",
		Author:    "someone",
		Score:     55,
		Timestamp: FeedTime{time.Now().Add(-24 * time.Hour)},
	}
}

func TestFilterAccept(t *testing.T) {
	f := NewFilter(testFilterConfig())

	mutate := func(fn func(*Candidate)) *Candidate {
		c := goodCandidate()
		fn(&c)
		return &c
	}

	tests := []struct {
		name       string
		candidate  *Candidate
		wantOK     bool
		wantReason string
	}{
		{"accepted", mutate(func(c *Candidate) {}), true, ""},
		{"low_score", mutate(func(c *Candidate) { c.Score = 3 }), false, "score below threshold"},
		{"too_short", mutate(func(c *Candidate) { c.Text = "claude is neat" }), false, "content too short"},
		{"removed", mutate(func(c *Candidate) { c.Text = "[removed]" }), false, "empty or removed content"},
		{"deleted", mutate(func(c *Candidate) { c.Text = "[deleted]" }), false, "empty or removed content"},
		{"stale", mutate(func(c *Candidate) { c.Timestamp = FeedTime{time.Now().Add(-30 * 24 * time.Hour)} }), false, "outside lookback window"},
		{"off_topic", mutate(func(c *Candidate) {
			c.Title = "My vacation photos"
			c.Text = "Here are fifty-two pictures of my holiday on the coast of Brittany, enjoy everyone."
		}), false, "no topical keyword"},
		{"bad_source", mutate(func(c *Candidate) { c.Source = "usenet" }), false, "unknown source"},
		{"no_native_id", mutate(func(c *Candidate) { c.NativeID = " " }), false, "missing native id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := f.Accept(tt.candidate)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v (reason %q), want %v", ok, reason, tt.wantOK)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestFilterApply(t *testing.T) {
	f := NewFilter(testFilterConfig())
	bad := goodCandidate()
	bad.Score = 0

	got := f.Apply([]Candidate{goodCandidate(), bad, goodCandidate()})
	if len(got) != 2 {
		t.Errorf("accepted %d, want 2", len(got))
	}
}

func TestFilterNoTimestampPassesLookback(t *testing.T) {
	f := NewFilter(testFilterConfig())
	c := goodCandidate()
	c.Timestamp = FeedTime{}
	if ok, reason := f.Accept(&c); !ok {
		t.Errorf("candidate without timestamp rejected: %s", reason)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name  string
		title string
		text  string
		want  types.Category
	}{
		{"claude_md", "Share your CLAUDE.md", "here is mine", types.CategoryClaudeMD},
		{"hook", "pre-commit hook idea", "run lint in a hook", types.CategoryHook},
		{"command", "my favorite slash command", "saves so much typing", types.CategoryCommand},
		{"prompt", "prompt pattern that works", "ask for a plan first", types.CategoryPromptPattern},
		{"default", "general advice", "review diffs carefully", types.CategoryWorkflow},
		{"case_insensitive", "MY HOOK SETUP", "", types.CategoryHook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.title, tt.text); got != tt.want {
				t.Errorf("Categorize = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFeedTimeUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2026-08-20T12:30:00Z"`, time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)},
		{"epoch_seconds", `1766000000`, time.Unix(1766000000, 0).UTC()},
		{"null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ft FeedTime
			if err := json.Unmarshal([]byte(tt.in), &ft); err != nil {
				t.Fatal(err)
			}
			if !ft.Equal(tt.want) {
				t.Errorf("got %v, want %v", ft.Time, tt.want)
			}
		})
	}
}

func TestCandidateTip(t *testing.T) {
	c := goodCandidate()
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	tip := c.Tip(now)
	if tip.Status != types.StatusPending {
		t.Errorf("status = %s", tip.Status)
	}
	if tip.DedupKey == "" {
		t.Error("dedup key not computed")
	}
	if tip.AddedAt != now {
		t.Errorf("added_at = %v", tip.AddedAt)
	}
	if tip.Origin.Score != 55 {
		t.Errorf("origin score = %d", tip.Origin.Score)
	}

	// Same source item always produces the same dedup key.
	again := goodCandidate()
	again.Text = "edited upstream"
	if again.Tip(now).DedupKey != tip.DedupKey {
		t.Error("dedup key depends on text content")
	}
}
