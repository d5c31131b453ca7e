// Package ingest turns externally fetched feed dumps into Tip records.
// Network retrieval from the platforms themselves is out of scope; a
// separate fetch step drops JSON dumps into the feed directory and this
// package reads, filters, and normalizes them.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"curator/internal/fingerprint"
	"curator/internal/types"
)

// Candidate is one raw item from a feed, before filtering.
type Candidate struct {
	Source    types.Source `json:"source"`
	NativeID  string       `json:"native_id"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Author    string       `json:"author"`
	URL       string       `json:"url"`
	Score     int          `json:"score"`
	Timestamp FeedTime     `json:"timestamp"`
}

// FeedTime accepts either an RFC 3339 string or a Unix-seconds number,
// since reddit dumps carry epoch floats and other feeds carry strings.
type FeedTime struct {
	time.Time
}

func (t *FeedTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", str, err)
		}
		t.Time = parsed
		return nil
	}
	var epoch float64
	if err := json.Unmarshal(data, &epoch); err != nil {
		return err
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	t.Time = time.Unix(sec, nsec).UTC()
	return nil
}

// Source supplies a batch of candidates. Implementations own their own
// I/O; the pipeline only sees the normalized slice.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Candidate, error)
}

// Tip converts an accepted candidate into a pending Tip record with its
// dedup key computed.
func (c *Candidate) Tip(now time.Time) *types.Tip {
	return &types.Tip{
		Source:   c.Source,
		NativeID: c.NativeID,
		Title:    strings.TrimSpace(c.Title),
		RawText:  c.Text,
		Category: Categorize(c.Title, c.Text),
		Origin: types.OriginMetadata{
			Author:    c.Author,
			URL:       c.URL,
			Score:     c.Score,
			Timestamp: c.Timestamp.Time,
		},
		DedupKey: fingerprint.Fingerprint(c.Source, c.NativeID),
		Status:   types.StatusPending,
		AddedAt:  now,
	}
}

// Categorize assigns a coarse content class from keyword evidence in
// the title and body. Order matters: the more specific classes are
// checked before the workflow catch-all.
func Categorize(title, text string) types.Category {
	combined := strings.ToLower(title + " " + text)
	switch {
	case strings.Contains(combined, "claude.md"):
		return types.CategoryClaudeMD
	case strings.Contains(combined, "hook"):
		return types.CategoryHook
	case strings.Contains(combined, "slash command") || strings.Contains(combined, "custom command"):
		return types.CategoryCommand
	case strings.Contains(combined, "prompt"):
		return types.CategoryPromptPattern
	default:
		return types.CategoryWorkflow
	}
}
