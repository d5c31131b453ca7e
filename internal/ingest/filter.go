package ingest

import (
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/logging"
)

// Filter applies the candidate acceptance policy: minimum score,
// recency, minimum length, removed-content markers, and a keyword gate
// so the queue only grows with plausibly on-topic content.
type Filter struct {
	minScore  int
	lookback  time.Duration
	minLength int
	keywords  []string
	now       func() time.Time
}

// NewFilter builds a Filter from the ingest configuration.
func NewFilter(cfg config.IngestConfig) *Filter {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Filter{
		minScore:  cfg.MinScore,
		lookback:  time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		minLength: cfg.MinLength,
		keywords:  keywords,
		now:       time.Now,
	}
}

// Accept reports whether a candidate passes the policy, with the first
// failing check named for the ingest log.
func (f *Filter) Accept(c *Candidate) (bool, string) {
	if !c.Source.Valid() {
		return false, "unknown source"
	}
	if strings.TrimSpace(c.NativeID) == "" {
		return false, "missing native id"
	}

	text := strings.TrimSpace(c.Text)
	if text == "" || text == "[removed]" || text == "[deleted]" {
		return false, "empty or removed content"
	}
	if len(text) < f.minLength {
		return false, "content too short"
	}
	if c.Score < f.minScore {
		return false, "score below threshold"
	}
	if f.lookback > 0 && !c.Timestamp.IsZero() && f.now().Sub(c.Timestamp.Time) > f.lookback {
		return false, "outside lookback window"
	}
	if len(f.keywords) > 0 && !f.matchesKeyword(c.Title, text) {
		return false, "no topical keyword"
	}
	return true, ""
}

func (f *Filter) matchesKeyword(title, text string) bool {
	combined := strings.ToLower(title + " " + text)
	for _, k := range f.keywords {
		if strings.Contains(combined, k) {
			return true
		}
	}
	return false
}

// Apply filters a batch, logging each rejection at debug level.
func (f *Filter) Apply(candidates []Candidate) []Candidate {
	accepted := make([]Candidate, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		ok, reason := f.Accept(c)
		if !ok {
			logging.IngestDebug("dropped candidate %s/%s: %s", c.Source, c.NativeID, reason)
			continue
		}
		accepted = append(accepted, *c)
	}
	logging.Ingest("filter accepted %d of %d candidates", len(accepted), len(candidates))
	return accepted
}
