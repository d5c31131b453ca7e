// Package pipeline orchestrates the tip lifecycle: ingest → scan →
// (human approval, external) → synthesize → merge → propose. Every
// invocation is a finite batch operation; there are no background
// loops.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"curator/internal/document"
	"curator/internal/ingest"
	"curator/internal/logging"
	"curator/internal/merge"
	"curator/internal/scanner"
	"curator/internal/steering"
	"curator/internal/store"
	"curator/internal/synth"
	"curator/internal/types"
)

// Pipeline wires the collaborators together. All fields are set at
// construction; a Pipeline is safe for use by one operator at a time.
type Pipeline struct {
	Store         store.TipStore
	Semantic      *scanner.SemanticScanner
	Synthesizer   *synth.Synthesizer
	Planner       *merge.Planner
	Documents     steering.DocumentSource
	MaxConcurrent int
	UseLLM        bool

	// LockPath guards integration's parse→plan→render critical section
	// against a second concurrent integrate run.
	LockPath string
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	Read       int
	Accepted   int
	Stored     int
	Duplicates int
}

// Ingest fetches candidates from src, filters them, and appends the
// survivors to the pending queue. Duplicates are informational skips.
func (p *Pipeline) Ingest(ctx context.Context, src ingest.Source, filter *ingest.Filter) (IngestResult, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Ingest")
	defer timer.Stop()

	var res IngestResult

	candidates, err := src.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch from %s failed: %w", src.Name(), err)
	}
	res.Read = len(candidates)

	accepted := filter.Apply(candidates)
	res.Accepted = len(accepted)

	now := time.Now().UTC()
	for i := range accepted {
		tip := accepted[i].Tip(now)

		// Known keys (any partition, including rejected) are skipped
		// before the insert; the UNIQUE constraint in Append stays as
		// the backstop for a concurrent writer.
		if seen, err := p.Store.HasDedupKey(tip.DedupKey); err == nil && seen {
			logging.PipelineDebug("skipping known tip %s/%s", tip.Source, tip.NativeID)
			res.Duplicates++
			continue
		}

		switch err := p.Store.Append(tip); {
		case err == nil:
			res.Stored++
		case errors.Is(err, store.ErrDuplicateTip):
			res.Duplicates++
		default:
			// A malformed candidate fails only itself.
			logging.Get(logging.CategoryPipeline).Warn("failed to store candidate %s/%s: %v",
				tip.Source, tip.NativeID, err)
		}
	}

	logging.Pipeline("ingest: read=%d accepted=%d stored=%d duplicates=%d",
		res.Read, res.Accepted, res.Stored, res.Duplicates)
	return res, nil
}

// ScanResult summarizes one scan run. Failures are keyed by tip id;
// one tip's failure never aborts the batch.
type ScanResult struct {
	Scanned  int
	Verdicts map[types.Verdict]int
	Failures map[string]error
}

// Scan runs the safety pipeline over every unscanned pending tip.
// Tips are independent, so they scan concurrently under a bounded
// errgroup; the pattern stage is pure and the semantic stage is one
// judge call per tip with its own timeout.
func (p *Pipeline) Scan(ctx context.Context) (ScanResult, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Scan")
	defer timer.Stop()

	res := ScanResult{
		Verdicts: make(map[types.Verdict]int),
		Failures: make(map[string]error),
	}

	pending, err := p.Store.ListByStatus(types.StatusPending)
	if err != nil {
		return res, fmt.Errorf("failed to list pending tips: %w", err)
	}

	var todo []*types.Tip
	for _, tip := range pending {
		if !tip.Scanned() {
			todo = append(todo, tip)
		}
	}
	if len(todo) == 0 {
		logging.Pipeline("scan: nothing to do")
		return res, nil
	}

	limit := p.MaxConcurrent
	if limit < 1 {
		limit = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, tip := range todo {
		tip := tip
		g.Go(func() error {
			report := p.scanOne(gctx, tip)

			mu.Lock()
			defer mu.Unlock()
			if err := p.Store.SetVerdict(tip.ID, report.Verdict, report.Rationale); err != nil {
				res.Failures[tip.ID] = err
				return nil
			}
			res.Scanned++
			res.Verdicts[report.Verdict]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	logging.Pipeline("scan: %d tips, safe=%d unsafe=%d review=%d failures=%d",
		res.Scanned, res.Verdicts[types.VerdictSafe], res.Verdicts[types.VerdictUnsafe],
		res.Verdicts[types.VerdictNeedsReview], len(res.Failures))
	return res, nil
}

// scanOne runs both scanner stages for a single tip. The semantic stage
// is skipped entirely when the pattern stage already found HIGH
// severity: known-bad content costs no judge call.
func (p *Pipeline) scanOne(ctx context.Context, tip *types.Tip) types.ScanReport {
	report := types.ScanReport{TipID: tip.ID}
	report.Pattern = scanner.ScanPatterns(tip.RawText)

	if report.Pattern.Severity != types.SeverityHigh && p.UseLLM && p.Semantic != nil {
		report.Semantic = p.Semantic.Scan(ctx, tip.Title, tip.RawText)
	}

	report.Verdict, report.Rationale = scanner.Aggregate(report.Pattern, report.Semantic)
	logging.PipelineDebug("scanned tip %s: %s", tip.ID, report.Verdict)
	return report
}

// IntegrateResult is the outcome of one integration run.
type IntegrateResult struct {
	Plan       *types.MergePlan
	BundlePath string
}

// Integrate synthesizes an approved tip and proposes the merged
// document for review. The whole load→parse→plan→propose sequence runs
// under an exclusive lock file so two integrate runs cannot interleave
// on the same document. synth.ErrNoActionableContent passes through for
// the caller to report as a skip, not a failure.
func (p *Pipeline) Integrate(ctx context.Context, tipID string) (*IntegrateResult, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Integrate")
	defer timer.Stop()

	tip, err := p.Store.Get(tipID)
	if err != nil {
		return nil, err
	}
	if tip.Status != types.StatusApproved {
		return nil, &types.ValidationError{
			ID:     tipID,
			Reason: fmt.Sprintf("integration requires approved status, tip is %s", tip.Status),
		}
	}

	unlock, err := acquireLock(p.LockPath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ins, err := p.Synthesizer.Synthesize(ctx, tip)
	if err != nil {
		return nil, err
	}

	raw, err := p.Documents.Load()
	if err != nil {
		return nil, err
	}
	doc := document.Parse(raw)

	plan, err := p.Planner.Plan(ctx, doc, ins)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("%s\n\nSource tip: %s (%s)", plan.Summary, tip.ID, tip.Title)
	bundle, err := p.Documents.Propose(plan.NewDocumentText, summary)
	if err != nil {
		return nil, err
	}

	logging.Pipeline("integrated tip %s: %s -> %s", tipID, plan.Operation, bundle)
	return &IntegrateResult{Plan: plan, BundlePath: bundle}, nil
}

// Export dumps every approved tip as a JSON file under dir, one file
// per tip keyed by id. Returns the number of tips written.
func (p *Pipeline) Export(dir string) (int, error) {
	tips, err := p.Store.ListByStatus(types.StatusApproved)
	if err != nil {
		return 0, fmt.Errorf("failed to list approved tips: %w", err)
	}
	if len(tips) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	written := 0
	for _, tip := range tips {
		data, err := json.MarshalIndent(tip, "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to encode tip %s: %w", tip.ID, err)
		}
		path := filepath.Join(dir, tip.ID+".json")
		if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}

	logging.Pipeline("exported %d approved tips to %s", written, dir)
	return written, nil
}

// acquireLock creates the lock file exclusively, returning a release
// func. A pre-existing lock means another integrate run is active.
func acquireLock(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another integration run holds the lock at %s", path)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() {
		if err := os.Remove(path); err != nil {
			logging.Get(logging.CategoryPipeline).Warn("failed to release lock %s: %v", path, err)
		}
	}, nil
}
