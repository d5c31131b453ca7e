package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"curator/internal/fingerprint"
	"curator/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine per pool.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tips.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTip(nativeID string) *types.Tip {
	return &types.Tip{
		Source:   types.SourceReddit,
		NativeID: nativeID,
		Title:    "a tip about " + nativeID,
		RawText:  "some raw tip content",
		Category: types.CategoryWorkflow,
		Origin: types.OriginMetadata{
			Author:    "someone",
			URL:       "https://reddit.example/" + nativeID,
			Score:     42,
			Timestamp: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		},
		DedupKey: fingerprint.Fingerprint(types.SourceReddit, nativeID),
	}
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_one")

	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}
	if tip.ID == "" {
		t.Fatal("append did not assign an id")
	}

	got, err := s.Get(tip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.NativeID != "t3_one" || got.Status != types.StatusPending {
		t.Errorf("got %+v", got)
	}
	if got.Origin.Score != 42 || got.Origin.Author != "someone" {
		t.Errorf("origin metadata lost: %+v", got.Origin)
	}
	if got.Scanned() {
		t.Error("fresh tip must not carry a verdict")
	}
}

// Dedup idempotence: storing the same source item twice yields one
// record, and the second attempt is the informational duplicate skip.
func TestAppendDuplicate(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append(newTip("t3_dup")); err != nil {
		t.Fatal(err)
	}
	err := s.Append(newTip("t3_dup"))
	if !errors.Is(err, ErrDuplicateTip) {
		t.Fatalf("err = %v, want ErrDuplicateTip", err)
	}

	tips, err := s.ListByStatus(types.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(tips) != 1 {
		t.Errorf("stored %d tips, want 1", len(tips))
	}
}

// The dedup key blocks re-insertion even after the original record has
// moved to a terminal partition.
func TestDedupAcrossPartitions(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_moved")
	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}
	if err := s.Reject(tip.ID, "off topic"); err != nil {
		t.Fatal(err)
	}

	if err := s.Append(newTip("t3_moved")); !errors.Is(err, ErrDuplicateTip) {
		t.Errorf("err = %v, want ErrDuplicateTip after move to rejected", err)
	}

	ok, err := s.HasDedupKey(tip.DedupKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("dedup key not visible across partitions")
	}
}

func TestSetVerdictWriteOnce(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_v")
	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}

	if err := s.SetVerdict(tip.ID, types.VerdictSafe, "clean"); err != nil {
		t.Fatal(err)
	}
	err := s.SetVerdict(tip.ID, types.VerdictUnsafe, "changed my mind")
	if !errors.Is(err, ErrVerdictSet) {
		t.Fatalf("second write: err = %v, want ErrVerdictSet", err)
	}

	got, _ := s.Get(tip.ID)
	if got.Verdict != types.VerdictSafe || got.Rationale != "clean" {
		t.Errorf("verdict mutated: %+v", got)
	}
}

func TestSetVerdictUnknownTip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetVerdict("nope", types.VerdictSafe, ""); !errors.Is(err, ErrTipNotFound) {
		t.Errorf("err = %v, want ErrTipNotFound", err)
	}
}

func TestApproveRequiresScan(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_unscanned")
	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}
	if err := s.Approve(tip.ID); !errors.Is(err, ErrNotScanned) {
		t.Errorf("err = %v, want ErrNotScanned", err)
	}
}

// An UNSAFE verdict permanently blocks approval; there is no override.
func TestApproveRefusesUnsafe(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_evil")
	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVerdict(tip.ID, types.VerdictUnsafe, "piped curl"); err != nil {
		t.Fatal(err)
	}

	if err := s.Approve(tip.ID); !errors.Is(err, ErrUnsafeTip) {
		t.Fatalf("err = %v, want ErrUnsafeTip", err)
	}
	got, _ := s.Get(tip.ID)
	if got.Status != types.StatusPending {
		t.Errorf("status = %s after refused approval, want pending", got.Status)
	}
}

func TestApprove(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_good")
	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVerdict(tip.ID, types.VerdictSafe, "fine"); err != nil {
		t.Fatal(err)
	}
	if err := s.Approve(tip.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(tip.ID)
	if got.Status != types.StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
	if got.ApprovedAt.IsZero() {
		t.Error("approved_at not recorded")
	}
}

// Terminal state: once approved or rejected, nothing moves a tip again.
func TestTerminalStatesImmutable(t *testing.T) {
	s := newTestStore(t)

	approved := newTip("t3_a")
	if err := s.Append(approved); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVerdict(approved.ID, types.VerdictSafe, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Approve(approved.ID); err != nil {
		t.Fatal(err)
	}

	rejected := newTip("t3_r")
	if err := s.Append(rejected); err != nil {
		t.Fatal(err)
	}
	if err := s.Reject(rejected.ID, "spam"); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{approved.ID, rejected.ID} {
		if err := s.Approve(id); !errors.Is(err, ErrTerminalStatus) {
			t.Errorf("Approve(%s) = %v, want ErrTerminalStatus", id, err)
		}
		if err := s.Reject(id, "again"); !errors.Is(err, ErrTerminalStatus) {
			t.Errorf("Reject(%s) = %v, want ErrTerminalStatus", id, err)
		}
	}
}

// A second process on the same database file must not move a tip out of
// a terminal state either; the guarded UPDATE catches what the other
// handle's in-process mutex cannot.
func TestTerminalStatesImmutableAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tips.db")
	a, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	tip := newTip("t3_shared")
	if err := a.Append(tip); err != nil {
		t.Fatal(err)
	}
	if err := a.SetVerdict(tip.ID, types.VerdictSafe, ""); err != nil {
		t.Fatal(err)
	}
	if err := a.Approve(tip.ID); err != nil {
		t.Fatal(err)
	}

	if err := b.Reject(tip.ID, "late objection"); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("cross-handle Reject = %v, want ErrTerminalStatus", err)
	}

	got, err := b.Get(tip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
}

func TestReject(t *testing.T) {
	s := newTestStore(t)
	tip := newTip("t3_rej")
	if err := s.Append(tip); err != nil {
		t.Fatal(err)
	}
	if err := s.Reject(tip.ID, "not relevant"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(tip.ID)
	if got.Status != types.StatusRejected || got.RejectionReason != "not relevant" {
		t.Errorf("got %+v", got)
	}
	if got.RejectedAt.IsZero() {
		t.Error("rejected_at not recorded")
	}
}

func TestListByStatusOrdering(t *testing.T) {
	s := newTestStore(t)
	for i, id := range []string{"t3_x", "t3_y", "t3_z"} {
		tip := newTip(id)
		tip.AddedAt = time.Date(2026, 8, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.Append(tip); err != nil {
			t.Fatal(err)
		}
	}

	tips, err := s.ListByStatus(types.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(tips) != 3 {
		t.Fatalf("got %d tips", len(tips))
	}
	for i := 1; i < len(tips); i++ {
		if tips[i].AddedAt.Before(tips[i-1].AddedAt) {
			t.Errorf("tips not ordered oldest first: %v then %v", tips[i-1].AddedAt, tips[i].AddedAt)
		}
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	safe := newTip("t3_s1")
	if err := s.Append(safe); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVerdict(safe.ID, types.VerdictSafe, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Approve(safe.ID); err != nil {
		t.Fatal(err)
	}

	bad := newTip("t3_s2")
	if err := s.Append(bad); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVerdict(bad.ID, types.VerdictUnsafe, "curl pipe"); err != nil {
		t.Fatal(err)
	}

	review := newTip("t3_s3")
	if err := s.Append(review); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVerdict(review.ID, types.VerdictNeedsReview, "uncertain"); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 2 || stats.Approved != 1 || stats.Rejected != 0 {
		t.Errorf("partition counts wrong: %+v", stats)
	}
	if stats.Unsafe != 1 || stats.NeedsReview != 1 {
		t.Errorf("verdict counts wrong: %+v", stats)
	}
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		tip  *types.Tip
	}{
		{"nil", nil},
		{"bad_source", &types.Tip{Source: "mastodon", NativeID: "x", DedupKey: "k"}},
		{"no_dedup_key", &types.Tip{Source: types.SourceReddit, NativeID: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Append(tt.tip)
			var ve *types.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}
