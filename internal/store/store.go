// Package store provides the durable queue for tips, partitioned by
// lifecycle status. Records are never deleted; approval and rejection
// move them between partitions so the full history stays auditable.
package store

import (
	"errors"

	"curator/internal/types"
)

var (
	// ErrDuplicateTip marks an append whose dedup key already exists in
	// any partition. Informational, not a failure: callers log and skip.
	ErrDuplicateTip = errors.New("duplicate tip")

	// ErrTipNotFound is returned when no record matches an id.
	ErrTipNotFound = errors.New("tip not found")

	// ErrTerminalStatus marks an attempted transition out of APPROVED
	// or REJECTED. The queue state machine is forward-only.
	ErrTerminalStatus = errors.New("tip is in a terminal status")

	// ErrUnsafeTip marks an attempt to approve a tip whose verdict is
	// UNSAFE. No override path exists.
	ErrUnsafeTip = errors.New("tip verdict is UNSAFE and cannot be approved")

	// ErrVerdictSet marks a second verdict write. Verdicts are set once
	// by the scanning pipeline; a re-scan creates a new record instead.
	ErrVerdictSet = errors.New("verdict already set")

	// ErrNotScanned marks an approval attempt on a tip that has no
	// verdict yet.
	ErrNotScanned = errors.New("tip has not been scanned")
)

// Stats summarizes queue contents per partition and verdict.
type Stats struct {
	Pending     int
	Approved    int
	Rejected    int
	Unsafe      int
	NeedsReview int
}

// TipStore is the durable queue contract. The pipeline never assumes a
// particular storage encoding behind it.
type TipStore interface {
	// Append stores a new tip in the pending partition. Returns
	// ErrDuplicateTip when the dedup key exists in any partition.
	Append(tip *types.Tip) error

	// Get returns the record with the given id.
	Get(id string) (*types.Tip, error)

	// ListByStatus returns all records in one partition, oldest first.
	ListByStatus(status types.Status) ([]*types.Tip, error)

	// HasDedupKey reports whether a dedup key exists in any partition.
	HasDedupKey(key string) (bool, error)

	// SetVerdict records the scanning pipeline's verdict exactly once.
	SetVerdict(id string, verdict types.Verdict, rationale string) error

	// Approve moves a scanned pending tip to the approved partition.
	// UNSAFE tips are refused with ErrUnsafeTip; terminal tips with
	// ErrTerminalStatus.
	Approve(id string) error

	// Reject moves a pending tip to the rejected partition with a
	// reviewer-supplied reason.
	Reject(id string, reason string) error

	// Stats summarizes queue contents.
	Stats() (Stats, error)

	Close() error
}
