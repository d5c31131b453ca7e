package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"curator/internal/logging"
	"curator/internal/types"
)

// SQLiteStore implements TipStore on a single SQLite file. A single
// connection plus WAL keeps writer discipline simple; the mutex guards
// multi-statement transitions.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS tips (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	native_id        TEXT NOT NULL,
	title            TEXT NOT NULL,
	raw_text         TEXT NOT NULL,
	category         TEXT NOT NULL,
	origin_json      TEXT NOT NULL,
	dedup_key        TEXT NOT NULL UNIQUE,
	status           TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
	verdict          TEXT NOT NULL DEFAULT '',
	rationale        TEXT NOT NULL DEFAULT '',
	added_at         TEXT NOT NULL,
	approved_at      TEXT,
	rejected_at      TEXT,
	rejection_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tips_status ON tips(status);
CREATE INDEX IF NOT EXISTS idx_tips_dedup ON tips(dedup_key);
`

// NewSQLiteStore opens (creating if needed) the queue database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("opening tip store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: path}, nil
}

// Append stores a new pending tip. The UNIQUE constraint on dedup_key
// backs the idempotence guarantee across every partition.
func (s *SQLiteStore) Append(tip *types.Tip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tip == nil {
		return &types.ValidationError{ID: "", Reason: "nil tip"}
	}
	if !tip.Source.Valid() {
		return &types.ValidationError{ID: tip.ID, Reason: fmt.Sprintf("unknown source %q", tip.Source)}
	}
	if tip.DedupKey == "" {
		return &types.ValidationError{ID: tip.ID, Reason: "empty dedup key"}
	}
	if tip.ID == "" {
		tip.ID = uuid.NewString()
	}
	if tip.Status == "" {
		tip.Status = types.StatusPending
	}
	if tip.Status != types.StatusPending {
		return &types.ValidationError{ID: tip.ID, Reason: "new tips must be pending"}
	}
	if tip.AddedAt.IsZero() {
		tip.AddedAt = time.Now().UTC()
	}

	originJSON, err := json.Marshal(tip.Origin)
	if err != nil {
		return &types.ValidationError{ID: tip.ID, Reason: fmt.Sprintf("origin metadata: %v", err)}
	}

	_, err = s.db.Exec(`INSERT INTO tips
		(id, source, native_id, title, raw_text, category, origin_json, dedup_key, status, verdict, rationale, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tip.ID, string(tip.Source), tip.NativeID, tip.Title, tip.RawText,
		string(tip.Category), string(originJSON), tip.DedupKey,
		string(tip.Status), string(tip.Verdict), tip.Rationale,
		tip.AddedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			logging.StoreDebug("duplicate dedup key %s, skipping", tip.DedupKey)
			return ErrDuplicateTip
		}
		return fmt.Errorf("failed to insert tip: %w", err)
	}

	logging.StoreDebug("appended tip %s (%s)", tip.ID, tip.DedupKey)
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get returns the record with the given id.
func (s *SQLiteStore) Get(id string) (*types.Tip, error) {
	row := s.db.QueryRow(selectColumns+" FROM tips WHERE id = ?", id)
	tip, err := scanTip(row)
	if err == sql.ErrNoRows {
		return nil, ErrTipNotFound
	}
	return tip, err
}

// ListByStatus returns one partition, oldest first.
func (s *SQLiteStore) ListByStatus(status types.Status) ([]*types.Tip, error) {
	rows, err := s.db.Query(selectColumns+" FROM tips WHERE status = ? ORDER BY added_at", string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tips: %w", err)
	}
	defer rows.Close()

	var tips []*types.Tip
	for rows.Next() {
		tip, err := scanTip(rows)
		if err != nil {
			return nil, err
		}
		tips = append(tips, tip)
	}
	return tips, rows.Err()
}

// HasDedupKey reports whether key exists in any partition.
func (s *SQLiteStore) HasDedupKey(key string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tips WHERE dedup_key = ?", key).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return n > 0, nil
}

// SetVerdict records the scan outcome. Write-once: a row that already
// carries a verdict refuses a second write.
func (s *SQLiteStore) SetVerdict(id string, verdict types.Verdict, rationale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch verdict {
	case types.VerdictSafe, types.VerdictUnsafe, types.VerdictNeedsReview:
	default:
		return &types.ValidationError{ID: id, Reason: fmt.Sprintf("unknown verdict %q", verdict)}
	}

	res, err := s.db.Exec("UPDATE tips SET verdict = ?, rationale = ? WHERE id = ? AND verdict = ''",
		string(verdict), rationale, id)
	if err != nil {
		return fmt.Errorf("failed to set verdict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set verdict: %w", err)
	}
	if n == 0 {
		var existing string
		err := s.db.QueryRow("SELECT verdict FROM tips WHERE id = ?", id).Scan(&existing)
		if err == sql.ErrNoRows {
			return ErrTipNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to set verdict: %w", err)
		}
		return ErrVerdictSet
	}

	logging.Store("tip %s verdict=%s", id, verdict)
	return nil
}

// Approve moves a pending tip to the approved partition. The UNSAFE
// check lives here, not in the CLI, so no caller can route around it.
func (s *SQLiteStore) Approve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.Get(id)
	if err != nil {
		return err
	}
	if tip.Status.Terminal() {
		return ErrTerminalStatus
	}
	if !tip.Scanned() {
		return ErrNotScanned
	}
	if tip.Verdict == types.VerdictUnsafe {
		logging.Store("refused approval of unsafe tip %s", id)
		return ErrUnsafeTip
	}

	// The status guard closes the window against a second process
	// transitioning the row between our read and this write.
	res, err := s.db.Exec("UPDATE tips SET status = ?, approved_at = ? WHERE id = ? AND status = ?",
		string(types.StatusApproved), time.Now().UTC().Format(time.RFC3339Nano),
		id, string(types.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to approve tip: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to approve tip: %w", err)
	} else if n == 0 {
		return ErrTerminalStatus
	}
	logging.Store("tip %s approved", id)
	return nil
}

// Reject moves a pending tip to the rejected partition.
func (s *SQLiteStore) Reject(id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.Get(id)
	if err != nil {
		return err
	}
	if tip.Status.Terminal() {
		return ErrTerminalStatus
	}

	res, err := s.db.Exec("UPDATE tips SET status = ?, rejected_at = ?, rejection_reason = ? WHERE id = ? AND status = ?",
		string(types.StatusRejected), time.Now().UTC().Format(time.RFC3339Nano), reason,
		id, string(types.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to reject tip: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to reject tip: %w", err)
	} else if n == 0 {
		return ErrTerminalStatus
	}
	logging.Store("tip %s rejected: %s", id, reason)
	return nil
}

// Stats summarizes queue contents.
func (s *SQLiteStore) Stats() (Stats, error) {
	var st Stats
	rows, err := s.db.Query("SELECT status, verdict, COUNT(*) FROM tips GROUP BY status, verdict")
	if err != nil {
		return st, fmt.Errorf("failed to read stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, verdict string
		var n int
		if err := rows.Scan(&status, &verdict, &n); err != nil {
			return st, err
		}
		switch types.Status(status) {
		case types.StatusPending:
			st.Pending += n
		case types.StatusApproved:
			st.Approved += n
		case types.StatusRejected:
			st.Rejected += n
		}
		switch types.Verdict(verdict) {
		case types.VerdictUnsafe:
			st.Unsafe += n
		case types.VerdictNeedsReview:
			st.NeedsReview += n
		}
	}
	return st, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	logging.StoreDebug("closing tip store at %s", s.dbPath)
	return s.db.Close()
}

const selectColumns = `SELECT id, source, native_id, title, raw_text, category, origin_json,
	dedup_key, status, verdict, rationale, added_at, approved_at, rejected_at, rejection_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTip(row rowScanner) (*types.Tip, error) {
	var tip types.Tip
	var source, category, status, verdict, originJSON, addedAt string
	var approvedAt, rejectedAt sql.NullString

	err := row.Scan(&tip.ID, &source, &tip.NativeID, &tip.Title, &tip.RawText,
		&category, &originJSON, &tip.DedupKey, &status, &verdict,
		&tip.Rationale, &addedAt, &approvedAt, &rejectedAt, &tip.RejectionReason)
	if err != nil {
		return nil, err
	}

	tip.Source = types.Source(source)
	tip.Category = types.Category(category)
	tip.Status = types.Status(status)
	tip.Verdict = types.Verdict(verdict)

	if err := json.Unmarshal([]byte(originJSON), &tip.Origin); err != nil {
		return nil, &types.ValidationError{ID: tip.ID, Reason: fmt.Sprintf("origin metadata: %v", err)}
	}
	if tip.AddedAt, err = time.Parse(time.RFC3339Nano, addedAt); err != nil {
		return nil, &types.ValidationError{ID: tip.ID, Reason: fmt.Sprintf("added_at: %v", err)}
	}
	if approvedAt.Valid && approvedAt.String != "" {
		if tip.ApprovedAt, err = time.Parse(time.RFC3339Nano, approvedAt.String); err != nil {
			return nil, &types.ValidationError{ID: tip.ID, Reason: fmt.Sprintf("approved_at: %v", err)}
		}
	}
	if rejectedAt.Valid && rejectedAt.String != "" {
		if tip.RejectedAt, err = time.Parse(time.RFC3339Nano, rejectedAt.String); err != nil {
			return nil, &types.ValidationError{ID: tip.ID, Reason: fmt.Sprintf("rejected_at: %v", err)}
		}
	}

	return &tip, nil
}
