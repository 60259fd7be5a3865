package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/attnguard/pkg/debug"
	"github.com/vanderheijden86/attnguard/pkg/metrics"
)

// DefaultRevisionPollInterval is how often the SQLite backend checks for
// foreign writes.
const DefaultRevisionPollInterval = 500 * time.Millisecond

// SQLiteStore keeps each slot as a row tagged with a monotonically
// increasing revision. Change subscription polls for rows newer than the
// last observed revision; local writes notify directly and advance the
// baseline so the poll does not echo them.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	last    map[Key]json.RawMessage
	lastRev int64
	subs    map[int]SubscribeFunc
	nextID  int
	closed  bool

	poll   time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithRevisionPoll sets the foreign-write polling interval.
func WithRevisionPoll(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.poll = d
		}
	}
}

// OpenSQLite opens (creating if needed) the shared state database and
// starts the revision poller.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS slots (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			rev   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_slots_rev ON slots(rev);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		path: path,
		last: map[Key]json.RawMessage{},
		subs: make(map[int]SubscribeFunc),
		poll: DefaultRevisionPollInterval,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Seed the baseline so pre-existing slots do not fire a spurious
	// notification on startup.
	if err := s.refreshBaseline(); err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.pollLoop(ctx)

	return s, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Get reads one slot.
func (s *SQLiteStore) Get(ctx context.Context, key Key, out any) (bool, error) {
	defer metrics.Timer(metrics.StoreRead)()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading slot %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("decoding slot %s: %w", key, err)
	}
	return true, nil
}

// Set replaces the given slots in one transaction, all stamped with the
// same new revision, and notifies local subscribers.
func (s *SQLiteStore) Set(ctx context.Context, values map[Key]any) error {
	if len(values) == 0 {
		return nil
	}
	defer metrics.Timer(metrics.StoreWrite)()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	encoded := make(map[Key]json.RawMessage, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding slot %s: %w", key, err)
		}
		encoded[key] = raw
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	var rev int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(rev), 0) FROM slots`).Scan(&rev); err != nil {
		return fmt.Errorf("reading revision: %w", err)
	}
	rev++

	for key, raw := range encoded {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO slots (key, value, rev) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, rev = excluded.rev
		`, string(key), string(raw), rev)
		if err != nil {
			return fmt.Errorf("writing slot %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing write: %w", err)
	}

	s.mu.Lock()
	changes := ChangeSet{}
	for key, raw := range encoded {
		old := s.last[key]
		changes[key] = Change{Old: old, New: raw}
		s.last[key] = raw
	}
	if rev > s.lastRev {
		s.lastRev = rev
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, changes)
	return nil
}

// Subscribe registers a change callback.
func (s *SQLiteStore) Subscribe(fn SubscribeFunc) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close stops the poller and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = make(map[int]SubscribeFunc)
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return s.db.Close()
}

// refreshBaseline loads every slot and the max revision without
// notifying.
func (s *SQLiteStore) refreshBaseline() error {
	rows, err := s.db.Query(`SELECT key, value, rev FROM slots`)
	if err != nil {
		return fmt.Errorf("loading baseline: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var key, value string
		var rev int64
		if err := rows.Scan(&key, &value, &rev); err != nil {
			return fmt.Errorf("scanning baseline: %w", err)
		}
		s.last[Key(key)] = json.RawMessage(value)
		if rev > s.lastRev {
			s.lastRev = rev
		}
	}
	return rows.Err()
}

// pollLoop surfaces foreign writes as change notifications.
func (s *SQLiteStore) pollLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil && ctx.Err() == nil {
				debug.Log("sqlite store poll error: %v", err)
			}
		}
	}
}

func (s *SQLiteStore) pollOnce(ctx context.Context) error {
	s.mu.Lock()
	sinceRev := s.lastRev
	s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value, rev FROM slots WHERE rev > ?`, sinceRev)
	if err != nil {
		return err
	}
	defer rows.Close()

	type row struct {
		key   Key
		value json.RawMessage
		rev   int64
	}
	var fresh []row
	for rows.Next() {
		var r row
		var key, value string
		if err := rows.Scan(&key, &value, &r.rev); err != nil {
			return err
		}
		r.key = Key(key)
		r.value = json.RawMessage(value)
		fresh = append(fresh, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(fresh) == 0 {
		return nil
	}

	s.mu.Lock()
	changes := ChangeSet{}
	for _, r := range fresh {
		old := s.last[r.key]
		// A local write may have advanced the baseline between the
		// revision snapshot and this scan; skip rows we already hold.
		if string(old) == string(r.value) {
			if r.rev > s.lastRev {
				s.lastRev = r.rev
			}
			continue
		}
		changes[r.key] = Change{Old: old, New: r.value}
		s.last[r.key] = r.value
		if r.rev > s.lastRev {
			s.lastRev = r.rev
		}
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, changes)
	return nil
}

func (s *SQLiteStore) snapshotSubs() []SubscribeFunc {
	subs := make([]SubscribeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}
