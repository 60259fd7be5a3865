package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/attnguard/pkg/debug"
	"github.com/vanderheijden86/attnguard/pkg/metrics"
	"github.com/vanderheijden86/attnguard/pkg/watcher"
)

// FileStore keeps all slots in one JSON document written atomically
// (temp file + rename). Cross-process change notification rides on the
// file watcher; local writes notify subscribers directly, and the
// self-inflicted watcher event that follows diffs to nothing.
type FileStore struct {
	path string

	mu     sync.Mutex
	last   map[Key]json.RawMessage
	subs   map[int]SubscribeFunc
	nextID int
	closed bool

	w *watcher.Watcher
}

// FileOption configures a FileStore.
type FileOption func(*fileConfig)

type fileConfig struct {
	debounce  time.Duration
	poll      time.Duration
	forcePoll bool
}

// WithDebounce sets the watcher debounce window.
func WithDebounce(d time.Duration) FileOption {
	return func(c *fileConfig) { c.debounce = d }
}

// WithPoll sets the watcher polling interval for fallback mode.
func WithPoll(d time.Duration) FileOption {
	return func(c *fileConfig) { c.poll = d }
}

// WithForcePolling forces the watcher into polling mode.
func WithForcePolling(force bool) FileOption {
	return func(c *fileConfig) { c.forcePoll = force }
}

// OpenFile opens (or creates the directory for) the shared state file
// and starts watching it for foreign writes.
func OpenFile(path string, opts ...FileOption) (*FileStore, error) {
	cfg := fileConfig{
		debounce: watcher.DefaultDebounceDuration,
		poll:     watcher.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &FileStore{
		path: path,
		subs: make(map[int]SubscribeFunc),
	}

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.last = doc

	w, err := watcher.New(path,
		watcher.WithDebounceDuration(cfg.debounce),
		watcher.WithPollInterval(cfg.poll),
		watcher.WithForcePoll(cfg.forcePoll),
		watcher.WithOnChange(s.onFileChange),
		watcher.WithOnError(func(err error) {
			debug.Log("file store watch error: %v", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting watcher: %w", err)
	}
	s.w = w

	return s, nil
}

// Path returns the state file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the slot from disk so a foreign write is visible even before
// its notification lands.
func (s *FileStore) Get(ctx context.Context, key Key, out any) (bool, error) {
	defer metrics.Timer(metrics.StoreRead)()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := doc[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding slot %s: %w", key, err)
	}
	return true, nil
}

// Set replaces the given slots in one atomic document write and notifies
// local subscribers with the resulting diff.
func (s *FileStore) Set(ctx context.Context, values map[Key]any) error {
	if len(values) == 0 {
		return nil
	}
	defer metrics.Timer(metrics.StoreWrite)()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}

	doc, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("encoding slot %s: %w", key, err)
		}
		doc[key] = raw
	}

	if err := s.write(doc); err != nil {
		s.mu.Unlock()
		return err
	}

	changes := diff(s.last, doc)
	s.last = doc
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, changes)
	return nil
}

// Subscribe registers a change callback.
func (s *FileStore) Subscribe(fn SubscribeFunc) (cancel func()) {
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

// Close stops the watcher and invalidates the store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = make(map[int]SubscribeFunc)
	s.mu.Unlock()

	s.w.Stop()
	return nil
}

// onFileChange reloads the document after a foreign write and notifies
// with the diff against the last observed content. Own writes already
// advanced the baseline, so their watcher echo diffs to nothing.
func (s *FileStore) onFileChange() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	doc, err := s.load()
	if err != nil {
		s.mu.Unlock()
		debug.Log("file store reload error: %v", err)
		return
	}
	changes := diff(s.last, doc)
	s.last = doc
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, changes)
}

// load reads the whole document; a missing file is an empty document.
func (s *FileStore) load() (map[Key]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[Key]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	doc := map[Key]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		// A torn or foreign file is treated as empty rather than fatal;
		// the next write replaces it wholesale.
		debug.Log("file store: unreadable state file, starting empty: %v", err)
		return map[Key]json.RawMessage{}, nil
	}
	return doc, nil
}

// write lands the document atomically so readers never observe a
// half-written file.
func (s *FileStore) write(doc map[Key]json.RawMessage) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".attnguard-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

func (s *FileStore) snapshotSubs() []SubscribeFunc {
	subs := make([]SubscribeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

// diff computes the per-slot transitions between two documents.
func diff(prev, next map[Key]json.RawMessage) ChangeSet {
	changes := ChangeSet{}
	for key, nextRaw := range next {
		prevRaw, had := prev[key]
		if had && bytes.Equal(prevRaw, nextRaw) {
			continue
		}
		var old json.RawMessage
		if had {
			old = prevRaw
		}
		changes[key] = Change{Old: old, New: nextRaw}
	}
	for key, prevRaw := range prev {
		if _, still := next[key]; !still {
			changes[key] = Change{Old: prevRaw}
		}
	}
	return changes
}

// notify fans a non-empty change set out to subscribers, outside the
// store lock.
func notify(subs []SubscribeFunc, changes ChangeSet) {
	if len(changes) == 0 {
		return
	}
	for _, fn := range subs {
		fn(changes)
	}
}
