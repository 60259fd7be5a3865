// Package store is the persisted shared state behind every attnguard
// client: three independently writable slots with get/set/subscribe
// semantics and last-writer-wins replacement. Two backends exist, a JSON
// file watched with fsnotify and a SQLite database polled by revision;
// both deliver change notifications as old/new pairs per slot.
//
// Consumers must tolerate any subset of slots being absent (first run)
// and substitute defaults; the Hydrate helpers implement that contract,
// including the short read timeouts that keep UI startup from blocking.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/attnguard/pkg/model"
)

// Key names a slot in the store.
type Key string

// The three slots the core acts on. Notifications for any other key are
// delivered as-is and ignored by the syncer.
const (
	KeyUserSettings   Key = "userSettings"
	KeyTimerState     Key = "timerState"
	KeyPanicModalOpen Key = "panicModalOpen"
)

// Change is one slot's transition as seen by a subscriber. Old is nil
// when the slot was absent before the write.
type Change struct {
	Old json.RawMessage
	New json.RawMessage
}

// ChangeSet maps changed slots to their transitions. One write that
// replaces several slots produces one ChangeSet.
type ChangeSet map[Key]Change

// SubscribeFunc receives change notifications. Callbacks run outside the
// store's lock and must be idempotent: the same logical change can be
// observed again through the reconciliation path.
type SubscribeFunc func(ChangeSet)

// ErrClosed is returned by operations on a store whose hosting context
// has been torn down. Callers treat it as a silent no-op: there is
// nothing left to write to and retrying would only resurrect work for a
// destroyed context.
var ErrClosed = errors.New("store closed: context invalidated")

// IsClosed reports whether an error carries the invalidated-context
// signature, either as the sentinel or by message text from a lower
// layer.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrClosed) || strings.Contains(err.Error(), "invalidated")
}

// Store is the shared-store contract: full-value slot replacement,
// point reads, and change subscription. No transactions span slots
// beyond a single Set call, and ordering across processes is only as
// strong as the backend's write visibility.
type Store interface {
	// Get unmarshals the slot into out and reports whether it existed.
	Get(ctx context.Context, key Key, out any) (bool, error)
	// Set replaces every given slot in one write. Values are marshaled
	// as JSON documents.
	Set(ctx context.Context, values map[Key]any) error
	// Subscribe registers a change callback and returns its cancel
	// function. Registration is cheap and immediate.
	Subscribe(fn SubscribeFunc) (cancel func())
	// Close tears the store down; subsequent operations return ErrClosed.
	Close() error
}

// Hydration read timeouts. Reads used for UI startup resolve to a safe
// default rather than blocking; the timer slot gets a longer budget
// because it is read first, before the backend is warm.
const (
	SettingsReadTimeout = 300 * time.Millisecond
	TimerReadTimeout    = 1500 * time.Millisecond
	FlagReadTimeout     = 300 * time.Millisecond
)

// HydrateTimerState reads the timer slot, falling back to the first-run
// default on absence, error, or timeout.
func HydrateTimerState(ctx context.Context, s Store) model.TimerState {
	return hydrate(ctx, s, KeyTimerState, TimerReadTimeout, model.DefaultTimerState())
}

// HydrateUserSettings reads the settings slot, falling back to the
// first-run defaults on absence, error, or timeout.
func HydrateUserSettings(ctx context.Context, s Store) model.UserSettings {
	return hydrate(ctx, s, KeyUserSettings, SettingsReadTimeout, model.DefaultUserSettings())
}

// HydratePanicOpen reads the panic flag, defaulting to closed.
func HydratePanicOpen(ctx context.Context, s Store) bool {
	return hydrate(ctx, s, KeyPanicModalOpen, FlagReadTimeout, false)
}

// hydrate runs the read in its own goroutine so a wedged backend cannot
// stall startup past the timeout. Absence, decode failure, error, and
// timeout all resolve to the given default.
func hydrate[T any](ctx context.Context, s Store, key Key, timeout time.Duration, def T) T {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		raw   json.RawMessage
		found bool
	}
	done := make(chan result, 1)
	go func() {
		var raw json.RawMessage
		found, err := s.Get(ctx, key, &raw)
		if err != nil {
			found = false
		}
		done <- result{raw: raw, found: found}
	}()

	select {
	case <-ctx.Done():
		return def
	case r := <-done:
		if !r.found {
			return def
		}
		var out T
		if err := json.Unmarshal(r.raw, &out); err != nil {
			return def
		}
		return out
	}
}
