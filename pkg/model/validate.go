package model

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Capacity limits enforced at the write boundary. A save that exceeds any
// of them is rejected before it reaches the store, so a bad save can never
// corrupt the shared state.
const (
	// MaxImageBytes bounds the source file behind the panic image data URL.
	MaxImageBytes = 1 << 20
	// MaxAudioBytes bounds the source file behind the panic audio data URL.
	MaxAudioBytes = 5 << 20
	// MaxPanicContentBytes bounds the encoded panic content as a whole.
	MaxPanicContentBytes = 8 << 20
	// MaxSettingsBytes bounds the encoded UserSettings document.
	MaxSettingsBytes = 10 << 20
	// MaxBlockedURLs bounds the blocklist length.
	MaxBlockedURLs = 50
	// MaxDomainLength is the longest accepted blocklist entry.
	MaxDomainLength = 253

	// DefaultImageMaxWidth is the panic image render width when unset.
	DefaultImageMaxWidth = 200
	// MinImageMaxWidth is the smallest accepted panic image render width.
	MinImageMaxWidth = 50
)

// Validation errors returned by UserSettings.Validate.
var (
	ErrPanicContentTooLarge = errors.New("panic content exceeds size limit")
	ErrSettingsTooLarge     = errors.New("settings exceed size limit")
	ErrImageTooLarge        = errors.New("panic image exceeds size limit")
	ErrAudioTooLarge        = errors.New("panic audio exceeds size limit")
	ErrTooManyBlockedURLs   = errors.New("too many blocked URLs")
	ErrBlockedURLTooLong    = errors.New("blocked URL exceeds length limit")
)

// Normalize clamps numeric settings to their minimums and fills defaults,
// mirroring what the save path does with free-form input. It never fails:
// nonsense becomes the default, not an error.
func (s UserSettings) Normalize() UserSettings {
	out := s.Clone()
	if out.SessionMinutes < 1 {
		out.SessionMinutes = 25
	}
	if out.BreakMinutes < 1 {
		out.BreakMinutes = 5
	}
	if out.PomodoroBlocks < 1 {
		out.PomodoroBlocks = 4
	}
	if out.CurrentBlock < 1 {
		out.CurrentBlock = 1
	}
	out.PanicContent = out.PanicContent.Normalize()
	if out.BlockedURLs == nil {
		out.BlockedURLs = []string{}
	}
	return out
}

// Normalize trims panic items, drops empties, and falls back to a stock
// prompt when nothing survives. The image width is clamped to its minimum.
func (c PanicContent) Normalize() PanicContent {
	out := c.Clone()
	items := out.Items[:0]
	for _, item := range out.Items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		items = []string{"Focus on your task"}
	}
	out.Items = items
	if out.Title == "" {
		out.Title = "Stay focused"
	}
	if out.ImageMaxWidth == 0 {
		out.ImageMaxWidth = DefaultImageMaxWidth
	}
	if out.ImageMaxWidth < MinImageMaxWidth {
		out.ImageMaxWidth = MinImageMaxWidth
	}
	return out
}

// Validate enforces the capacity limits. The caller keeps its in-memory
// value untouched on failure; nothing is persisted.
func (s UserSettings) Validate() error {
	if len(s.BlockedURLs) > MaxBlockedURLs {
		return fmt.Errorf("%w: %d entries (max %d)", ErrTooManyBlockedURLs, len(s.BlockedURLs), MaxBlockedURLs)
	}
	for _, u := range s.BlockedURLs {
		if len(u) > MaxDomainLength {
			return fmt.Errorf("%w: %q", ErrBlockedURLTooLong, u[:MaxDomainLength])
		}
	}
	if err := s.PanicContent.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if len(encoded) > MaxSettingsBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrSettingsTooLarge, len(encoded), MaxSettingsBytes)
	}
	return nil
}

// Validate enforces the per-medium and combined panic content limits.
// Data URLs run roughly 4/3 the source size, so the per-medium checks
// scale the limits accordingly.
func (c PanicContent) Validate() error {
	if limit := MaxImageBytes * 4 / 3; len(c.ImageDataURL) > limit {
		return fmt.Errorf("%w: %d bytes encoded (max %d)", ErrImageTooLarge, len(c.ImageDataURL), limit)
	}
	if limit := MaxAudioBytes * 4 / 3; len(c.AudioDataURL) > limit {
		return fmt.Errorf("%w: %d bytes encoded (max %d)", ErrAudioTooLarge, len(c.AudioDataURL), limit)
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding panic content: %w", err)
	}
	if len(encoded) > MaxPanicContentBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPanicContentTooLarge, len(encoded), MaxPanicContentBytes)
	}
	return nil
}
