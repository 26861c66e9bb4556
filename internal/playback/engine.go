// Package playback drives a live queue on an external media engine:
// just-in-time resolution of placeholder entries, hot-swapping URLs without
// disturbing queue position, and recovery from playback errors.
package playback

import "strings"

// PlaceholderURL marks a queue entry whose stream has not been resolved
// yet. The engine can enqueue it but not play it.
const PlaceholderURL = "playflow://pending"

// IsPlaceholder reports whether url still awaits resolution.
func IsPlaceholder(url string) bool {
	return strings.HasPrefix(url, "playflow://")
}

// QueueItem is one entry in the engine's queue.
type QueueItem struct {
	ID      string
	URL     string
	Title   string
	Headers map[string]string
}

// Engine abstracts the external media engine. Implementations wrap a
// platform player; tests use a fake. All methods are expected to return
// quickly; the engine performs its own buffering off this call path.
type Engine interface {
	Enqueue(items []QueueItem) error
	RemoveAt(index int) error
	InsertAt(index int, item QueueItem) error
	SkipTo(index int) error
	Next() error
	Previous() error
	Play() error
	Pause() error
	Stop() error
	SeekTo(positionMs int64) error

	// ActiveItem returns the currently active entry and its index. ok is
	// false when the queue is empty.
	ActiveItem() (item QueueItem, index int, ok bool)
	Queue() []QueueItem
}

// ErrorCode classifies an engine-level playback error.
type ErrorCode int

const (
	// ErrCodeUnknown covers errors the engine could not classify.
	ErrCodeUnknown ErrorCode = iota
	// ErrCodeNetworkTimeout and ErrCodeNetworkConnection are transient
	// network failures worth one same-URL retry.
	ErrCodeNetworkTimeout
	ErrCodeNetworkConnection
	// ErrCodeSourceHTTP means the source replied but refused the request
	// (expired or gated URL).
	ErrCodeSourceHTTP
	// ErrCodeDecode means the downloaded bytes were unplayable.
	ErrCodeDecode
)

// transient errors get exactly one same-URL retry before escalating.
func (c ErrorCode) transient() bool {
	return c == ErrCodeNetworkTimeout || c == ErrCodeNetworkConnection
}

// Command is a remote-control transport command passed through to the
// engine unchanged.
type Command int

const (
	CmdPlay Command = iota
	CmdPause
	CmdNext
	CmdPrevious
	CmdStop
)
