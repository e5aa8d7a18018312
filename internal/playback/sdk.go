// Package playback manages the playback session: connecting a player device,
// transferring audio to it, and driving it with capability-checked commands.
//
// [Controller] owns the session state machine. It consumes events from an
// [SDK], the player backend abstraction, on a single goroutine so state
// updates apply in arrival order. [ConnectSDK] is the concrete backend built
// on the Spotify Connect Web API.
package playback

import (
	"context"

	"github.com/soundctl/soundctl/internal/models"
)

// TokenFunc supplies a current access token for the player backend. It is
// called per connection attempt rather than capturing a token value, so the
// backend always authenticates with a live token. An empty token with a nil
// error means the session is unauthenticated.
type TokenFunc func(ctx context.Context) (string, error)

// ErrorKind classifies player backend errors.
type ErrorKind string

const (
	ErrorInitialization ErrorKind = "initialization"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorAccount        ErrorKind = "account"
	ErrorPlayback       ErrorKind = "playback"
)

// Event is a player backend notification. The concrete types are
// [ReadyEvent], [NotReadyEvent], [StateChangedEvent] and [ErrorEvent].
type Event interface {
	event()
}

// ReadyEvent signals the backend's device is online and addressable.
type ReadyEvent struct {
	DeviceID string
}

// NotReadyEvent signals the device went offline.
type NotReadyEvent struct {
	DeviceID string
}

// StateChangedEvent carries a fresh player state snapshot. Consumers replace
// their copy wholesale; snapshots are never merged.
type StateChangedEvent struct {
	State *models.PlayerState
}

// ErrorEvent carries a classified backend failure.
type ErrorEvent struct {
	Kind    ErrorKind
	Message string
}

func (ReadyEvent) event()        {}
func (NotReadyEvent) event()     {}
func (StateChangedEvent) event() {}
func (ErrorEvent) event()        {}

// SDK is the player backend driven by [Controller].
//
// Connect starts the backend and begins emitting on Events. The events
// channel closes when the backend shuts down. Command methods act on the
// backend's device directly and do not update local state; confirmation
// arrives as a later [StateChangedEvent].
type SDK interface {
	Connect(ctx context.Context) error
	Disconnect()
	Events() <-chan Event

	TogglePlay(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	Seek(ctx context.Context, positionMS int) error
}
