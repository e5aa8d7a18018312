package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/services"
	"github.com/soundctl/soundctl/internal/shared"
)

// State is the playback session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateReady
	StateNotReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

const (
	// transferAttempts bounds the device-transfer loop after a Ready event.
	transferAttempts = 3
	transferDelay    = time.Second

	// errorDismissAfter is how long a transient playback error stays visible.
	errorDismissAfter = 4 * time.Second
)

// PlaybackError is a classified session error surfaced to consumers. Fatal
// errors persist until teardown; transient ones clear themselves.
type PlaybackError struct {
	Kind    ErrorKind
	Message string
	Fatal   bool
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Controller is the playback session state machine. A single goroutine
// consumes SDK events so state transitions apply in arrival order; command
// methods are safe to call from any goroutine and are rejected outside the
// Ready state before any network traffic is issued.
type Controller struct {
	sdk    SDK
	api    services.PlayerAPI
	logger *log.Logger

	mu          sync.Mutex
	state       State
	deviceID    string
	playerState *models.PlayerState
	lastErr     *PlaybackError
	errGen      int
	changed     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// test seams
	transferDelay time.Duration
	dismissAfter  time.Duration
}

// NewController creates a Controller driving the given backend. The api is
// used for device transfer and command endpoints the backend does not cover.
func NewController(sdk SDK, api services.PlayerAPI, logger *log.Logger) *Controller {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Controller{
		sdk:           sdk,
		api:           api,
		logger:        logger,
		state:         StateUninitialized,
		changed:       make(chan struct{}),
		transferDelay: transferDelay,
		dismissAfter:  errorDismissAfter,
	}
}

// Start connects the backend and begins applying its events. The session
// reaches Ready only after the device transfer succeeds.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	c.setState(StateConnecting)

	if err := c.sdk.Connect(c.ctx); err != nil {
		c.setError(&PlaybackError{Kind: ErrorInitialization, Message: err.Error(), Fatal: true})
		c.setState(StateNotReady)
		close(c.done)
		return err
	}

	go c.run()

	return nil
}

// Stop tears the session down: the event loop exits, timers die with the
// controller context, and the backend disconnects.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.sdk.Disconnect()
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-c.sdk.Events():
			if !ok {
				return
			}
			c.apply(event)
		}
	}
}

// apply handles one backend event. Runs only on the event loop goroutine.
func (c *Controller) apply(event Event) {
	switch e := event.(type) {
	case ReadyEvent:
		c.logger.Debug("device ready", "device_id", e.DeviceID)
		if err := c.transfer(e.DeviceID); err != nil {
			c.logger.Error("device transfer failed", "device_id", e.DeviceID, "error", err)
			c.setError(&PlaybackError{Kind: ErrorPlayback, Message: err.Error()})
			c.setState(StateNotReady)
			return
		}
		c.mu.Lock()
		c.deviceID = e.DeviceID
		c.mu.Unlock()
		c.setState(StateReady)

	case NotReadyEvent:
		c.logger.Debug("device offline", "device_id", e.DeviceID)
		c.setState(StateNotReady)

	case StateChangedEvent:
		c.mu.Lock()
		c.playerState = e.State
		c.mu.Unlock()
		c.notify()

	case ErrorEvent:
		fatal := e.Kind != ErrorPlayback
		c.setError(&PlaybackError{Kind: e.Kind, Message: e.Message, Fatal: fatal})
		if fatal {
			c.logger.Error("playback session error", "kind", e.Kind, "message", e.Message)
			c.setState(StateNotReady)
		}
	}
}

// transfer routes audio to the device without starting playback, retrying a
// bounded number of times with a fixed delay.
func (c *Controller) transfer(deviceID string) error {
	var lastErr error
	for attempt := 1; attempt <= transferAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.transferDelay):
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
		}

		if err := c.api.TransferPlayback(c.ctx, deviceID, false); err != nil {
			lastErr = err
			c.logger.Debug("transfer attempt failed", "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return lastErr
}

// requireReady snapshots the session if commands are currently accepted.
func (c *Controller) requireReady() (string, *models.PlayerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return "", nil, fmt.Errorf("%w: session is %s", shared.ErrPlayerNotReady, c.state)
	}
	return c.deviceID, c.playerState, nil
}

// PlayTrack starts playback of the given track URI on the session device.
// If the device has gone stale the controller re-transfers once and retries
// the play call a single time.
func (c *Controller) PlayTrack(ctx context.Context, uri string) error {
	deviceID, _, err := c.requireReady()
	if err != nil {
		return err
	}

	err = c.api.Play(ctx, deviceID, uri)
	if !errors.Is(err, shared.ErrDeviceNotFound) {
		return err
	}

	c.logger.Warn("device lost during play, re-transferring", "device_id", deviceID)
	if err := c.api.TransferPlayback(ctx, deviceID, false); err != nil {
		return err
	}

	return c.api.Play(ctx, deviceID, uri)
}

// TogglePlay pauses or resumes playback, honoring the capability map.
func (c *Controller) TogglePlay(ctx context.Context) error {
	_, state, err := c.requireReady()
	if err != nil {
		return err
	}

	if state != nil {
		if state.Paused && state.Disallows.Resuming {
			return fmt.Errorf("%w: resume", shared.ErrCommandDisallowed)
		}
		if !state.Paused && state.Disallows.Pausing {
			return fmt.Errorf("%w: pause", shared.ErrCommandDisallowed)
		}
	}

	return c.sdk.TogglePlay(ctx)
}

// NextTrack skips forward, honoring the capability map.
func (c *Controller) NextTrack(ctx context.Context) error {
	_, state, err := c.requireReady()
	if err != nil {
		return err
	}

	if state != nil && !state.CanSkipNext() {
		return fmt.Errorf("%w: next track", shared.ErrCommandDisallowed)
	}

	return c.sdk.NextTrack(ctx)
}

// PreviousTrack skips backward. Allowed when the capability map permits it or
// there is listening history to return to.
func (c *Controller) PreviousTrack(ctx context.Context) error {
	_, state, err := c.requireReady()
	if err != nil {
		return err
	}

	if state != nil && !state.CanSkipPrev() {
		return fmt.Errorf("%w: previous track", shared.ErrCommandDisallowed)
	}

	return c.sdk.PreviousTrack(ctx)
}

// Seek moves the current track position, honoring the capability map.
func (c *Controller) Seek(ctx context.Context, positionMS int) error {
	_, state, err := c.requireReady()
	if err != nil {
		return err
	}

	if state != nil && !state.CanSeek() {
		return fmt.Errorf("%w: seek", shared.ErrCommandDisallowed)
	}

	return c.sdk.Seek(ctx, positionMS)
}

// SetShuffle requests a shuffle change. Local state is not flipped here; the
// new value lands with the next state snapshot from the backend.
func (c *Controller) SetShuffle(ctx context.Context, shuffle bool) error {
	_, state, err := c.requireReady()
	if err != nil {
		return err
	}

	if state != nil && state.Disallows.TogglingShuffle {
		return fmt.Errorf("%w: toggle shuffle", shared.ErrCommandDisallowed)
	}

	return c.api.SetShuffle(ctx, shuffle)
}

// SetRepeat requests a repeat-mode change, confirmed by the next snapshot.
func (c *Controller) SetRepeat(ctx context.Context, mode models.RepeatMode) error {
	_, state, err := c.requireReady()
	if err != nil {
		return err
	}

	if state != nil && state.Disallows.TogglingRepeat {
		return fmt.Errorf("%w: toggle repeat", shared.ErrCommandDisallowed)
	}

	return c.api.SetRepeat(ctx, mode)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DeviceID returns the session device, empty until the first transfer succeeds.
func (c *Controller) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// PlayerState returns the last snapshot pushed by the backend, nil before the first.
func (c *Controller) PlayerState() *models.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerState
}

// Err returns the current session error, nil when healthy.
func (c *Controller) Err() *PlaybackError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// WaitReady blocks until the session reaches Ready, a fatal error lands, or
// ctx is cancelled.
func (c *Controller) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, lastErr, changed := c.state, c.lastErr, c.changed
		c.mu.Unlock()

		if state == StateReady {
			return nil
		}
		if lastErr != nil && lastErr.Fatal {
			return lastErr
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.notify()
}

// setError records an error. Transient errors clear themselves unless a newer
// error has replaced them in the meantime.
func (c *Controller) setError(err *PlaybackError) {
	c.mu.Lock()
	c.lastErr = err
	c.errGen++
	gen := c.errGen
	c.mu.Unlock()
	c.notify()

	if err.Fatal {
		return
	}

	time.AfterFunc(c.dismissAfter, func() {
		if c.ctx != nil && c.ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		if c.errGen == gen {
			c.lastErr = nil
		}
		c.mu.Unlock()
		c.notify()
	})
}

// notify wakes WaitReady and any other state watchers.
func (c *Controller) notify() {
	c.mu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}
