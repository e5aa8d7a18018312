package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/services"
	"github.com/soundctl/soundctl/internal/shared"
)

// statePollInterval is how often the Connect backend polls the playback state.
const statePollInterval = 2 * time.Second

// ConnectSDK implements [SDK] over the Spotify Connect Web API. It discovers
// a Connect device, then polls the playback state endpoint and translates the
// responses into the event stream the controller expects. Everything runs on
// one goroutine, so events arrive in poll order.
type ConnectSDK struct {
	api        services.PlayerAPI
	tokens     TokenFunc
	deviceName string
	logger     *log.Logger

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	deviceID string
	paused   bool
	hasState bool

	pollInterval time.Duration
}

// NewConnectSDK creates a Connect backend that prefers the device named
// deviceName during discovery and falls back to the account's active device.
func NewConnectSDK(api services.PlayerAPI, tokens TokenFunc, deviceName string, logger *log.Logger) *ConnectSDK {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ConnectSDK{
		api:          api,
		tokens:       tokens,
		deviceName:   deviceName,
		logger:       logger,
		events:       make(chan Event, 16),
		pollInterval: statePollInterval,
	}
}

// Connect authenticates, discovers a device, and starts the polling loop.
// A Ready event for the discovered device is emitted before Connect returns.
func (s *ConnectSDK) Connect(ctx context.Context) error {
	token, err := s.tokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve token: %w", err)
	}
	if token == "" {
		s.emit(ctx, ErrorEvent{Kind: ErrorAuthentication, Message: "not authenticated"})
		return shared.ErrNotAuthenticated
	}

	device, err := s.discover(ctx)
	if err != nil {
		s.emit(ctx, ErrorEvent{Kind: ErrorInitialization, Message: err.Error()})
		return err
	}

	s.mu.Lock()
	s.deviceID = device.ID
	s.mu.Unlock()

	s.emit(ctx, ReadyEvent{DeviceID: device.ID})
	s.logger.Debug("connect device discovered", "device", device.Name, "id", device.ID)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.poll(loopCtx)

	return nil
}

// Disconnect stops the polling loop and closes the events channel.
func (s *ConnectSDK) Disconnect() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	close(s.events)
}

// Events returns the backend event stream.
func (s *ConnectSDK) Events() <-chan Event {
	return s.events
}

// discover picks the Connect device to drive: the configured name if present,
// otherwise the account's active device, otherwise the first one listed.
func (s *ConnectSDK) discover(ctx context.Context) (*models.Device, error) {
	devices, err := s.api.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no devices available", shared.ErrDeviceNotFound)
	}

	if s.deviceName != "" {
		for i := range devices {
			if strings.EqualFold(devices[i].Name, s.deviceName) {
				return &devices[i], nil
			}
		}
	}

	for i := range devices {
		if devices[i].IsActive {
			return &devices[i], nil
		}
	}

	return &devices[0], nil
}

func (s *ConnectSDK) poll(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	ready := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, err := s.api.PlaybackState(ctx)
		if err != nil {
			if event, offline := s.classify(err); offline {
				if ready {
					ready = false
					s.emit(ctx, NotReadyEvent{DeviceID: s.DeviceID()})
				}
			} else {
				s.emit(ctx, event)
			}
			continue
		}

		if snapshot == nil {
			// No active playback anywhere on the account; the device itself
			// may still be addressable.
			continue
		}

		if !ready {
			ready = true
			s.mu.Lock()
			s.deviceID = snapshot.Device.ID
			s.mu.Unlock()
			s.emit(ctx, ReadyEvent{DeviceID: snapshot.Device.ID})
		} else if current := s.DeviceID(); current != snapshot.Device.ID {
			// Playback moved to another device behind our back.
			s.mu.Lock()
			s.deviceID = snapshot.Device.ID
			s.mu.Unlock()
			s.emit(ctx, NotReadyEvent{DeviceID: current})
			s.emit(ctx, ReadyEvent{DeviceID: snapshot.Device.ID})
		}

		state := snapshotToState(snapshot)

		s.mu.Lock()
		s.paused = state.Paused
		s.hasState = true
		s.mu.Unlock()

		s.emit(ctx, StateChangedEvent{State: state})
	}
}

// classify maps an API error to an event, or reports device-offline.
func (s *ConnectSDK) classify(err error) (ErrorEvent, bool) {
	switch {
	case errors.Is(err, shared.ErrDeviceNotFound):
		return ErrorEvent{}, true
	case errors.Is(err, shared.ErrTokenExpired), errors.Is(err, shared.ErrNotAuthenticated):
		return ErrorEvent{Kind: ErrorAuthentication, Message: err.Error()}, false
	case errors.Is(err, shared.ErrPremiumRequired):
		return ErrorEvent{Kind: ErrorAccount, Message: err.Error()}, false
	default:
		return ErrorEvent{Kind: ErrorPlayback, Message: err.Error()}, false
	}
}

func (s *ConnectSDK) emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// DeviceID returns the Connect device currently driven by the backend.
func (s *ConnectSDK) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// TogglePlay pauses or resumes based on the last observed playback state.
func (s *ConnectSDK) TogglePlay(ctx context.Context) error {
	s.mu.Lock()
	paused, known := s.paused, s.hasState
	s.mu.Unlock()

	if !known {
		snapshot, err := s.api.PlaybackState(ctx)
		if err != nil {
			return err
		}
		if snapshot == nil {
			return shared.ErrPlayerNotReady
		}
		paused = !snapshot.Playing
	}

	if paused {
		return s.api.Resume(ctx)
	}
	return s.api.Pause(ctx)
}

// NextTrack skips to the next track.
func (s *ConnectSDK) NextTrack(ctx context.Context) error {
	return s.api.Next(ctx)
}

// PreviousTrack skips to the previous track.
func (s *ConnectSDK) PreviousTrack(ctx context.Context) error {
	return s.api.Previous(ctx)
}

// Seek moves the current track to the given position.
func (s *ConnectSDK) Seek(ctx context.Context, positionMS int) error {
	return s.api.SeekTo(ctx, positionMS)
}

// snapshotToState converts a Web API snapshot into the SDK state shape.
func snapshotToState(snapshot *services.PlaybackSnapshot) *models.PlayerState {
	state := &models.PlayerState{
		Paused:     !snapshot.Playing,
		PositionMS: snapshot.ProgressMS,
		Shuffle:    snapshot.ShuffleState,
		Repeat:     snapshot.RepeatState,
		Disallows:  snapshot.Actions,
	}
	if snapshot.Track != nil {
		track := *snapshot.Track
		state.DurationMS = track.DurationMS
		state.TrackWindow.Current = &track
	}
	return state
}
