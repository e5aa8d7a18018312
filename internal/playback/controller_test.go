package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/services"
	"github.com/soundctl/soundctl/internal/shared"
)

// fakeSDK feeds scripted events to the controller.
type fakeSDK struct {
	events chan Event

	mu            sync.Mutex
	disconnected  bool
	toggleCalls   int
	nextCalls     int
	previousCalls int
	seekCalls     int
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{events: make(chan Event, 16)}
}

func (f *fakeSDK) Connect(ctx context.Context) error { return nil }

func (f *fakeSDK) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.disconnected {
		f.disconnected = true
		close(f.events)
	}
}

func (f *fakeSDK) Events() <-chan Event { return f.events }

func (f *fakeSDK) TogglePlay(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleCalls++
	return nil
}

func (f *fakeSDK) NextTrack(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls++
	return nil
}

func (f *fakeSDK) PreviousTrack(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previousCalls++
	return nil
}

func (f *fakeSDK) Seek(ctx context.Context, positionMS int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekCalls++
	return nil
}

func (f *fakeSDK) calls() (toggle, next, previous, seek int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggleCalls, f.nextCalls, f.previousCalls, f.seekCalls
}

// fakePlayerAPI counts calls and pops scripted errors per endpoint.
type fakePlayerAPI struct {
	mu sync.Mutex

	transferCalls int
	transferErrs  []error

	playCalls int
	playErrs  []error

	shuffleCalls int
	repeatCalls  int
}

func (f *fakePlayerAPI) popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakePlayerAPI) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	if play {
		return fmt.Errorf("transfer must not start playback")
	}
	return f.popErr(&f.transferErrs)
}

func (f *fakePlayerAPI) Play(ctx context.Context, deviceID string, uris ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	return f.popErr(&f.playErrs)
}

func (f *fakePlayerAPI) SetShuffle(ctx context.Context, shuffle bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shuffleCalls++
	return nil
}

func (f *fakePlayerAPI) SetRepeat(ctx context.Context, mode models.RepeatMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repeatCalls++
	return nil
}

func (f *fakePlayerAPI) Devices(ctx context.Context) ([]models.Device, error) {
	return nil, nil
}

func (f *fakePlayerAPI) Pause(ctx context.Context) error { return nil }

func (f *fakePlayerAPI) Resume(ctx context.Context) error { return nil }

func (f *fakePlayerAPI) Next(ctx context.Context) error { return nil }

func (f *fakePlayerAPI) Previous(ctx context.Context) error { return nil }

func (f *fakePlayerAPI) SeekTo(ctx context.Context, positionMS int) error { return nil }
func (f *fakePlayerAPI) PlaybackState(ctx context.Context) (*services.PlaybackSnapshot, error) {
	return nil, nil
}

func (f *fakePlayerAPI) counts() (transfer, play int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transferCalls, f.playCalls
}

var _ services.PlayerAPI = (*fakePlayerAPI)(nil)

func newTestController(t *testing.T, sdk *fakeSDK, api *fakePlayerAPI) *Controller {
	t.Helper()

	c := NewController(sdk, api, nil)
	c.transferDelay = time.Millisecond
	c.dismissAfter = 50 * time.Millisecond

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("failed to start controller: %v", err)
	}
	t.Cleanup(c.Stop)

	return c
}

func waitReady(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("controller never became ready: %v", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestController(t *testing.T) {
	t.Run("Ready Event Transfers And Activates", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := newTestController(t, sdk, api)

		if c.State() != StateConnecting {
			t.Errorf("expected connecting state after start, got %s", c.State())
		}

		sdk.events <- ReadyEvent{DeviceID: "device_1"}
		waitReady(t, c)

		if c.DeviceID() != "device_1" {
			t.Errorf("expected device_1, got %q", c.DeviceID())
		}

		transfer, _ := api.counts()
		if transfer != 1 {
			t.Errorf("expected single transfer call, got %d", transfer)
		}
	})

	t.Run("Transfer Retry Is Bounded", func(t *testing.T) {
		t.Run("Succeeds On Third Attempt", func(t *testing.T) {
			sdk := newFakeSDK()
			api := &fakePlayerAPI{transferErrs: []error{
				shared.ErrServiceUnavailable,
				shared.ErrServiceUnavailable,
			}}
			c := newTestController(t, sdk, api)

			sdk.events <- ReadyEvent{DeviceID: "device_1"}
			waitReady(t, c)

			transfer, _ := api.counts()
			if transfer != 3 {
				t.Errorf("expected 3 transfer attempts, got %d", transfer)
			}
		})

		t.Run("Gives Up After Three Attempts", func(t *testing.T) {
			sdk := newFakeSDK()
			api := &fakePlayerAPI{transferErrs: []error{
				shared.ErrServiceUnavailable,
				shared.ErrServiceUnavailable,
				shared.ErrServiceUnavailable,
				shared.ErrServiceUnavailable,
			}}
			c := newTestController(t, sdk, api)

			sdk.events <- ReadyEvent{DeviceID: "device_1"}

			waitFor(t, func() bool { return c.State() == StateNotReady }, "controller never entered not_ready")

			transfer, _ := api.counts()
			if transfer != 3 {
				t.Errorf("a fourth transfer attempt must not occur, got %d", transfer)
			}
			if c.Err() == nil {
				t.Error("expected session error after exhausted transfer")
			}
		})
	})

	t.Run("Commands Rejected Outside Ready", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := newTestController(t, sdk, api)

		ctx := context.Background()
		commands := map[string]error{
			"PlayTrack":     c.PlayTrack(ctx, "spotify:track:track1"),
			"TogglePlay":    c.TogglePlay(ctx),
			"NextTrack":     c.NextTrack(ctx),
			"PreviousTrack": c.PreviousTrack(ctx),
			"Seek":          c.Seek(ctx, 1000),
			"SetShuffle":    c.SetShuffle(ctx, true),
			"SetRepeat":     c.SetRepeat(ctx, models.RepeatContext),
		}

		for name, err := range commands {
			if !errors.Is(err, shared.ErrPlayerNotReady) {
				t.Errorf("%s: expected ErrPlayerNotReady, got %v", name, err)
			}
		}

		transfer, play := api.counts()
		if transfer != 0 || play != 0 {
			t.Errorf("rejected commands must not reach the API, got transfer=%d play=%d", transfer, play)
		}
		toggle, next, previous, seek := sdk.calls()
		if toggle+next+previous+seek != 0 {
			t.Error("rejected commands must not reach the backend")
		}
	})

	t.Run("PlayTrack", func(t *testing.T) {
		t.Run("Stale Device Re-Transfers Once", func(t *testing.T) {
			sdk := newFakeSDK()
			api := &fakePlayerAPI{playErrs: []error{shared.ErrDeviceNotFound}}
			c := newTestController(t, sdk, api)

			sdk.events <- ReadyEvent{DeviceID: "device_1"}
			waitReady(t, c)

			if err := c.PlayTrack(context.Background(), "spotify:track:track1"); err != nil {
				t.Fatalf("expected retry to succeed, got %v", err)
			}

			transfer, play := api.counts()
			if play != 2 {
				t.Errorf("expected original call plus one retry, got %d", play)
			}
			if transfer != 2 {
				t.Errorf("expected initial transfer plus one re-transfer, got %d", transfer)
			}
		})

		t.Run("Retry Failure Is Returned", func(t *testing.T) {
			sdk := newFakeSDK()
			api := &fakePlayerAPI{playErrs: []error{shared.ErrDeviceNotFound, shared.ErrDeviceNotFound}}
			c := newTestController(t, sdk, api)

			sdk.events <- ReadyEvent{DeviceID: "device_1"}
			waitReady(t, c)

			err := c.PlayTrack(context.Background(), "spotify:track:track1")
			if !errors.Is(err, shared.ErrDeviceNotFound) {
				t.Errorf("expected ErrDeviceNotFound after failed retry, got %v", err)
			}

			_, play := api.counts()
			if play != 2 {
				t.Errorf("expected exactly 2 play calls, got %d", play)
			}
		})
	})

	t.Run("Capability Map", func(t *testing.T) {
		start := func(t *testing.T, state *models.PlayerState) (*Controller, *fakeSDK, *fakePlayerAPI) {
			sdk := newFakeSDK()
			api := &fakePlayerAPI{}
			c := newTestController(t, sdk, api)
			sdk.events <- ReadyEvent{DeviceID: "device_1"}
			waitReady(t, c)
			sdk.events <- StateChangedEvent{State: state}
			waitFor(t, func() bool { return c.PlayerState() != nil }, "state snapshot never applied")
			return c, sdk, api
		}

		t.Run("Previous Disallowed With No History", func(t *testing.T) {
			c, sdk, _ := start(t, &models.PlayerState{
				Disallows: models.Disallows{SkippingPrev: true},
			})

			err := c.PreviousTrack(context.Background())
			if !errors.Is(err, shared.ErrCommandDisallowed) {
				t.Errorf("expected ErrCommandDisallowed, got %v", err)
			}

			_, _, previous, _ := sdk.calls()
			if previous != 0 {
				t.Error("disallowed command must not reach the backend")
			}
		})

		t.Run("Previous Allowed With History", func(t *testing.T) {
			c, sdk, _ := start(t, &models.PlayerState{
				Disallows: models.Disallows{SkippingPrev: true},
				TrackWindow: models.TrackWindow{
					Previous: []models.Track{{ID: "earlier"}},
				},
			})

			if err := c.PreviousTrack(context.Background()); err != nil {
				t.Errorf("expected history to permit previous, got %v", err)
			}

			_, _, previous, _ := sdk.calls()
			if previous != 1 {
				t.Errorf("expected backend previous call, got %d", previous)
			}
		})

		t.Run("Seek Disallowed", func(t *testing.T) {
			c, sdk, _ := start(t, &models.PlayerState{
				Disallows: models.Disallows{Seeking: true},
			})

			if err := c.Seek(context.Background(), 5000); !errors.Is(err, shared.ErrCommandDisallowed) {
				t.Errorf("expected ErrCommandDisallowed, got %v", err)
			}
			_, _, _, seek := sdk.calls()
			if seek != 0 {
				t.Error("disallowed seek must not reach the backend")
			}
		})

		t.Run("Next Disallowed", func(t *testing.T) {
			c, sdk, _ := start(t, &models.PlayerState{
				Disallows: models.Disallows{SkippingNext: true},
			})

			if err := c.NextTrack(context.Background()); !errors.Is(err, shared.ErrCommandDisallowed) {
				t.Errorf("expected ErrCommandDisallowed, got %v", err)
			}
			_, next, _, _ := sdk.calls()
			if next != 0 {
				t.Error("disallowed next must not reach the backend")
			}
		})
	})

	t.Run("Shuffle Is Confirmed Not Optimistic", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := newTestController(t, sdk, api)

		sdk.events <- ReadyEvent{DeviceID: "device_1"}
		waitReady(t, c)
		sdk.events <- StateChangedEvent{State: &models.PlayerState{Shuffle: false}}
		waitFor(t, func() bool { return c.PlayerState() != nil }, "state snapshot never applied")

		if err := c.SetShuffle(context.Background(), true); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		// The request alone must not flip local state.
		if c.PlayerState().Shuffle {
			t.Error("shuffle flipped before confirmation snapshot")
		}

		sdk.events <- StateChangedEvent{State: &models.PlayerState{Shuffle: true}}
		waitFor(t, func() bool { return c.PlayerState().Shuffle }, "confirmation snapshot never applied")
	})

	t.Run("Account Error Is Persistent", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := newTestController(t, sdk, api)

		sdk.events <- ErrorEvent{Kind: ErrorAccount, Message: "premium required"}

		waitFor(t, func() bool { return c.Err() != nil }, "account error never surfaced")

		err := c.Err()
		if !err.Fatal {
			t.Error("expected account error to be fatal")
		}

		// Well past the transient dismissal window.
		time.Sleep(120 * time.Millisecond)
		if c.Err() == nil {
			t.Error("fatal error must persist")
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if waitErr := c.WaitReady(ctx); waitErr == nil {
			t.Error("expected WaitReady to fail on fatal error")
		}
	})

	t.Run("Transient Error Auto-Dismisses", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := newTestController(t, sdk, api)

		sdk.events <- ErrorEvent{Kind: ErrorPlayback, Message: "hiccup"}

		waitFor(t, func() bool { return c.Err() != nil }, "transient error never surfaced")
		waitFor(t, func() bool { return c.Err() == nil }, "transient error never dismissed")
	})

	t.Run("NotReady Rejects Commands", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := newTestController(t, sdk, api)

		sdk.events <- ReadyEvent{DeviceID: "device_1"}
		waitReady(t, c)

		sdk.events <- NotReadyEvent{DeviceID: "device_1"}
		waitFor(t, func() bool { return c.State() == StateNotReady }, "controller never left ready")

		_, play := api.counts()
		if err := c.PlayTrack(context.Background(), "spotify:track:track1"); !errors.Is(err, shared.ErrPlayerNotReady) {
			t.Errorf("expected ErrPlayerNotReady, got %v", err)
		}
		if _, playAfter := api.counts(); playAfter != play {
			t.Error("command in not_ready state must not reach the API")
		}

		// A later Ready event recovers the session.
		sdk.events <- ReadyEvent{DeviceID: "device_1"}
		waitReady(t, c)
	})

	t.Run("Stop Tears Down", func(t *testing.T) {
		sdk := newFakeSDK()
		api := &fakePlayerAPI{}
		c := NewController(sdk, api, nil)
		c.transferDelay = time.Millisecond
		c.dismissAfter = 50 * time.Millisecond

		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("failed to start controller: %v", err)
		}

		sdk.events <- ReadyEvent{DeviceID: "device_1"}
		waitReady(t, c)

		c.Stop()

		sdk.mu.Lock()
		disconnected := sdk.disconnected
		sdk.mu.Unlock()
		if !disconnected {
			t.Error("expected backend disconnect on stop")
		}
	})
}
