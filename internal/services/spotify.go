package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// requestTimeout bounds each API call independently of the caller's context.
const requestTimeout = 10 * time.Second

type followers struct {
	Total int `json:"total"`
}

// spotifyUser represents a Spotify user profile.
type spotifyUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
}

// spotifyArtist represents a Spotify artist.
type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// spotifyAlbum represents a Spotify album.
type spotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// spotifyTrack represents a Spotify track.
type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

func (t spotifyTrack) toModel() models.Track {
	track := models.Track{
		ID:         t.ID,
		Title:      t.Name,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		URI:        t.URI,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// spotifySimplePlaylist represents a simplified playlist object (used in lists).
type spotifySimplePlaylist struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Public      bool                 `json:"public"`
	Tracks      simplePlaylistTracks `json:"tracks"`
}

type spotifyPaginatedPlaylists struct {
	Items []spotifySimplePlaylist `json:"items"`
	Next  *string                 `json:"next"`
}

type spotifySavedTrack struct {
	Track spotifyTrack `json:"track"`
}

type spotifyPaginatedSavedTracks struct {
	Items []spotifySavedTrack `json:"items"`
}

type spotifyPaginatedTracks struct {
	Items []spotifyTrack `json:"items"`
}

// spotifyDevice represents a Spotify Connect device.
type spotifyDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
}

type spotifyDeviceList struct {
	Devices []spotifyDevice `json:"devices"`
}

// spotifyPlaybackState represents the /me/player response.
type spotifyPlaybackState struct {
	Device       spotifyDevice `json:"device"`
	IsPlaying    bool          `json:"is_playing"`
	ProgressMS   int           `json:"progress_ms"`
	ShuffleState bool          `json:"shuffle_state"`
	RepeatState  string        `json:"repeat_state"`
	Item         *spotifyTrack `json:"item"`
	Actions      struct {
		Disallows models.Disallows `json:"disallows"`
	} `json:"actions"`
}

// SpotifyService is the concrete Spotify Web API client. It implements
// [LibraryService] and [PlayerAPI], pulling live access tokens from an
// [oauth2.TokenSource] and rate-limiting all outbound requests.
type SpotifyService struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithBaseURL overrides the API base URL; used in tests.
func WithBaseURL(baseURL string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = baseURL }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) SpotifyOption {
	return func(s *SpotifyService) { s.httpClient = client }
}

// NewSpotifyService creates a Spotify client drawing tokens from the given source.
func NewSpotifyService(tokens oauth2.TokenSource, logger *log.Logger, opts ...SpotifyOption) *SpotifyService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	s := &SpotifyService{
		baseURL:    spotifyBaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: requestTimeout},
		// Spotify allows bursts but throttles sustained traffic around
		// 180 requests per minute.
		limiter: rate.NewLimiter(rate.Limit(3), 10),
		logger:  logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// doRequest performs an authenticated, rate-limited request to the API and
// decodes the JSON response into result when non-nil.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := s.tokens.Token()
	if err != nil {
		return err
	}

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if err := mapStatusError(resp.StatusCode); err != nil {
		s.logger.Debug("api request failed", "method", method, "endpoint", endpoint, "status", resp.StatusCode)
		return err
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// mapStatusError translates API status codes to the shared error taxonomy.
func mapStatusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return shared.ErrTokenExpired
	case status == http.StatusForbidden:
		return shared.ErrPremiumRequired
	case status == http.StatusNotFound:
		return shared.ErrDeviceNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, status)
	default:
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, status)
	}
}

// Me retrieves the authenticated user's profile.
func (s *SpotifyService) Me(ctx context.Context) (*models.UserProfile, error) {
	var user spotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	return &models.UserProfile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Country:     user.Country,
		Product:     user.Product,
		Followers:   user.Followers.Total,
	}, nil
}

// TopTracks retrieves the user's most played tracks over the given time range
// (short_term, medium_term, or long_term; empty defaults to medium_term).
func (s *SpotifyService) TopTracks(ctx context.Context, limit int, timeRange string) ([]models.Track, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	switch timeRange {
	case "":
		timeRange = "medium_term"
	case "short_term", "medium_term", "long_term":
	default:
		return nil, fmt.Errorf("%w: time range %q", shared.ErrInvalidArgument, timeRange)
	}

	var response spotifyPaginatedTracks
	endpoint := fmt.Sprintf("/me/top/tracks?limit=%d&time_range=%s", limit, timeRange)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Items))
	for _, item := range response.Items {
		tracks = append(tracks, item.toModel())
	}

	return tracks, nil
}

// Playlists retrieves all of the user's playlists, following pagination.
func (s *SpotifyService) Playlists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	limit := 50
	offset := 0

	for {
		var response spotifyPaginatedPlaylists
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			playlists = append(playlists, models.Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
			})
		}

		if response.Next == nil {
			break
		}
		offset += limit
	}

	return playlists, nil
}

// SavedTracks retrieves a page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) ([]models.Track, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var response spotifyPaginatedSavedTracks
	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Items))
	for _, item := range response.Items {
		tracks = append(tracks, item.Track.toModel())
	}

	return tracks, nil
}

// Devices lists the account's available Spotify Connect devices.
func (s *SpotifyService) Devices(ctx context.Context) ([]models.Device, error) {
	var response spotifyDeviceList
	if err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, &response); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(response.Devices))
	for _, d := range response.Devices {
		devices = append(devices, models.Device{
			ID:            d.ID,
			Name:          d.Name,
			Kind:          d.Type,
			IsActive:      d.IsActive,
			VolumePercent: d.VolumePercent,
		})
	}

	return devices, nil
}

// TransferPlayback routes playback to the given device.
func (s *SpotifyService) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	body := map[string]any{
		"device_ids": []string{deviceID},
		"play":       play,
	}
	return s.doRequest(ctx, http.MethodPut, "/me/player", body, nil)
}

// Play starts playback of the given URIs on the device, or resumes the
// device's current context when no URIs are given.
func (s *SpotifyService) Play(ctx context.Context, deviceID string, uris ...string) error {
	endpoint := "/me/player/play"
	if deviceID != "" {
		endpoint += "?device_id=" + url.QueryEscape(deviceID)
	}

	var body any
	if len(uris) > 0 {
		body = map[string]any{"uris": uris}
	}

	return s.doRequest(ctx, http.MethodPut, endpoint, body, nil)
}

// Pause pauses playback on the active device.
func (s *SpotifyService) Pause(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodPut, "/me/player/pause", nil, nil)
}

// Resume resumes playback on the active device.
func (s *SpotifyService) Resume(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodPut, "/me/player/play", nil, nil)
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodPost, "/me/player/next", nil, nil)
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodPost, "/me/player/previous", nil, nil)
}

// SeekTo seeks the current track to the given position.
func (s *SpotifyService) SeekTo(ctx context.Context, positionMS int) error {
	if positionMS < 0 {
		positionMS = 0
	}
	endpoint := "/me/player/seek?position_ms=" + strconv.Itoa(positionMS)
	return s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
}

// SetShuffle sets the shuffle state on the active device.
func (s *SpotifyService) SetShuffle(ctx context.Context, shuffle bool) error {
	endpoint := "/me/player/shuffle?state=" + strconv.FormatBool(shuffle)
	return s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
}

// SetRepeat sets the repeat mode on the active device.
func (s *SpotifyService) SetRepeat(ctx context.Context, mode models.RepeatMode) error {
	if !models.ValidRepeatMode(string(mode)) {
		return fmt.Errorf("%w: repeat mode %q", shared.ErrInvalidArgument, mode)
	}
	endpoint := "/me/player/repeat?state=" + url.QueryEscape(string(mode))
	return s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
}

// PlaybackState retrieves the current playback snapshot. A nil snapshot with
// a nil error means no device is playing.
func (s *SpotifyService) PlaybackState(ctx context.Context) (*PlaybackSnapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := s.tokens.Token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/me/player", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	// 204 means no active playback session anywhere on the account.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if err := mapStatusError(resp.StatusCode); err != nil {
		return nil, err
	}

	var state spotifyPlaybackState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	snapshot := &PlaybackSnapshot{
		Device: models.Device{
			ID:            state.Device.ID,
			Name:          state.Device.Name,
			Kind:          state.Device.Type,
			IsActive:      state.Device.IsActive,
			VolumePercent: state.Device.VolumePercent,
		},
		Playing:      state.IsPlaying,
		ProgressMS:   state.ProgressMS,
		ShuffleState: state.ShuffleState,
		RepeatState:  models.RepeatMode(state.RepeatState),
		Actions:      state.Actions.Disallows,
	}
	if state.Item != nil {
		track := state.Item.toModel()
		snapshot.Track = &track
	}

	return snapshot, nil
}
