// Package ui implements the terminal interface: a device picker and a
// now-playing view driven by the playback controller.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/soundctl/soundctl/internal/models"
	"github.com/soundctl/soundctl/internal/playback"
	"github.com/soundctl/soundctl/internal/services"
	"github.com/soundctl/soundctl/internal/shared"
)

// refreshInterval drives the now-playing redraw.
const refreshInterval = time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DeviceListView ViewState = iota
	NowPlayingView
)

// DeviceCache persists devices seen during a session.
type DeviceCache interface {
	SaveAll(devices []models.Device) error
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	controller *playback.Controller
	api        services.PlayerAPI
	cache      DeviceCache

	view       ViewState
	width      int
	height     int
	deviceList list.Model
	err        error
	notice     string
	help       help.Model
	keys       keyMap
}

// keyMap defines the key bindings for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	enter   key.Binding
	back    key.Binding
	toggle  key.Binding
	next    key.Binding
	prev    key.Binding
	shuffle key.Binding
	repeat  key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "devices"),
		),
		toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		next: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next"),
		),
		prev: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "previous"),
		),
		shuffle: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "shuffle"),
		),
		repeat: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "repeat"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.toggle, k.next, k.prev},
		{k.shuffle, k.repeat, k.quit},
	}
}

// deviceItem wraps [models.Device] to implement list.Item.
type deviceItem struct {
	device models.Device
}

func (i deviceItem) FilterValue() string { return i.device.Name }
func (i deviceItem) Title() string       { return i.device.Name }
func (i deviceItem) Description() string {
	desc := i.device.Kind
	if i.device.IsActive {
		desc = fmt.Sprintf("%s • active", desc)
	}
	return desc
}

type devicesFetchedMsg struct {
	devices []models.Device
	err     error
}

type commandDoneMsg struct {
	err error
}

type tickMsg time.Time

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, controller *playback.Controller, api services.PlayerAPI, cache DeviceCache) *Model {
	return &Model{
		ctx:        ctx,
		controller: controller,
		api:        api,
		cache:      cache,
		view:       DeviceListView,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init fetches the device list and starts the redraw ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchDevices(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.deviceList.Width() == 0 {
			m.deviceList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DeviceListView:
			return m.handleDeviceListKeys(msg)
		case NowPlayingView:
			return m.handleNowPlayingKeys(msg)
		}

	case devicesFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		items := make([]list.Item, len(msg.devices))
		for i, device := range msg.devices {
			items[i] = deviceItem{device: device}
		}
		m.deviceList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.deviceList.Title = "Spotify Connect Devices"
		m.deviceList.SetSize(m.width-4, m.height-8)
		return m, nil

	case commandDoneMsg:
		m.notice = ""
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case tickMsg:
		return m, m.tick()
	}

	var cmd tea.Cmd
	if m.view == DeviceListView {
		m.deviceList, cmd = m.deviceList.Update(msg)
	}
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case DeviceListView:
		return m.renderDeviceList()
	case NowPlayingView:
		return m.renderNowPlaying()
	default:
		return ""
	}
}

func (m *Model) handleDeviceListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if selected, ok := m.deviceList.SelectedItem().(deviceItem); ok {
			m.view = NowPlayingView
			return m, m.transferTo(selected.device.ID)
		}
	}

	var cmd tea.Cmd
	m.deviceList, cmd = m.deviceList.Update(msg)
	return m, cmd
}

func (m *Model) handleNowPlayingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = DeviceListView
		return m, m.fetchDevices()
	case " ":
		return m, m.run(func() error { return m.controller.TogglePlay(m.ctx) })
	case "n":
		return m, m.run(func() error { return m.controller.NextTrack(m.ctx) })
	case "p":
		return m, m.run(func() error { return m.controller.PreviousTrack(m.ctx) })
	case "s":
		state := m.controller.PlayerState()
		shuffle := state == nil || !state.Shuffle
		return m, m.run(func() error { return m.controller.SetShuffle(m.ctx, shuffle) })
	case "r":
		return m, m.run(func() error { return m.controller.SetRepeat(m.ctx, m.nextRepeatMode()) })
	}
	return m, nil
}

// nextRepeatMode cycles off -> context -> track -> off.
func (m *Model) nextRepeatMode() models.RepeatMode {
	state := m.controller.PlayerState()
	if state == nil {
		return models.RepeatContext
	}
	switch state.Repeat {
	case models.RepeatOff:
		return models.RepeatContext
	case models.RepeatContext:
		return models.RepeatTrack
	default:
		return models.RepeatOff
	}
}

func (m *Model) fetchDevices() tea.Cmd {
	return func() tea.Msg {
		devices, err := m.api.Devices(m.ctx)
		if err == nil && m.cache != nil {
			// Cache failures only cost the offline picker.
			_ = m.cache.SaveAll(devices)
		}
		return devicesFetchedMsg{devices: devices, err: err}
	}
}

func (m *Model) transferTo(deviceID string) tea.Cmd {
	return m.run(func() error { return m.api.TransferPlayback(m.ctx, deviceID, true) })
}

func (m *Model) run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{err: fn()}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) renderDeviceList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.deviceList.View(), helpView)
}

func (m *Model) renderNowPlaying() string {
	title := styles.title.Render("Now Playing")

	var body string
	state := m.controller.PlayerState()
	switch {
	case m.controller.State() != playback.StateReady:
		body = styles.warn.Render(fmt.Sprintf("Player is %s", m.controller.State()))
	case state == nil || state.TrackWindow.Current == nil:
		body = styles.help.Render("Nothing playing")
	default:
		track := state.TrackWindow.Current
		status := "▶"
		if state.Paused {
			status = "⏸"
		}

		var flags string
		if state.Shuffle {
			flags += " shuffle"
		}
		if state.Repeat != models.RepeatOff {
			flags += fmt.Sprintf(" repeat:%s", state.Repeat)
		}

		body = fmt.Sprintf("%s %s • %s\n%s / %s%s",
			status,
			styles.ok.Render(track.Title),
			track.Artist,
			shared.FormatDuration(state.PositionMS),
			shared.FormatDuration(state.DurationMS),
			styles.help.Render(flags),
		)
	}

	var notice string
	if m.notice != "" {
		notice = "\n" + styles.warn.Render(m.notice)
	}
	if sessionErr := m.controller.Err(); sessionErr != nil {
		notice += "\n" + styles.err.Render(sessionErr.Error())
	}

	helpKeys := []key.Binding{m.keys.toggle, m.keys.next, m.keys.prev, m.keys.shuffle, m.keys.repeat, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, body, notice, helpView)
}
