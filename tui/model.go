package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/njyeung/lipsync/backend"
	"github.com/njyeung/lipsync/config"
	"github.com/njyeung/lipsync/logger"
	"github.com/njyeung/lipsync/media"
	"github.com/njyeung/lipsync/player"
	"github.com/njyeung/lipsync/render"
	"github.com/njyeung/lipsync/timeline"
	"github.com/njyeung/lipsync/watch"
)

// refresh rate of the status and timeline rows
const snapshotInterval = 50 * time.Millisecond

var ErrSourceRemoved = errors.New("source file removed")

// Messages
type (
	probedMsg struct {
		sources []probedSource
	}
	probeErrorMsg  struct{ err error }
	snapshotMsg    struct{}
	sourceEventMsg watch.Event
)

type probedSource struct {
	kind  timeline.MediaKind
	path  string
	start float64
	info  media.Info
	err   error
}

// State represents the app state
type state int

const (
	stateLoading state = iota
	statePreview
	stateError
)

// Config is what the preview command hands the UI
type Config struct {
	Settings config.Settings

	VideoPath  string
	AudioPath  string
	VideoStart float64
	AudioStart float64

	// ExportDir receives render requests written with 'e'
	ExportDir string
}

// closer is implemented by media resources
type closer interface{ Close() }

// Model is the Bubble Tea model
type Model struct {
	state state
	cfg   Config

	engine   *player.Engine
	renderer *player.KittyRenderer
	prober   backend.Prober
	watcher  *watch.Watcher

	// track ID -> resource, for release on quit
	resources map[string]closer
	// source path -> track ID, for watcher events
	bySource map[string]string
	order    []string // track IDs in display order
	selected int

	snapshot player.Snapshot

	canvasW, canvasH int

	width   int
	height  int
	spinner spinner.Model
	err     error
	status  string
}

// NewModel creates a new TUI model. Frames are written to output.
func NewModel(cfg Config, output io.Writer) (Model, error) {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prober, err := backend.NewProber(cfg.Settings.Prober)
	if err != nil {
		return Model{}, err
	}

	w, err := watch.New()
	if err != nil {
		prober.Close()
		return Model{}, err
	}

	canvasW, canvasH := cfg.Settings.CanvasWidth, cfg.Settings.CanvasHeight
	renderer := player.NewKittyRenderer(output)
	renderer.SetUseShm(cfg.Settings.UseShm)
	if cols, rows, termW, termH, err := player.GetTerminalSize(); err == nil && cols > 0 && rows > 0 {
		renderer.SetTerminalSize(cols, rows, termW, termH)
		// leave room for the status and timeline rows
		canvasW, canvasH = player.FitCanvas(canvasW, canvasH, termW, termH*2/3)
	}

	engine := player.NewEngine(player.Config{
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
		MinTimeline:  cfg.Settings.MinTimelineSeconds,
		ReadyTimeout: cfg.Settings.ReadyTimeout,
	}, player.SystemClock{}, player.NewFrameTicker(cfg.Settings.TickInterval), renderer)

	return Model{
		state:     stateLoading,
		cfg:       cfg,
		engine:    engine,
		renderer:  renderer,
		prober:    prober,
		watcher:   w,
		resources: make(map[string]closer),
		bySource:  make(map[string]string),
		canvasW:   canvasW,
		canvasH:   canvasH,
		spinner:   s,
		status:    "Probing sources...",
	}, nil
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.probeSources,
	)
}

// probeSources looks up durations before anything is bound. A source the
// prober can't read is still bound and resolved from its resource.
func (m Model) probeSources() tea.Msg {
	var sources []probedSource
	if m.cfg.VideoPath != "" {
		sources = append(sources, probedSource{kind: timeline.Video, path: m.cfg.VideoPath, start: m.cfg.VideoStart})
	}
	if m.cfg.AudioPath != "" {
		sources = append(sources, probedSource{kind: timeline.Audio, path: m.cfg.AudioPath, start: m.cfg.AudioStart})
	}
	if len(sources) == 0 {
		return probeErrorMsg{render.ErrNothingToRender}
	}

	for i := range sources {
		ctx, cancel := context.WithTimeout(context.Background(), backend.ProbeTimeout)
		sources[i].info, sources[i].err = m.prober.Probe(ctx, sources[i].path)
		cancel()
		if sources[i].err != nil {
			logger.Warn("probe failed, resolving from decoder",
				logger.String("path", sources[i].path), logger.ErrorField(sources[i].err))
		}
	}
	return probedMsg{sources: sources}
}

func (m Model) listenForSourceEvents() tea.Msg {
	ev, ok := <-m.watcher.Events()
	if !ok {
		return nil
	}
	return sourceEventMsg(ev)
}

func snapshotTick() tea.Cmd {
	return tea.Tick(snapshotInterval, func(time.Time) tea.Msg {
		return snapshotMsg{}
	})
}

// bind opens a resource for each source and adds its track
func (m *Model) bind(sources []probedSource) error {
	for _, src := range sources {
		var (
			track timeline.Track
			err   error
		)
		if src.err == nil && src.info.Duration > 0 {
			track, err = timeline.NewTrack(src.kind, src.path, src.start, src.info.Duration)
		} else {
			track, err = timeline.NewPendingTrack(src.kind, src.path, src.start)
		}
		if err != nil {
			return err
		}

		var res interface {
			player.Resource
			closer
		}
		if src.kind == timeline.Video {
			res = media.OpenVideo(src.path, m.canvasW, m.canvasH)
		} else {
			res = media.OpenAudio(src.path)
		}

		if err := m.engine.AddTrack(track, res); err != nil {
			res.Close()
			return err
		}
		m.resources[track.ID] = res
		m.order = append(m.order, track.ID)

		if err := m.watcher.Add(src.path); err != nil {
			logger.Warn("cannot watch source", logger.String("path", src.path), logger.ErrorField(err))
		} else {
			m.bySource[src.path] = track.ID
		}
	}
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.shutdown()
			return m, tea.Quit
		}

		if m.state == statePreview {
			return m.updatePreview(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if cols, rows, termW, termH, err := player.GetTerminalSize(); err == nil {
			m.renderer.SetTerminalSize(cols, rows, termW, termH)
		}
		m.renderer.CenterCanvas(m.canvasW, m.canvasH, 2)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case probedMsg:
		if err := m.bind(msg.sources); err != nil {
			m.state = stateError
			m.err = err
			return m, nil
		}
		m.state = statePreview
		m.status = ""
		m.renderer.CenterCanvas(m.canvasW, m.canvasH, 2)
		m.snapshot = m.engine.Snapshot()
		return m, tea.Batch(snapshotTick(), m.listenForSourceEvents)

	case probeErrorMsg:
		m.state = stateError
		m.err = msg.err
		return m, nil

	case snapshotMsg:
		m.snapshot = m.engine.Snapshot()
		return m, snapshotTick()

	case sourceEventMsg:
		if id, ok := m.bySource[msg.Path]; ok && msg.Op == watch.Removed {
			if err := m.engine.FailTrack(id, fmt.Errorf("%w: %s", ErrSourceRemoved, msg.Path)); err == nil {
				m.status = fmt.Sprintf("%s was removed", filepath.Base(msg.Path))
			}
		}
		return m, m.listenForSourceEvents
	}

	return m, nil
}

func (m Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	frame := 1 / float64(m.cfg.Settings.FPS)

	switch msg.String() {
	case " ":
		if err := m.engine.Toggle(); err != nil {
			m.status = err.Error()
		} else {
			m.status = ""
		}

	case "h", "left":
		m.engine.SeekBy(-1)
	case "l", "right":
		m.engine.SeekBy(1)
	case ",":
		m.engine.SeekBy(-frame)
	case ".":
		m.engine.SeekBy(frame)
	case "0", "home":
		m.engine.SeekTo(0)

	case "tab":
		if len(m.order) > 0 {
			m.selected = (m.selected + 1) % len(m.order)
		}

	case "H", "L":
		if len(m.order) == 0 {
			break
		}
		delta := frame
		if msg.String() == "H" {
			delta = -frame
		}
		m.nudgeSelected(delta)

	case "e":
		path, err := m.export()
		if err != nil {
			m.status = fmt.Sprintf("Export failed: %v", err)
		} else {
			m.status = "Exported " + path
		}
	}

	m.snapshot = m.engine.Snapshot()
	return m, nil
}

// nudgeSelected moves the selected track by delta seconds, stopping at 0
func (m *Model) nudgeSelected(delta float64) {
	id := m.order[m.selected]
	for _, t := range m.engine.Tracks() {
		if t.ID != id {
			continue
		}
		if err := m.engine.MoveTrack(id, max(t.Start+delta, 0)); err != nil {
			m.status = err.Error()
		}
		return
	}
}

// export writes the render request for the current placement to ExportDir
func (m Model) export() (string, error) {
	params, err := m.renderParams()
	if err != nil {
		return "", err
	}
	req, err := render.NewRequest(params)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(m.cfg.ExportDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(m.cfg.ExportDir, "render-"+req.ID+".json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sub render.Submitter = render.JSONSubmitter{W: f, Indent: true}
	if err := sub.Submit(context.Background(), req); err != nil {
		return "", err
	}
	logger.Info("render request exported", logger.String("path", path), logger.String("id", req.ID))
	return path, nil
}

func (m Model) renderParams() (timeline.RenderParams, error) {
	video, audio := pickTracks(m.engine.Tracks())
	return timeline.BuildRenderParams(video, audio, float64(m.cfg.Settings.FPS), m.canvasW, m.canvasH)
}

// pickTracks returns the first track of each kind
func pickTracks(tracks []timeline.Track) (video, audio *timeline.Track) {
	for i := range tracks {
		t := &tracks[i]
		switch {
		case t.Kind == timeline.Video && video == nil:
			video = t
		case t.Kind == timeline.Audio && audio == nil:
			audio = t
		}
	}
	return video, audio
}

// shutdown stops playback and releases every resource
func (m Model) shutdown() {
	m.engine.Close()
	for _, res := range m.resources {
		res.Close()
	}
	m.watcher.Close()
	m.prober.Close()
	m.renderer.Clear()
}

// View renders the UI
func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return m.viewLoading()
	case stateError:
		return m.viewError()
	case statePreview:
		return m.viewPreview()
	default:
		return ""
	}
}
