// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zaibaki/ResilientTask-Mission-Control/dashboard"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/tui"
	"github.com/zaibaki/ResilientTask-Mission-Control/poller"
	"github.com/zaibaki/ResilientTask-Mission-Control/quota"
	"github.com/zaibaki/ResilientTask-Mission-Control/session"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/tasks"
	"github.com/zaibaki/ResilientTask-Mission-Control/view"
)

// Backend is what the model reads and drives. *dashboard.Dashboard
// satisfies it.
type Backend interface {
	Session() (session.Session, bool)
	Polling() poller.State
	Tasks() []taskapi.Task
	Project(filter view.Filter, order view.Order) view.Projection
	Quota() quota.State
	Subscribe() (changes <-chan struct{}, cancel func())

	Refresh(ctx context.Context)
	Submit(ctx context.Context, request taskapi.DispatchRequest) ([]taskapi.Task, error)
	Cancel(ctx context.Context, id int64) (string, error)
	KillAll(ctx context.Context) (string, error)
	DeleteAll(ctx context.Context) (string, error)
}

// Options customize a Model. Zero fields take the defaults.
type Options struct {
	Theme    *tui.Theme
	Keys     *KeyMap
	Clock    clock.Clock
	Defaults tasks.Defaults

	// Color is "auto", "ascii", "ansi", "ansi256" or "truecolor". Run
	// applies it; NewModel ignores it.
	Color string
}

// mode decides where key presses go.
type mode int

const (
	modeList mode = iota
	modeSearch
	modeForm
	modeConfirm
)

// bulkAction is the destructive action awaiting confirmation.
type bulkAction int

const (
	bulkKillAll bulkAction = iota
	bulkPurge
)

const (
	// statusFadeDelay is how long a status message replaces the help line.
	statusFadeDelay = 5 * time.Second

	// animationInterval paces re-renders while rows are highlighted.
	animationInterval = 100 * time.Millisecond

	// detailHeight is the number of lines under the list describing the
	// selected task.
	detailHeight = 4

	// chromeHeight counts every line that is not a list row: header,
	// cards, quota, two dividers, the detail block and the status bar.
	chromeHeight = 6 + detailHeight
)

// changeMsg reports that the backend's state changed.
type changeMsg struct{}

// actionResultMsg reports the outcome of a backend call started from
// the keyboard.
type actionResultMsg struct {
	verb    string
	message string
	err     error
}

// statusFadeMsg clears the status line if nothing replaced it since.
type statusFadeMsg struct{ serial int }

type animationTickMsg struct{}

type statusLine struct {
	text   string
	level  slog.Level
	serial int
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	backend  Backend
	theme    tui.Theme
	keys     KeyMap
	clock    clock.Clock
	defaults tasks.Defaults

	width  int
	height int

	filter     view.Filter
	order      view.Order
	projection view.Projection
	quota      quota.State
	session    session.Session
	signedIn   bool
	hadSession bool
	polling    poller.State

	// List position. selectedID keeps the selection on the same task
	// while rows are inserted or reordered around it.
	cursor       int
	scrollOffset int
	selectedID   int64

	mode        mode
	search      textinput.Model
	form        dispatchForm
	pendingBulk bulkAction

	inFlight  int
	status    statusLine
	heat      *tui.HeatTracker[int64]
	animating bool

	changes     <-chan struct{}
	unsubscribe func()
	expired     bool
}

// NewModel subscribes to backend and takes a first projection.
func NewModel(backend Backend, options Options) Model {
	theme := tui.DefaultTheme
	if options.Theme != nil {
		theme = *options.Theme
	}
	keys := DefaultKeyMap
	if options.Keys != nil {
		keys = *options.Keys
	}
	wall := options.Clock
	if wall == nil {
		wall = clock.Real()
	}

	defaults := options.Defaults
	if defaults.TaskType == "" {
		defaults.TaskType = tasks.StandardDefaults.TaskType
	}
	if defaults.Replicas <= 0 {
		defaults.Replicas = tasks.StandardDefaults.Replicas
	}
	if defaults.MaxExecutionTime <= 0 {
		defaults.MaxExecutionTime = tasks.StandardDefaults.MaxExecutionTime
	}
	if defaults.SimulatedDuration <= 0 {
		defaults.SimulatedDuration = tasks.StandardDefaults.SimulatedDuration
	}

	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "fuzzy search payloads"

	changes, unsubscribe := backend.Subscribe()
	model := Model{
		backend:     backend,
		theme:       theme,
		keys:        keys,
		clock:       wall,
		defaults:    defaults,
		filter:      view.Filter{Status: view.StatusAll, Type: view.TypeAll},
		order:       view.Newest,
		search:      search,
		heat:        tui.NewHeatTracker[int64](),
		changes:     changes,
		unsubscribe: unsubscribe,
	}
	model.reload()
	return model
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return listenForChanges(model.changes)
}

// listenForChanges blocks until the backend signals a change.
func listenForChanges(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changeMsg{}
	}
}

// Expired reports whether the model quit because the session ended.
func (model Model) Expired() bool { return model.expired }

// Close drops the change subscription.
func (model Model) Close() {
	if model.unsubscribe != nil {
		model.unsubscribe()
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.clampScroll()
		return model, nil

	case changeMsg:
		model.reload()
		if model.hadSession && !model.signedIn {
			model.expired = true
			return model, tea.Quit
		}
		animation := model.animate()
		return model, tea.Batch(listenForChanges(model.changes), animation)

	case actionResultMsg:
		model.inFlight--
		if message.err != nil {
			if dashboard.KindOf(message.err) == dashboard.KindAuthExpired {
				model.expired = true
				return model, tea.Quit
			}
			fade := model.setStatus(message.err.Error(), slog.LevelError)
			return model, fade
		}
		model.reload()
		fade := model.setStatus(message.message, slog.LevelInfo)
		animation := model.animate()
		return model, tea.Batch(fade, animation)

	case logRecordMsg:
		fade := model.setStatus(message.Summary, message.Level)
		return model, fade

	case statusFadeMsg:
		if message.serial == model.status.serial {
			model.status.text = ""
		}
		return model, nil

	case animationTickMsg:
		model.animating = false
		animation := model.animate()
		return model, animation

	case tea.KeyMsg:
		switch model.mode {
		case modeSearch:
			return model.handleSearchKeys(message)
		case modeForm:
			return model.handleFormKeys(message)
		case modeConfirm:
			return model.handleConfirmKeys(message)
		}
		return model.handleListKeys(message)
	}
	return model, nil
}

func (model Model) handleListKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.PageUp):
		model.moveCursor(-model.listHeight())
	case key.Matches(message, model.keys.PageDown):
		model.moveCursor(model.listHeight())
	case key.Matches(message, model.keys.Home):
		model.moveCursor(-len(model.projection.Tasks))
	case key.Matches(message, model.keys.End):
		model.moveCursor(len(model.projection.Tasks))

	case key.Matches(message, model.keys.CycleStatus):
		model.filter.Status = nextOf(view.StatusFilters, model.filter.Status)
		model.reload()
	case key.Matches(message, model.keys.CycleType):
		model.filter.Type = nextOf(view.TypeFilters, model.filter.Type)
		model.reload()
	case key.Matches(message, model.keys.ToggleOrder):
		if model.order == view.Newest {
			model.order = view.Oldest
		} else {
			model.order = view.Newest
		}
		model.reload()

	case key.Matches(message, model.keys.Search):
		model.mode = modeSearch
		focus := model.search.Focus()
		return model, focus
	case key.Matches(message, model.keys.Clear):
		if model.filter.Query != "" {
			model.search.SetValue("")
			model.filter.Query = ""
			model.reload()
		}

	case key.Matches(message, model.keys.Dispatch):
		model.form = newDispatchForm(model.defaults)
		model.mode = modeForm
		return model, textinput.Blink
	case key.Matches(message, model.keys.Cancel):
		return model.cancelSelected()
	case key.Matches(message, model.keys.KillAll):
		model.pendingBulk = bulkKillAll
		model.mode = modeConfirm
	case key.Matches(message, model.keys.Purge):
		model.pendingBulk = bulkPurge
		model.mode = modeConfirm
	case key.Matches(message, model.keys.Refresh):
		backend := model.backend
		refresh := model.run("refresh", func(ctx context.Context) (string, error) {
			backend.Refresh(ctx)
			return "refreshed", nil
		})
		return model, refresh
	}
	return model, nil
}

func (model Model) handleSearchKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit
	case key.Matches(message, model.keys.Clear):
		model.search.SetValue("")
		model.search.Blur()
		model.filter.Query = ""
		model.mode = modeList
		model.reload()
		return model, nil
	case key.Matches(message, model.keys.Submit):
		model.search.Blur()
		model.mode = modeList
		return model, nil
	}

	var cmd tea.Cmd
	model.search, cmd = model.search.Update(message)
	if query := model.search.Value(); query != model.filter.Query {
		model.filter.Query = query
		model.cursor = 0
		model.scrollOffset = 0
		model.selectedID = 0
		model.reload()
	}
	return model, cmd
}

func (model Model) handleFormKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit
	case key.Matches(message, model.keys.Clear):
		model.mode = modeList
		return model, nil
	case key.Matches(message, model.keys.NextField):
		focus := model.form.move(1)
		return model, focus
	case key.Matches(message, model.keys.PreviousField):
		focus := model.form.move(-1)
		return model, focus
	case key.Matches(message, model.keys.Submit):
		request, err := model.form.request()
		if err != nil {
			fade := model.setStatus(err.Error(), slog.LevelWarn)
			return model, fade
		}
		model.mode = modeList
		backend := model.backend
		submit := model.run("dispatch", func(ctx context.Context) (string, error) {
			created, err := backend.Submit(ctx, request)
			if err != nil {
				return "", err
			}
			return "dispatched " + plural(len(created), "task"), nil
		})
		return model, submit
	}

	cmd := model.form.update(message)
	return model, cmd
}

func (model Model) handleConfirmKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit
	case key.Matches(message, model.keys.Deny):
		model.mode = modeList
		return model, nil
	case key.Matches(message, model.keys.Confirm):
		model.mode = modeList
		backend := model.backend
		var action tea.Cmd
		switch model.pendingBulk {
		case bulkKillAll:
			action = model.run("kill-all", backend.KillAll)
		case bulkPurge:
			action = model.run("purge", backend.DeleteAll)
		}
		return model, action
	}
	return model, nil
}

// cancelSelected asks the service to cancel the highlighted task.
func (model Model) cancelSelected() (tea.Model, tea.Cmd) {
	task, ok := model.selected()
	if !ok {
		return model, nil
	}
	if task.Speculative() {
		fade := model.setStatus("this task is not confirmed by the service yet", slog.LevelWarn)
		return model, fade
	}
	backend := model.backend
	id := task.ID
	cancel := model.run("cancel", func(ctx context.Context) (string, error) {
		return backend.Cancel(ctx, id)
	})
	return model, cancel
}

// run starts a backend call off the update loop.
func (model *Model) run(verb string, action func(context.Context) (string, error)) tea.Cmd {
	model.inFlight++
	return func() tea.Msg {
		message, err := action(context.Background())
		return actionResultMsg{verb: verb, message: message, err: err}
	}
}

// setStatus shows text in the status bar and schedules its fade.
func (model *Model) setStatus(text string, level slog.Level) tea.Cmd {
	model.status.serial++
	model.status.text = text
	model.status.level = level
	serial := model.status.serial
	return tea.Tick(statusFadeDelay, func(time.Time) tea.Msg {
		return statusFadeMsg{serial: serial}
	})
}

// animate keeps a re-render tick running while any row is highlighted.
func (model *Model) animate() tea.Cmd {
	if model.animating || !model.heat.HasHot(model.clock.Now()) {
		return nil
	}
	model.animating = true
	return tea.Tick(animationInterval, func(time.Time) tea.Msg {
		return animationTickMsg{}
	})
}

// reload re-reads everything the view draws from the backend.
func (model *Model) reload() {
	model.projection = model.backend.Project(model.filter, model.order)
	model.quota = model.backend.Quota()
	model.session, model.signedIn = model.backend.Session()
	if model.signedIn {
		model.hadSession = true
	}
	model.polling = model.backend.Polling()

	fingerprints := make(map[int64]string)
	for _, task := range model.backend.Tasks() {
		fingerprints[task.ID] = string(task.Status)
	}
	model.heat.Observe(fingerprints, model.clock.Now())

	model.restoreSelection()
}

// restoreSelection moves the cursor to the selected task, or keeps the
// cursor's row index when that task is gone.
func (model *Model) restoreSelection() {
	rows := model.projection.Tasks
	if len(rows) == 0 {
		model.cursor = 0
		model.scrollOffset = 0
		model.selectedID = 0
		return
	}
	for index, task := range rows {
		if task.ID == model.selectedID && model.selectedID != 0 {
			model.cursor = index
			model.clampScroll()
			return
		}
	}
	model.cursor = min(max(model.cursor, 0), len(rows)-1)
	model.selectedID = rows[model.cursor].ID
	model.clampScroll()
}

func (model *Model) moveCursor(delta int) {
	rows := model.projection.Tasks
	if len(rows) == 0 {
		return
	}
	model.cursor = min(max(model.cursor+delta, 0), len(rows)-1)
	model.selectedID = rows[model.cursor].ID
	model.clampScroll()
}

// listHeight is the number of task rows that fit.
func (model Model) listHeight() int {
	return max(model.height-chromeHeight, 1)
}

func (model *Model) clampScroll() {
	height := model.listHeight()
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+height {
		model.scrollOffset = model.cursor - height + 1
	}
	maxOffset := max(len(model.projection.Tasks)-height, 0)
	model.scrollOffset = min(max(model.scrollOffset, 0), maxOffset)
}

func (model Model) selected() (taskapi.Task, bool) {
	rows := model.projection.Tasks
	if model.cursor < 0 || model.cursor >= len(rows) {
		return taskapi.Task{}, false
	}
	return rows[model.cursor], true
}

// nextOf returns the element after current in values, wrapping around.
// An unknown current yields the first element.
func nextOf[T comparable](values []T, current T) T {
	for index, value := range values {
		if value == current {
			return values[(index+1)%len(values)]
		}
	}
	return values[0]
}

func plural(count int, noun string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
