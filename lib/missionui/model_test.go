// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/zaibaki/ResilientTask-Mission-Control/dashboard"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/poller"
	"github.com/zaibaki/ResilientTask-Mission-Control/quota"
	"github.com/zaibaki/ResilientTask-Mission-Control/session"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/view"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory Backend recording every call.
type fakeBackend struct {
	mu        sync.Mutex
	tasks     []taskapi.Task
	quota     quota.State
	session   session.Session
	signedIn  bool
	polling   poller.State
	changes   chan struct{}
	submitted []taskapi.DispatchRequest
	cancelled []int64
	killed    int
	purged    int
	refreshed int
}

func newFakeBackend() *fakeBackend {
	task := func(id int64, payload string, status taskapi.TaskStatus, taskType taskapi.TaskType) taskapi.Task {
		return taskapi.Task{
			ID:                id,
			InputData:         payload,
			Status:            status,
			TaskType:          taskType,
			CreatedAt:         taskapi.Timestamp{Time: epoch.Add(-time.Duration(id) * time.Minute)},
			MaxExecutionTime:  30,
			SimulatedDuration: 5,
			OwnerID:           1,
		}
	}
	return &fakeBackend{
		tasks: []taskapi.Task{
			task(1, "render logo", taskapi.StatusCompleted, taskapi.TypeImageGen),
			task(2, "analyze logs", taskapi.StatusProcessing, taskapi.TypeCodeAnalysis),
			task(3, "summarize report", taskapi.StatusPending, taskapi.TypeTextProcessing),
			task(4, "old video", taskapi.StatusFailed, taskapi.TypeVideoGen),
		},
		quota: quota.State{
			Snapshot:  taskapi.QuotaSnapshot{Quota: 100, Used: 70, Available: 30},
			Velocity:  15,
			History:   []int64{0, 15, 0, 15},
			HasSample: true,
		},
		session:  session.Session{Username: "ada", Epoch: 1},
		signedIn: true,
		polling:  poller.Active,
		changes:  make(chan struct{}, 1),
	}
}

func (b *fakeBackend) Session() (session.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, b.signedIn
}

func (b *fakeBackend) Polling() poller.State { return b.polling }

func (b *fakeBackend) Tasks() []taskapi.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]taskapi.Task(nil), b.tasks...)
}

func (b *fakeBackend) Project(filter view.Filter, order view.Order) view.Projection {
	return view.Project(b.Tasks(), filter, order)
}

func (b *fakeBackend) Quota() quota.State { return b.quota }

func (b *fakeBackend) Subscribe() (<-chan struct{}, func()) {
	return b.changes, func() {}
}

func (b *fakeBackend) Refresh(context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshed++
}

func (b *fakeBackend) Submit(_ context.Context, request taskapi.DispatchRequest) ([]taskapi.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, request)
	created := make([]taskapi.Task, request.Replicas)
	for index := range created {
		created[index] = taskapi.Task{ID: int64(100 + index), InputData: request.InputData, Status: taskapi.StatusPending}
	}
	return created, nil
}

func (b *fakeBackend) Cancel(_ context.Context, id int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, id)
	return "Task cancelled", nil
}

func (b *fakeBackend) KillAll(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed++
	return "Terminated 2 active tasks", nil
}

func (b *fakeBackend) DeleteAll(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purged++
	return "deleted 4 tasks", nil
}

func newTestModel(backend *fakeBackend) Model {
	model := NewModel(backend, Options{Clock: clock.Fake(epoch)})
	return update(model, tea.WindowSizeMsg{Width: 140, Height: 30})
}

func update(model Model, messages ...tea.Msg) Model {
	for _, message := range messages {
		next, _ := model.Update(message)
		model = next.(Model)
	}
	return model
}

func updateCmd(model Model, message tea.Msg) (Model, tea.Cmd) {
	next, cmd := model.Update(message)
	return next.(Model), cmd
}

func runes(text string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)}
}

func keyOf(keyType tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: keyType}
}

func visibleIDs(model Model) []int64 {
	var ids []int64
	for _, task := range model.projection.Tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for index := range a {
		if a[index] != b[index] {
			return false
		}
	}
	return true
}

func TestViewShowsCardsQuotaAndTasks(t *testing.T) {
	model := newTestModel(newFakeBackend())
	screen := ansi.Strip(model.View())

	for _, fragment := range []string{
		"MISSION CONTROL",
		"ada",
		"Active 2",
		"Completed 1",
		"Failed 1",
		"Cancelled 0",
		"70/100 used",
		"elevated",
		"+15/refresh",
		"analyze logs",
		"summarize report",
	} {
		if !strings.Contains(screen, fragment) {
			t.Errorf("screen is missing %q", fragment)
		}
	}
}

func TestViewBeforeSizeIsEmpty(t *testing.T) {
	model := NewModel(newFakeBackend(), Options{Clock: clock.Fake(epoch)})
	if got := model.View(); got != "" {
		t.Errorf("View before WindowSizeMsg = %q, want empty", got)
	}
}

func TestNewestFirstWithSelection(t *testing.T) {
	model := newTestModel(newFakeBackend())
	if got := visibleIDs(model); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("ids = %v, want newest first", got)
	}
	if model.selectedID != 1 {
		t.Errorf("selected %d, want 1", model.selectedID)
	}

	model = update(model, runes("o"))
	if got := visibleIDs(model); !equalIDs(got, []int64{4, 3, 2, 1}) {
		t.Errorf("ids after order toggle = %v", got)
	}
	if model.selectedID != 1 || model.cursor != 3 {
		t.Errorf("selection moved to id %d at row %d, want id 1 at row 3", model.selectedID, model.cursor)
	}
}

func TestStatusFilterCycles(t *testing.T) {
	model := newTestModel(newFakeBackend())

	model = update(model, runes("s"))
	if model.filter.Status != view.StatusActive {
		t.Fatalf("status filter = %q, want active", model.filter.Status)
	}
	if got := visibleIDs(model); !equalIDs(got, []int64{2, 3}) {
		t.Errorf("active ids = %v", got)
	}
	if model.projection.Counts.Completed != 1 {
		t.Error("counts should cover the unfiltered list")
	}

	model = update(model, runes("s"))
	if got := visibleIDs(model); !equalIDs(got, []int64{3}) {
		t.Errorf("pending ids = %v", got)
	}
}

func TestTypeFilterCycles(t *testing.T) {
	model := newTestModel(newFakeBackend())
	model = update(model, runes("t"))
	if model.filter.Type != view.TypeFilter(taskapi.TypeTextProcessing) {
		t.Fatalf("type filter = %q", model.filter.Type)
	}
	if got := visibleIDs(model); !equalIDs(got, []int64{3}) {
		t.Errorf("text_processing ids = %v", got)
	}
}

func TestSelectionFollowsTaskAcrossChanges(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)
	model = update(model, runes("j"))
	if model.selectedID != 2 {
		t.Fatalf("selected %d, want 2", model.selectedID)
	}

	backend.mu.Lock()
	backend.tasks = append(backend.tasks, taskapi.Task{
		ID:        5,
		InputData: "fresh",
		Status:    taskapi.StatusPending,
		CreatedAt: taskapi.Timestamp{Time: epoch},
	})
	backend.mu.Unlock()

	model = update(model, changeMsg{})
	if model.selectedID != 2 || model.cursor != 2 {
		t.Errorf("selection = id %d at row %d, want id 2 at row 2", model.selectedID, model.cursor)
	}
	if model.heat.Heat(5, epoch) == 0 {
		t.Error("the new task should be highlighted")
	}
}

func TestSearchNarrowsList(t *testing.T) {
	model := newTestModel(newFakeBackend())

	model = update(model, runes("/"))
	if model.mode != modeSearch {
		t.Fatal("/ should enter search mode")
	}
	model = update(model, runes("logs"))
	if model.filter.Query != "logs" {
		t.Fatalf("query = %q", model.filter.Query)
	}
	if got := visibleIDs(model); !equalIDs(got, []int64{2}) {
		t.Errorf("ids = %v, want [2]", got)
	}

	model = update(model, keyOf(tea.KeyEnter))
	if model.mode != modeList || model.filter.Query != "logs" {
		t.Errorf("enter should keep the query and return to the list")
	}

	model = update(model, keyOf(tea.KeyEsc))
	if model.filter.Query != "" || len(model.projection.Tasks) != 4 {
		t.Errorf("esc should clear the query, got %q with %d rows", model.filter.Query, len(model.projection.Tasks))
	}
}

func TestDispatchFormSubmits(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)

	model = update(model, runes("n"))
	if model.mode != modeForm {
		t.Fatal("n should open the dispatch form")
	}
	if !strings.Contains(ansi.Strip(model.View()), "New dispatch") {
		t.Error("form modal is not drawn")
	}

	model = update(model,
		runes("analyze logs"),
		keyOf(tea.KeyTab),
		keyOf(tea.KeyRight),
		keyOf(tea.KeyTab),
		runes("3"),
	)
	model, cmd := updateCmd(model, keyOf(tea.KeyEnter))
	if model.mode != modeList {
		t.Error("submitting should close the form")
	}
	if cmd == nil {
		t.Fatal("submitting returned no command")
	}

	produced := cmd()
	result, ok := produced.(actionResultMsg)
	if !ok {
		t.Fatalf("command produced %T, want actionResultMsg", produced)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("%d submissions, want 1", len(backend.submitted))
	}
	want := taskapi.DispatchRequest{InputData: "analyze logs", TaskType: taskapi.TypeImageGen, Replicas: 3}
	if backend.submitted[0] != want {
		t.Errorf("request = %+v, want %+v", backend.submitted[0], want)
	}

	model = update(model, result)
	if model.status.text != "dispatched 3 tasks" {
		t.Errorf("status = %q", model.status.text)
	}
	if model.inFlight != 0 {
		t.Errorf("inFlight = %d after the result", model.inFlight)
	}
}

func TestDispatchFormRejectsNonNumericReplicas(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)

	model = update(model,
		runes("n"),
		runes("payload"),
		keyOf(tea.KeyTab),
		keyOf(tea.KeyTab),
		runes("many"),
		keyOf(tea.KeyEnter),
	)
	if model.mode != modeForm {
		t.Error("an invalid form should stay open")
	}
	if !strings.Contains(model.status.text, "replicas must be a whole number") {
		t.Errorf("status = %q", model.status.text)
	}
	if len(backend.submitted) != 0 {
		t.Errorf("%d submissions, want 0", len(backend.submitted))
	}
}

func TestDispatchFormEscapeCloses(t *testing.T) {
	model := newTestModel(newFakeBackend())
	model = update(model, runes("n"), runes("q"), keyOf(tea.KeyEsc))
	if model.mode != modeList {
		t.Errorf("esc should close the form")
	}
}

func TestBulkActionsRequireConfirmation(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)

	model = update(model, runes("K"))
	if model.mode != modeConfirm {
		t.Fatal("K should ask for confirmation")
	}
	if !strings.Contains(ansi.Strip(model.View()), "Terminate all active tasks?") {
		t.Error("confirmation dialog is not drawn")
	}
	model = update(model, runes("n"))
	if model.mode != modeList || backend.killed != 0 {
		t.Fatalf("declining should not kill anything (mode %d, killed %d)", model.mode, backend.killed)
	}

	model = update(model, runes("K"))
	model, cmd := updateCmd(model, runes("y"))
	model = update(model, cmd())
	if backend.killed != 1 {
		t.Errorf("killed = %d, want 1", backend.killed)
	}
	if model.status.text != "Terminated 2 active tasks" {
		t.Errorf("status = %q", model.status.text)
	}

	model = update(model, runes("D"))
	if !strings.Contains(ansi.Strip(model.View()), "Delete all of your tasks?") {
		t.Error("purge dialog is not drawn")
	}
	_, cmd = updateCmd(model, runes("y"))
	cmd()
	if backend.purged != 1 {
		t.Errorf("purged = %d, want 1", backend.purged)
	}
}

func TestCancelSelected(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)

	model = update(model, runes("j"))
	_, cmd := updateCmd(model, runes("c"))
	cmd()
	if len(backend.cancelled) != 1 || backend.cancelled[0] != 2 {
		t.Errorf("cancelled = %v, want [2]", backend.cancelled)
	}
}

func TestCancelSpeculativeTaskStaysLocal(t *testing.T) {
	backend := newFakeBackend()
	backend.tasks = append(backend.tasks, taskapi.Task{
		ID:        -1_000_001,
		InputData: "in flight",
		Status:    taskapi.StatusPending,
		CreatedAt: taskapi.Timestamp{Time: epoch},
	})
	model := newTestModel(backend)
	if model.selectedID >= 0 {
		t.Fatalf("selected %d, want the speculative row first", model.selectedID)
	}

	model = update(model, runes("c"))
	if len(backend.cancelled) != 0 {
		t.Errorf("cancelled = %v, want nothing", backend.cancelled)
	}
	if !strings.Contains(model.status.text, "not confirmed") {
		t.Errorf("status = %q", model.status.text)
	}
}

func TestRefreshKey(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)
	model, cmd := updateCmd(model, runes("r"))
	model = update(model, cmd())
	if backend.refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", backend.refreshed)
	}
	if model.status.text != "refreshed" {
		t.Errorf("status = %q", model.status.text)
	}
}

func TestActionErrorIsShown(t *testing.T) {
	model := newTestModel(newFakeBackend())
	model.inFlight = 1
	model = update(model, actionResultMsg{
		verb: "dispatch",
		err:  &dashboard.Error{Kind: dashboard.KindSubmission, Op: "dispatch", Detail: "Quota exceeded. Available: 2"},
	})
	if model.status.text != "dispatch: Quota exceeded. Available: 2" {
		t.Errorf("status = %q", model.status.text)
	}
	if model.status.level != slog.LevelError {
		t.Errorf("level = %v", model.status.level)
	}
	if model.Expired() {
		t.Error("a submission failure must not end the program")
	}
}

func TestAuthExpiryQuits(t *testing.T) {
	model := newTestModel(newFakeBackend())
	model, cmd := updateCmd(model, actionResultMsg{
		verb: "cancel",
		err:  &dashboard.Error{Kind: dashboard.KindAuthExpired, Op: "cancel"},
	})
	if !model.Expired() {
		t.Error("model should report the expired session")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("auth expiry should quit the program")
	}
}

func TestSessionLossOnChangeQuits(t *testing.T) {
	backend := newFakeBackend()
	model := newTestModel(backend)

	backend.mu.Lock()
	backend.signedIn = false
	backend.tasks = nil
	backend.mu.Unlock()

	model, cmd := updateCmd(model, changeMsg{})
	if !model.Expired() {
		t.Fatal("losing the session should expire the model")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("losing the session should quit the program")
	}
}

func TestStatusFades(t *testing.T) {
	model := newTestModel(newFakeBackend())
	model = update(model, logRecordMsg{Summary: "refresh failed", Level: slog.LevelWarn})
	serial := model.status.serial

	model = update(model, logRecordMsg{Summary: "second", Level: slog.LevelWarn})
	model = update(model, statusFadeMsg{serial: serial})
	if model.status.text != "second" {
		t.Errorf("a stale fade cleared %q", model.status.text)
	}

	model = update(model, statusFadeMsg{serial: model.status.serial})
	if model.status.text != "" {
		t.Errorf("status = %q after its fade", model.status.text)
	}
}

func TestQuitKey(t *testing.T) {
	model := newTestModel(newFakeBackend())
	_, cmd := updateCmd(model, runes("q"))
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{-time.Second, "now"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, test := range tests {
		if got := formatAge(test.age); got != test.want {
			t.Errorf("formatAge(%v) = %q, want %q", test.age, got, test.want)
		}
	}
}

func TestLogHandlerSummary(t *testing.T) {
	root := NewLogHandler(slog.LevelWarn)
	if root.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be below the handler level")
	}
	if !root.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}

	derived := root.WithAttrs([]slog.Attr{slog.String("target", "tasks")}).WithGroup("http").(*LogHandler)
	record := slog.NewRecord(epoch, slog.LevelWarn, "refresh failed", 0)
	record.AddAttrs(slog.Int("status", 502))

	if got, want := derived.summarize(record), "refresh failed (target=tasks, http.status=502)"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
	if err := derived.Handle(context.Background(), record); err != nil {
		t.Errorf("Handle without a program: %v", err)
	}
	if derived.program != root.program {
		t.Error("derived handlers must share the program pointer")
	}
}
