// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard is the composition root of the reconciliation
// engine. It wires the session, task and quota stores, the optimistic
// submitter and the polling scheduler around one taskapi client, and
// is the only surface the CLI and the terminal UI use.
//
// Every authenticated operation records the session epoch it ran
// under. A 401 ends that session (and only that one): the scheduler
// stops, the task list and quota history are cleared and the persisted
// credential is deleted. Concurrent 401s produce a single teardown.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/config"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/kvstore"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/sealed"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/telemetry"
	"github.com/zaibaki/ResilientTask-Mission-Control/poller"
	"github.com/zaibaki/ResilientTask-Mission-Control/quota"
	"github.com/zaibaki/ResilientTask-Mission-Control/session"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/tasks"
	"github.com/zaibaki/ResilientTask-Mission-Control/view"
)

// Config wires a Dashboard.
type Config struct {
	// Client talks to the service. Required.
	Client *taskapi.Client

	// KV persists the session. Required.
	KV *kvstore.Store

	// Identity seals the stored token. Optional.
	Identity *sealed.Identity

	Polling  config.PollingConfig
	Dispatch tasks.Defaults

	Clock       clock.Clock
	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// Dashboard is safe for concurrent use.
type Dashboard struct {
	client    *taskapi.Client
	api       *taskapi.Session
	sessions  *session.Store
	tasks     *tasks.Store
	quota     *quota.Tracker
	submitter *tasks.Submitter
	scheduler *poller.Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	subscribers map[int]chan struct{}
	nextID      int

	stopForwarding func()
	forwarding     sync.WaitGroup
}

// New builds an idle dashboard. Call Resume to pick up a persisted
// session, or Login.
func New(cfg Config) (*Dashboard, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("dashboard: Client is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessions, err := session.New(session.Config{
		KV:          cfg.KV,
		Identity:    cfg.Identity,
		Logger:      logger.With("component", "session"),
		Instruments: cfg.Instruments,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	d := &Dashboard{
		client:      cfg.Client,
		api:         cfg.Client.Session(sessions),
		sessions:    sessions,
		logger:      logger,
		subscribers: make(map[int]chan struct{}),
	}
	d.tasks = tasks.NewStore(d.api, cfg.Polling.TaskLimit, logger.With("component", "tasks"))
	d.quota = quota.NewTracker(d.api, logger.With("component", "quota"), cfg.Instruments)

	d.submitter, err = tasks.NewSubmitter(tasks.SubmitterConfig{
		Store:       d.tasks,
		Dispatcher:  d.api,
		Quota:       quotaNotifier{d},
		Defaults:    cfg.Dispatch,
		Clock:       cfg.Clock,
		Logger:      logger.With("component", "submitter"),
		Instruments: cfg.Instruments,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	d.scheduler, err = poller.New(poller.Config{
		Targets: []poller.Target{
			{Name: "tasks", Refresh: d.backgroundTasks},
			{Name: "quota", Refresh: d.backgroundQuota},
		},
		Interval:    cfg.Polling.Interval,
		Overlap:     cfg.Polling.Overlap,
		Clock:       cfg.Clock,
		Logger:      logger.With("component", "poller"),
		Instruments: cfg.Instruments,
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	sessions.OnEnd(d.teardown)

	changes, cancel := d.tasks.Subscribe()
	stop := make(chan struct{})
	d.stopForwarding = sync.OnceFunc(func() {
		cancel()
		close(stop)
	})
	d.forwarding.Add(1)
	go func() {
		defer d.forwarding.Done()
		for {
			select {
			case <-stop:
				return
			case <-changes:
				d.notify()
			}
		}
	}()
	return d, nil
}

// quotaNotifier refreshes the tracker on the submitter's behalf and
// tells subscribers.
type quotaNotifier struct{ d *Dashboard }

func (q quotaNotifier) Refresh(ctx context.Context) (taskapi.QuotaSnapshot, error) {
	_, err := q.d.refreshQuota(ctx)
	return q.d.quota.State().Snapshot, err
}

// teardown runs once per ended session.
func (d *Dashboard) teardown(reason session.Reason) {
	d.scheduler.Stop()
	d.tasks.Reset()
	d.quota.Reset()
	d.logger.Info("local state cleared", "reason", reason)
	d.notify()
}

// OnSessionEnd registers hook to run once each time a session ends, after
// local state has been cleared.
func (d *Dashboard) OnSessionEnd(hook func(session.Reason)) {
	d.sessions.OnEnd(hook)
}

// expire ends the session numbered epoch after the service rejected
// its token.
func (d *Dashboard) expire(ctx context.Context, epoch uint64) {
	if _, err := d.sessions.EndEpoch(context.WithoutCancel(ctx), epoch, session.ReasonExpired); err != nil {
		d.logger.Error("clearing expired session", "error", err)
	}
}

// fail classifies err and, for authorization failures, ends the
// session the operation ran under.
func (d *Dashboard) fail(ctx context.Context, op string, epoch uint64, fallback Kind, err error) error {
	classified := classify(op, fallback, err)
	if classified.Kind == KindAuthExpired && taskapi.IsUnauthorized(err) {
		d.expire(ctx, epoch)
	}
	return classified
}

// Resume restores a persisted session and reports whether one exists.
func (d *Dashboard) Resume(ctx context.Context) (bool, error) {
	active, err := d.sessions.Load(ctx)
	if err != nil {
		return false, err
	}
	if active {
		d.notify()
	}
	return active, nil
}

// Signup creates an account without logging in.
func (d *Dashboard) Signup(ctx context.Context, username string, password *secret.Buffer) error {
	if username == "" || password == nil || password.Len() == 0 {
		return &Error{Kind: KindValidation, Op: "signup", Detail: "username and password are required"}
	}
	if err := d.client.Signup(ctx, username, password); err != nil {
		return classify("signup", KindValidation, err)
	}
	return nil
}

// Login exchanges credentials for a session and persists it. Local
// state left over from a previous session is discarded.
func (d *Dashboard) Login(ctx context.Context, username string, password *secret.Buffer) (session.Session, error) {
	if username == "" || password == nil || password.Len() == 0 {
		return session.Session{}, &Error{Kind: KindValidation, Op: "login", Detail: "username and password are required"}
	}
	response, err := d.client.Login(ctx, username, password)
	if err != nil {
		if taskapi.IsUnauthorized(err) {
			return session.Session{}, &Error{Kind: KindCredentials, Op: "login", Detail: describe(err), Err: err}
		}
		return session.Session{}, classify("login", KindCredentials, err)
	}

	if _, err := d.sessions.End(ctx, session.ReasonLogout); err != nil {
		d.logger.Warn("clearing previous session", "error", err)
	}
	current, err := d.sessions.Begin(ctx, response.AccessToken, username, response.IsAdmin)
	if err != nil {
		return session.Session{}, err
	}
	d.notify()
	return current, nil
}

// Logout ends the session. Logging out while logged out is a no-op.
func (d *Dashboard) Logout(ctx context.Context) error {
	_, err := d.sessions.End(ctx, session.ReasonLogout)
	return err
}

// Session returns the active session.
func (d *Dashboard) Session() (session.Session, bool) {
	return d.sessions.Current()
}

// Start begins background polling. It fails with KindAuthExpired when
// no session is active.
func (d *Dashboard) Start(ctx context.Context) error {
	if !d.sessions.Active() {
		return &Error{Kind: KindAuthExpired, Op: "start", Detail: "not logged in", Err: session.ErrNoSession}
	}
	d.scheduler.Start(ctx)
	return nil
}

// Stop halts background polling without ending the session.
func (d *Dashboard) Stop() { d.scheduler.Stop() }

// Polling reports the scheduler state.
func (d *Dashboard) Polling() poller.State { return d.scheduler.State() }

// Close stops polling and releases in-memory secrets. The persisted
// session is kept.
func (d *Dashboard) Close() error {
	d.scheduler.Stop()
	d.scheduler.Wait()
	d.stopForwarding()
	d.forwarding.Wait()
	return d.sessions.Close()
}

func (d *Dashboard) backgroundTasks(ctx context.Context) error {
	epoch := d.sessions.Epoch()
	_, err := d.tasks.Refresh(ctx)
	if errors.Is(err, tasks.ErrStale) {
		return nil
	}
	if taskapi.IsUnauthorized(err) {
		d.expire(ctx, epoch)
	}
	return err
}

func (d *Dashboard) backgroundQuota(ctx context.Context) error {
	_, err := d.refreshQuota(ctx)
	if errors.Is(err, quota.ErrStale) {
		return nil
	}
	return err
}

// refreshQuota refreshes the tracker, notifies and handles 401.
func (d *Dashboard) refreshQuota(ctx context.Context) (quota.State, error) {
	epoch := d.sessions.Epoch()
	_, err := d.quota.Refresh(ctx)
	if err == nil {
		d.notify()
	} else if taskapi.IsUnauthorized(err) {
		d.expire(ctx, epoch)
	}
	return d.quota.State(), err
}

// RefreshTasks fetches the task list now and returns it.
func (d *Dashboard) RefreshTasks(ctx context.Context) ([]taskapi.Task, error) {
	epoch := d.sessions.Epoch()
	fetched, err := d.tasks.Refresh(ctx)
	if errors.Is(err, tasks.ErrStale) {
		return d.tasks.Snapshot(), nil
	}
	if err != nil {
		return nil, d.fail(ctx, "refresh tasks", epoch, KindRefresh, err)
	}
	return fetched, nil
}

// RefreshQuota fetches the quota now and returns the tracker state.
func (d *Dashboard) RefreshQuota(ctx context.Context) (quota.State, error) {
	state, err := d.refreshQuota(ctx)
	if errors.Is(err, quota.ErrStale) {
		return d.quota.State(), nil
	}
	if err != nil {
		return state, classify("refresh quota", KindRefresh, err)
	}
	return state, nil
}

// Refresh runs one full cycle synchronously, as a tick would.
func (d *Dashboard) Refresh(ctx context.Context) {
	d.scheduler.RunCycle(ctx)
}

// Tasks returns a copy of the canonical task list.
func (d *Dashboard) Tasks() []taskapi.Task { return d.tasks.Snapshot() }

// Quota returns the tracker state.
func (d *Dashboard) Quota() quota.State { return d.quota.State() }

// Project derives the display view of the current task list.
func (d *Dashboard) Project(filter view.Filter, order view.Order) view.Projection {
	return view.Project(d.tasks.Snapshot(), filter, order)
}

// Normalize applies dispatch defaults and validates request.
func (d *Dashboard) Normalize(request taskapi.DispatchRequest) (taskapi.DispatchRequest, error) {
	normalized, err := d.submitter.Normalize(request)
	if err != nil {
		return normalized, classify("dispatch", KindValidation, err)
	}
	return normalized, nil
}

// Submit dispatches optimistically. See tasks.Submitter.Submit.
func (d *Dashboard) Submit(ctx context.Context, request taskapi.DispatchRequest) ([]taskapi.Task, error) {
	if !d.sessions.Active() {
		return nil, &Error{Kind: KindAuthExpired, Op: "dispatch", Detail: "not logged in", Err: session.ErrNoSession}
	}
	epoch := d.sessions.Epoch()
	created, err := d.submitter.Submit(ctx, request)
	if err != nil {
		return nil, d.fail(ctx, "dispatch", epoch, KindSubmission, err)
	}
	return created, nil
}

// mutate runs one authenticated mutation, then refreshes what it
// touched. Refresh failures after a successful mutation are logged.
func (d *Dashboard) mutate(ctx context.Context, op string, call func() error, after ...func(context.Context) error) error {
	epoch := d.sessions.Epoch()
	if err := call(); err != nil {
		return d.fail(ctx, op, epoch, KindMutation, err)
	}
	for _, refresh := range after {
		if err := refresh(ctx); err != nil {
			d.logger.Warn("refresh after mutation failed", "op", op, "error", err)
		}
	}
	return nil
}

func (d *Dashboard) afterTasks(ctx context.Context) error {
	_, err := d.RefreshTasks(ctx)
	return err
}

func (d *Dashboard) afterQuota(ctx context.Context) error {
	_, err := d.RefreshQuota(ctx)
	return err
}

// Task fetches one task from the service. The local list is not
// touched.
func (d *Dashboard) Task(ctx context.Context, id int64) (*taskapi.Task, error) {
	if id <= 0 {
		return nil, &Error{Kind: KindValidation, Op: "show", Detail: fmt.Sprintf("task %d has not been confirmed by the service yet", id)}
	}
	epoch := d.sessions.Epoch()
	task, err := d.api.GetTask(ctx, id)
	if err != nil {
		return nil, d.fail(ctx, "show", epoch, KindRefresh, err)
	}
	return task, nil
}

// Cancel cancels one task and returns the service's message.
func (d *Dashboard) Cancel(ctx context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", &Error{Kind: KindValidation, Op: "cancel", Detail: fmt.Sprintf("task %d has not been confirmed by the service yet", id)}
	}
	var message string
	err := d.mutate(ctx, "cancel", func() (err error) {
		message, err = d.api.CancelTask(ctx, id)
		return err
	}, d.afterTasks)
	return message, err
}

// DeleteAll purges the caller's task history.
func (d *Dashboard) DeleteAll(ctx context.Context) (string, error) {
	var message string
	err := d.mutate(ctx, "purge", func() (err error) {
		message, err = d.api.DeleteTasks(ctx)
		if err == nil {
			d.tasks.RemoveAll()
		}
		return err
	}, d.afterTasks, d.afterQuota)
	return message, err
}

// KillAll cancels every active task of the caller.
func (d *Dashboard) KillAll(ctx context.Context) (string, error) {
	var message string
	err := d.mutate(ctx, "kill-all", func() (err error) {
		message, err = d.api.KillAll(ctx)
		return err
	}, d.afterTasks)
	return message, err
}

// UpdateProfile renames the account and/or changes its password. A
// successful rename updates the persisted username.
func (d *Dashboard) UpdateProfile(ctx context.Context, username string, password *secret.Buffer) (*taskapi.ProfileResult, error) {
	if username == "" && password == nil {
		return nil, &Error{Kind: KindValidation, Op: "profile", Detail: "nothing to update"}
	}
	var result *taskapi.ProfileResult
	err := d.mutate(ctx, "profile", func() (err error) {
		result, err = d.api.UpdateProfile(ctx, taskapi.ProfileUpdate{Username: username, Password: password})
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Username != "" {
		if err := d.sessions.SetUsername(ctx, result.Username); err != nil {
			d.logger.Warn("persisting new username", "error", err)
		}
		d.notify()
	}
	return result, nil
}

// requireAdmin refuses admin operations locally for non-admin sessions.
func (d *Dashboard) requireAdmin(op string) error {
	current, ok := d.sessions.Current()
	if !ok {
		return &Error{Kind: KindAuthExpired, Op: op, Detail: "not logged in", Err: session.ErrNoSession}
	}
	if !current.IsAdmin {
		return &Error{Kind: KindValidation, Op: op, Detail: "Forbidden: Admin access required"}
	}
	return nil
}

// AdminUsers lists every account with its dispatch count.
func (d *Dashboard) AdminUsers(ctx context.Context) ([]taskapi.UserSummary, error) {
	if err := d.requireAdmin("admin users"); err != nil {
		return nil, err
	}
	var users []taskapi.UserSummary
	err := d.mutate(ctx, "admin users", func() (err error) {
		users, err = d.api.AdminUsers(ctx)
		return err
	})
	return users, err
}

// ResetSystem deletes every task of every user.
func (d *Dashboard) ResetSystem(ctx context.Context) (string, error) {
	if err := d.requireAdmin("admin reset"); err != nil {
		return "", err
	}
	var message string
	err := d.mutate(ctx, "admin reset", func() (err error) {
		message, err = d.api.ResetSystem(ctx)
		return err
	}, d.afterTasks, d.afterQuota)
	return message, err
}

// Health probes the service without credentials.
func (d *Dashboard) Health(ctx context.Context) (*taskapi.Health, error) {
	return d.client.Health(ctx)
}

// Subscribe returns a channel that receives a value whenever tasks,
// quota or session change. Notifications coalesce. Call cancel to
// unsubscribe.
func (d *Dashboard) Subscribe() (changes <-chan struct{}, cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	channel := make(chan struct{}, 1)
	d.subscribers[id] = channel
	return channel, sync.OnceFunc(func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	})
}

func (d *Dashboard) notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, channel := range d.subscribers {
		select {
		case channel <- struct{}{}:
		default:
		}
	}
}
