// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fakeservice is an in-process stand-in for the task-execution
// service, served over httptest. It implements every endpoint the
// client uses with the same status codes and detail messages, keeps its
// state in memory, and lets tests inject failures per route.
package fakeservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/clock"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// DefaultQuota is the task quota given to accounts created by signup.
const DefaultQuota = 100

// DropConnection as a failure status closes the connection without a
// response, which the client sees as a transport error.
const DropConnection = -1

type account struct {
	id       int64
	username string
	password string
	isAdmin  bool
	quota    int64
}

type failure struct {
	status    int
	detail    string
	remaining int // <0 means forever
}

// Server is the fake service. Create with Start, stop with Close.
type Server struct {
	httpServer *httptest.Server
	clock      clock.Clock

	mu         sync.Mutex
	accounts   map[int64]*account
	tokens     map[string]int64
	tasks      map[int64]*taskapi.Task
	nextUserID int64
	nextTaskID int64
	failures   map[string]*failure
	hits       map[string]int
	gates      map[string]chan struct{}
}

// Start launches the fake on a loopback listener. A nil clock uses the
// wall clock for created_at.
func Start(serviceClock clock.Clock) *Server {
	if serviceClock == nil {
		serviceClock = clock.Real()
	}
	server := &Server{
		clock:      serviceClock,
		accounts:   make(map[int64]*account),
		tokens:     make(map[string]int64),
		tasks:      make(map[int64]*taskapi.Task),
		nextUserID: 1,
		nextTaskID: 1,
		failures:   make(map[string]*failure),
		hits:       make(map[string]int),
		gates:      make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("POST /signup", server.handleSignup)
	mux.HandleFunc("POST /login", server.handleLogin)
	mux.HandleFunc("GET /tasks", server.authenticated(server.handleListTasks))
	mux.HandleFunc("POST /tasks", server.authenticated(server.handleSubmit))
	mux.HandleFunc("DELETE /tasks", server.authenticated(server.handleDeleteTasks))
	mux.HandleFunc("GET /tasks/{id}", server.authenticated(server.handleGetTask))
	mux.HandleFunc("POST /tasks/{id}/cancel", server.authenticated(server.handleCancel))
	mux.HandleFunc("POST /tasks/kill-all", server.authenticated(server.handleKillAll))
	mux.HandleFunc("GET /users/me/quota", server.authenticated(server.handleQuota))
	mux.HandleFunc("PUT /users/me", server.authenticated(server.handleUpdateProfile))
	mux.HandleFunc("GET /admin/users", server.authenticated(server.handleAdminUsers))
	mux.HandleFunc("POST /admin/reset-system", server.authenticated(server.handleResetSystem))

	server.httpServer = httptest.NewServer(server.intercept(mux))
	return server
}

// URL is the base URL to point a client at.
func (s *Server) URL() string { return s.httpServer.URL }

// Close stops the listener and releases any held gates.
func (s *Server) Close() {
	s.mu.Lock()
	for route, gate := range s.gates {
		close(gate)
		delete(s.gates, route)
	}
	s.mu.Unlock()
	s.httpServer.Close()
}

// intercept counts hits, applies gates and injected failures before the
// real handler runs. Routes are keyed by their mux pattern, for example
// "POST /tasks" or "POST /tasks/{id}/cancel".
func (s *Server) intercept(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, route := next.Handler(request)

		s.mu.Lock()
		s.hits[route]++
		gate := s.gates[route]
		injected := s.failures[route]
		var status int
		var detail string
		if injected != nil {
			status, detail = injected.status, injected.detail
			if injected.remaining > 0 {
				injected.remaining--
				if injected.remaining == 0 {
					delete(s.failures, route)
				}
			}
		}
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}

		switch {
		case injected == nil:
			next.ServeHTTP(writer, request)
		case status == DropConnection:
			hijacker, ok := writer.(http.Hijacker)
			if !ok {
				writeDetail(writer, http.StatusBadGateway, "cannot drop connection")
				return
			}
			conn, _, err := hijacker.Hijack()
			if err == nil {
				conn.Close()
			}
		default:
			writeDetail(writer, status, detail)
		}
	})
}

// FailNext makes the next count requests to route fail with status and
// detail. count <= 0 fails every request until ClearFailures.
func (s *Server) FailNext(route string, status int, detail string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &failure{status: status, detail: detail, remaining: count}
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]*failure)
}

// Hold makes requests to route block until the returned release func is
// called. Release is idempotent.
func (s *Server) Hold(route string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[route] == gate {
				delete(s.gates, route)
				close(gate)
			}
			s.mu.Unlock()
		})
	}
}

// Hits reports how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// AddUser creates an account directly and returns its id.
func (s *Server) AddUser(username, password string, isAdmin bool, quota int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, isAdmin, quota)
}

func (s *Server) addUserLocked(username, password string, isAdmin bool, quota int64) int64 {
	id := s.nextUserID
	s.nextUserID++
	s.accounts[id] = &account{id: id, username: username, password: password, isAdmin: isAdmin, quota: quota}
	return id
}

// IssueToken mints a valid bearer token for username without a login
// round trip.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, candidate := range s.accounts {
		if candidate.username == username {
			token := uuid.NewString()
			s.tokens[token] = candidate.id
			return token
		}
	}
	panic(fmt.Sprintf("fakeservice: no account %q", username))
}

// RevokeTokens invalidates every issued token; subsequent bearer
// requests get 401.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
}

// SetStatus moves a task to status, setting result when non-empty.
func (s *Server) SetStatus(id int64, status taskapi.TaskStatus, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		panic(fmt.Sprintf("fakeservice: no task %d", id))
	}
	task.Status = status
	if result != "" {
		task.Result = &result
	}
}

// TaskCount is the number of stored tasks across all users.
func (s *Server) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Server) authenticated(handler func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		header := request.Header.Get("Authorization")
		if header == "" {
			writeDetail(writer, http.StatusUnauthorized, "Missing Token")
			return
		}
		scheme, token, _ := strings.Cut(header, " ")
		if !strings.EqualFold(scheme, "bearer") {
			writeDetail(writer, http.StatusUnauthorized, "Invalid token scheme")
			return
		}
		s.mu.Lock()
		userID, ok := s.tokens[token]
		caller := s.accounts[userID]
		s.mu.Unlock()
		if !ok || caller == nil {
			writeDetail(writer, http.StatusUnauthorized, "Invalid Token")
			return
		}
		handler(writer, request, caller)
	}
}

func (s *Server) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]string{"status": "ok", "service": "api"})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(writer http.ResponseWriter, request *http.Request) {
	var body credentials
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeDetail(writer, http.StatusUnprocessableEntity, "username and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.username == body.Username {
			writeDetail(writer, http.StatusBadRequest, "Username already registered")
			return
		}
	}
	s.addUserLocked(body.Username, body.Password, false, DefaultQuota)
	writeJSON(writer, http.StatusOK, map[string]string{"message": "User created successfully"})
}

func (s *Server) handleLogin(writer http.ResponseWriter, request *http.Request) {
	var body credentials
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeDetail(writer, http.StatusUnprocessableEntity, "malformed body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, candidate := range s.accounts {
		if candidate.username == body.Username && candidate.password == body.Password {
			token := uuid.NewString()
			s.tokens[token] = candidate.id
			writeJSON(writer, http.StatusOK, taskapi.LoginResponse{
				AccessToken: token,
				TokenType:   "bearer",
				IsAdmin:     candidate.isAdmin,
			})
			return
		}
	}
	writeDetail(writer, http.StatusUnauthorized, "Incorrect username or password")
}

func (s *Server) handleListTasks(writer http.ResponseWriter, request *http.Request, _ *account) {
	limit := 20
	if raw := request.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeDetail(writer, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	s.mu.Lock()
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	page := make([]wireTask, 0, len(ids))
	for _, id := range ids {
		page = append(page, toWire(s.tasks[id]))
	}
	s.mu.Unlock()

	writeJSON(writer, http.StatusOK, page)
}

func (s *Server) handleGetTask(writer http.ResponseWriter, request *http.Request, _ *account) {
	id, err := strconv.ParseInt(request.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(writer, http.StatusUnprocessableEntity, "id must be an integer")
		return
	}
	s.mu.Lock()
	task, ok := s.tasks[id]
	var wire wireTask
	if ok {
		wire = toWire(task)
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(writer, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(writer, http.StatusOK, wire)
}

func (s *Server) handleSubmit(writer http.ResponseWriter, request *http.Request, caller *account) {
	body := taskapi.DispatchRequest{
		MaxExecutionTime:  30,
		TaskType:          taskapi.TypeTextProcessing,
		SimulatedDuration: 5,
		Replicas:          1,
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeDetail(writer, http.StatusUnprocessableEntity, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.usedLocked(caller.id)
	if used+int64(body.Replicas) > caller.quota {
		writeDetail(writer, http.StatusBadRequest, fmt.Sprintf("Quota exceeded. Available: %d", caller.quota-used))
		return
	}

	now := s.clock.Now().UTC()
	created := make([]wireTask, 0, body.Replicas)
	for range body.Replicas {
		task := &taskapi.Task{
			ID:                s.nextTaskID,
			InputData:         body.InputData,
			Status:            taskapi.StatusPending,
			CreatedAt:         taskapi.Timestamp{Time: now},
			MaxExecutionTime:  body.MaxExecutionTime,
			SimulatedDuration: body.SimulatedDuration,
			OwnerID:           caller.id,
			TaskType:          body.TaskType,
		}
		s.nextTaskID++
		s.tasks[task.ID] = task
		created = append(created, toWire(task))
	}
	writeJSON(writer, http.StatusOK, created)
}

func (s *Server) handleCancel(writer http.ResponseWriter, request *http.Request, caller *account) {
	id, err := strconv.ParseInt(request.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(writer, http.StatusUnprocessableEntity, "id must be an integer")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		writeDetail(writer, http.StatusNotFound, "Task not found")
		return
	}
	if task.OwnerID != caller.id {
		writeDetail(writer, http.StatusForbidden, "Not authorized to cancel this task")
		return
	}
	if task.Status.IsTerminal() {
		writeJSON(writer, http.StatusOK, map[string]string{"message": "Task already finished"})
		return
	}
	task.Status = taskapi.StatusCancelled
	task.IsCancelled = true
	writeJSON(writer, http.StatusOK, map[string]string{"message": "Task cancelled"})
}

func (s *Server) handleDeleteTasks(writer http.ResponseWriter, _ *http.Request, caller *account) {
	s.mu.Lock()
	deleted := 0
	for id, task := range s.tasks {
		if task.OwnerID == caller.id {
			delete(s.tasks, id)
			deleted++
		}
	}
	s.mu.Unlock()
	writeJSON(writer, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Successfully deleted %d tasks from your history.", deleted),
	})
}

func (s *Server) handleKillAll(writer http.ResponseWriter, _ *http.Request, caller *account) {
	s.mu.Lock()
	terminated := 0
	for _, task := range s.tasks {
		if task.OwnerID == caller.id && task.Status.IsActive() {
			task.Status = taskapi.StatusCancelled
			task.IsCancelled = true
			terminated++
		}
	}
	s.mu.Unlock()
	writeJSON(writer, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Terminated %d active tasks", terminated),
	})
}

func (s *Server) handleQuota(writer http.ResponseWriter, _ *http.Request, caller *account) {
	s.mu.Lock()
	used := s.usedLocked(caller.id)
	quota := caller.quota
	s.mu.Unlock()
	writeJSON(writer, http.StatusOK, taskapi.QuotaSnapshot{
		Quota:     quota,
		Used:      used,
		Available: max(0, quota-used),
	})
}

func (s *Server) handleUpdateProfile(writer http.ResponseWriter, request *http.Request, caller *account) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeDetail(writer, http.StatusUnprocessableEntity, "malformed body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if body.Username != "" {
		for _, other := range s.accounts {
			if other.username == body.Username && other.id != caller.id {
				writeDetail(writer, http.StatusBadRequest, "Username already taken")
				return
			}
		}
		caller.username = body.Username
	}
	if body.Password != "" {
		caller.password = body.Password
	}
	writeJSON(writer, http.StatusOK, taskapi.ProfileResult{
		Message:  "Profile updated successfully",
		Username: caller.username,
	})
}

func (s *Server) handleAdminUsers(writer http.ResponseWriter, _ *http.Request, caller *account) {
	if !caller.isAdmin {
		writeDetail(writer, http.StatusForbidden, "Forbidden: Admin access required")
		return
	}
	s.mu.Lock()
	users := make([]taskapi.UserSummary, 0, len(s.accounts))
	for _, entry := range s.accounts {
		users = append(users, taskapi.UserSummary{
			ID:              entry.id,
			Username:        entry.username,
			IsAdmin:         entry.isAdmin,
			TaskQuota:       entry.quota,
			TasksDispatched: s.usedLocked(entry.id),
		})
	}
	s.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(writer, http.StatusOK, users)
}

func (s *Server) handleResetSystem(writer http.ResponseWriter, _ *http.Request, caller *account) {
	if !caller.isAdmin {
		writeDetail(writer, http.StatusForbidden, "Forbidden: Admin access required")
		return
	}
	s.mu.Lock()
	s.tasks = make(map[int64]*taskapi.Task)
	s.nextTaskID = 1
	s.mu.Unlock()
	writeJSON(writer, http.StatusOK, map[string]string{
		"message": "System purged successfully. All records cleared and IDs reset.",
	})
}

func (s *Server) usedLocked(userID int64) int64 {
	var used int64
	for _, task := range s.tasks {
		if task.OwnerID == userID {
			used++
		}
	}
	return used
}

// wireTask mirrors the service's JSON: created_at carries no zone.
type wireTask struct {
	ID                int64   `json:"id"`
	InputData         string  `json:"input_data"`
	Status            string  `json:"status"`
	Result            *string `json:"result"`
	CreatedAt         string  `json:"created_at"`
	MaxExecutionTime  int     `json:"max_execution_time"`
	IsCancelled       bool    `json:"is_cancelled"`
	OwnerID           int64   `json:"owner_id"`
	TaskType          string  `json:"task_type"`
	SimulatedDuration int     `json:"simulated_duration"`
}

func toWire(task *taskapi.Task) wireTask {
	return wireTask{
		ID:                task.ID,
		InputData:         task.InputData,
		Status:            string(task.Status),
		Result:            task.Result,
		CreatedAt:         task.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000"),
		MaxExecutionTime:  task.MaxExecutionTime,
		IsCancelled:       task.IsCancelled,
		OwnerID:           task.OwnerID,
		TaskType:          string(task.TaskType),
		SimulatedDuration: task.SimulatedDuration,
	}
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func writeDetail(writer http.ResponseWriter, status int, detail string) {
	writeJSON(writer, status, map[string]string{"detail": detail})
}

// Now exposes the fake's clock reading, for tests that compare
// created_at values.
func (s *Server) Now() time.Time { return s.clock.Now() }
