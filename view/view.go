// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package view derives what the dashboard shows from the canonical
// task list: a filtered, sorted copy and the status counters.
//
// Everything here is pure. Inputs are never modified and outputs never
// share backing arrays with them.
package view

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
)

// StatusFilter selects tasks by status: StatusAll, StatusActive, or an
// exact taskapi.TaskStatus value.
type StatusFilter string

const (
	StatusAll    StatusFilter = "all"
	StatusActive StatusFilter = "active"
)

// StatusFilters lists every status filter in display order.
var StatusFilters = []StatusFilter{
	StatusAll,
	StatusActive,
	StatusFilter(taskapi.StatusPending),
	StatusFilter(taskapi.StatusProcessing),
	StatusFilter(taskapi.StatusCompleted),
	StatusFilter(taskapi.StatusFailed),
	StatusFilter(taskapi.StatusCancelled),
}

// TypeFilter selects tasks by type: TypeAll or an exact task type.
type TypeFilter string

const TypeAll TypeFilter = "all"

// TypeFilters lists every type filter in display order.
var TypeFilters = []TypeFilter{
	TypeAll,
	TypeFilter(taskapi.TypeTextProcessing),
	TypeFilter(taskapi.TypeImageGen),
	TypeFilter(taskapi.TypeVideoGen),
	TypeFilter(taskapi.TypeCodeAnalysis),
}

// Order is the sort direction over creation time.
type Order int

const (
	Newest Order = iota
	Oldest
)

func (o Order) String() string {
	if o == Oldest {
		return "oldest"
	}
	return "newest"
}

// ParseStatusFilter accepts "all", "active" or a status name.
func ParseStatusFilter(value string) (StatusFilter, error) {
	if value == "" {
		return StatusAll, nil
	}
	for _, filter := range StatusFilters {
		if strings.EqualFold(string(filter), value) {
			return filter, nil
		}
	}
	return "", fmt.Errorf("unknown status filter %q", value)
}

// ParseTypeFilter accepts "all" or a task type name.
func ParseTypeFilter(value string) (TypeFilter, error) {
	if value == "" {
		return TypeAll, nil
	}
	for _, filter := range TypeFilters {
		if strings.EqualFold(string(filter), value) {
			return filter, nil
		}
	}
	return "", fmt.Errorf("unknown type filter %q", value)
}

// ParseOrder accepts "newest" or "oldest".
func ParseOrder(value string) (Order, error) {
	switch strings.ToLower(value) {
	case "", "newest":
		return Newest, nil
	case "oldest":
		return Oldest, nil
	}
	return Newest, fmt.Errorf("unknown sort order %q", value)
}

// IsActiveStatus reports whether a task is still waiting or running.
func IsActiveStatus(status taskapi.TaskStatus) bool {
	return status == taskapi.StatusPending || status == taskapi.StatusProcessing
}

// Filter is the conjunction of a status predicate, a type predicate and
// an optional fuzzy query over the payload and type.
type Filter struct {
	Status StatusFilter
	Type   TypeFilter
	Query  string
}

func (f Filter) matchesStatus(status taskapi.TaskStatus) bool {
	switch f.Status {
	case "", StatusAll:
		return true
	case StatusActive:
		return IsActiveStatus(status)
	default:
		return taskapi.TaskStatus(f.Status) == status
	}
}

func (f Filter) matchesType(taskType taskapi.TaskType) bool {
	return f.Type == "" || f.Type == TypeAll || taskapi.TaskType(f.Type) == taskType
}

// Apply returns the tasks that pass f, sorted by order. The result is a
// fresh slice.
func Apply(tasks []taskapi.Task, f Filter, order Order) []taskapi.Task {
	pattern := []rune(strings.TrimSpace(f.Query))
	slab := NewSlab()
	if len(pattern) == 0 {
		slab = nil
	}

	result := make([]taskapi.Task, 0, len(tasks))
	for _, task := range tasks {
		if !f.matchesStatus(task.Status) || !f.matchesType(task.TaskType) {
			continue
		}
		if len(pattern) > 0 && FuzzyMatch(task.InputData+" "+string(task.TaskType), pattern, slab).Score == 0 {
			continue
		}
		result = append(result, task)
	}
	Sort(result, order)
	return result
}

// Sort orders tasks in place by creation time, breaking ties by id.
func Sort(tasks []taskapi.Task, order Order) {
	slices.SortStableFunc(tasks, func(a, b taskapi.Task) int {
		c := a.CreatedAt.Compare(b.CreatedAt.Time)
		if c == 0 {
			c = compareIDs(a.ID, b.ID)
		}
		if order == Newest {
			return -c
		}
		return c
	})
}

// compareIDs orders server ids numerically and places speculative
// (negative) ids after every server id, since they were created last.
// Among speculative ids a larger magnitude is later.
func compareIDs(a, b int64) int {
	switch {
	case a < 0 && b < 0:
		return cmp.Compare(-a, -b)
	case a < 0:
		return 1
	case b < 0:
		return -1
	}
	return cmp.Compare(a, b)
}

// Counts are the four disjoint status buckets.
type Counts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Total is the number of tasks counted.
func (c Counts) Total() int { return c.Active + c.Completed + c.Failed + c.Cancelled }

// Count tallies tasks in one pass. Callers pass the unfiltered list.
func Count(tasks []taskapi.Task) Counts {
	var counts Counts
	for _, task := range tasks {
		switch task.Status {
		case taskapi.StatusPending, taskapi.StatusProcessing:
			counts.Active++
		case taskapi.StatusCompleted:
			counts.Completed++
		case taskapi.StatusFailed:
			counts.Failed++
		case taskapi.StatusCancelled:
			counts.Cancelled++
		}
	}
	return counts
}

// Projection is everything derived from one canonical list.
type Projection struct {
	Tasks  []taskapi.Task
	Counts Counts
}

// Project filters and sorts for display and counts over the full list.
func Project(tasks []taskapi.Task, f Filter, order Order) Projection {
	return Projection{Tasks: Apply(tasks, f, order), Counts: Count(tasks)}
}
