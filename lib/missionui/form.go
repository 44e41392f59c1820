// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/tui"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/tasks"
)

// Form fields in focus order.
const (
	fieldPayload = iota
	fieldType
	fieldReplicas
	fieldMaxExecution
	fieldDuration
	fieldCount
)

// dispatchForm collects one dispatch request. The type field is a
// selector cycled with left/right; the rest are text inputs. Numeric
// fields left blank take the configured defaults.
type dispatchForm struct {
	inputs    [fieldCount]textinput.Model
	typeIndex int
	focus     int
	defaults  tasks.Defaults
}

func newDispatchForm(defaults tasks.Defaults) dispatchForm {
	form := dispatchForm{defaults: defaults}
	for index := range form.inputs {
		input := textinput.New()
		input.Prompt = ""
		input.CharLimit = 8
		form.inputs[index] = input
	}

	form.inputs[fieldPayload].CharLimit = 4096
	form.inputs[fieldPayload].Placeholder = "what should the task work on?"
	form.inputs[fieldReplicas].Placeholder = strconv.Itoa(defaults.Replicas)
	form.inputs[fieldMaxExecution].Placeholder = strconv.Itoa(defaults.MaxExecutionTime)
	form.inputs[fieldDuration].Placeholder = strconv.Itoa(defaults.SimulatedDuration)

	for index, taskType := range taskapi.TaskTypes {
		if taskType == defaults.TaskType {
			form.typeIndex = index
		}
	}
	form.inputs[fieldPayload].Focus()
	return form
}

// move shifts focus by delta, wrapping around.
func (form *dispatchForm) move(delta int) tea.Cmd {
	form.inputs[form.focus].Blur()
	form.focus = (form.focus + delta + fieldCount) % fieldCount
	if form.focus == fieldType {
		return nil
	}
	return form.inputs[form.focus].Focus()
}

// cycleType steps the type selector by delta, wrapping around.
func (form *dispatchForm) cycleType(delta int) {
	count := len(taskapi.TaskTypes)
	form.typeIndex = (form.typeIndex + delta + count) % count
}

// update routes a key to the focused field.
func (form *dispatchForm) update(message tea.KeyMsg) tea.Cmd {
	if form.focus == fieldType {
		switch message.String() {
		case "left", "h":
			form.cycleType(-1)
		case "right", "l", " ":
			form.cycleType(1)
		}
		return nil
	}
	var cmd tea.Cmd
	form.inputs[form.focus], cmd = form.inputs[form.focus].Update(message)
	return cmd
}

// request builds the dispatch. Blank numeric fields stay zero so the
// backend applies its defaults; anything else must parse as an integer.
func (form dispatchForm) request() (taskapi.DispatchRequest, error) {
	request := taskapi.DispatchRequest{
		InputData: form.inputs[fieldPayload].Value(),
		TaskType:  taskapi.TaskTypes[form.typeIndex],
	}

	numbers := []struct {
		field  int
		name   string
		target *int
	}{
		{fieldReplicas, "replicas", &request.Replicas},
		{fieldMaxExecution, "max execution time", &request.MaxExecutionTime},
		{fieldDuration, "simulated duration", &request.SimulatedDuration},
	}
	for _, number := range numbers {
		raw := strings.TrimSpace(form.inputs[number.field].Value())
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return taskapi.DispatchRequest{}, fmt.Errorf("%s must be a whole number, got %q", number.name, raw)
		}
		*number.target = value
	}
	return request, nil
}

// render draws the form as modal body lines.
func (form dispatchForm) render(theme tui.Theme, width int) []string {
	label := lipgloss.NewStyle().Foreground(theme.FaintText)
	focused := lipgloss.NewStyle().Foreground(theme.Accent).Bold(true)

	row := func(field int, name, value string) string {
		style := label
		marker := "  "
		if form.focus == field {
			style = focused
			marker = "› "
		}
		return marker + style.Render(fmt.Sprintf("%-14s", name)) + value
	}

	inputWidth := max(width-22, 8)
	for index := range form.inputs {
		form.inputs[index].Width = inputWidth
	}

	var types []string
	for index, taskType := range taskapi.TaskTypes {
		name := string(taskType)
		if index == form.typeIndex {
			name = focused.Render("[" + name + "]")
		} else {
			name = label.Render(name)
		}
		types = append(types, name)
	}

	return []string{
		row(fieldPayload, "payload", form.inputs[fieldPayload].View()),
		row(fieldType, "type", strings.Join(types, " ")),
		row(fieldReplicas, "replicas", form.inputs[fieldReplicas].View()),
		row(fieldMaxExecution, "max exec (s)", form.inputs[fieldMaxExecution].View()),
		row(fieldDuration, "duration (s)", form.inputs[fieldDuration].View()),
		"",
		label.Render("tab next field · ←/→ type · enter dispatch · esc close"),
	}
}
