// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package missionui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zaibaki/ResilientTask-Mission-Control/lib/tui"
	"github.com/zaibaki/ResilientTask-Mission-Control/poller"
	"github.com/zaibaki/ResilientTask-Mission-Control/quota"
	"github.com/zaibaki/ResilientTask-Mission-Control/taskapi"
	"github.com/zaibaki/ResilientTask-Mission-Control/view"
)

// Column widths of a task row, before the payload.
const (
	idColumn     = 7
	statusColumn = 11
	typeColumn   = 16
	ageColumn    = 5
)

// View implements tea.Model.
func (model Model) View() string {
	if model.width == 0 || model.height == 0 {
		return ""
	}

	divider := lipgloss.NewStyle().Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))

	sections := []string{
		model.renderHeader(),
		model.renderCards(),
		model.renderQuota(),
		divider,
		model.renderList(),
		divider,
		model.renderDetail(),
		model.renderStatusBar(),
	}
	screen := lipgloss.JoinVertical(lipgloss.Left, sections...)

	switch model.mode {
	case modeForm:
		width := min(model.width-4, 72)
		modal := tui.RenderModal(model.theme, "New dispatch", model.form.render(model.theme, width-4), width)
		screen = tui.CenterOverlay(screen, modal, model.width, model.height)
	case modeConfirm:
		modal := tui.RenderModal(model.theme, model.confirmTitle(), model.confirmBody(), min(model.width-4, 64))
		screen = tui.CenterOverlay(screen, modal, model.width, model.height)
	}
	return screen
}

func (model Model) confirmTitle() string {
	if model.pendingBulk == bulkPurge {
		return "Delete all of your tasks?"
	}
	return "Terminate all active tasks?"
}

func (model Model) confirmBody() []string {
	danger := lipgloss.NewStyle().Foreground(model.theme.DangerText)
	line := "Every Pending and Processing task you own will be stopped."
	if model.pendingBulk == bulkPurge {
		line = "Every task record you own will be removed. This cannot be undone."
	}
	return []string{danger.Render(line), "", "y confirm · n back"}
}

// fitLine truncates or pads a rendered line to exactly width columns.
func fitLine(line string, width int) string {
	current := ansi.StringWidth(line)
	if current > width {
		return ansi.Truncate(line, width, "…")
	}
	return line + strings.Repeat(" ", width-current)
}

func (model Model) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("MISSION CONTROL")
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	who := faint.Render("signed out")
	if model.signedIn {
		who = model.session.Username
		if model.session.IsAdmin {
			who += faint.Render(" (admin)")
		}
	}

	pollColor := model.theme.FaintText
	if model.polling == poller.Active {
		pollColor = model.theme.StatusCompleted
	}
	polling := lipgloss.NewStyle().Foreground(pollColor).Render("● " + model.polling.String())

	left := title + "  " + who + "  " + polling
	if model.inFlight > 0 {
		left += "  " + lipgloss.NewStyle().Foreground(model.theme.Accent).Render("working…")
	}

	right := fmt.Sprintf("status:%s type:%s %s", model.filter.Status, model.filter.Type, model.order)
	if model.filter.Query != "" {
		right += fmt.Sprintf(" /%s", model.filter.Query)
	}
	right = faint.Render(right)

	gap := model.width - ansi.StringWidth(left) - ansi.StringWidth(right)
	if gap < 2 {
		return fitLine(left, model.width)
	}
	return left + strings.Repeat(" ", gap) + right
}

func (model Model) renderCards() string {
	counts := model.projection.Counts
	card := func(label string, value int, color lipgloss.Color) string {
		number := lipgloss.NewStyle().Bold(true).Foreground(color).Render(fmt.Sprintf("%d", value))
		return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(label+" ") + number
	}
	cards := []string{
		card("Active", counts.Active, model.theme.StatusProcessing),
		card("Completed", counts.Completed, model.theme.StatusCompleted),
		card("Failed", counts.Failed, model.theme.StatusFailed),
		card("Cancelled", counts.Cancelled, model.theme.StatusCancelled),
		card("Total", counts.Total(), model.theme.NormalText),
	}
	return fitLine(strings.Join(cards, "   "), model.width)
}

func (model Model) renderQuota() string {
	label := lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("Quota ")
	if !model.quota.HasSample {
		return fitLine(label+lipgloss.NewStyle().Foreground(model.theme.FaintText).Render("waiting for the first sample"), model.width)
	}

	snapshot := model.quota.Snapshot
	level := model.quota.Level()
	color := model.theme.LevelColor(int(level))
	gauge := lipgloss.NewStyle().Foreground(color).Render(tui.Gauge(quota.Usage(snapshot), 20))

	line := fmt.Sprintf("%s%s %d/%d used · %d available · %s",
		label, gauge, snapshot.Used, snapshot.Quota, snapshot.Available,
		lipgloss.NewStyle().Foreground(color).Render(level.String()))
	line += fmt.Sprintf(" · %+d/refresh", model.quota.Velocity)
	if spark := tui.Sparkline(model.quota.History, quota.HistoryLimit); spark != "" {
		line += "  " + lipgloss.NewStyle().Foreground(color).Render(spark)
	}
	return fitLine(line, model.width)
}

func (model Model) renderList() string {
	height := model.listHeight()
	rows := model.projection.Tasks
	rowWidth := max(model.width-1, 1)
	now := model.clock.Now()

	lines := make([]string, 0, height)
	if len(rows) == 0 {
		empty := "No tasks yet. Press n to dispatch one."
		if model.filter != (view.Filter{Status: view.StatusAll, Type: view.TypeAll}) {
			empty = "No tasks match the current filters."
		}
		lines = append(lines, fitLine(lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(empty), rowWidth))
	}
	for index := model.scrollOffset; index < len(rows) && len(lines) < height; index++ {
		lines = append(lines, model.renderRow(rows[index], index == model.cursor, rowWidth, now))
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", rowWidth))
	}

	scrollbar := tui.RenderScrollbar(model.theme, height, len(rows), height, model.scrollOffset, model.mode == modeList)
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(lines, "\n"), scrollbar)
}

func (model Model) renderRow(task taskapi.Task, selected bool, width int, now time.Time) string {
	base := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	switch {
	case selected:
		base = base.Foreground(model.theme.SelectedForeground).Background(model.theme.SelectedBackground)
	case model.heat.Heat(task.ID, now) > 0:
		base = base.Background(model.theme.HotAccent)
	case task.Speculative():
		base = base.Background(model.theme.SpeculativeAccent)
	}
	render := func(style lipgloss.Style, text string) string {
		return style.Inherit(base).Render(text)
	}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	id := fmt.Sprintf("#%d", task.ID)
	if task.Speculative() {
		id = "#…"
	}
	status := lipgloss.NewStyle().Foreground(model.theme.StatusColor(string(task.Status)))

	var row strings.Builder
	row.WriteString(render(base, pad(id, idColumn)))
	row.WriteString(render(status, pad(string(task.Status), statusColumn)))
	row.WriteString(render(faint, pad(string(task.TaskType), typeColumn)))
	row.WriteString(render(faint, pad(formatAge(now.Sub(task.CreatedAt.Time)), ageColumn)))
	row.WriteString(render(base, " "))

	payloadWidth := width - idColumn - statusColumn - typeColumn - ageColumn - 1
	if payloadWidth > 0 {
		row.WriteString(model.renderPayload(task, payloadWidth, base))
	}

	line := row.String()
	if gap := width - ansi.StringWidth(line); gap > 0 {
		line += render(base, strings.Repeat(" ", gap))
	}
	return ansi.Truncate(line, width, "")
}

// renderPayload draws the payload on one line, highlighting the
// characters the search query matched.
func (model Model) renderPayload(task taskapi.Task, width int, base lipgloss.Style) string {
	runes := []rune(flatten(task.InputData))
	truncated := false
	if len(runes) > width {
		runes = runes[:max(width-1, 0)]
		truncated = true
	}

	matched := make(map[int]bool)
	if query := strings.TrimSpace(model.filter.Query); query != "" {
		result := view.FuzzyMatch(task.InputData+" "+string(task.TaskType), []rune(query), nil)
		for _, position := range result.Positions {
			matched[position] = true
		}
	}

	highlight := lipgloss.NewStyle().Bold(true).Background(model.theme.SearchHighlightBackground).Inherit(base)
	var builder strings.Builder
	start := 0
	for start < len(runes) {
		end := start
		for end < len(runes) && matched[end] == matched[start] {
			end++
		}
		style := base
		if matched[start] {
			style = highlight
		}
		builder.WriteString(style.Render(string(runes[start:end])))
		start = end
	}
	if truncated {
		builder.WriteString(base.Render("…"))
	}
	return builder.String()
}

func (model Model) renderDetail() string {
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	lines := make([]string, 0, detailHeight)

	task, ok := model.selected()
	if !ok {
		lines = append(lines, faint.Render("Nothing selected."))
	} else {
		status := lipgloss.NewStyle().Foreground(model.theme.StatusColor(string(task.Status))).Render(string(task.Status))
		heading := fmt.Sprintf("#%d · %s · %s", task.ID, status, task.TaskType)
		if task.Speculative() {
			heading = fmt.Sprintf("awaiting confirmation · %s · %s", status, task.TaskType)
		}
		if !task.CreatedAt.IsZero() {
			heading += faint.Render(" · created " + task.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
		}

		limits := fmt.Sprintf("max execution %ds · simulated %ds", task.MaxExecutionTime, task.SimulatedDuration)
		if task.IsCancelled && task.Status.IsActive() {
			limits += " · cancellation requested"
		}

		result := faint.Render("no result yet")
		if task.Result != nil {
			result = flatten(*task.Result)
		}

		lines = append(lines,
			heading,
			faint.Render(limits),
			faint.Render("payload ")+flatten(task.InputData),
			faint.Render("result  ")+result,
		)
	}

	for len(lines) < detailHeight {
		lines = append(lines, "")
	}
	for index, line := range lines {
		lines[index] = fitLine(line, model.width)
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderStatusBar() string {
	if model.mode == modeSearch {
		return fitLine(model.search.View(), model.width)
	}

	if model.status.text != "" {
		color := model.theme.NormalText
		switch {
		case model.status.level >= slog.LevelError:
			color = model.theme.DangerText
		case model.status.level >= slog.LevelWarn:
			color = model.theme.Accent
		}
		return fitLine(lipgloss.NewStyle().Foreground(color).Render(model.status.text), model.width)
	}

	bindings := []struct{ keys, action string }{
		{"j/k", "move"}, {"s", "status"}, {"t", "type"}, {"o", "order"}, {"/", "search"},
		{"n", "dispatch"}, {"c", "cancel"}, {"K", "kill all"}, {"D", "purge"}, {"r", "refresh"}, {"q", "quit"},
	}
	keyStyle := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	helpStyle := lipgloss.NewStyle().Foreground(model.theme.HelpText)
	var parts []string
	for _, binding := range bindings {
		parts = append(parts, keyStyle.Render(binding.keys)+" "+helpStyle.Render(binding.action))
	}
	return fitLine(strings.Join(parts, helpStyle.Render(" · ")), model.width)
}

// pad left-aligns text in a column, keeping one space of separation.
func pad(text string, width int) string {
	if ansi.StringWidth(text) >= width {
		return ansi.Truncate(text, width-1, "") + " "
	}
	return text + strings.Repeat(" ", width-ansi.StringWidth(text))
}

// flatten replaces control characters so text stays on one line. Rune
// offsets are preserved.
func flatten(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
}

// formatAge renders a duration in its largest whole unit.
func formatAge(age time.Duration) string {
	switch {
	case age < 0:
		return "now"
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
