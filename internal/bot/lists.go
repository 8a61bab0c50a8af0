package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"taskbot/internal/domain"
	"taskbot/internal/gateway"
	"taskbot/internal/repo"
	"taskbot/internal/session"
)

const (
	// PageSize leaves room for the Load More row under the ten-row limit.
	PageSize      = 9
	inlineRows    = 12
	titleKeep     = 60
	inlineTitle   = 40
	summaryPrefix = "📊 "
)

var statusFilters = map[string]domain.Status{
	"not started": domain.StatusNotStarted,
	"in progress": domain.StatusInProgress,
	"on hold":     domain.StatusOnHold,
}

var bucketForStatus = map[domain.Status]string{
	domain.StatusNotStarted: session.BucketNotStarted,
	domain.StatusInProgress: session.BucketInProgress,
	domain.StatusOnHold:     session.BucketOnHold,
}

func (b *Bot) handleMenuTrigger(ctx context.Context, from, text string) bool {
	switch normalize(text) {
	case "menu", "help", "start":
		b.sendButtons(ctx, from, msgMenu, menuButtons)
		return true
	}
	return false
}

func (b *Bot) handleFilterTrigger(ctx context.Context, from, text string) bool {
	key := normalize(text)
	switch key {
	case "guide":
		b.send(ctx, from, msgFormatGuide)
		return true
	case "change":
		b.changeStoredDeadline(ctx, from)
		return true
	case "today", "overdue":
	default:
		if _, ok := statusFilters[key]; !ok {
			return false
		}
	}
	u, ok := b.linkedUser(ctx, from)
	if !ok {
		return true
	}
	open, ok := b.openTasks(ctx, from, u.ID)
	if !ok {
		return true
	}
	counts := b.countBuckets(open)
	switch key {
	case "today":
		b.sendToday(ctx, from, open, counts)
	case "overdue":
		b.sendOverdue(ctx, from, open, counts)
	default:
		b.sendByStatus(ctx, from, open, counts, statusFilters[key])
	}
	return true
}

func (b *Bot) openTasks(ctx context.Context, from, userID string) ([]domain.Task, bool) {
	tasks, err := b.Tasks.ListTasks(ctx, repo.TaskFilters{AssigneeID: userID, ExcludeStatus: domain.StatusCompleted})
	if err != nil {
		b.fail(ctx, from, "list tasks", err)
		return nil, false
	}
	return tasks, true
}

func (b *Bot) isOverdue(t domain.Task) bool {
	if t.Deadline == nil {
		return false
	}
	d, ok := b.Dates.DaysUntil(*t.Deadline)
	return ok && d < 0
}

func (b *Bot) isDueToday(t domain.Task) bool {
	if t.Deadline == nil {
		return false
	}
	d, ok := b.Dates.DaysUntil(*t.Deadline)
	return ok && d == 0
}

// countBuckets sorts each open task into one summary bucket. On Hold wins
// over overdue, which wins over the task's own status.
func (b *Bot) countBuckets(tasks []domain.Task) session.StatusCounts {
	var c session.StatusCounts
	for _, t := range tasks {
		switch {
		case t.Status == domain.StatusOnHold:
			c.OnHold++
		case b.isOverdue(t):
			c.Overdue++
		case t.Status == domain.StatusNotStarted:
			c.NotStarted++
		case t.Status == domain.StatusInProgress:
			c.InProgress++
		}
	}
	return c
}

func (b *Bot) entry(t domain.Task) session.ListEntry {
	deadline := ""
	if t.Deadline != nil {
		deadline = *t.Deadline
	}
	return session.ListEntry{
		TaskID:   t.ID,
		Title:    gateway.Truncate(t.Title, titleKeep),
		DaysText: b.Dates.DaysText(deadline),
		Status:   t.Status,
	}
}

func (b *Bot) entries(tasks []domain.Task) []session.ListEntry {
	out := make([]session.ListEntry, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, b.entry(t))
	}
	return out
}

// sortByDeadline orders tasks by deadline with undated tasks last.
func sortByDeadline(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		di, dj := tasks[i].Deadline, tasks[j].Deadline
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return *di < *dj
	})
}

// sendMyTasks lists the sender's open tasks.
func (b *Bot) sendMyTasks(ctx context.Context, from string) {
	u, ok := b.linkedUser(ctx, from)
	if !ok {
		return
	}
	b.showMyTasks(ctx, from, u.ID)
}

func (b *Bot) showMyTasks(ctx context.Context, from, userID string) {
	b.showOpenTasks(ctx, from, userID, "Your Pending Tasks", "✅ You have no pending tasks! Great job! 🎉")
}

// showOpenTasks lists open tasks, overdue first and then by deadline.
func (b *Bot) showOpenTasks(ctx context.Context, from, userID, header, empty string) {
	open, ok := b.openTasks(ctx, from, userID)
	if !ok {
		return
	}
	sortByDeadline(open)
	counts := b.countBuckets(open)
	b.sendTaskList(ctx, from, session.TaskList{Entries: b.entries(open), Header: header, Counts: &counts}, empty)
}

func (b *Bot) sendByStatus(ctx context.Context, from string, open []domain.Task, counts session.StatusCounts, status domain.Status) {
	var matched []domain.Task
	for _, t := range open {
		if t.Status == status {
			matched = append(matched, t)
		}
	}
	sortByDeadline(matched)
	b.sendTaskList(ctx, from, session.TaskList{
		Entries: b.entries(matched),
		Header:  "Tasks - " + status.Display(),
		Counts:  &counts,
		Exclude: bucketForStatus[status],
	}, fmt.Sprintf("✅ No tasks with status *%s*", status.Display()))
}

func (b *Bot) sendToday(ctx context.Context, from string, open []domain.Task, counts session.StatusCounts) {
	var due []domain.Task
	for _, t := range open {
		if b.isDueToday(t) && t.Status != domain.StatusOnHold {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Status == domain.StatusInProgress && due[j].Status != domain.StatusInProgress
	})
	b.sendTaskList(ctx, from, session.TaskList{Entries: b.entries(due), Header: "📅 Tasks Due Today", Counts: &counts}, "✅ No tasks due today!")
}

func (b *Bot) sendOverdue(ctx context.Context, from string, open []domain.Task, counts session.StatusCounts) {
	var late []domain.Task
	for _, t := range open {
		if b.isOverdue(t) && t.Status != domain.StatusOnHold {
			late = append(late, t)
		}
	}
	sortByDeadline(late)
	b.sendTaskList(ctx, from, session.TaskList{
		Entries: b.entries(late),
		Header:  "🔴 Overdue Tasks",
		Counts:  &counts,
		Exclude: session.BucketOverdue,
	}, "✅ No overdue tasks! Great job staying on track! 🎉")
}

// sendTaskList stores the list at page zero and renders it. An empty list
// gets the empty reply and drops any earlier list.
func (b *Bot) sendTaskList(ctx context.Context, from string, list session.TaskList, empty string) {
	if len(list.Entries) == 0 {
		b.clear(ctx, from, list.Kind())
		b.send(ctx, from, empty)
		return
	}
	list.Page = 0
	if err := b.Sessions.Save(ctx, from, list); err != nil {
		b.fail(ctx, from, "save task list", err)
		return
	}
	b.renderPage(ctx, from, list)
}

// RenderPage builds the body and buttons for the list's current page.
func RenderPage(list session.TaskList) (string, []gateway.Button) {
	total := len(list.Entries)
	start := list.Page * PageSize
	if start > total {
		start = total
	}
	end := min(start+PageSize, total)

	var buttons []gateway.Button
	for _, e := range list.Entries[start:end] {
		buttons = append(buttons, gateway.Button{
			ID:          btnSelectTask + e.TaskID,
			Title:       gateway.Truncate(e.Title, gateway.MaxTitle),
			Description: gateway.Truncate(e.DaysText, gateway.MaxDescription),
		})
	}
	if end < total {
		buttons = append(buttons, gateway.Button{
			ID:          btnLoadMore,
			Title:       "➡️ Load More",
			Description: fmt.Sprintf("Show tasks %d-%d of %d", end+1, min(end+PageSize, total), total),
		})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *%s* (%s)", list.Header, plural(total, "task"))
	if pages := (total + PageSize - 1) / PageSize; list.Page > 0 {
		fmt.Fprintf(&sb, " - page %d of %d", list.Page+1, pages)
	}
	sb.WriteString("\n\n")
	rows := list.Entries[start:end]
	offset := start
	if list.Page == 0 {
		rows = list.Entries[:min(inlineRows, total)]
		offset = 0
	}
	for i, e := range rows {
		fmt.Fprintf(&sb, "%d. %s (%s) %s\n", offset+i+1, gateway.Truncate(e.Title, inlineTitle), e.DaysText, e.Status.Emoji())
	}
	if list.Page == 0 && total > inlineRows {
		fmt.Fprintf(&sb, "... +%d more\n", total-inlineRows)
	}
	if list.Counts != nil {
		if line := summaryLine(*list.Counts, list.Exclude); line != "" {
			sb.WriteString("\n" + summaryPrefix + line + "\n")
		}
	}
	sb.WriteString("\n")
	if total > PageSize {
		fmt.Fprintf(&sb, "💡 *Type a number (1-%d) to select a task*", total)
		if end < total {
			sb.WriteString(" or `more` for the next page")
		}
	} else {
		sb.WriteString("Select a task to update its status.")
	}
	return gateway.Truncate(sb.String(), gateway.MaxBody), buttons
}

// summaryLine joins the non-zero, non-excluded counts in fixed order.
func summaryLine(c session.StatusCounts, exclude string) string {
	parts := []struct {
		key   string
		n     int
		label string
	}{
		{session.BucketNotStarted, c.NotStarted, "⚫ %d not started"},
		{session.BucketInProgress, c.InProgress, "🔵 %d in progress"},
		{session.BucketOverdue, c.Overdue, "🔴 %d overdue"},
		{session.BucketOnHold, c.OnHold, "🟠 %d on hold"},
	}
	var out []string
	for _, p := range parts {
		if p.key == exclude || p.n == 0 {
			continue
		}
		out = append(out, fmt.Sprintf(p.label, p.n))
	}
	return strings.Join(out, " | ")
}

func (b *Bot) renderPage(ctx context.Context, from string, list session.TaskList) {
	body, buttons := RenderPage(list)
	b.sendButtons(ctx, from, body, buttons)
}

func (b *Bot) handleMore(ctx context.Context, from, text string) bool {
	if normalize(text) != "more" {
		return false
	}
	return b.loadMore(ctx, from, false)
}

// loadMore advances the stored list by one page. From a button, a missing
// list is reported as expired; from text it is left to later handlers.
func (b *Bot) loadMore(ctx context.Context, from string, fromButton bool) bool {
	list, ok, err := session.Load[session.TaskList](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load task list", err)
		return true
	}
	if !ok || len(list.Entries) == 0 {
		if fromButton {
			b.send(ctx, from, msgSessionExpired)
		}
		return fromButton
	}
	if (list.Page+1)*PageSize >= len(list.Entries) {
		b.send(ctx, from, msgNoMore)
		return true
	}
	list.Page++
	if err := b.Sessions.Save(ctx, from, list); err != nil {
		b.fail(ctx, from, "save task list", err)
		return true
	}
	b.renderPage(ctx, from, list)
	return true
}

// handleNumberSelection picks a task by its position in the full stored list,
// whatever page is on screen.
func (b *Bot) handleNumberSelection(ctx context.Context, from, text string) bool {
	n, isNum := parseOrdinal(text)
	if !isNum {
		return false
	}
	list, ok, err := session.Load[session.TaskList](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load task list", err)
		return true
	}
	if !ok || len(list.Entries) == 0 {
		return false
	}
	if n < 1 || n > len(list.Entries) {
		b.send(ctx, from, invalidNumber(len(list.Entries)))
		return true
	}
	b.selectTask(ctx, from, list.Entries[n-1].TaskID)
	return true
}
