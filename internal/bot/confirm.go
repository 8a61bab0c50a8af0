package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskbot/internal/engine"
	"taskbot/internal/gateway"
	"taskbot/internal/session"
)

// showConfirmation stores the batch and renders its preview.
func (b *Bot) showConfirmation(ctx context.Context, from string, batch session.PendingBatch) {
	if err := b.Sessions.Save(ctx, from, batch); err != nil {
		b.fail(ctx, from, "save pending tasks", err)
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 *Creating %s:*\n\n", plural(len(batch.Tasks), "task"))
	for i, t := range batch.Tasks {
		fmt.Fprintf(&sb, "%d. %s\n   📅 %s | 👤 %s\n\n", i+1, t.Name, b.Dates.Display(t.Deadline), t.AssigneeDisplay)
	}
	buttons := []gateway.Button{{ID: btnConfirm, Title: "✅ Confirm All"}}
	if batch.ShowAddAnother {
		buttons = append(buttons,
			gateway.Button{ID: btnAddAnother, Title: "➕ Add Another"},
			gateway.Button{ID: btnChangeDeadline, Title: "📅 Change Deadline"})
	} else {
		buttons = append(buttons,
			gateway.Button{ID: btnChangeDeadline, Title: "📅 Change Deadline"},
			gateway.Button{ID: btnCancel, Title: "❌ Cancel"})
	}
	b.sendButtons(ctx, from, strings.TrimRight(sb.String(), "\n"), buttons)
}

func (b *Bot) loadBatch(ctx context.Context, from string) (session.PendingBatch, bool) {
	batch, ok, err := session.Load[session.PendingBatch](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load pending tasks", err)
		return batch, false
	}
	if !ok || len(batch.Tasks) == 0 {
		b.send(ctx, from, msgNoPending)
		return batch, false
	}
	return batch, true
}

// confirmBatch persists every pending task in order. A failure stops the
// loop and leaves the batch in place; tasks stored before the failure stay
// stored.
func (b *Bot) confirmBatch(ctx context.Context, from string) {
	batch, ok := b.loadBatch(ctx, from)
	if !ok {
		return
	}
	sender, linked := b.creator(ctx, from)
	for i, t := range batch.Tasks {
		_, err := b.Tasks.CreateTask(ctx, engine.TaskCreateOptions{
			Title:      t.Name,
			Deadline:   t.Deadline,
			AssigneeID: t.Assignee,
			CreatedBy:  sender.ID,
			ActorID:    sender.ID,
		})
		if err != nil {
			b.log().Error("create task", zap.String("phone", from), zap.Int("index", i), zap.String("title", t.Name), zap.Error(err))
			b.send(ctx, from, msgCreateFailed)
			return
		}
	}
	b.clear(ctx, from, batch.Kind(), session.DeadlineEdit{}.Kind())
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ *%s created!*\n\n", plural(len(batch.Tasks), "task"))
	for i, t := range batch.Tasks {
		fmt.Fprintf(&sb, "%d. %s ⚫\n", i+1, t.Name)
	}
	b.send(ctx, from, strings.TrimRight(sb.String(), "\n"))
	if linked {
		b.showMyTasks(ctx, from, sender.ID)
	}
}

func (b *Bot) cancelBatch(ctx context.Context, from string) {
	batch, ok := b.loadBatch(ctx, from)
	if !ok {
		return
	}
	b.clear(ctx, from, batch.Kind(), session.DeadlineEdit{}.Kind())
	b.send(ctx, from, msgCancelled)
}

// changeBatchDeadline goes straight to deadline input for a single task and
// asks which task otherwise.
func (b *Bot) changeBatchDeadline(ctx context.Context, from string) {
	batch, ok := b.loadBatch(ctx, from)
	if !ok {
		return
	}
	if len(batch.Tasks) == 1 {
		b.startBatchDeadlineEdit(ctx, from, batch, 0)
		return
	}
	if err := b.Sessions.Save(ctx, from, session.DeadlineEdit{Mode: session.ModeSelecting}); err != nil {
		b.fail(ctx, from, "save deadline edit", err)
		return
	}
	b.send(ctx, from, b.selectionPrompt(batch))
}

func (b *Bot) selectionPrompt(batch session.PendingBatch) string {
	var sb strings.Builder
	sb.WriteString("📅 *Change Deadline*\n\nWhich task's deadline do you want to change?\n\n")
	for i, t := range batch.Tasks {
		fmt.Fprintf(&sb, "%d. %s (📅 %s)\n", i+1, t.Name, b.Dates.Display(t.Deadline))
	}
	fmt.Fprintf(&sb, "\nReply with the number (1-%d)", len(batch.Tasks))
	return sb.String()
}

func (b *Bot) startBatchDeadlineEdit(ctx context.Context, from string, batch session.PendingBatch, index int) {
	if err := b.Sessions.Save(ctx, from, session.DeadlineEdit{Mode: session.ModeEditing, Index: index}); err != nil {
		b.fail(ctx, from, "save deadline edit", err)
		return
	}
	b.sendButtons(ctx, from, deadlineEditPrompt(batch.Tasks[index].Name), deadlineButtons)
}

// handleDeadlineNumber picks which pending task to edit while the
// deadline_edit context is selecting.
func (b *Bot) handleDeadlineNumber(ctx context.Context, from, text string) bool {
	n, isNum := parseOrdinal(text)
	if !isNum {
		return false
	}
	edit, ok, err := session.Load[session.DeadlineEdit](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load deadline edit", err)
		return true
	}
	if !ok || edit.Mode != session.ModeSelecting {
		return false
	}
	batch, ok, err := session.Load[session.PendingBatch](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load pending tasks", err)
		return true
	}
	if !ok || len(batch.Tasks) == 0 {
		b.clear(ctx, from, edit.Kind())
		b.send(ctx, from, msgSessionExpired)
		return true
	}
	if n < 1 || n > len(batch.Tasks) {
		b.send(ctx, from, invalidNumber(len(batch.Tasks)))
		return true
	}
	b.startBatchDeadlineEdit(ctx, from, batch, n-1)
	return true
}

// handleDeadlineInput takes free text as a new deadline. A stored task
// awaiting a deadline outranks an edit inside the pending batch.
func (b *Bot) handleDeadlineInput(ctx context.Context, from, text string) bool {
	target, ok, err := session.Load[session.DeadlineEditTask](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load deadline target", err)
		return true
	}
	if ok && target.Awaiting && target.TaskID != "" {
		b.updateStoredDeadline(ctx, from, target, text)
		return true
	}
	edit, ok, err := session.Load[session.DeadlineEdit](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load deadline edit", err)
		return true
	}
	if !ok || edit.Mode != session.ModeEditing {
		return false
	}
	batch, ok, err := session.Load[session.PendingBatch](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load pending tasks", err)
		return true
	}
	if !ok || edit.Index < 0 || edit.Index >= len(batch.Tasks) {
		b.clear(ctx, from, edit.Kind())
		b.send(ctx, from, msgSessionExpired)
		return true
	}
	batch.Tasks[edit.Index].Deadline = b.Dates.ParseDate(text)
	b.clear(ctx, from, edit.Kind())
	b.send(ctx, from, fmt.Sprintf("✅ Deadline updated to *%s*", b.Dates.Display(batch.Tasks[edit.Index].Deadline)))
	b.showConfirmation(ctx, from, batch)
	return true
}

func (b *Bot) deadlineButton(ctx context.Context, from, when string) {
	if !b.handleDeadlineInput(ctx, from, when) {
		b.send(ctx, from, msgSessionExpired)
	}
}

// handleSelectionReprompt repeats the which-task prompt when text that no
// other flow claimed arrives while a selection is pending.
func (b *Bot) handleSelectionReprompt(ctx context.Context, from, _ string) bool {
	edit, ok, err := session.Load[session.DeadlineEdit](ctx, b.Sessions, from)
	if err != nil || !ok || edit.Mode != session.ModeSelecting {
		return false
	}
	batch, ok, err := session.Load[session.PendingBatch](ctx, b.Sessions, from)
	if err != nil || !ok || len(batch.Tasks) == 0 {
		return false
	}
	b.send(ctx, from, b.selectionPrompt(batch))
	return true
}

// advanceChain drops leading items without candidates, then either shows
// the next choice or hands the confirmed tasks to confirmation.
func (b *Bot) advanceChain(ctx context.Context, from string, chain session.AssignChain) {
	for len(chain.Queue) > 0 && len(chain.Queue[0].Matches) == 0 {
		head := chain.Queue[0]
		b.send(ctx, from, fmt.Sprintf("❌ User '%s' not found.\n\nTask '%s' was not created.\nPlease check the username and try again.", head.SearchTerm, head.Name))
		chain.Queue = chain.Queue[1:]
	}
	if len(chain.Queue) == 0 {
		b.clear(ctx, from, chain.Kind())
		if len(chain.Confirmed) > 0 {
			b.showConfirmation(ctx, from, session.PendingBatch{Tasks: chain.Confirmed})
		}
		return
	}
	if err := b.Sessions.Save(ctx, from, chain); err != nil {
		b.fail(ctx, from, "save assignee chain", err)
		return
	}
	b.presentChainHead(ctx, from, chain.Queue[0])
}

func (b *Bot) presentChainHead(ctx context.Context, from string, head session.AmbiguousTask) {
	body := fmt.Sprintf("👤 Multiple matches for '%s'.\n\nFor task: *%s*\n\nDid you mean:", head.SearchTerm, head.Name)
	b.sendButtons(ctx, from, body, candidateButtons(btnAssignUser, head.Matches))
}

// assignUser resolves the item at the head of the chain with the chosen
// candidate.
func (b *Bot) assignUser(ctx context.Context, from, userID string) {
	chain, ok, err := session.Load[session.AssignChain](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load assignee chain", err)
		return
	}
	if !ok || len(chain.Queue) == 0 {
		b.send(ctx, from, msgSessionExpired)
		return
	}
	head := chain.Queue[0]
	picked, ok := pickCandidate(head.Matches, userID)
	if !ok {
		b.send(ctx, from, fmt.Sprintf("❌ That person is not one of the options for *%s*.", head.Name))
		b.presentChainHead(ctx, from, head)
		return
	}
	chain.Confirmed = append(chain.Confirmed, session.PendingTask{
		Name:            head.Name,
		Deadline:        head.Deadline,
		Assignee:        picked.ID,
		AssigneeDisplay: picked.Name,
	})
	chain.Queue = chain.Queue[1:]
	b.advanceChain(ctx, from, chain)
}
