package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskbot/internal/domain"
	"taskbot/internal/gateway"
	"taskbot/internal/repo"
	"taskbot/internal/session"
)

// selectTask shows the status choices for a stored task and remembers it as
// the target of a later `change`.
func (b *Bot) selectTask(ctx context.Context, from, id string) {
	t, err := b.Tasks.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		b.send(ctx, from, msgTaskNotFound)
		return
	}
	if err != nil {
		b.fail(ctx, from, "get task", err, zap.String("task_id", id))
		return
	}
	if err := b.Sessions.Save(ctx, from, session.DeadlineEditTask{TaskID: t.ID}); err != nil {
		b.log().Warn("save deadline target", zap.String("phone", from), zap.Error(err))
	}
	b.sendButtons(ctx, from, b.taskDetail(t), statusButtons(t))
}

func (b *Bot) taskDetail(t domain.Task) string {
	deadline := ""
	if t.Deadline != nil {
		deadline = *t.Deadline
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *%s*\n\n", t.Title)
	fmt.Fprintf(&sb, "Status: %s\n", t.Status.Display())
	if deadline != "" {
		fmt.Fprintf(&sb, "📅 Deadline: %s (%s)\n", b.Dates.Display(deadline), b.Dates.DaysText(deadline))
	} else {
		sb.WriteString("📅 Deadline: none\n")
	}
	sb.WriteString("\nChoose a new status, or type `change` to change the deadline.")
	return sb.String()
}

// statusButtons offers every status except the current one, three at most.
func statusButtons(t domain.Task) []gateway.Button {
	var out []gateway.Button
	for _, s := range domain.Statuses {
		if s == t.Status {
			continue
		}
		out = append(out, gateway.Button{
			ID:    btnStatus + string(s) + ":" + t.ID,
			Title: gateway.Truncate(string(s)+" "+s.Emoji(), gateway.MaxTitle),
		})
		if len(out) == gateway.MaxReplyButtons {
			break
		}
	}
	return out
}

// statusButton handles STATUS:<status>:<task id>.
func (b *Bot) statusButton(ctx context.Context, from, arg string) {
	raw, id, ok := strings.Cut(arg, ":")
	status := domain.Status(raw)
	if !ok || id == "" || !status.Valid() {
		b.log().Warn("malformed status button", zap.String("phone", from), zap.String("arg", arg))
		b.send(ctx, from, msgGenericError)
		return
	}
	actor, linked := b.creator(ctx, from)
	t, err := b.Tasks.SetStatus(ctx, id, status, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		b.send(ctx, from, msgTaskNotFound)
		return
	}
	if err != nil {
		b.fail(ctx, from, "set status", err, zap.String("task_id", id))
		return
	}
	b.send(ctx, from, fmt.Sprintf("✅ *%s* marked as %s", t.Title, status.Display()))

	owner := t.Assignee()
	if linked {
		owner = actor.ID
	}
	if owner == "" {
		return
	}
	b.showOpenTasks(ctx, from, owner, "Remaining Tasks", "✅ No remaining tasks! 🎉")
}

// changeStoredDeadline starts a deadline edit on the last selected task.
func (b *Bot) changeStoredDeadline(ctx context.Context, from string) {
	target, ok, err := session.Load[session.DeadlineEditTask](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load deadline target", err)
		return
	}
	if !ok || target.TaskID == "" {
		b.send(ctx, from, msgNoTarget)
		return
	}
	t, err := b.Tasks.GetTask(ctx, target.TaskID)
	if errors.Is(err, repo.ErrNotFound) {
		b.clear(ctx, from, target.Kind())
		b.send(ctx, from, msgTaskNotFound)
		return
	}
	if err != nil {
		b.fail(ctx, from, "get task", err, zap.String("task_id", target.TaskID))
		return
	}
	target.Awaiting = true
	if err := b.Sessions.Save(ctx, from, target); err != nil {
		b.fail(ctx, from, "save deadline target", err)
		return
	}
	current := "none"
	if t.Deadline != nil {
		current = b.Dates.Display(*t.Deadline)
	}
	body := deadlineEditPrompt(t.Title) + fmt.Sprintf("\n\nCurrent deadline: *%s*", current)
	b.sendButtons(ctx, from, body, deadlineButtons)
}

// updateStoredDeadline applies typed text as the deadline of the awaiting
// task. A failed write keeps the target so the user can retry.
func (b *Bot) updateStoredDeadline(ctx context.Context, from string, target session.DeadlineEditTask, text string) {
	deadline := b.Dates.ParseDate(text)
	actor, linked := b.creator(ctx, from)
	t, err := b.Tasks.SetDeadline(ctx, target.TaskID, deadline, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		b.clear(ctx, from, target.Kind())
		b.send(ctx, from, msgTaskNotFound)
		return
	}
	if err != nil {
		b.log().Error("set deadline", zap.String("phone", from), zap.String("task_id", target.TaskID), zap.Error(err))
		b.send(ctx, from, msgDeadlineFailed)
		return
	}
	b.clear(ctx, from, target.Kind())
	b.send(ctx, from, fmt.Sprintf("✅ Deadline updated to *%s*\n\n📋 Task: %s", b.Dates.Display(deadline), t.Title))
	if linked {
		b.showMyTasks(ctx, from, actor.ID)
	}
}
