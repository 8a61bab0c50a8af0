// Package bot routes inbound chat events to the conversation flows: guided and
// quick task creation, batch confirmation, assignee disambiguation, paginated
// task lists and status or deadline changes on stored tasks.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/engine"
	"taskbot/internal/gateway"
	"taskbot/internal/repo"
	"taskbot/internal/session"
)

// TaskStore is the persistence the flows need.
type TaskStore interface {
	CreateTask(ctx context.Context, opts engine.TaskCreateOptions) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	SetStatus(ctx context.Context, id string, status domain.Status, actorID string) (domain.Task, error)
	SetDeadline(ctx context.Context, id, deadline, actorID string) (domain.Task, error)
	ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error)
}

type UserDirectory interface {
	ResolveByPhone(ctx context.Context, phone string) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	Search(ctx context.Context, term string, limit int) ([]domain.User, error)
}

// DateParser turns free text into YYYY-MM-DD dates and renders them back.
type DateParser interface {
	ParseDate(text string) string
	Display(date string) string
	DaysText(date string) string
	DaysUntil(date string) (int, bool)
	Today() time.Time
}

type Bot struct {
	Sessions        session.Sessions
	Tasks           TaskStore
	Users           UserDirectory
	Dates           DateParser
	Gateway         gateway.Gateway
	Log             *zap.Logger
	FallbackCreator string
}

// Handle processes one inbound event and reports whether any flow claimed
// it. It never returns an error: failures become replies and log entries.
func (b *Bot) Handle(ctx context.Context, in gateway.Inbound) bool {
	if in.MessageID != "" {
		if err := b.Gateway.MarkRead(ctx, in.MessageID); err != nil {
			b.log().Warn("mark read failed", zap.String("message_id", in.MessageID), zap.Error(err))
		}
	}
	switch in.Type {
	case gateway.TypeText:
		return b.routeText(ctx, in.Sender, in.Body)
	case gateway.TypeButton:
		return b.routeButton(ctx, in.Sender, strings.TrimSpace(in.Body))
	}
	b.log().Debug("unsupported inbound type", zap.String("type", in.Type))
	return false
}

type textHandler func(ctx context.Context, from, text string) bool

// routeText tries each handler in precedence order; the first to claim the
// text wins.
func (b *Bot) routeText(ctx context.Context, from, text string) bool {
	routes := []textHandler{
		b.handleMenuTrigger,
		b.handleFilterTrigger,
		b.handleDeadlineNumber,
		b.handleDeadlineInput,
		b.handleMore,
		b.handleNumberSelection,
		b.handleGuidedInput,
		b.handleMyTasksTrigger,
		b.handleCreationTrigger,
		b.handleSelectionReprompt,
	}
	for _, route := range routes {
		if route(ctx, from, text) {
			return true
		}
	}
	return false
}

// Button ids.
const (
	btnMenuAddTask      = "MENU_ADD_TASK"
	btnMenuMyTasks      = "MENU_MY_TASKS"
	btnSelectTask       = "SELECT_TASK:"
	btnLoadMore         = "LOAD_MORE_TASKS"
	btnStatus           = "STATUS:"
	btnConfirm          = "CONFIRM_TASKS"
	btnCancel           = "CANCEL_TASKS"
	btnChangeDeadline   = "CHANGE_DEADLINE"
	btnDeadlineToday    = "DEADLINE_TODAY"
	btnDeadlineTomorrow = "DEADLINE_TOMORROW"
	btnAddAnother       = "ADD_ANOTHER_TASK"
	btnGuidedToday      = "GUIDED_TODAY"
	btnGuidedTomorrow   = "GUIDED_TOMORROW"
	btnGuidedAssignMe   = "GUIDED_ASSIGN_ME"
	btnGuidedAssignee   = "GUIDED_ASSIGNEE:"
	btnAssignUser       = "ASSIGN_USER:"
)

type buttonRoute struct {
	id     string
	prefix bool
	handle func(ctx context.Context, from, arg string)
}

func (b *Bot) buttonRoutes() []buttonRoute {
	return []buttonRoute{
		{id: btnMenuAddTask, handle: func(ctx context.Context, from, _ string) { b.startGuided(ctx, from) }},
		{id: btnMenuMyTasks, handle: func(ctx context.Context, from, _ string) { b.sendMyTasks(ctx, from) }},
		{id: btnSelectTask, prefix: true, handle: b.selectTask},
		{id: btnLoadMore, handle: func(ctx context.Context, from, _ string) { b.loadMore(ctx, from, true) }},
		{id: btnStatus, prefix: true, handle: b.statusButton},
		{id: btnConfirm, handle: func(ctx context.Context, from, _ string) { b.confirmBatch(ctx, from) }},
		{id: btnCancel, handle: func(ctx context.Context, from, _ string) { b.cancelBatch(ctx, from) }},
		{id: btnChangeDeadline, handle: func(ctx context.Context, from, _ string) { b.changeBatchDeadline(ctx, from) }},
		{id: btnDeadlineToday, handle: func(ctx context.Context, from, _ string) { b.deadlineButton(ctx, from, "today") }},
		{id: btnDeadlineTomorrow, handle: func(ctx context.Context, from, _ string) { b.deadlineButton(ctx, from, "tomorrow") }},
		{id: btnAddAnother, handle: func(ctx context.Context, from, _ string) { b.addAnother(ctx, from) }},
		{id: btnGuidedToday, handle: func(ctx context.Context, from, _ string) { b.guidedDeadlineButton(ctx, from, "today") }},
		{id: btnGuidedTomorrow, handle: func(ctx context.Context, from, _ string) { b.guidedDeadlineButton(ctx, from, "tomorrow") }},
		{id: btnGuidedAssignMe, handle: func(ctx context.Context, from, _ string) { b.guidedAssigneeButton(ctx, from, "") }},
		{id: btnGuidedAssignee, prefix: true, handle: b.guidedAssigneeButton},
		{id: btnAssignUser, prefix: true, handle: b.assignUser},
	}
}

// routeButton dispatches on the exact id or the VERB: prefix.
func (b *Bot) routeButton(ctx context.Context, from, id string) bool {
	for _, r := range b.buttonRoutes() {
		if r.prefix {
			if arg, ok := strings.CutPrefix(id, r.id); ok {
				r.handle(ctx, from, strings.TrimSpace(arg))
				return true
			}
			continue
		}
		if id == r.id {
			r.handle(ctx, from, "")
			return true
		}
	}
	b.log().Debug("unknown button", zap.String("phone", from), zap.String("id", id))
	return false
}

func (b *Bot) log() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

func (b *Bot) send(ctx context.Context, to, body string) {
	if err := b.Gateway.SendText(ctx, to, body); err != nil {
		b.log().Error("send text failed", zap.String("phone", to), zap.Error(err))
	}
}

func (b *Bot) sendButtons(ctx context.Context, to, body string, buttons []gateway.Button) {
	if err := b.Gateway.SendInteractive(ctx, to, body, buttons); err != nil {
		b.log().Error("send interactive failed", zap.String("phone", to), zap.Error(err))
	}
}

// fail logs a downstream failure and tells the user something went wrong.
func (b *Bot) fail(ctx context.Context, to, what string, err error, fields ...zap.Field) {
	fields = append([]zap.Field{zap.String("phone", to), zap.Error(err)}, fields...)
	b.log().Error(what, fields...)
	b.send(ctx, to, msgGenericError)
}

// linkedUser resolves the sender, replying with the not-linked notice when
// the phone has no account.
func (b *Bot) linkedUser(ctx context.Context, from string) (domain.User, bool) {
	u, err := b.Users.ResolveByPhone(ctx, from)
	if errors.Is(err, directory.ErrNotLinked) {
		b.send(ctx, from, msgNotLinked)
		return domain.User{}, false
	}
	if err != nil {
		b.fail(ctx, from, "resolve sender", err)
		return domain.User{}, false
	}
	return u, true
}

// creator returns the sender's user id, or the fallback identity when the
// phone is not linked.
func (b *Bot) creator(ctx context.Context, from string) (domain.User, bool) {
	u, err := b.Users.ResolveByPhone(ctx, from)
	if err != nil {
		if !errors.Is(err, directory.ErrNotLinked) {
			b.log().Warn("resolve creator", zap.String("phone", from), zap.Error(err))
		}
		return domain.User{ID: b.FallbackCreator}, false
	}
	return u, true
}

func (b *Bot) clear(ctx context.Context, from string, kinds ...string) {
	if err := b.Sessions.Clear(ctx, from, kinds...); err != nil {
		b.log().Error("clear session", zap.String("phone", from), zap.Strings("kinds", kinds), zap.Error(err))
	}
}

// parseOrdinal reads a bare number. ok is false for anything but digits.
func parseOrdinal(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
