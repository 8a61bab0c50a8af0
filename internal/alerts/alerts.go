// Package alerts sends the daily grouped overdue-task reminders and runs the
// scheduled maintenance jobs.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/gateway"
	"taskbot/internal/repo"
)

// ErrNotConfigured is returned when the gateway has no transport credentials.
var ErrNotConfigured = errors.New("alerts: gateway not configured")

type TaskSource interface {
	ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error)
	MarkAlerted(ctx context.Context, ids []string, at time.Time) error
}

type UserLookup interface {
	Get(ctx context.Context, id string) (domain.User, error)
}

// Job collects overdue tasks and sends one message per assignee.
type Job struct {
	Tasks       TaskSource
	Users       UserLookup
	Gateway     gateway.Gateway
	Log         *zap.Logger
	Loc         *time.Location
	Concurrency int
	Now         func() time.Time
}

// Report summarizes one run.
type Report struct {
	Recipients int      `json:"recipients"`
	Tasks      int      `json:"tasks"`
	Skipped    []string `json:"skipped,omitempty"`
	Failed     []string `json:"failed,omitempty"`
}

type overdue struct {
	task domain.Task
	days int
}

func (j Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j Job) loc() *time.Location {
	if j.Loc == nil {
		return time.UTC
	}
	return j.Loc
}

func (j Job) log() *zap.Logger {
	if j.Log == nil {
		return zap.NewNop()
	}
	return j.Log
}

// Run alerts every assignee with overdue, not yet alerted today, open tasks.
// A failed send for one assignee does not stop the others; their tasks stay
// unstamped and are retried on the next run.
func (j Job) Run(ctx context.Context) (Report, error) {
	if c, ok := j.Gateway.(interface{ Configured() bool }); ok && !c.Configured() {
		return Report{}, ErrNotConfigured
	}
	now := j.now().In(j.loc())
	today := now.Format(domain.DateLayout)
	tasks, err := j.Tasks.ListTasks(ctx, repo.TaskFilters{
		ExcludeStatus:  domain.StatusCompleted,
		DeadlineBefore: today,
		AssigneeSet:    true,
	})
	if err != nil {
		return Report{}, fmt.Errorf("list overdue tasks: %w", err)
	}
	groups := j.group(tasks, now)

	assignees := make([]string, 0, len(groups))
	for id := range groups {
		assignees = append(assignees, id)
	}
	sort.Strings(assignees)

	var (
		mu  sync.Mutex
		rep Report
	)
	limit := j.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range assignees {
		items := groups[id]
		g.Go(func() error {
			sent, err := j.alert(gctx, id, items, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				rep.Failed = append(rep.Failed, id)
			case !sent:
				rep.Skipped = append(rep.Skipped, id)
			default:
				rep.Recipients++
				rep.Tasks += len(items)
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(rep.Failed)
	sort.Strings(rep.Skipped)
	j.log().Info("overdue alerts sent",
		zap.Int("recipients", rep.Recipients),
		zap.Int("tasks", rep.Tasks),
		zap.Int("failed", len(rep.Failed)),
		zap.Int("skipped", len(rep.Skipped)))
	return rep, nil
}

// group buckets tasks by assignee, dropping any already alerted today.
func (j Job) group(tasks []domain.Task, now time.Time) map[string][]overdue {
	today := now.Format(domain.DateLayout)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	out := map[string][]overdue{}
	for _, t := range tasks {
		if alertedOn(t, now.Location()) == today {
			continue
		}
		deadline, ok := t.DeadlineIn(now.Location())
		if !ok {
			continue
		}
		days := int(midnight.Sub(deadline).Hours()/24 + 0.5)
		out[t.Assignee()] = append(out[t.Assignee()], overdue{task: t, days: days})
	}
	for _, items := range out {
		sort.SliceStable(items, func(a, b int) bool { return items[a].days > items[b].days })
	}
	return out
}

func alertedOn(t domain.Task, loc *time.Location) string {
	if t.LastAlerted == nil || *t.LastAlerted == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, *t.LastAlerted)
	if err != nil {
		return ""
	}
	return at.In(loc).Format(domain.DateLayout)
}

// alert sends one grouped message and stamps the tasks. sent is false when
// the assignee has no reachable phone.
func (j Job) alert(ctx context.Context, userID string, items []overdue, now time.Time) (bool, error) {
	u, err := j.Users.Get(ctx, userID)
	if err != nil {
		j.log().Warn("alert recipient lookup failed", zap.String("user", userID), zap.Error(err))
		return false, nil
	}
	phone := directory.NormalizePhone(u.MobileNo)
	if phone == "" {
		j.log().Warn("alert recipient has no phone", zap.String("user", userID))
		return false, nil
	}
	body, buttons := message(items)
	if err := j.Gateway.SendInteractive(ctx, phone, body, buttons); err != nil {
		j.log().Error("send overdue alert", zap.String("user", userID), zap.String("phone", phone), zap.Error(err))
		return false, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.task.ID)
	}
	if err := j.Tasks.MarkAlerted(ctx, ids, now); err != nil {
		j.log().Error("stamp last_alerted", zap.String("user", userID), zap.Error(err))
		return false, err
	}
	return true, nil
}

func overdueText(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// message renders the grouped alert. Each row links to the task selection
// flow through its button.
func message(items []overdue) (string, []gateway.Button) {
	var sb strings.Builder
	n := len(items)
	if n == 1 {
		sb.WriteString("🚨 *You have 1 overdue task*\n\n")
	} else {
		fmt.Fprintf(&sb, "🚨 *You have %d overdue tasks*\n\n", n)
	}
	var buttons []gateway.Button
	for i, it := range items {
		text := overdueText(it.days)
		fmt.Fprintf(&sb, "%d. %s (%s overdue) %s\n", i+1, it.task.Title, text, it.task.Status.Emoji())
		if len(buttons) < gateway.MaxButtons {
			buttons = append(buttons, gateway.Button{
				ID:          "SELECT_TASK:" + it.task.ID,
				Title:       gateway.Truncate(it.task.Title, gateway.MaxTitle),
				Description: gateway.Truncate("Overdue by "+text, gateway.MaxDescription),
			})
		}
	}
	sb.WriteString("\nSelect a task to update its status.")
	return gateway.Truncate(sb.String(), gateway.MaxBody), buttons
}
