package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/gateway"
	"taskbot/internal/session"
)

var creationTriggers = []string{"add tasks", "add task", "new tasks", "new task", "new"}

var myTasksTriggers = map[string]bool{"my tasks": true, "my task": true, "my": true}

func init() {
	sort.SliceStable(creationTriggers, func(i, j int) bool { return len(creationTriggers[i]) > len(creationTriggers[j]) })
}

// ParsedLine is one quick-create line before assignee resolution.
type ParsedLine struct {
	Name     string
	Deadline string
	Assignee string
}

// ParseTaskLine splits "name | deadline | @assignee". Tokens after the name
// starting with @ are the assignee and any other token is the deadline; the
// last of each wins.
func ParseTaskLine(line string) ParsedLine {
	parts := strings.Split(line, "|")
	p := ParsedLine{Name: strings.TrimSpace(parts[0])}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if term, ok := strings.CutPrefix(part, "@"); ok {
			p.Assignee = strings.TrimSpace(term)
		} else {
			p.Deadline = part
		}
	}
	return p
}

// matchTrigger returns the creation trigger that starts text at a word
// boundary and the text following it.
func matchTrigger(text string) (string, string, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, trig := range creationTriggers {
		if !strings.HasPrefix(lower, trig) {
			continue
		}
		rest := trimmed[len(trig):]
		if rest != "" {
			r := []rune(rest)[0]
			if !unicode.IsSpace(r) {
				continue
			}
		}
		return trig, rest, true
	}
	return "", "", false
}

func taskLines(rest string) []string {
	var lines []string
	for _, l := range strings.Split(rest, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func (b *Bot) handleCreationTrigger(ctx context.Context, from, text string) bool {
	_, rest, ok := matchTrigger(text)
	if !ok {
		return false
	}
	lines := taskLines(rest)
	if len(lines) == 0 {
		b.send(ctx, from, msgFormatGuide)
		return true
	}
	sender, ok := b.linkedUser(ctx, from)
	if !ok {
		return true
	}
	var resolved []session.PendingTask
	var queue []session.AmbiguousTask
	for _, line := range lines {
		p := ParseTaskLine(line)
		if p.Name == "" {
			continue
		}
		deadline := b.Dates.ParseDate(p.Deadline)
		if p.Assignee == "" {
			resolved = append(resolved, pendingFor(p.Name, deadline, sender))
			continue
		}
		matches, err := b.Users.Search(ctx, p.Assignee, directory.DefaultLimit)
		if err != nil {
			b.fail(ctx, from, "search assignee", err, zap.String("term", p.Assignee))
			return true
		}
		if len(matches) == 1 {
			resolved = append(resolved, pendingFor(p.Name, deadline, matches[0]))
			continue
		}
		queue = append(queue, session.AmbiguousTask{
			Name:       p.Name,
			Deadline:   deadline,
			SearchTerm: p.Assignee,
			Matches:    candidates(matches),
		})
	}
	if len(resolved) == 0 && len(queue) == 0 {
		b.send(ctx, from, msgFormatGuide)
		return true
	}
	if len(queue) > 0 {
		b.advanceChain(ctx, from, session.AssignChain{Confirmed: resolved, Queue: queue})
		return true
	}
	b.showConfirmation(ctx, from, session.PendingBatch{Tasks: resolved})
	return true
}

func (b *Bot) handleMyTasksTrigger(ctx context.Context, from, text string) bool {
	if !myTasksTriggers[normalize(text)] {
		return false
	}
	b.sendMyTasks(ctx, from)
	return true
}

func pendingFor(name, deadline string, u domain.User) session.PendingTask {
	return session.PendingTask{Name: name, Deadline: deadline, Assignee: u.ID, AssigneeDisplay: u.DisplayName()}
}

func candidates(users []domain.User) []session.Candidate {
	out := make([]session.Candidate, 0, len(users))
	for _, u := range users {
		out = append(out, session.Candidate{ID: u.ID, Name: u.DisplayName()})
	}
	return out
}

// pickCandidate returns the offered candidate with the given id.
func pickCandidate(offered []session.Candidate, id string) (session.Candidate, bool) {
	for _, c := range offered {
		if c.ID == id {
			return c, true
		}
	}
	return session.Candidate{}, false
}

// startGuided opens the three-step wizard with an empty batch.
func (b *Bot) startGuided(ctx context.Context, from string) {
	if _, ok := b.linkedUser(ctx, from); !ok {
		return
	}
	if err := b.Sessions.Save(ctx, from, session.GuidedFlow{Step: session.StepName}); err != nil {
		b.fail(ctx, from, "save guided flow", err)
		return
	}
	b.send(ctx, from, msgGuidedStart)
}

// addAnother reopens the wizard carrying the batch being confirmed.
func (b *Bot) addAnother(ctx context.Context, from string) {
	batch, ok, err := session.Load[session.PendingBatch](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load pending tasks", err)
		return
	}
	if !ok || len(batch.Tasks) == 0 {
		b.send(ctx, from, msgNoPending)
		return
	}
	if err := b.Sessions.Save(ctx, from, session.GuidedFlow{Step: session.StepName, Tasks: batch.Tasks}); err != nil {
		b.fail(ctx, from, "save guided flow", err)
		return
	}
	b.send(ctx, from, msgAddAnother)
}

func (b *Bot) handleGuidedInput(ctx context.Context, from, text string) bool {
	flow, ok, err := session.Load[session.GuidedFlow](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load guided flow", err)
		return true
	}
	if !ok {
		return false
	}
	if normalize(text) == "cancel" {
		b.clear(ctx, from, session.GuidedFlow{}.Kind(), session.PendingBatch{}.Kind())
		b.send(ctx, from, msgCancelled)
		return true
	}
	switch flow.Step {
	case session.StepName:
		b.guidedName(ctx, from, flow, text)
	case session.StepDeadline:
		b.guidedDeadline(ctx, from, flow, text)
	case session.StepAssignee:
		b.guidedAssignee(ctx, from, flow, text)
	default:
		b.clear(ctx, from, flow.Kind())
		b.send(ctx, from, msgSessionExpired)
	}
	return true
}

func (b *Bot) guidedName(ctx context.Context, from string, flow session.GuidedFlow, text string) {
	name := strings.TrimSpace(text)
	if normalize(name) == "done" && len(flow.Tasks) > 0 {
		b.clear(ctx, from, flow.Kind())
		b.showConfirmation(ctx, from, session.PendingBatch{Tasks: flow.Tasks, ShowAddAnother: true})
		return
	}
	if name == "" {
		b.send(ctx, from, msgEmptyName)
		return
	}
	flow.Draft = session.PendingTask{Name: name}
	flow.Step = session.StepDeadline
	flow.Candidates = nil
	if err := b.Sessions.Save(ctx, from, flow); err != nil {
		b.fail(ctx, from, "save guided flow", err)
		return
	}
	b.sendButtons(ctx, from, guidedDeadlinePrompt(name), []gateway.Button{
		{ID: btnGuidedToday, Title: "📅 Today"},
		{ID: btnGuidedTomorrow, Title: "📅 Tomorrow"},
	})
}

func (b *Bot) guidedDeadline(ctx context.Context, from string, flow session.GuidedFlow, text string) {
	flow.Draft.Deadline = b.Dates.ParseDate(text)
	flow.Step = session.StepAssignee
	if err := b.Sessions.Save(ctx, from, flow); err != nil {
		b.fail(ctx, from, "save guided flow", err)
		return
	}
	me := "Me"
	if u, err := b.Users.ResolveByPhone(ctx, from); err == nil {
		me = u.DisplayName()
	}
	b.sendButtons(ctx, from, guidedAssigneePrompt(flow.Draft.Name, b.Dates.Display(flow.Draft.Deadline)), []gateway.Button{
		{ID: btnGuidedAssignMe, Title: "👤 " + gateway.Truncate(me, 17)},
	})
}

func (b *Bot) guidedAssignee(ctx context.Context, from string, flow session.GuidedFlow, text string) {
	term := strings.TrimSpace(text)
	matches, err := b.Users.Search(ctx, term, directory.DefaultLimit)
	if err != nil {
		b.fail(ctx, from, "search assignee", err, zap.String("term", term))
		return
	}
	switch len(matches) {
	case 0:
		b.send(ctx, from, fmt.Sprintf("❌ User '%s' not found. Please try again or type a different name.", term))
	case 1:
		b.finalizeGuided(ctx, from, flow, matches[0])
	default:
		flow.Candidates = candidates(matches)
		if err := b.Sessions.Save(ctx, from, flow); err != nil {
			b.fail(ctx, from, "save guided flow", err)
			return
		}
		b.sendButtons(ctx, from, fmt.Sprintf("👤 Multiple matches for '%s':\n\nPlease select the correct person:", term),
			candidateButtons(btnGuidedAssignee, flow.Candidates))
	}
}

func (b *Bot) guidedDeadlineButton(ctx context.Context, from, when string) {
	flow, ok, err := session.Load[session.GuidedFlow](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load guided flow", err)
		return
	}
	if !ok || flow.Step != session.StepDeadline {
		b.send(ctx, from, msgSessionExpired)
		return
	}
	b.guidedDeadline(ctx, from, flow, when)
}

// guidedAssigneeButton handles "assign to me" (empty userID) and a picked
// candidate.
func (b *Bot) guidedAssigneeButton(ctx context.Context, from, userID string) {
	flow, ok, err := session.Load[session.GuidedFlow](ctx, b.Sessions, from)
	if err != nil {
		b.fail(ctx, from, "load guided flow", err)
		return
	}
	if !ok || flow.Step != session.StepAssignee {
		b.send(ctx, from, msgSessionExpired)
		return
	}
	var u domain.User
	if userID == "" {
		if u, ok = b.linkedUser(ctx, from); !ok {
			return
		}
	} else {
		if _, offered := pickCandidate(flow.Candidates, userID); !offered {
			b.send(ctx, from, fmt.Sprintf("❌ That person is not one of the options for *%s*.", flow.Draft.Name))
			if len(flow.Candidates) > 0 {
				b.sendButtons(ctx, from, "👤 Please select the correct person:", candidateButtons(btnGuidedAssignee, flow.Candidates))
			}
			return
		}
		u, err = b.Users.Get(ctx, userID)
		if err != nil {
			b.log().Warn("guided assignee lookup", zap.String("phone", from), zap.String("user", userID), zap.Error(err))
			b.send(ctx, from, msgUserNotFound)
			return
		}
	}
	b.finalizeGuided(ctx, from, flow, u)
}

// finalizeGuided appends the draft to the batch and hands over to the
// confirmation step. The wizard context is dropped; the batch carries on in
// pending_tasks.
func (b *Bot) finalizeGuided(ctx context.Context, from string, flow session.GuidedFlow, assignee domain.User) {
	task := flow.Draft
	task.Assignee = assignee.ID
	task.AssigneeDisplay = assignee.DisplayName()
	if task.Deadline == "" {
		task.Deadline = b.Dates.ParseDate("")
	}
	tasks := append(append([]session.PendingTask(nil), flow.Tasks...), task)
	b.clear(ctx, from, flow.Kind())
	b.showConfirmation(ctx, from, session.PendingBatch{Tasks: tasks, ShowAddAnother: true})
}
