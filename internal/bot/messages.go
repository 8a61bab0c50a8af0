package bot

import (
	"fmt"

	"taskbot/internal/gateway"
	"taskbot/internal/session"
)

const (
	msgNotLinked      = "❌ Your phone number is not linked to any user account. Please update your profile."
	msgGenericError   = "❌ An error occurred. Please try again."
	msgSessionExpired = "❌ Session expired. Please start again."
	msgNoPending      = "❌ No pending tasks found. Please start again."
	msgCancelled      = "❌ Task creation cancelled."
	msgTaskNotFound   = "❌ Task not found."
	msgUserNotFound   = "❌ User not found."
	msgCreateFailed   = "❌ Error creating tasks. Please try again."
	msgDeadlineFailed = "❌ Error updating deadline. Please try again."
	msgEmptyName      = "❌ Please enter a valid task name."
	msgNoTarget       = "❌ No task selected. Pick a task from your list first, then type `change`."
	msgNoMore         = "✅ No more tasks to show."
	dateExamples      = "💡 _Examples: `next friday`, `Feb 15`, `in 3 days`_"
)

const msgMenu = "👋 *Welcome to Task Manager*\n\n" +
	"What would you like to do?\n\n" +
	"You can also type:\n" +
	"• `my tasks` - View your tasks\n" +
	"• `add tasks` - Create new tasks\n" +
	"• `not started` / `in progress` / `on hold` - Filter by status\n" +
	"• `today` - Tasks due today\n" +
	"• `overdue` - Overdue tasks\n" +
	"• `change` - Change the deadline of the task you last opened\n" +
	"• `guide` - Task format guide"

const msgFormatGuide = "📝 *Create New Tasks*\n\n" +
	"Send task names, one per line:\n" +
	"`task name | deadline | @assignee`\n\n" +
	"*Examples:*\n" +
	"```\n" +
	"add tasks\n" +
	"Fix login bug\n" +
	"Update dashboard | tomorrow\n" +
	"Review PR | Feb 10 | @john@email.com\n" +
	"```\n\n" +
	"📅 Deadline & 👤 assignee are optional.\n" +
	"Defaults: Today, assigned to you."

const msgGuidedStart = "📝 *Create New Task*\n\n" +
	"Step 1 of 3: *Task Name*\n\n" +
	"What's the task? Send the task name.\n\n" +
	"💡 _You can also type `cancel` to exit._"

const msgAddAnother = "📝 *Add Another Task*\n\n" +
	"Step 1 of 3: *Task Name*\n\n" +
	"What's the task? Send the task name.\n\n" +
	"💡 _Type `done` to skip and confirm existing tasks, or `cancel` to cancel all._"

var menuButtons = []gateway.Button{
	{ID: btnMenuAddTask, Title: "➕ Add Tasks"},
	{ID: btnMenuMyTasks, Title: "📋 My Tasks"},
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func guidedDeadlinePrompt(name string) string {
	return fmt.Sprintf("✅ Task: *%s*\n\n"+
		"Step 2 of 3: *Deadline*\n\n"+
		"When is this due? Choose an option or type a date.\n\n%s", name, dateExamples)
}

func guidedAssigneePrompt(name, deadline string) string {
	return fmt.Sprintf("✅ Task: *%s*\n"+
		"📅 Deadline: *%s*\n\n"+
		"Step 3 of 3: *Assignee*\n\n"+
		"Who should do this task?\n\n"+
		"💡 _Type a name or email to search, or tap the button below._", name, deadline)
}

func candidateButtons(prefix string, cands []session.Candidate) []gateway.Button {
	var out []gateway.Button
	for i, c := range cands {
		if i == 3 {
			break
		}
		out = append(out, gateway.Button{ID: prefix + c.ID, Title: gateway.Truncate(c.Name, gateway.MaxTitle)})
	}
	return out
}

func deadlineEditPrompt(name string) string {
	return fmt.Sprintf("📅 *Change Deadline*\n\nTask: *%s*\n\nEnter the new deadline:\n\n%s", name, dateExamples)
}

var deadlineButtons = []gateway.Button{
	{ID: btnDeadlineToday, Title: "📅 Today"},
	{ID: btnDeadlineTomorrow, Title: "📅 Tomorrow"},
}

func invalidNumber(n int) string {
	return fmt.Sprintf("❌ Invalid number. Please enter a number between 1 and %d.", n)
}
