// Package dates turns free-text deadlines into calendar dates and renders
// dates for chat replies.
package dates

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"taskbot/internal/domain"
)

// yearless layouts roll forward a year when the date has already passed.
var yearless = []string{"Jan 2", "January 2", "2 Jan", "2 January"}

var dated = []string{domain.DateLayout, "Jan 2 2006", "Jan 2, 2006", "January 2 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006"}

type Parser struct {
	Now func() time.Time
	Loc *time.Location
	w   *when.Parser
}

func NewParser(loc *time.Location, now func() time.Time) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{Now: now, Loc: loc, w: w}
}

// Today returns midnight of the current day in the parser's location.
func (p *Parser) Today() time.Time {
	return midnight(p.Now().In(p.Loc))
}

// Parse never fails: unparseable text yields today.
func (p *Parser) Parse(text string) time.Time {
	today := p.Today()
	s := strings.ToLower(strings.TrimSpace(text))
	switch s {
	case "", "today":
		return today
	case "tomorrow":
		return today.AddDate(0, 0, 1)
	case "yesterday":
		return today.AddDate(0, 0, -1)
	}
	for _, layout := range dated {
		if d, err := time.ParseInLocation(layout, titleMonth(s), p.Loc); err == nil {
			return d
		}
	}
	for _, layout := range yearless {
		if d, err := time.ParseInLocation(layout, titleMonth(s), p.Loc); err == nil {
			d = time.Date(today.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.Loc)
			if d.Before(today) {
				d = d.AddDate(1, 0, 0)
			}
			return d
		}
	}
	if p.w != nil {
		r, err := p.w.Parse(s, p.Now().In(p.Loc))
		if err == nil && r != nil {
			return midnight(r.Time.In(p.Loc))
		}
	}
	return today
}

// ParseDate is Parse formatted as YYYY-MM-DD.
func (p *Parser) ParseDate(text string) string {
	return p.Parse(text).Format(domain.DateLayout)
}

// Display renders a stored date as "Today", "Tomorrow" or "Jan 02". An empty
// date reads as today.
func (p *Parser) Display(date string) string {
	today := p.Today()
	if date == "" {
		return "Today"
	}
	d, err := time.ParseInLocation(domain.DateLayout, date, p.Loc)
	if err != nil {
		return date
	}
	switch {
	case d.Equal(today):
		return "Today"
	case d.Equal(today.AddDate(0, 0, 1)):
		return "Tomorrow"
	}
	return d.Format("Jan 02")
}

// DaysText describes a deadline relative to today, e.g. "2 days overdue".
func (p *Parser) DaysText(date string) string {
	if date == "" {
		return "No deadline"
	}
	diff, ok := p.DaysUntil(date)
	if !ok {
		return "No deadline"
	}
	switch {
	case diff < 0:
		return fmt.Sprintf("%d %s overdue", -diff, plural(-diff, "day"))
	case diff == 0:
		return "Due today"
	case diff == 1:
		return "Due tomorrow"
	}
	return fmt.Sprintf("Due in %d days", diff)
}

// DaysUntil returns the whole days from today to date; negative when past.
func (p *Parser) DaysUntil(date string) (int, bool) {
	d, err := time.ParseInLocation(domain.DateLayout, date, p.Loc)
	if err != nil {
		return 0, false
	}
	return int(math.Round(d.Sub(p.Today()).Hours() / 24)), true
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// titleMonth upper-cases the first letter of each word so Go's month layouts
// accept lowered input.
func titleMonth(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		if p != "" && p[0] >= 'a' && p[0] <= 'z' {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
