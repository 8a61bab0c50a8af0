package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Slot is a local time of day.
type Slot struct {
	Hour, Minute int
}

// ParseSlots reads "HH:MM" entries, sorted and de-duplicated.
func ParseSlots(times []string) ([]Slot, error) {
	seen := map[Slot]bool{}
	var out []Slot
	for _, s := range times {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return nil, fmt.Errorf("alert time %q: %w", s, err)
		}
		slot := Slot{Hour: t.Hour(), Minute: t.Minute()}
		if !seen[slot] {
			seen[slot] = true
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out, nil
}

// Next returns the first slot strictly after now, in now's location.
func Next(now time.Time, slots []Slot) time.Time {
	for day := 0; day < 2; day++ {
		base := now.AddDate(0, 0, day)
		for _, s := range slots {
			at := time.Date(base.Year(), base.Month(), base.Day(), s.Hour, s.Minute, 0, 0, now.Location())
			if at.After(now) {
				return at
			}
		}
	}
	return time.Time{}
}

// Schedule fires the alert job at each daily slot. Archive, when set, runs
// after the first slot of each day.
type Schedule struct {
	Slots   []Slot
	Loc     *time.Location
	Alerts  func(ctx context.Context) error
	Archive func(ctx context.Context) error
	Log     *zap.Logger
	Now     func() time.Time
	// After defaults to time.After.
	After func(d time.Duration) <-chan time.Time
}

// Run blocks until ctx is done.
func (s Schedule) Run(ctx context.Context) error {
	if len(s.Slots) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	after := s.After
	if after == nil {
		after = time.After
	}
	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	var archivedOn string
	for {
		current := now().In(loc)
		next := Next(current, s.Slots)
		log.Debug("next alert run", zap.Time("at", next))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(next.Sub(current)):
		}
		if s.Alerts != nil {
			if err := s.Alerts(ctx); err != nil {
				log.Error("scheduled alert run failed", zap.Error(err))
			}
		}
		day := now().In(loc).Format("2006-01-02")
		if s.Archive != nil && archivedOn != day {
			archivedOn = day
			if err := s.Archive(ctx); err != nil {
				log.Error("scheduled archive failed", zap.Error(err))
			}
		}
	}
}
