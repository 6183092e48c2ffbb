// Package schedule computes when wall-clock jobs are due on trading days.
package schedule

import (
	"fmt"
	"sort"
	"time"
)

// TimeOfDay is an HH:MM wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay reads "15:04"-style times.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// On places t on day's calendar date, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// MarketHours is the regular session, both ends inclusive.
type MarketHours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

func (h MarketHours) IsOpen(t time.Time) bool {
	if !IsWeekday(t) {
		return false
	}
	return !t.Before(h.Open.On(t)) && !t.After(h.Close.On(t))
}

// NextWeekday returns the first weekday occurrence of at strictly after t, in t's location.
func NextWeekday(t time.Time, at TimeOfDay) time.Time {
	candidate := at.On(t)
	for !candidate.After(t) || !IsWeekday(candidate) {
		candidate = at.On(candidate.AddDate(0, 0, 1))
	}
	return candidate
}

// Trigger yields the next fire time after t.
type Trigger interface {
	Next(t time.Time) time.Time
}

// Daily fires at a wall-clock time every weekday.
type Daily struct{ At TimeOfDay }

func (d Daily) Next(t time.Time) time.Time { return NextWeekday(t, d.At) }

// Every fires at a fixed interval.
type Every struct{ Interval time.Duration }

func (e Every) Next(t time.Time) time.Time { return t.Add(e.Interval) }

type entry struct {
	name    string
	trigger Trigger
	next    time.Time
}

// Scheduler tracks the next occurrence of each registered job. An occurrence that is
// already past when the job is added is not fired, and a run that is late by several
// occurrences fires once.
type Scheduler struct {
	entries []*entry
}

func New() *Scheduler { return &Scheduler{} }

// Add registers name with its first occurrence after now.
func (s *Scheduler) Add(name string, trigger Trigger, now time.Time) {
	s.entries = append(s.entries, &entry{name: name, trigger: trigger, next: trigger.Next(now)})
}

// Due returns the jobs whose occurrence has arrived, in fire-time order, and advances each
// past now.
func (s *Scheduler) Due(now time.Time) []string {
	var due []*entry
	for _, e := range s.entries {
		if !now.Before(e.next) {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
	names := make([]string, len(due))
	for i, e := range due {
		names[i] = e.name
		e.next = e.trigger.Next(now)
	}
	return names
}

// NextRun reports when name fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	for _, e := range s.entries {
		if e.name == name {
			return e.next, true
		}
	}
	return time.Time{}, false
}
