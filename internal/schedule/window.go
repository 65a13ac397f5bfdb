// Package schedule computes when a sales follow-up task is due.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a Monday to Friday business window.
type Window struct {
	Open     time.Duration // since midnight
	Close    time.Duration // since midnight
	Slot     time.Duration // first slot handed out on a fresh day
	Lead     time.Duration // minimum distance from now
	Location *time.Location
}

// DefaultWindow is 09:00-18:00, first slot 10:00, one hour lead.
func DefaultWindow(loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{
		Open:     9 * time.Hour,
		Close:    18 * time.Hour,
		Slot:     10 * time.Hour,
		Lead:     time.Hour,
		Location: loc,
	}
}

// NewWindow parses "HH:MM" bounds.
func NewWindow(open, close, slot string, lead time.Duration, loc *time.Location) (Window, error) {
	o, err := ParseHHMM(open)
	if err != nil {
		return Window{}, fmt.Errorf("open: %w", err)
	}
	c, err := ParseHHMM(close)
	if err != nil {
		return Window{}, fmt.Errorf("close: %w", err)
	}
	s, err := ParseHHMM(slot)
	if err != nil {
		return Window{}, fmt.Errorf("slot: %w", err)
	}
	if o >= c {
		return Window{}, fmt.Errorf("open %s must be before close %s", open, close)
	}
	if s < o || s > c {
		return Window{}, fmt.Errorf("slot %s must be inside %s-%s", slot, open, close)
	}
	if lead <= 0 {
		lead = time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return Window{Open: o, Close: c, Slot: s, Lead: lead, Location: loc}, nil
}

// ParseHHMM parses a 24h "HH:MM" string into a duration since midnight.
func ParseHHMM(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// FollowUpAt returns the due time of a follow-up task created at now.
// Rules are evaluated in order:
//
//  1. weekend: next Monday at the slot
//  2. before opening: today at the slot
//  3. at or after closing: next business day at the slot
//  4. now+lead spills past closing: today at closing
//  5. otherwise now+lead
func (w Window) FollowUpAt(now time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	day := midnight(t)

	if isWeekend(t.Weekday()) {
		return nextBusinessDay(day).Add(w.Slot)
	}
	sinceMidnight := t.Sub(day)
	if sinceMidnight < w.Open {
		return day.Add(w.Slot)
	}
	if sinceMidnight >= w.Close {
		return nextBusinessDay(day).Add(w.Slot)
	}
	closing := day.Add(w.Close)
	if candidate := t.Add(w.Lead); candidate.After(closing) {
		return closing
	}
	return t.Add(w.Lead)
}

// Contains reports whether t falls on a weekday inside [Open, Close].
func (w Window) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	if isWeekend(t.Weekday()) {
		return false
	}
	d := t.Sub(midnight(t))
	return d >= w.Open && d <= w.Close
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// nextBusinessDay returns midnight of the first weekday after day.
func nextBusinessDay(day time.Time) time.Time {
	next := day.AddDate(0, 0, 1)
	for isWeekend(next.Weekday()) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
