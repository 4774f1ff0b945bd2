package services

import (
	"fmt"
	"time"

	"carteira/internal/core"
)

// OccurrenceStepper computes the date of the occurrence that follows from,
// interval periods later. anchorDay is the day of month of the series'
// first due date, kept so a series starting on the 31st returns to the
// 31st after a short month.
type OccurrenceStepper interface {
	Next(from time.Time, interval, anchorDay int) time.Time
}

type WeeklyStepper struct{}

func (WeeklyStepper) Next(from time.Time, interval, _ int) time.Time {
	return from.AddDate(0, 0, 7*interval)
}

type BiweeklyStepper struct{}

func (BiweeklyStepper) Next(from time.Time, interval, _ int) time.Time {
	return from.AddDate(0, 0, 14*interval)
}

type MonthlyStepper struct{}

func (MonthlyStepper) Next(from time.Time, interval, anchorDay int) time.Time {
	return clampedDate(from.Year(), from.Month()+time.Month(interval), anchorDay)
}

type YearlyStepper struct{}

func (YearlyStepper) Next(from time.Time, interval, anchorDay int) time.Time {
	return clampedDate(from.Year()+interval, from.Month(), anchorDay)
}

// clampedDate builds year-month-day, using the last day of the month when
// day does not exist in it (Feb 31 -> Feb 28/29).
func clampedDate(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

var steppers = map[core.RecurrencePattern]OccurrenceStepper{
	core.Weekly:   WeeklyStepper{},
	core.Biweekly: BiweeklyStepper{},
	core.Monthly:  MonthlyStepper{},
	core.Yearly:   YearlyStepper{},
}

func GetStepper(p core.RecurrencePattern) (OccurrenceStepper, error) {
	s, ok := steppers[p]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence pattern: %s", p)
	}
	return s, nil
}

// NextOccurrence returns the due date following t in its series, or false
// when t is not recurring or the series ends before it.
func NextOccurrence(t core.Transaction) (time.Time, bool) {
	if !t.IsRecurring {
		return time.Time{}, false
	}
	s, err := GetStepper(t.RecurrencePattern)
	if err != nil {
		return time.Time{}, false
	}
	interval := t.RecurrenceInterval
	if interval < 1 {
		interval = 1
	}
	due := core.DateOnly(t.DueDate)
	next := s.Next(due, interval, due.Day())
	if t.RecurrenceEndDate != nil && next.After(core.DateOnly(*t.RecurrenceEndDate)) {
		return time.Time{}, false
	}
	return next, true
}
