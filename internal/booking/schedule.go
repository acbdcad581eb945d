package booking

import (
	"fmt"
	"time"
)

// WorkSchedule describes the clinic's weekly opening hours and the slot grid.
type WorkSchedule struct {
	StartHour    int
	EndHour      int
	SlotDuration time.Duration
	WorkDays     map[time.Weekday]bool
	Location     *time.Location
}

// NewWorkSchedule builds a Monday-to-Friday schedule on the given grid.
func NewWorkSchedule(startHour, endHour, slotMinutes int, loc *time.Location) (WorkSchedule, error) {
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return WorkSchedule{}, fmt.Errorf("invalid schedule hours %d-%d", startHour, endHour)
	}
	if slotMinutes <= 0 {
		return WorkSchedule{}, fmt.Errorf("invalid slot duration %d minutes", slotMinutes)
	}
	return WorkSchedule{
		StartHour:    startHour,
		EndHour:      endHour,
		SlotDuration: time.Duration(slotMinutes) * time.Minute,
		WorkDays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		Location: loc,
	}, nil
}

func (ws WorkSchedule) IsWorkDay(date time.Time) bool {
	return ws.WorkDays[date.Weekday()]
}

// SlotsForDate returns the ordered candidate slot times (HH:MM) for date.
// Non-work days yield no slots. A slot never extends past the closing hour.
// When date is today relative to now, only slots strictly in the future are
// returned.
func (ws WorkSchedule) SlotsForDate(date time.Time, now time.Time) []string {
	if !ws.IsWorkDay(date) {
		return nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), ws.StartHour, 0, 0, 0, ws.Location)
	dayEnd := time.Date(date.Year(), date.Month(), date.Day(), ws.EndHour, 0, 0, 0, ws.Location)

	localNow := now.In(ws.Location)
	sameDay := localNow.Year() == date.Year() && localNow.YearDay() == date.YearDay()

	var slots []string
	for cur := dayStart; !cur.Add(ws.SlotDuration).After(dayEnd); cur = cur.Add(ws.SlotDuration) {
		if sameDay && !cur.After(localNow) {
			continue
		}
		slots = append(slots, cur.Format(TimeLayout))
	}
	return slots
}

// OnGrid reports whether timeStr (HH:MM) is a valid slot start for any work
// day.
func (ws WorkSchedule) OnGrid(timeStr string) bool {
	t, err := time.Parse(TimeLayout, timeStr)
	if err != nil {
		return false
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	start := time.Duration(ws.StartHour) * time.Hour
	end := time.Duration(ws.EndHour) * time.Hour
	if offset < start || offset+ws.SlotDuration > end {
		return false
	}
	return (offset-start)%ws.SlotDuration == 0
}

// SlotStart converts a (date, HH:MM) pair into an instant in the clinic
// timezone.
func (ws WorkSchedule) SlotStart(date time.Time, timeStr string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", timeStr, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, ws.Location), nil
}
