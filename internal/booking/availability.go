package booking

import (
	"context"
	"fmt"
	"time"
)

// SlotAvailability is one entry of a day's availability listing.
type SlotAvailability struct {
	Time      string `json:"slot_time"`
	Available bool   `json:"is_available"`
}

// AvailabilityStore answers availability questions by combining the slot
// calendar with the booked times read through the repository. It is an
// optimistic fast path: two requests can both see a slot as free before
// either writes, so the unique constraint enforced on insert remains the
// authoritative guard.
type AvailabilityStore struct {
	repo     Repository
	schedule WorkSchedule
	now      func() time.Time
}

func NewAvailabilityStore(repo Repository, schedule WorkSchedule) *AvailabilityStore {
	return &AvailabilityStore{repo: repo, schedule: schedule, now: time.Now}
}

// DayAvailability returns the full slot grid for date with per-slot
// availability. Non-work days yield an empty list.
func (s *AvailabilityStore) DayAvailability(ctx context.Context, date time.Time) ([]SlotAvailability, error) {
	slots := s.schedule.SlotsForDate(date, s.now())
	if len(slots) == 0 {
		return nil, nil
	}

	booked, err := s.repo.ListBookedTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	result := make([]SlotAvailability, 0, len(slots))
	for _, t := range slots {
		result = append(result, SlotAvailability{Time: t, Available: !taken[t]})
	}
	return result, nil
}

// IsAvailable reports whether the (date, time) slot exists on the calendar
// and has no active appointment.
func (s *AvailabilityStore) IsAvailable(ctx context.Context, date time.Time, timeStr string) (bool, error) {
	slots := s.schedule.SlotsForDate(date, s.now())
	onCalendar := false
	for _, t := range slots {
		if t == timeStr {
			onCalendar = true
			break
		}
	}
	if !onCalendar {
		return false, nil
	}

	booked, err := s.repo.ListBookedTimes(ctx, date)
	if err != nil {
		return false, fmt.Errorf("load booked times: %w", err)
	}
	for _, t := range booked {
		if t == timeStr {
			return false, nil
		}
	}
	return true, nil
}
