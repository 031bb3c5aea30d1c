package appointment

import (
	"time"

	"github.com/neiandria/clinic-scheduling/internal/calendar"
	"github.com/neiandria/clinic-scheduling/internal/slots"
)

// NoExclusion disables the excludeID argument of IsSlotAvailable.
// Store-assigned identifiers start at 1.
const NoExclusion int64 = 0

// SlotAvailability is a catalog label with its free flag for one doctor/day.
type SlotAvailability struct {
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// IsSlotAvailable reports whether doctorID is free at slotLabel on the
// calendar day of date. Only scheduled appointments block a slot; the
// appointment with excludeID never blocks. Days and times are compared on
// the wall clock of each value, so callers must pass a consistent location.
func IsSlotAvailable(doctorID int64, date time.Time, slotLabel string, appts []Appointment, excludeID int64) bool {
	for _, a := range appts {
		if blocks(a, doctorID, date, slotLabel, excludeID) {
			return false
		}
	}
	return true
}

func blocks(a Appointment, doctorID int64, date time.Time, slotLabel string, excludeID int64) bool {
	if a.DoctorID != doctorID || a.Status != StatusScheduled {
		return false
	}
	if excludeID != NoExclusion && a.ID == excludeID {
		return false
	}
	return calendar.SameDay(a.ScheduledAt, date) && slots.Label(a.ScheduledAt) == slotLabel
}

// Availability evaluates every label for doctorID on date.
func Availability(doctorID int64, date time.Time, labels []string, appts []Appointment, excludeID int64) []SlotAvailability {
	// Pre-filter the day once instead of scanning all appointments per label.
	var day []Appointment
	for _, a := range appts {
		if a.DoctorID == doctorID && a.Status == StatusScheduled && calendar.SameDay(a.ScheduledAt, date) {
			day = append(day, a)
		}
	}

	out := make([]SlotAvailability, 0, len(labels))
	for _, l := range labels {
		out = append(out, SlotAvailability{
			Label:     l,
			Available: IsSlotAvailable(doctorID, date, l, day, excludeID),
		})
	}
	return out
}

// NextUpcoming returns the appointment with the smallest date-time strictly
// after now, ties broken by the smallest ID. Callers filter by status first.
func NextUpcoming(appts []Appointment, now time.Time) (Appointment, bool) {
	var (
		best  Appointment
		found bool
	)
	for _, a := range appts {
		if !a.ScheduledAt.After(now) {
			continue
		}
		if !found || earlier(a, best) {
			best, found = a, true
		}
	}
	return best, found
}

func earlier(a, b Appointment) bool {
	if a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ID < b.ID
	}
	return a.ScheduledAt.Before(b.ScheduledAt)
}
