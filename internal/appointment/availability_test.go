package appointment

import (
	"testing"
	"time"

	"github.com/neiandria/clinic-scheduling/internal/slots"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestIsSlotAvailable(t *testing.T) {
	day := at(2025, time.June, 2, 0, 0)
	appts := []Appointment{
		{ID: 1, DoctorID: 2, PatientID: 1, ScheduledAt: at(2025, time.June, 2, 14, 0), Status: StatusScheduled},
		{ID: 2, DoctorID: 2, PatientID: 2, ScheduledAt: at(2025, time.June, 2, 15, 0), Status: StatusCanceled},
		{ID: 3, DoctorID: 2, PatientID: 3, ScheduledAt: at(2025, time.June, 2, 15, 30), Status: StatusCompleted},
		{ID: 4, DoctorID: 2, PatientID: 1, ScheduledAt: at(2025, time.June, 2, 16, 0), Status: StatusInProgress},
	}

	tests := []struct {
		name      string
		doctorID  int64
		date      time.Time
		slot      string
		excludeID int64
		want      bool
	}{
		{"booked slot", 2, day, "14:00", NoExclusion, false},
		{"neighbouring slot", 2, day, "14:30", NoExclusion, true},
		{"other doctor", 1, day, "14:00", NoExclusion, true},
		{"other day", 2, day.AddDate(0, 0, 1), "14:00", NoExclusion, true},
		{"same weekday next week", 2, day.AddDate(0, 0, 7), "14:00", NoExclusion, true},
		{"canceled never blocks", 2, day, "15:00", NoExclusion, true},
		{"completed never blocks", 2, day, "15:30", NoExclusion, true},
		{"in progress never blocks", 2, day, "16:00", NoExclusion, true},
		{"excluded appointment", 2, day, "14:00", 1, true},
		{"exclusion of another id", 2, day, "14:00", 99, false},
		{"date carries a time of day", 2, at(2025, time.June, 2, 9, 45), "14:00", NoExclusion, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsSlotAvailable(tt.doctorID, tt.date, tt.slot, appts, tt.excludeID)
			if got != tt.want {
				t.Errorf("IsSlotAvailable(%d, %s, %s, %d) = %v, want %v",
					tt.doctorID, tt.date.Format("2006-01-02"), tt.slot, tt.excludeID, got, tt.want)
			}
		})
	}
}

func TestIsSlotAvailable_EmptyCollection(t *testing.T) {
	day := at(2025, time.June, 2, 0, 0)
	for _, l := range slots.Default().Labels() {
		if !IsSlotAvailable(7, day, l, nil, NoExclusion) {
			t.Fatalf("slot %s should be free with no appointments", l)
		}
	}
}

func TestIsSlotAvailable_DoesNotMutate(t *testing.T) {
	appts := []Appointment{
		{ID: 1, DoctorID: 1, ScheduledAt: at(2025, time.June, 1, 10, 30), Status: StatusScheduled},
	}
	before := appts[0]
	for i := 0; i < 3; i++ {
		IsSlotAvailable(1, at(2025, time.June, 1, 0, 0), "10:30", appts, NoExclusion)
	}
	if appts[0] != before {
		t.Fatalf("appointment changed: %+v", appts[0])
	}
}

func TestAvailability(t *testing.T) {
	catalog := slots.Default()
	appts := []Appointment{
		{ID: 1, DoctorID: 1, ScheduledAt: at(2025, time.June, 1, 10, 30), Status: StatusScheduled},
		{ID: 2, DoctorID: 1, ScheduledAt: at(2025, time.June, 1, 17, 30), Status: StatusScheduled},
		{ID: 3, DoctorID: 1, ScheduledAt: at(2025, time.June, 2, 8, 0), Status: StatusScheduled},
	}

	got := Availability(1, at(2025, time.June, 1, 0, 0), catalog.Labels(), appts, NoExclusion)
	if len(got) != catalog.Len() {
		t.Fatalf("got %d entries, want %d", len(got), catalog.Len())
	}

	taken := map[string]bool{"10:30": true, "17:30": true}
	for i, s := range got {
		if s.Label != catalog.Labels()[i] {
			t.Errorf("entry %d label = %s, want %s", i, s.Label, catalog.Labels()[i])
		}
		if s.Available == taken[s.Label] {
			t.Errorf("slot %s available = %v", s.Label, s.Available)
		}
	}

	withExclusion := Availability(1, at(2025, time.June, 1, 0, 0), catalog.Labels(), appts, 1)
	for _, s := range withExclusion {
		if s.Label == "10:30" && !s.Available {
			t.Error("excluded appointment should not block its own slot")
		}
		if s.Label == "17:30" && s.Available {
			t.Error("exclusion must not free other slots")
		}
	}
}

func TestNextUpcoming(t *testing.T) {
	now := at(2025, time.June, 2, 14, 0)

	t.Run("empty", func(t *testing.T) {
		if _, ok := NextUpcoming(nil, now); ok {
			t.Fatal("expected no upcoming appointment")
		}
	})

	t.Run("strictly after now", func(t *testing.T) {
		appts := []Appointment{
			{ID: 1, ScheduledAt: now},
			{ID: 2, ScheduledAt: now.Add(-time.Hour)},
		}
		if a, ok := NextUpcoming(appts, now); ok {
			t.Fatalf("got %d, want none", a.ID)
		}
	})

	t.Run("earliest wins, ties by id", func(t *testing.T) {
		appts := []Appointment{
			{ID: 9, ScheduledAt: now.Add(2 * time.Hour)},
			{ID: 7, ScheduledAt: now.Add(30 * time.Minute)},
			{ID: 5, ScheduledAt: now.Add(30 * time.Minute)},
			{ID: 6, ScheduledAt: now.Add(time.Hour)},
		}
		a, ok := NextUpcoming(appts, now)
		if !ok || a.ID != 5 {
			t.Fatalf("got %d (found=%v), want 5", a.ID, ok)
		}
	})
}
