package appointment

import (
	"sort"
	"time"

	"github.com/neiandria/clinic-scheduling/internal/calendar"
)

// DoctorOverview is the summary shown on a doctor's dashboard.
type DoctorOverview struct {
	DoctorID      int64         `json:"doctor_id"`
	Today         []Appointment `json:"today"`
	Tomorrow      []Appointment `json:"tomorrow"`
	ThisWeek      []Appointment `json:"this_week"`
	TotalPatients int           `json:"total_patients"`
	Next          *Appointment  `json:"next,omitempty"`
	All           []Appointment `json:"all"`
}

// BuildDoctorOverview groups doctorID's appointments relative to now.
// Canceled appointments are left out of the day and week buckets and of
// the next-upcoming pick, but still count towards the patient total.
// The week runs from today's midnight up to midnight of the next weekStart.
func BuildDoctorOverview(appts []Appointment, doctorID int64, now time.Time, weekStart time.Weekday) DoctorOverview {
	ov := DoctorOverview{DoctorID: doctorID}

	today := calendar.StartOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	untilWeekStart := 7 - (int(today.Weekday())-int(weekStart)+7)%7
	weekEnd := today.AddDate(0, 0, untilWeekStart)

	patients := make(map[int64]struct{})
	var active []Appointment

	for _, a := range appts {
		if a.DoctorID != doctorID {
			continue
		}
		ov.All = append(ov.All, a)
		if a.PatientID != 0 {
			patients[a.PatientID] = struct{}{}
		}
		if a.Status == StatusCanceled {
			continue
		}
		active = append(active, a)

		switch {
		case calendar.SameDay(a.ScheduledAt, today):
			ov.Today = append(ov.Today, a)
		case calendar.SameDay(a.ScheduledAt, tomorrow):
			ov.Tomorrow = append(ov.Tomorrow, a)
		}
		if !a.ScheduledAt.Before(today) && !a.ScheduledAt.After(weekEnd) {
			ov.ThisWeek = append(ov.ThisWeek, a)
		}
	}

	ov.TotalPatients = len(patients)
	if next, ok := NextUpcoming(active, now); ok {
		ov.Next = &next
	}

	SortChronological(ov.Today)
	SortChronological(ov.Tomorrow)
	SortChronological(ov.ThisWeek)
	SortChronological(ov.All)

	return ov
}

// PatientHistory is a patient's appointments, most recent first.
type PatientHistory struct {
	PatientID    int64         `json:"patient_id"`
	Appointments []Appointment `json:"appointments"`
	LastVisit    *time.Time    `json:"last_visit,omitempty"`
}

func BuildPatientHistory(appts []Appointment, patientID int64) PatientHistory {
	h := PatientHistory{PatientID: patientID}
	for _, a := range appts {
		if a.PatientID == patientID {
			h.Appointments = append(h.Appointments, a)
		}
	}

	sort.SliceStable(h.Appointments, func(i, j int) bool {
		return earlier(h.Appointments[j], h.Appointments[i])
	})

	if len(h.Appointments) > 0 {
		last := h.Appointments[0].ScheduledAt
		h.LastVisit = &last
	}
	return h
}

// SortChronological orders by date-time, then ID.
func SortChronological(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return earlier(appts[i], appts[j])
	})
}
