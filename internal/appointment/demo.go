package appointment

import "time"

// DemoAppointments returns the clinic's seed bookings, one per demo doctor.
func DemoAppointments(loc *time.Location) []Appointment {
	created := time.Date(2025, time.May, 20, 9, 0, 0, 0, loc)
	return []Appointment{
		{ID: 1, DoctorID: 1, PatientID: 1, ScheduledAt: time.Date(2025, time.June, 1, 10, 30, 0, 0, loc), Status: StatusScheduled, CreatedAt: created, UpdatedAt: created},
		{ID: 2, DoctorID: 2, PatientID: 2, ScheduledAt: time.Date(2025, time.June, 2, 14, 0, 0, 0, loc), Status: StatusScheduled, CreatedAt: created, UpdatedAt: created},
	}
}
