package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/neiandria/clinic-scheduling/internal/appointment"
	"github.com/neiandria/clinic-scheduling/internal/calendar"
	"github.com/neiandria/clinic-scheduling/internal/records"
)

const dateLayout = "2006-01-02"

type CreateAppointmentRequest struct {
	DoctorID  int64  `json:"doctor_id"`
	PatientID int64  `json:"patient_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM slot label
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type AppointmentResponse struct {
	ID          int64     `json:"id"`
	DoctorID    int64     `json:"doctor_id"`
	PatientID   int64     `json:"patient_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		Date:        a.ScheduledAt.Format(dateLayout),
		Time:        a.ScheduledAt.Format("15:04"),
		ScheduledAt: a.ScheduledAt,
		Status:      string(a.Status),
	}
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

type CalendarResponse struct {
	Month     string           `json:"month"`
	WeekStart string           `json:"week_start"`
	Weeks     [][]calendar.Day `json:"weeks"`
}

type SlotsResponse struct {
	Slots []string `json:"slots"`
}

type AvailabilityResponse struct {
	DoctorID int64                          `json:"doctor_id"`
	Date     string                         `json:"date"`
	Slots    []appointment.SlotAvailability `json:"slots"`
}

type OverviewResponse struct {
	DoctorID      int64                 `json:"doctor_id"`
	Today         []AppointmentResponse `json:"today"`
	Tomorrow      []AppointmentResponse `json:"tomorrow"`
	ThisWeek      []AppointmentResponse `json:"this_week"`
	TotalPatients int                   `json:"total_patients"`
	Next          *AppointmentResponse  `json:"next,omitempty"`
}

type HistoryResponse struct {
	Patient      records.Patient       `json:"patient"`
	Appointments []AppointmentResponse `json:"appointments"`
	LastVisit    *time.Time            `json:"last_visit,omitempty"`
}

type IdentityRequest struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	Role records.Role `json:"role"`
}

type IdentityResponse struct {
	Token    string           `json:"token"`
	Identity records.Identity `json:"identity"`
}

type CreatePatientRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	CPF       string `json:"cpf"`
	Sex       string `json:"sex"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type StartWizardRequest struct {
	Kind      string `json:"kind"`
	PatientID int64  `json:"patient_id"`
}

// WizardInput carries the value of a single wizard selection.
type WizardInput struct {
	PatientID int64  `json:"patient_id"`
	Specialty string `json:"specialty"`
	DoctorID  int64  `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
