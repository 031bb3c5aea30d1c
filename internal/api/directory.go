package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/neiandria/clinic-scheduling/internal/appointment"
	"github.com/neiandria/clinic-scheduling/internal/calendar"
	"github.com/neiandria/clinic-scheduling/internal/records"
	"github.com/neiandria/clinic-scheduling/internal/slots"
)

// calendarHandler renders the 42-day grid of ?month=YYYY-MM, defaulting to
// the current month.
func calendarHandler(weekStart time.Weekday, loc *time.Location, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := now().In(loc)
		if m := r.URL.Query().Get("month"); m != "" {
			parsed, err := time.ParseInLocation("2006-01", m, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_month", "month must be YYYY-MM")
				return
			}
			ref = parsed
		}

		first := calendar.FirstOfMonth(ref)
		writeJSON(w, http.StatusOK, CalendarResponse{
			Month:     first.Format("2006-01"),
			WeekStart: weekStart.String(),
			Weeks:     calendar.Rows(calendar.BuildMonthGrid(first, weekStart)),
		})
	}
}

func slotsHandler(catalog *slots.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SlotsResponse{Slots: catalog.Labels()})
	}
}

func listDoctorsHandler(dir records.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := dir.ListDoctors(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		if spec := r.URL.Query().Get("specialty"); spec != "" {
			docs = records.DoctorsBySpecialty(docs, spec)
		}
		if docs == nil {
			docs = []records.Doctor{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func specialtiesHandler(dir records.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := dir.ListDoctors(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		specs := records.Specialties(docs)
		if specs == nil {
			specs = []string{}
		}
		writeJSON(w, http.StatusOK, specs)
	}
}

// availabilityHandler lists every catalog slot for the doctor on ?date=.
// ?exclude= names an appointment being rescheduled.
func availabilityHandler(mgr *appointment.Manager, dir records.Directory, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
			return
		}
		if _, err := dir.GetDoctor(r.Context(), doctorID); err != nil {
			handleError(w, err)
			return
		}

		date, err := parseDate(r.URL.Query().Get("date"), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		exclude, err := optionalID(r.URL.Query().Get("exclude"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exclude", err.Error())
			return
		}

		avail, err := mgr.Availability(r.Context(), doctorID, date, exclude)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID: doctorID,
			Date:     date.Format(dateLayout),
			Slots:    avail,
		})
	}
}

func doctorOverviewHandler(mgr *appointment.Manager, dir records.Directory, weekStart time.Weekday) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", err.Error())
			return
		}
		if _, err := dir.GetDoctor(r.Context(), doctorID); err != nil {
			handleError(w, err)
			return
		}

		ov, err := mgr.DoctorOverview(r.Context(), doctorID, weekStart)
		if err != nil {
			handleError(w, err)
			return
		}

		resp := OverviewResponse{
			DoctorID:      ov.DoctorID,
			Today:         toAppointmentList(ov.Today),
			Tomorrow:      toAppointmentList(ov.Tomorrow),
			ThisWeek:      toAppointmentList(ov.ThisWeek),
			TotalPatients: ov.TotalPatients,
		}
		if ov.Next != nil {
			next := toAppointmentResponse(*ov.Next)
			resp.Next = &next
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientsHandler(dir records.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := dir.ListPatients(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		found := records.SearchPatients(patients, r.URL.Query().Get("q"))
		if found == nil {
			found = []records.Patient{}
		}
		writeJSON(w, http.StatusOK, found)
	}
}

// createPatientHandler registers a patient. birth_date is optional.
func createPatientHandler(dir records.Directory, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		p := records.Patient{
			Name:  strings.TrimSpace(req.Name),
			CPF:   req.CPF,
			Sex:   req.Sex,
			Email: req.Email,
			Phone: req.Phone,
		}
		if p.Name == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "name is required")
			return
		}
		if req.BirthDate != "" {
			d, err := parseDate(req.BirthDate, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_birth_date", err.Error())
				return
			}
			p.BirthDate = d
		}

		created, err := dir.AddPatient(r.Context(), p)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func listUsersHandler(dir records.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := dir.ListUsers(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		if users == nil {
			users = []records.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func patientHistoryHandler(mgr *appointment.Manager, dir records.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", err.Error())
			return
		}
		patient, err := dir.GetPatient(r.Context(), patientID)
		if err != nil {
			handleError(w, err)
			return
		}

		h, err := mgr.PatientHistory(r.Context(), patientID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{
			Patient:      *patient,
			Appointments: toAppointmentList(h.Appointments),
			LastVisit:    h.LastVisit,
		})
	}
}
