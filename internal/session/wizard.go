package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/neiandria/clinic-scheduling/internal/appointment"
	"github.com/neiandria/clinic-scheduling/internal/calendar"
	"github.com/neiandria/clinic-scheduling/internal/records"
)

var (
	// ErrValidation means a required choice is missing or does not fit the
	// earlier choices.
	ErrValidation = errors.New("validation error")
	// ErrStepNotAllowed means the action does not belong to the current step.
	ErrStepNotAllowed = errors.New("action not allowed at this step")
)

type Step int

const (
	StepPatient Step = iota
	StepSpecialty
	StepDoctor
	StepDate
	StepTime
	StepConfirm
	StepDone
)

var stepLabels = map[Step]string{
	StepPatient:   "Patient",
	StepSpecialty: "Specialty",
	StepDoctor:    "Doctor",
	StepDate:      "Date",
	StepTime:      "Time",
	StepConfirm:   "Summary",
	StepDone:      "Done",
}

// forward is the allowed-transition table. Back follows it in reverse and
// never goes before a wizard's first step.
var forward = map[Step]Step{
	StepPatient:   StepSpecialty,
	StepSpecialty: StepDoctor,
	StepDoctor:    StepDate,
	StepDate:      StepTime,
	StepTime:      StepConfirm,
	StepConfirm:   StepDone,
}

var backward = func() map[Step]Step {
	m := make(map[Step]Step, len(forward))
	for from, to := range forward {
		m[to] = from
	}
	return m
}()

func (s Step) String() string {
	if l, ok := stepLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Kind selects the step sequence of a wizard.
type Kind string

const (
	// KindPatient is patient self-service booking.
	KindPatient Kind = "patient"
	// KindReceptionist is front-desk booking on behalf of a patient.
	KindReceptionist Kind = "receptionist"
)

// Scheduler is the part of the appointment manager the wizard drives.
type Scheduler interface {
	Availability(ctx context.Context, doctorID int64, date time.Time, excludeID int64) ([]appointment.SlotAvailability, error)
	Create(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
}

// People is the part of the record store the wizard reads.
type People interface {
	ListDoctors(ctx context.Context) ([]records.Doctor, error)
	GetPatient(ctx context.Context, id int64) (*records.Patient, error)
}

// Choices are the values collected so far. Moving between steps never
// clears them.
type Choices struct {
	PatientID int64      `json:"patient_id,omitempty"`
	Specialty string     `json:"specialty,omitempty"`
	DoctorID  int64      `json:"doctor_id,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	Time      string     `json:"time,omitempty"`
}

// Wizard sequences specialty, doctor, date, time and confirmation for one
// booking. It is not safe for concurrent use; Registry serializes access.
type Wizard struct {
	kind      Kind
	first     Step
	current   Step
	choices   Choices
	month     time.Time
	weekStart time.Weekday
	loc       *time.Location

	sched  Scheduler
	people People

	booked  *appointment.Appointment
	lastErr error
}

// Config holds the clinic-wide settings a wizard needs.
type Config struct {
	WeekStart time.Weekday
	Location  *time.Location
	Now       time.Time
}

// NewPatientWizard starts self-service booking for the signed-in patient.
func NewPatientWizard(sched Scheduler, people People, patientID int64, cfg Config) *Wizard {
	w := newWizard(KindPatient, StepSpecialty, sched, people, cfg)
	w.choices.PatientID = patientID
	return w
}

// NewReceptionistWizard starts front-desk booking. With a non-zero
// patientID the patient step is skipped and left out of the labels.
func NewReceptionistWizard(sched Scheduler, people People, patientID int64, cfg Config) *Wizard {
	if patientID == 0 {
		return newWizard(KindReceptionist, StepPatient, sched, people, cfg)
	}
	w := newWizard(KindReceptionist, StepSpecialty, sched, people, cfg)
	w.choices.PatientID = patientID
	return w
}

func newWizard(kind Kind, first Step, sched Scheduler, people People, cfg Config) *Wizard {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Wizard{
		kind:      kind,
		first:     first,
		current:   first,
		sched:     sched,
		people:    people,
		weekStart: cfg.WeekStart,
		loc:       loc,
		month:     calendar.FirstOfMonth(now.In(loc)),
	}
}

func (w *Wizard) Kind() Kind { return w.kind }

func (w *Wizard) Current() Step { return w.current }

func (w *Wizard) Choices() Choices { return w.choices }

// Month is the first day of the month shown in the calendar grid.
func (w *Wizard) Month() time.Time { return w.month }

// LastError is the displayable error of the most recent failed action.
func (w *Wizard) LastError() error { return w.lastErr }

// Booked is the appointment created by Confirm, if any.
func (w *Wizard) Booked() *appointment.Appointment { return w.booked }

// Steps lists this wizard's steps from its first step to StepDone.
func (w *Wizard) Steps() []Step {
	var out []Step
	for s := w.first; ; s = forward[s] {
		out = append(out, s)
		if s == StepDone {
			return out
		}
	}
}

// StepLabels lists the labels of the steps shown as progress, without the
// terminal Done step.
func (w *Wizard) StepLabels() []string {
	var labels []string
	for _, s := range w.Steps() {
		if s != StepDone {
			labels = append(labels, s.String())
		}
	}
	return labels
}

// Position is the zero-based index of the current step in StepLabels.
func (w *Wizard) Position() int {
	for i, s := range w.Steps() {
		if s == w.current {
			return i
		}
	}
	return 0
}

func (w *Wizard) CanGoBack() bool {
	return w.current != w.first && w.current != StepDone
}

func (w *Wizard) CanGoForward() bool {
	return w.Current() != StepConfirm && w.Current() != StepDone && w.complete(w.Current()) == nil
}

// complete reports whether the choice owned by step s has been made.
func (w *Wizard) complete(s Step) error {
	switch s {
	case StepPatient:
		if w.choices.PatientID == 0 {
			return fmt.Errorf("%w: patient is required", ErrValidation)
		}
	case StepSpecialty:
		if w.choices.Specialty == "" {
			return fmt.Errorf("%w: specialty is required", ErrValidation)
		}
	case StepDoctor:
		if w.choices.DoctorID == 0 {
			return fmt.Errorf("%w: doctor is required", ErrValidation)
		}
	case StepDate:
		if w.choices.Date == nil {
			return fmt.Errorf("%w: date is required", ErrValidation)
		}
	case StepTime:
		if w.choices.Time == "" {
			return fmt.Errorf("%w: time is required", ErrValidation)
		}
	}
	return nil
}

// Next advances one step. Leaving a step requires its choice.
func (w *Wizard) Next() error {
	cur := w.Current()
	if cur == StepConfirm || cur == StepDone {
		return w.fail(fmt.Errorf("%w: use confirm to finish", ErrStepNotAllowed))
	}
	if err := w.complete(cur); err != nil {
		return w.fail(err)
	}
	w.current = forward[cur]
	w.lastErr = nil
	return nil
}

// Back moves one step back without discarding anything.
func (w *Wizard) Back() error {
	if !w.CanGoBack() {
		return w.fail(fmt.Errorf("%w: already at the first step", ErrStepNotAllowed))
	}
	w.current = backward[w.current]
	w.lastErr = nil
	return nil
}

func (w *Wizard) requireStep(s Step) error {
	if w.Current() != s {
		return w.fail(fmt.Errorf("%w: current step is %s, not %s", ErrStepNotAllowed, w.current, s))
	}
	return nil
}

func (w *Wizard) fail(err error) error {
	w.lastErr = err
	return err
}

// Reject records an input the caller could not turn into a wizard action,
// so the next render shows it.
func (w *Wizard) Reject(err error) error {
	return w.fail(err)
}

// SelectPatient is only available on receptionist wizards without a
// pre-seeded patient.
func (w *Wizard) SelectPatient(ctx context.Context, patientID int64) error {
	if err := w.requireStep(StepPatient); err != nil {
		return err
	}
	if _, err := w.people.GetPatient(ctx, patientID); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return w.fail(appointment.ErrPatientNotFound)
		}
		return w.fail(err)
	}
	w.choices.PatientID = patientID
	w.lastErr = nil
	return nil
}

// SelectSpecialty re-filters the doctor list, so any chosen doctor is reset.
func (w *Wizard) SelectSpecialty(ctx context.Context, specialty string) error {
	if err := w.requireStep(StepSpecialty); err != nil {
		return err
	}
	specs, err := w.Specialties(ctx)
	if err != nil {
		return w.fail(err)
	}
	if !slices.Contains(specs, specialty) {
		return w.fail(fmt.Errorf("%w: unknown specialty %q", ErrValidation, specialty))
	}
	w.choices.Specialty = specialty
	w.choices.DoctorID = 0
	w.lastErr = nil
	return nil
}

func (w *Wizard) SelectDoctor(ctx context.Context, doctorID int64) error {
	if err := w.requireStep(StepDoctor); err != nil {
		return err
	}
	docs, err := w.Doctors(ctx)
	if err != nil {
		return w.fail(err)
	}
	for _, d := range docs {
		if d.ID == doctorID {
			w.choices.DoctorID = doctorID
			w.lastErr = nil
			return nil
		}
	}
	return w.fail(fmt.Errorf("%w: doctor %d does not practice %q", ErrValidation, doctorID, w.choices.Specialty))
}

// SelectDate picks a calendar day and moves the month view to it.
func (w *Wizard) SelectDate(date time.Time) error {
	if err := w.requireStep(StepDate); err != nil {
		return err
	}
	d := calendar.StartOfDay(date.In(w.loc))
	w.choices.Date = &d
	w.month = calendar.FirstOfMonth(d)
	w.lastErr = nil
	return nil
}

// SelectDateString parses a YYYY-MM-DD day in the clinic's location.
func (w *Wizard) SelectDateString(s string) error {
	if err := w.requireStep(StepDate); err != nil {
		return err
	}
	d, err := time.ParseInLocation("2006-01-02", s, w.loc)
	if err != nil {
		return w.fail(fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrValidation, s))
	}
	return w.SelectDate(d)
}

// SelectTime accepts only catalog slots that are free for the chosen
// doctor and day.
func (w *Wizard) SelectTime(ctx context.Context, label string) error {
	if err := w.requireStep(StepTime); err != nil {
		return err
	}
	avail, err := w.Slots(ctx)
	if err != nil {
		return w.fail(err)
	}
	for _, s := range avail {
		if s.Label != label {
			continue
		}
		if !s.Available {
			return w.fail(fmt.Errorf("%w: %s is taken", appointment.ErrConflict, label))
		}
		w.choices.Time = label
		w.lastErr = nil
		return nil
	}
	return w.fail(fmt.Errorf("%w: %q", appointment.ErrInvalidSlot, label))
}

func (w *Wizard) PreviousMonth() { w.month = calendar.PreviousMonth(w.month) }

func (w *Wizard) NextMonth() { w.month = calendar.NextMonth(w.month) }

// Grid returns the 42-day view of the displayed month.
func (w *Wizard) Grid() []calendar.Day {
	return calendar.BuildMonthGrid(w.month, w.weekStart)
}

func (w *Wizard) Specialties(ctx context.Context) ([]string, error) {
	docs, err := w.people.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return records.Specialties(docs), nil
}

// Doctors lists the doctors of the chosen specialty.
func (w *Wizard) Doctors(ctx context.Context) ([]records.Doctor, error) {
	docs, err := w.people.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return records.DoctorsBySpecialty(docs, w.choices.Specialty), nil
}

// Slots lists catalog slots with availability for the chosen doctor and
// day. Without both choices nothing is bookable.
func (w *Wizard) Slots(ctx context.Context) ([]appointment.SlotAvailability, error) {
	if w.choices.DoctorID == 0 || w.choices.Date == nil {
		return nil, nil
	}
	return w.sched.Availability(ctx, w.choices.DoctorID, *w.choices.Date, appointment.NoExclusion)
}

// Confirm books the appointment. Any failure, including a slot taken since
// it was picked, leaves the wizard on the confirmation step.
func (w *Wizard) Confirm(ctx context.Context) (*appointment.Appointment, error) {
	if err := w.requireStep(StepConfirm); err != nil {
		return nil, err
	}
	for _, s := range w.Steps() {
		if s == StepConfirm {
			break
		}
		if err := w.complete(s); err != nil {
			return nil, w.fail(err)
		}
	}
	if w.choices.PatientID == 0 {
		return nil, w.fail(fmt.Errorf("%w: patient is required", ErrValidation))
	}

	appt, err := w.sched.Create(ctx, appointment.CreateRequest{
		DoctorID:  w.choices.DoctorID,
		PatientID: w.choices.PatientID,
		Date:      *w.choices.Date,
		Slot:      w.choices.Time,
	})
	if err != nil {
		return nil, w.fail(err)
	}

	w.booked = appt
	w.current = StepDone
	w.lastErr = nil
	return appt, nil
}
