package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	redisclient "github.com/neiandria/clinic-scheduling/internal/redis"
	"github.com/neiandria/clinic-scheduling/internal/slots"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentCanceled    = "APPOINTMENT_CANCELED"
	EventAppointmentStarted     = "APPOINTMENT_STARTED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

// maxCommitAttempts bounds re-validation when another writer commits
// between our snapshot and Apply.
const maxCommitAttempts = 3

// CreateRequest names a doctor, a patient and a slot on a calendar day.
type CreateRequest struct {
	DoctorID  int64
	PatientID int64
	Date      time.Time
	Slot      string
}

// Manager is the only writer of the appointment collection. Mutations are
// serialized in process; the locker extends that to other processes that
// share the store.
type Manager struct {
	mu      sync.Mutex
	store   Store
	dir     Directory
	catalog *slots.Catalog
	locker  redisclient.Locker
	events  EventSink
	logger  *zap.Logger
	now     func() time.Time

	// Snapshots from the store are queued and handed to subscribers only
	// once no lock is held, so a subscriber may call back into the Manager.
	writing    atomic.Int32
	pubMu      sync.Mutex
	pending    []Snapshot
	delivering bool
	subSeq     int
	subs       map[int]func(Snapshot)
}

func NewManager(store Store, dir Directory, catalog *slots.Catalog, locker redisclient.Locker, events EventSink, logger *zap.Logger) *Manager {
	if catalog == nil {
		catalog = slots.Default()
	}
	if locker == nil {
		locker = redisclient.NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:   store,
		dir:     dir,
		catalog: catalog,
		locker:  locker,
		events:  events,
		logger:  logger,
		now:     time.Now,
		subs:    make(map[int]func(Snapshot)),
	}
	store.Subscribe(m.enqueue)
	return m
}

func (m *Manager) Catalog() *slots.Catalog { return m.catalog }

// Create books a new scheduled appointment. Availability is re-checked
// against the latest snapshot at commit time, so a slot taken since the
// caller last looked fails with ErrConflict.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	if !m.catalog.Contains(req.Slot) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, req.Slot)
	}
	if err := m.checkParticipants(ctx, req.DoctorID, req.PatientID); err != nil {
		return nil, err
	}

	scheduledAt, err := slots.Combine(req.Date, req.Slot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	id, err := m.store.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate appointment id: %w", err)
	}

	var created Appointment

	err = m.withSlotLock(ctx, req.DoctorID, scheduledAt, func(lockCtx context.Context) error {
		_, err := m.commit(lockCtx, func(snap Snapshot) (Changeset, error) {
			if !IsSlotAvailable(req.DoctorID, scheduledAt, req.Slot, snap.Appointments, NoExclusion) {
				return Changeset{}, ErrConflict
			}
			now := m.now()
			created = Appointment{
				ID:          id,
				DoctorID:    req.DoctorID,
				PatientID:   req.PatientID,
				ScheduledAt: scheduledAt,
				Status:      StatusScheduled,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			return Changeset{Inserts: []Appointment{created}, At: now}, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("appointment created",
		zap.Int64("appointment_id", created.ID),
		zap.Int64("doctor_id", created.DoctorID),
		zap.Int64("patient_id", created.PatientID),
		zap.Time("scheduled_at", created.ScheduledAt))

	m.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":    created.DoctorID,
		"patient_id":   created.PatientID,
		"scheduled_at": created.ScheduledAt,
	})

	return &created, nil
}

// Cancel moves a scheduled appointment to canceled. Canceling twice is an
// error, not a no-op.
func (m *Manager) Cancel(ctx context.Context, id int64) (*Appointment, error) {
	return m.transition(ctx, id, StatusCanceled, EventAppointmentCanceled)
}

// Start marks a scheduled appointment as in progress.
func (m *Manager) Start(ctx context.Context, id int64) (*Appointment, error) {
	return m.transition(ctx, id, StatusInProgress, EventAppointmentStarted)
}

// ConfirmCompletion marks a scheduled or in-progress appointment completed.
func (m *Manager) ConfirmCompletion(ctx context.Context, id int64) (*Appointment, error) {
	return m.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
}

func (m *Manager) transition(ctx context.Context, id int64, to Status, event string) (*Appointment, error) {
	var from Status

	m.lockWrites()
	snap, err := m.commit(ctx, func(snap Snapshot) (Changeset, error) {
		a, ok := snap.Find(id)
		if !ok {
			return Changeset{}, ErrAppointmentNotFound
		}
		if !canTransition(a.Status, to) {
			return Changeset{}, &TransitionError{ID: id, From: a.Status, To: to}
		}
		from = a.Status
		return Changeset{
			Updates: []StatusChange{{ID: id, From: a.Status, To: to}},
			At:      m.now(),
		}, nil
	})
	m.unlockWrites()
	m.flush()
	if err != nil {
		return nil, err
	}

	updated, _ := snap.Find(id)

	m.logger.Info("appointment status changed",
		zap.Int64("appointment_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	m.logEvent(ctx, id, event, map[string]any{
		"from": from,
		"to":   to,
	})

	return &updated, nil
}

// Reschedule cancels appointment id and books the same doctor and patient at
// the new date and slot in one commit. The appointment's own slot does not
// count against it. On any failure the original is left untouched.
func (m *Manager) Reschedule(ctx context.Context, id int64, newDate time.Time, newSlot string) (*Appointment, error) {
	if !m.catalog.Contains(newSlot) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, newSlot)
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusScheduled {
		return nil, &TransitionError{ID: id, From: current.Status, To: StatusCanceled}
	}

	scheduledAt, err := slots.Combine(newDate, newSlot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}

	newID, err := m.store.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate appointment id: %w", err)
	}

	var created Appointment

	err = m.withSlotLock(ctx, current.DoctorID, scheduledAt, func(lockCtx context.Context) error {
		_, err := m.commit(lockCtx, func(snap Snapshot) (Changeset, error) {
			orig, ok := snap.Find(id)
			if !ok {
				return Changeset{}, ErrAppointmentNotFound
			}
			if orig.Status != StatusScheduled {
				return Changeset{}, &TransitionError{ID: id, From: orig.Status, To: StatusCanceled}
			}
			if !IsSlotAvailable(orig.DoctorID, scheduledAt, newSlot, snap.Appointments, id) {
				return Changeset{}, ErrConflict
			}

			now := m.now()
			created = Appointment{
				ID:          newID,
				DoctorID:    orig.DoctorID,
				PatientID:   orig.PatientID,
				ScheduledAt: scheduledAt,
				Status:      StatusScheduled,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			return Changeset{
				Updates: []StatusChange{{ID: id, From: StatusScheduled, To: StatusCanceled}},
				Inserts: []Appointment{created},
				At:      now,
			}, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("appointment rescheduled",
		zap.Int64("appointment_id", id),
		zap.Int64("new_appointment_id", created.ID),
		zap.Time("scheduled_at", created.ScheduledAt))

	m.logEvent(ctx, id, EventAppointmentRescheduled, map[string]any{
		"new_appointment_id": created.ID,
		"scheduled_at":       created.ScheduledAt,
	})

	return &created, nil
}

// commit validates against a fresh snapshot and applies the result,
// re-validating if another writer got in first.
func (m *Manager) commit(ctx context.Context, build func(Snapshot) (Changeset, error)) (Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		snap, err := m.store.Snapshot(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
		}

		cs, err := build(snap)
		if err != nil {
			return Snapshot{}, err
		}

		next, err := m.store.Apply(ctx, snap.Version, cs)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrStaleSnapshot) {
			return Snapshot{}, err
		}
		lastErr = err
	}
	return Snapshot{}, fmt.Errorf("commit after %d attempts: %w", maxCommitAttempts, lastErr)
}

func (m *Manager) withSlotLock(ctx context.Context, doctorID int64, at time.Time, fn func(context.Context) error) error {
	key := fmt.Sprintf("%d:%s", doctorID, at.Format("2006-01-02T15:04"))

	err := m.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		m.lockWrites()
		defer m.unlockWrites()
		return fn(lockCtx)
	})
	m.flush()
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return fmt.Errorf("%w: slot is currently being booked", ErrConflict)
	}
	return err
}

func (m *Manager) checkParticipants(ctx context.Context, doctorID, patientID int64) error {
	if m.dir == nil {
		return nil
	}
	ok, err := m.dir.DoctorExists(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	if !ok {
		return ErrDoctorNotFound
	}
	ok, err = m.dir.PatientExists(ctx, patientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	if !ok {
		return ErrPatientNotFound
	}
	return nil
}

func (m *Manager) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	if m.events == nil {
		m.logger.Debug("appointment event",
			zap.String("event", eventType),
			zap.Int64("appointment_id", appointmentID),
			zap.ByteString("payload", data))
		return
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     m.now(),
	}

	if err := m.events.InsertEvent(ctx, ev); err != nil {
		m.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err))
	}
}

// Queries

func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	return m.store.Snapshot(ctx)
}

// Subscribe registers fn for every committed snapshot, in commit order.
// fn runs after the Manager has released its locks and may itself call
// Create, Cancel or Reschedule.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.subSeq++
	id := m.subSeq
	m.subs[id] = fn

	return func() {
		m.pubMu.Lock()
		defer m.pubMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) lockWrites() {
	m.mu.Lock()
	m.writing.Add(1)
}

func (m *Manager) unlockWrites() {
	m.writing.Add(-1)
	m.mu.Unlock()
}

// enqueue receives store notifications. Commits made by another writer
// sharing the store are delivered straight away; our own wait for flush.
func (m *Manager) enqueue(snap Snapshot) {
	m.pubMu.Lock()
	m.pending = append(m.pending, snap)
	m.pubMu.Unlock()

	if m.writing.Load() == 0 {
		m.flush()
	}
}

// flush delivers queued snapshots. Only one goroutine delivers at a time;
// anything queued meanwhile, including by a subscriber, is picked up by the
// same loop.
func (m *Manager) flush() {
	m.pubMu.Lock()
	if m.delivering {
		m.pubMu.Unlock()
		return
	}
	m.delivering = true

	for len(m.pending) > 0 {
		snap := m.pending[0]
		m.pending = m.pending[1:]
		fns := make([]func(Snapshot), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
		m.pubMu.Unlock()

		for _, fn := range fns {
			fn(snap)
		}

		m.pubMu.Lock()
	}

	m.delivering = false
	m.pubMu.Unlock()
}

func (m *Manager) Get(ctx context.Context, id int64) (*Appointment, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	a, ok := snap.Find(id)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

// List returns matching appointments ordered by date-time, then ID.
func (m *Manager) List(ctx context.Context, f Filter) ([]Appointment, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var out []Appointment
	for _, a := range snap.Appointments {
		if f.match(a) {
			out = append(out, a)
		}
	}
	SortChronological(out)
	return out, nil
}

func (m *Manager) IsSlotAvailable(ctx context.Context, doctorID int64, date time.Time, slot string, excludeID int64) (bool, error) {
	if !m.catalog.Contains(slot) {
		return false, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	return IsSlotAvailable(doctorID, date, slot, snap.Appointments, excludeID), nil
}

// Availability lists every catalog slot for doctorID on date.
func (m *Manager) Availability(ctx context.Context, doctorID int64, date time.Time, excludeID int64) ([]SlotAvailability, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return Availability(doctorID, date, m.catalog.Labels(), snap.Appointments, excludeID), nil
}

func (m *Manager) DoctorOverview(ctx context.Context, doctorID int64, weekStart time.Weekday) (DoctorOverview, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return DoctorOverview{}, fmt.Errorf("load snapshot: %w", err)
	}
	return BuildDoctorOverview(snap.Appointments, doctorID, m.now(), weekStart), nil
}

func (m *Manager) PatientHistory(ctx context.Context, patientID int64) (PatientHistory, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return PatientHistory{}, fmt.Errorf("load snapshot: %w", err)
	}
	return BuildPatientHistory(snap.Appointments, patientID), nil
}
