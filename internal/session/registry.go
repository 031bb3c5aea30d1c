package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neiandria/clinic-scheduling/internal/appointment"
	"github.com/neiandria/clinic-scheduling/internal/calendar"
	"github.com/neiandria/clinic-scheduling/internal/records"
)

var ErrSessionNotFound = errors.New("wizard session not found")

// DefaultTTL is how long an untouched wizard is kept.
const DefaultTTL = 30 * time.Minute

type entry struct {
	mu      sync.Mutex
	wizard  *Wizard
	touched time.Time
}

// Registry keeps the open wizards keyed by an opaque id. Actions on the same
// wizard are serialized; different wizards proceed independently.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	sched  Scheduler
	people People
	cfg    Config
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(sched Scheduler, people People, cfg Config, ttl time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		sched:   sched,
		people:  people,
		cfg:     cfg,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Start opens a wizard. patientID may be zero only for the receptionist kind.
func (r *Registry) Start(kind Kind, patientID int64) (string, error) {
	cfg := r.cfg
	cfg.Now = r.now()

	var w *Wizard
	switch kind {
	case KindPatient:
		if patientID == 0 {
			return "", fmt.Errorf("%w: patient wizard needs a patient", ErrValidation)
		}
		w = NewPatientWizard(r.sched, r.people, patientID, cfg)
	case KindReceptionist:
		w = NewReceptionistWizard(r.sched, r.people, patientID, cfg)
	default:
		return "", fmt.Errorf("%w: unknown wizard kind %q", ErrValidation, kind)
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.entries[id] = &entry{wizard: w, touched: cfg.Now}
	r.mu.Unlock()

	r.logger.Debug("wizard started",
		zap.String("wizard_id", id),
		zap.String("kind", string(kind)),
		zap.Int64("patient_id", patientID),
	)
	return id, nil
}

// Do runs fn with exclusive access to the wizard and refreshes its expiry.
func (r *Registry) Do(id string, fn func(w *Wizard) error) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = r.now()
	return fn(e.wizard)
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep drops wizards untouched for longer than the TTL and returns how
// many were dropped.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, e := range r.entries {
		e.mu.Lock()
		stale := e.touched.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(r.entries, id)
			dropped++
		}
	}
	if dropped > 0 {
		r.logger.Info("expired wizard sessions", zap.Int("count", dropped))
	}
	return dropped
}

// Run sweeps expired wizards every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// View is a read-only rendering of a wizard for clients.
type View struct {
	ID           string                         `json:"id"`
	Kind         Kind                           `json:"kind"`
	Step         string                         `json:"step"`
	Steps        []string                       `json:"steps"`
	Position     int                            `json:"position"`
	CanGoBack    bool                           `json:"can_go_back"`
	CanGoForward bool                           `json:"can_go_forward"`
	Choices      Choices                        `json:"choices"`
	Month        string                         `json:"month"`
	Grid         []calendar.Day                 `json:"grid"`
	Specialties  []string                       `json:"specialties,omitempty"`
	Doctors      []records.Doctor               `json:"doctors,omitempty"`
	Slots        []appointment.SlotAvailability `json:"slots,omitempty"`
	Booked       *appointment.Appointment       `json:"booked,omitempty"`
	Error        string                         `json:"error,omitempty"`
}

// Render builds the View of the wizard's current state. Option lists are
// only filled for the step that uses them.
func Render(ctx context.Context, id string, w *Wizard) (View, error) {
	v := View{
		ID:           id,
		Kind:         w.Kind(),
		Step:         w.Current().String(),
		Steps:        w.StepLabels(),
		Position:     w.Position(),
		CanGoBack:    w.CanGoBack(),
		CanGoForward: w.CanGoForward(),
		Choices:      w.Choices(),
		Month:        w.Month().Format("2006-01"),
		Grid:         w.Grid(),
		Booked:       w.Booked(),
	}
	if err := w.LastError(); err != nil {
		v.Error = err.Error()
	}

	var err error
	switch w.Current() {
	case StepSpecialty:
		v.Specialties, err = w.Specialties(ctx)
	case StepDoctor:
		v.Doctors, err = w.Doctors(ctx)
	case StepTime:
		v.Slots, err = w.Slots(ctx)
	}
	if err != nil {
		return View{}, err
	}
	return v, nil
}
