package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	redisclient "github.com/neiandria/clinic-scheduling/internal/redis"
)

// -- Fakes --

type fakeDirectory struct {
	doctors  map[int64]bool
	patients map[int64]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		doctors:  map[int64]bool{1: true, 2: true},
		patients: map[int64]bool{1: true, 2: true, 3: true},
	}
}

func (d *fakeDirectory) DoctorExists(_ context.Context, id int64) (bool, error) {
	return d.doctors[id], nil
}

func (d *fakeDirectory) PatientExists(_ context.Context, id int64) (bool, error) {
	return d.patients[id], nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []EventLog
}

func (s *recordingSink) InsertEvent(_ context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

// staleOnceStore fails the first Apply as if another writer had committed.
type staleOnceStore struct {
	*MemoryStore
	mu      sync.Mutex
	failed  bool
	applies int
}

func (s *staleOnceStore) Apply(ctx context.Context, base uint64, cs Changeset) (Snapshot, error) {
	s.mu.Lock()
	s.applies++
	first := !s.failed
	s.failed = true
	s.mu.Unlock()
	if first {
		return Snapshot{}, ErrStaleSnapshot
	}
	return s.MemoryStore.Apply(ctx, base, cs)
}

// blockingFailStore holds its first Apply until release is closed, then
// fails it.
type blockingFailStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	err     error
}

func (s *blockingFailStore) Apply(ctx context.Context, base uint64, cs Changeset) (Snapshot, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
		return Snapshot{}, s.err
	}
	return s.MemoryStore.Apply(ctx, base, cs)
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(_ context.Context, _ string, _ func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// -- Helpers --

func demoAppointments() []Appointment {
	return DemoAppointments(time.UTC)
}

func newTestManager(t *testing.T, store Store) (*Manager, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	m := NewManager(store, newFakeDirectory(), nil, nil, sink, nil)
	m.now = func() time.Time { return at(2025, time.June, 1, 8, 0) }
	return m, sink
}

// -- Tests --

func TestCreate(t *testing.T) {
	ctx := context.Background()
	m, sink := newTestManager(t, NewMemoryStore(demoAppointments()...))
	day := at(2025, time.June, 2, 0, 0)

	_, err := m.Create(ctx, CreateRequest{DoctorID: 2, PatientID: 3, Date: day, Slot: "14:00"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("booking a taken slot: got %v, want ErrConflict", err)
	}

	a, err := m.Create(ctx, CreateRequest{DoctorID: 2, PatientID: 3, Date: day, Slot: "14:30"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Status != StatusScheduled {
		t.Errorf("status = %s, want scheduled", a.Status)
	}
	if !a.ScheduledAt.Equal(at(2025, time.June, 2, 14, 30)) {
		t.Errorf("scheduled at %v", a.ScheduledAt)
	}
	if a.ID <= 2 {
		t.Errorf("id %d reuses a seeded id", a.ID)
	}

	free, err := m.IsSlotAvailable(ctx, 2, day, "14:30", NoExclusion)
	if err != nil {
		t.Fatalf("IsSlotAvailable: %v", err)
	}
	if free {
		t.Error("slot still available after booking")
	}

	if got := sink.types(); len(got) != 1 || got[0] != EventAppointmentCreated {
		t.Errorf("events = %v", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore())
	day := at(2025, time.June, 2, 0, 0)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"off-grid time", CreateRequest{DoctorID: 1, PatientID: 1, Date: day, Slot: "14:15"}, ErrInvalidSlot},
		{"after closing", CreateRequest{DoctorID: 1, PatientID: 1, Date: day, Slot: "18:00"}, ErrInvalidSlot},
		{"unknown doctor", CreateRequest{DoctorID: 42, PatientID: 1, Date: day, Slot: "09:00"}, ErrDoctorNotFound},
		{"unknown patient", CreateRequest{DoctorID: 1, PatientID: 42, Date: day, Slot: "09:00"}, ErrPatientNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	snap, _ := m.Snapshot(ctx)
	if len(snap.Appointments) != 0 {
		t.Fatalf("rejected requests created %d appointments", len(snap.Appointments))
	}
}

func TestCreate_ConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore())
	day := at(2025, time.June, 3, 0, 0)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			_, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: patient, Date: day, Slot: "09:00"})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i%3 + 1))
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("%d bookings succeeded for one slot, want 1", successes)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	m, sink := newTestManager(t, NewMemoryStore(demoAppointments()...))

	a, err := m.Cancel(ctx, 2)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if a.Status != StatusCanceled {
		t.Fatalf("status = %s", a.Status)
	}

	_, err = m.Cancel(ctx, 2)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel: got %v, want ErrInvalidTransition", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StatusCanceled {
		t.Errorf("transition error = %#v", err)
	}

	got, _ := m.Get(ctx, 2)
	if got.Status != StatusCanceled {
		t.Errorf("status after failed cancel = %s", got.Status)
	}

	free, _ := m.IsSlotAvailable(ctx, 2, at(2025, time.June, 2, 0, 0), "14:00", NoExclusion)
	if !free {
		t.Error("canceled appointment still blocks its slot")
	}

	if got := sink.types(); len(got) != 1 || got[0] != EventAppointmentCanceled {
		t.Errorf("events = %v", got)
	}

	if _, err := m.Cancel(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("start then complete", func(t *testing.T) {
		m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
		if a, err := m.Start(ctx, 1); err != nil || a.Status != StatusInProgress {
			t.Fatalf("Start: %v %+v", err, a)
		}
		if _, err := m.Cancel(ctx, 1); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("cancel in progress: got %v", err)
		}
		if a, err := m.ConfirmCompletion(ctx, 1); err != nil || a.Status != StatusCompleted {
			t.Fatalf("ConfirmCompletion: %v %+v", err, a)
		}
	})

	t.Run("complete directly", func(t *testing.T) {
		m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
		if _, err := m.ConfirmCompletion(ctx, 1); err != nil {
			t.Fatalf("ConfirmCompletion: %v", err)
		}
		for name, op := range map[string]func(context.Context, int64) (*Appointment, error){
			"cancel":   m.Cancel,
			"start":    m.Start,
			"complete": m.ConfirmCompletion,
		} {
			if _, err := op(ctx, 1); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s after completion: got %v", name, err)
			}
		}
	})
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	m, sink := newTestManager(t, NewMemoryStore(demoAppointments()...))

	moved, err := m.Reschedule(ctx, 1, at(2025, time.June, 4, 0, 0), "11:00")
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.ID == 1 || moved.DoctorID != 1 || moved.PatientID != 1 {
		t.Errorf("new appointment = %+v", moved)
	}
	if !moved.ScheduledAt.Equal(at(2025, time.June, 4, 11, 0)) {
		t.Errorf("scheduled at %v", moved.ScheduledAt)
	}

	orig, _ := m.Get(ctx, 1)
	if orig.Status != StatusCanceled {
		t.Errorf("original status = %s, want canceled", orig.Status)
	}

	if got := sink.types(); len(got) != 1 || got[0] != EventAppointmentRescheduled {
		t.Errorf("events = %v", got)
	}
}

func TestReschedule_SameSlot(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))

	moved, err := m.Reschedule(ctx, 1, at(2025, time.June, 1, 0, 0), "10:30")
	if err != nil {
		t.Fatalf("rescheduling onto its own slot: %v", err)
	}
	if moved.ID == 1 {
		t.Error("expected a new appointment id")
	}
}

func TestReschedule_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("taken slot leaves original untouched", func(t *testing.T) {
		m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
		if _, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 2, Date: at(2025, time.June, 5, 0, 0), Slot: "09:00"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		before, _ := m.Snapshot(ctx)

		_, err := m.Reschedule(ctx, 1, at(2025, time.June, 5, 0, 0), "09:00")
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("got %v, want ErrConflict", err)
		}

		after, _ := m.Snapshot(ctx)
		if after.Version != before.Version {
			t.Errorf("version moved from %d to %d", before.Version, after.Version)
		}
		orig, _ := after.Find(1)
		if orig.Status != StatusScheduled {
			t.Errorf("original status = %s", orig.Status)
		}
	})

	t.Run("canceled appointment", func(t *testing.T) {
		m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
		if _, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 3, Date: at(2025, time.June, 6, 0, 0), Slot: "08:00"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := m.Cancel(ctx, 3); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		before, _ := m.Get(ctx, 3)

		_, err := m.Reschedule(ctx, 3, at(2025, time.June, 7, 0, 0), "08:00")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("got %v, want ErrInvalidTransition", err)
		}
		after, _ := m.Get(ctx, 3)
		if *after != *before {
			t.Errorf("appointment changed: %+v -> %+v", before, after)
		}
	})

	t.Run("invalid slot", func(t *testing.T) {
		m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
		if _, err := m.Reschedule(ctx, 1, at(2025, time.June, 7, 0, 0), "07:30"); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("got %v, want ErrInvalidSlot", err)
		}
	})

	t.Run("unknown appointment", func(t *testing.T) {
		m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
		if _, err := m.Reschedule(ctx, 77, at(2025, time.June, 7, 0, 0), "08:00"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})
}

func TestIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
	day := at(2025, time.June, 10, 0, 0)

	seen := map[int64]bool{1: true, 2: true}
	for _, slot := range []string{"08:00", "08:30", "09:00"} {
		a, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 1, Date: day, Slot: slot})
		if err != nil {
			t.Fatalf("Create %s: %v", slot, err)
		}
		if seen[a.ID] {
			t.Fatalf("id %d reused", a.ID)
		}
		seen[a.ID] = true
		if _, err := m.Cancel(ctx, a.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	}

	a, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 1, Date: day, Slot: "08:00"})
	if err != nil {
		t.Fatalf("rebooking canceled slot: %v", err)
	}
	if seen[a.ID] {
		t.Fatalf("id %d reused after cancellation", a.ID)
	}
}

func TestCommit_RetriesStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &staleOnceStore{MemoryStore: NewMemoryStore(demoAppointments()...)}
	m, _ := newTestManager(t, store)

	if _, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 2, Date: at(2025, time.June, 2, 0, 0), Slot: "09:00"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if store.applies != 2 {
		t.Fatalf("Apply called %d times, want 2", store.applies)
	}
}

func TestCreate_LockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), newFakeDirectory(), nil, busyLocker{}, nil, nil)

	_, err := m.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 1, Date: at(2025, time.June, 2, 0, 0), Slot: "09:00"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))
	if _, err := m.Cancel(ctx, 1); err != nil {
		t.Fatal(err)
	}

	all, _ := m.List(ctx, Filter{})
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Fatalf("List() = %+v", all)
	}

	byDoctor, _ := m.List(ctx, Filter{DoctorID: 2})
	if len(byDoctor) != 1 || byDoctor[0].ID != 2 {
		t.Errorf("doctor filter = %+v", byDoctor)
	}

	canceled, _ := m.List(ctx, Filter{Status: StatusCanceled})
	if len(canceled) != 1 || canceled[0].ID != 1 {
		t.Errorf("status filter = %+v", canceled)
	}
}

func TestIsSlotAvailable_UnknownLabel(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	if _, err := m.IsSlotAvailable(context.Background(), 1, at(2025, time.June, 2, 0, 0), "12:15", NoExclusion); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("got %v, want ErrInvalidSlot", err)
	}
}

func TestCreate_WaitsForFailedHolder(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	store := &blockingFailStore{
		MemoryStore: NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
		err:         boom,
	}
	m, _ := newTestManager(t, store)
	req := CreateRequest{DoctorID: 1, PatientID: 1, Date: at(2025, time.June, 3, 0, 0), Slot: "09:00"}

	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Create(ctx, req)
		firstErr <- err
	}()
	<-store.entered

	other := req
	other.PatientID = 2
	second := make(chan error, 1)
	go func() {
		_, err := m.Create(ctx, other)
		second <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(store.release)

	if err := <-firstErr; !errors.Is(err, boom) {
		t.Fatalf("first Create = %v, want %v", err, boom)
	}
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("second Create after holder failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second Create never returned")
	}
}

func TestSubscribe_SubscriberMayCallManager(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore(demoAppointments()...))

	var (
		mu        sync.Mutex
		versions  []uint64
		cancelErr error
	)
	m.Subscribe(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		first := len(versions) == 1
		mu.Unlock()
		if first {
			_, err := m.Cancel(ctx, 1)
			mu.Lock()
			cancelErr = err
			mu.Unlock()
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.Create(ctx, CreateRequest{DoctorID: 2, PatientID: 3, Date: at(2025, time.June, 2, 0, 0), Slot: "14:30"})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Create blocked by a subscriber calling Cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if cancelErr != nil {
		t.Fatalf("Cancel from subscriber: %v", cancelErr)
	}
	if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Fatalf("versions = %v, want [1 2]", versions)
	}
	got, err := m.Get(ctx, 1)
	if err != nil || got.Status != StatusCanceled {
		t.Fatalf("appointment 1 = %+v, %v; want canceled", got, err)
	}
}

func TestSubscribe_SharedStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	watcher, _ := newTestManager(t, store)
	writer, _ := newTestManager(t, store)

	var calls int
	cancel := watcher.Subscribe(func(Snapshot) { calls++ })

	if _, err := writer.Create(ctx, CreateRequest{DoctorID: 1, PatientID: 1, Date: at(2025, time.June, 3, 0, 0), Slot: "09:00"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if calls != 1 {
		t.Fatalf("watcher saw %d commits, want 1", calls)
	}

	cancel()
	if _, err := writer.Cancel(ctx, 1); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if calls != 1 {
		t.Fatalf("unsubscribed watcher still notified")
	}
}
