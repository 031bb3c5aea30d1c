package appointment

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_Apply(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(demoAppointments()...)

	var published []uint64
	cancel := s.Subscribe(func(snap Snapshot) { published = append(published, snap.Version) })
	defer cancel()

	snap, _ := s.Snapshot(ctx)
	if snap.Version != 0 || len(snap.Appointments) != 2 {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	id, _ := s.NextID(ctx)
	if id != 3 {
		t.Fatalf("NextID = %d, want 3", id)
	}

	when := at(2025, time.June, 1, 9, 0)
	next, err := s.Apply(ctx, snap.Version, Changeset{
		Updates: []StatusChange{{ID: 1, From: StatusScheduled, To: StatusCanceled}},
		Inserts: []Appointment{{ID: id, DoctorID: 1, PatientID: 1, ScheduledAt: at(2025, time.June, 3, 9, 0), Status: StatusScheduled}},
		At:      when,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.Version != 1 || len(next.Appointments) != 3 {
		t.Fatalf("snapshot after apply = %+v", next)
	}
	a, _ := next.Find(1)
	if a.Status != StatusCanceled || !a.UpdatedAt.Equal(when) {
		t.Errorf("updated appointment = %+v", a)
	}

	// The earlier snapshot is a copy and does not see the change.
	old, _ := snap.Find(1)
	if old.Status != StatusScheduled {
		t.Error("old snapshot was mutated")
	}

	if len(published) != 1 || published[0] != 1 {
		t.Errorf("published versions = %v", published)
	}
}

func TestMemoryStore_ApplyStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(demoAppointments()...)

	if _, err := s.Apply(ctx, 0, Changeset{Updates: []StatusChange{{ID: 1, From: StatusScheduled, To: StatusInProgress}}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	_, err := s.Apply(ctx, 0, Changeset{Updates: []StatusChange{{ID: 2, From: StatusScheduled, To: StatusCanceled}}})
	if !errors.Is(err, ErrStaleSnapshot) {
		t.Fatalf("old base version: got %v, want ErrStaleSnapshot", err)
	}

	_, err = s.Apply(ctx, 1, Changeset{Updates: []StatusChange{{ID: 1, From: StatusScheduled, To: StatusCanceled}}})
	if !errors.Is(err, ErrStaleSnapshot) {
		t.Fatalf("status mismatch: got %v, want ErrStaleSnapshot", err)
	}

	_, err = s.Apply(ctx, 1, Changeset{Inserts: []Appointment{{ID: 2}}})
	if err == nil {
		t.Fatal("duplicate id accepted")
	}

	snap, _ := s.Snapshot(ctx)
	if snap.Version != 1 {
		t.Errorf("failed applies moved version to %d", snap.Version)
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	calls := 0
	cancel := s.Subscribe(func(Snapshot) { calls++ })
	cancel()

	if _, err := s.Apply(ctx, 0, Changeset{Inserts: []Appointment{{ID: 1}}}); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("unsubscribed listener called %d times", calls)
	}
}
