package appointment

import (
	"context"
	"time"
)

// Snapshot is a consistent, versioned copy of the appointment collection.
type Snapshot struct {
	Version      uint64
	Appointments []Appointment
}

// Find returns the appointment with the given id.
func (s Snapshot) Find(id int64) (Appointment, bool) {
	for _, a := range s.Appointments {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

// StatusChange moves one appointment from a status to another.
type StatusChange struct {
	ID   int64
	From Status
	To   Status
}

// Changeset is applied all-or-nothing by Store.Apply.
type Changeset struct {
	Inserts []Appointment
	Updates []StatusChange
	At      time.Time
}

// Store owns the appointment collection. Only Manager calls Apply.
type Store interface {
	Snapshot(ctx context.Context) (Snapshot, error)

	// Apply commits cs if the collection is still at baseVersion and
	// returns the new snapshot; otherwise it returns ErrStaleSnapshot and
	// changes nothing.
	Apply(ctx context.Context, baseVersion uint64, cs Changeset) (Snapshot, error)

	// NextID hands out identifiers that are never reused.
	NextID(ctx context.Context) (int64, error)

	// Subscribe registers fn to receive every snapshot produced by Apply.
	Subscribe(fn func(Snapshot)) (cancel func())
}

// EventSink records lifecycle events.
type EventSink interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory resolves the doctors and patients an appointment refers to.
type Directory interface {
	DoctorExists(ctx context.Context, id int64) (bool, error)
	PatientExists(ctx context.Context, id int64) (bool, error)
}
