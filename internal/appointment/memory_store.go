package appointment

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the collection in process. It is the default store when
// no database is configured.
type MemoryStore struct {
	mu           sync.Mutex
	version      uint64
	lastID       int64
	appointments []Appointment

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Snapshot)
}

// NewMemoryStore seeds the store with existing appointments. The ID counter
// starts above the largest seeded ID.
func NewMemoryStore(seed ...Appointment) *MemoryStore {
	s := &MemoryStore{subs: make(map[int]func(Snapshot))}
	for _, a := range seed {
		s.appointments = append(s.appointments, a)
		if a.ID > s.lastID {
			s.lastID = a.ID
		}
	}
	return s
}

func (s *MemoryStore) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *MemoryStore) snapshotLocked() Snapshot {
	cp := make([]Appointment, len(s.appointments))
	copy(cp, s.appointments)
	return Snapshot{Version: s.version, Appointments: cp}
}

func (s *MemoryStore) Apply(_ context.Context, baseVersion uint64, cs Changeset) (Snapshot, error) {
	s.mu.Lock()

	if baseVersion != s.version {
		s.mu.Unlock()
		return Snapshot{}, ErrStaleSnapshot
	}

	next := make([]Appointment, len(s.appointments), len(s.appointments)+len(cs.Inserts))
	copy(next, s.appointments)

	for _, u := range cs.Updates {
		i := indexOf(next, u.ID)
		if i < 0 {
			s.mu.Unlock()
			return Snapshot{}, fmt.Errorf("update %d: %w", u.ID, ErrAppointmentNotFound)
		}
		if next[i].Status != u.From {
			s.mu.Unlock()
			return Snapshot{}, ErrStaleSnapshot
		}
		next[i].Status = u.To
		next[i].UpdatedAt = cs.At
	}

	for _, a := range cs.Inserts {
		if indexOf(next, a.ID) >= 0 {
			s.mu.Unlock()
			return Snapshot{}, fmt.Errorf("insert %d: duplicate appointment id", a.ID)
		}
		next = append(next, a)
	}

	s.appointments = next
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return snap, nil
}

func (s *MemoryStore) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

func (s *MemoryStore) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *MemoryStore) publish(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func indexOf(appts []Appointment, id int64) int {
	for i := range appts {
		if appts[i].ID == id {
			return i
		}
	}
	return -1
}
