package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Directory is the record store for people the scheduler refers to.
type Directory interface {
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
	AddDoctor(ctx context.Context, d Doctor) (*Doctor, error)

	ListPatients(ctx context.Context) ([]Patient, error)
	GetPatient(ctx context.Context, id int64) (*Patient, error)
	AddPatient(ctx context.Context, p Patient) (*Patient, error)

	ListUsers(ctx context.Context) ([]User, error)
	AddUser(ctx context.Context, u User) (*User, error)

	Subscribe(fn func(Change)) (cancel func())
}

// Specialties returns the distinct specialties in first-seen order.
func Specialties(doctors []Doctor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range doctors {
		if d.Specialty == "" || seen[d.Specialty] {
			continue
		}
		seen[d.Specialty] = true
		out = append(out, d.Specialty)
	}
	return out
}

func DoctorsBySpecialty(doctors []Doctor, specialty string) []Doctor {
	var out []Doctor
	for _, d := range doctors {
		if d.Specialty == specialty {
			out = append(out, d)
		}
	}
	return out
}

// SearchPatients matches name case-insensitively or CPF as a substring.
// An empty term returns everyone.
func SearchPatients(patients []Patient, term string) []Patient {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return patients
	}
	var out []Patient
	for _, p := range patients {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(p.CPF, term) {
			out = append(out, p)
		}
	}
	return out
}

// Lookup adapts a Directory to the existence checks the appointment
// manager needs.
type Lookup struct {
	Dir Directory
}

func (l Lookup) DoctorExists(ctx context.Context, id int64) (bool, error) {
	_, err := l.Dir.GetDoctor(ctx, id)
	return exists(err)
}

func (l Lookup) PatientExists(ctx context.Context, id int64) (bool, error) {
	_, err := l.Dir.GetPatient(ctx, id)
	return exists(err)
}

func exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// MemoryDirectory is an in-process Directory. IDs are assigned from
// per-collection counters and never reused.
type MemoryDirectory struct {
	mu       sync.RWMutex
	doctors  []Doctor
	patients []Patient
	users    []User
	lastID   map[ChangeKind]int64

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Change)
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		lastID: make(map[ChangeKind]int64),
		subs:   make(map[int]func(Change)),
	}
}

func (d *MemoryDirectory) ListDoctors(_ context.Context) ([]Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Doctor, len(d.doctors))
	copy(out, d.doctors)
	return out, nil
}

func (d *MemoryDirectory) GetDoctor(_ context.Context, id int64) (*Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, doc := range d.doctors {
		if doc.ID == id {
			found := doc
			return &found, nil
		}
	}
	return nil, fmt.Errorf("doctor %d: %w", id, ErrNotFound)
}

// AddDoctor keeps a caller-supplied ID when it is unused, otherwise assigns one.
func (d *MemoryDirectory) AddDoctor(_ context.Context, doc Doctor) (*Doctor, error) {
	d.mu.Lock()
	doc.ID = d.assignID(ChangeDoctor, doc.ID, func(id int64) bool {
		for _, x := range d.doctors {
			if x.ID == id {
				return true
			}
		}
		return false
	})
	d.doctors = append(d.doctors, doc)
	d.mu.Unlock()

	d.publish(Change{Kind: ChangeDoctor, ID: doc.ID})
	return &doc, nil
}

func (d *MemoryDirectory) ListPatients(_ context.Context) ([]Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Patient, len(d.patients))
	copy(out, d.patients)
	return out, nil
}

func (d *MemoryDirectory) GetPatient(_ context.Context, id int64) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.patients {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("patient %d: %w", id, ErrNotFound)
}

func (d *MemoryDirectory) AddPatient(_ context.Context, p Patient) (*Patient, error) {
	d.mu.Lock()
	p.ID = d.assignID(ChangePatient, p.ID, func(id int64) bool {
		for _, x := range d.patients {
			if x.ID == id {
				return true
			}
		}
		return false
	})
	d.patients = append(d.patients, p)
	d.mu.Unlock()

	d.publish(Change{Kind: ChangePatient, ID: p.ID})
	return &p, nil
}

func (d *MemoryDirectory) ListUsers(_ context.Context) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, len(d.users))
	copy(out, d.users)
	return out, nil
}

func (d *MemoryDirectory) AddUser(_ context.Context, u User) (*User, error) {
	d.mu.Lock()
	u.ID = d.assignID(ChangeUser, u.ID, func(id int64) bool {
		for _, x := range d.users {
			if x.ID == id {
				return true
			}
		}
		return false
	})
	d.users = append(d.users, u)
	d.mu.Unlock()

	d.publish(Change{Kind: ChangeUser, ID: u.ID})
	return &u, nil
}

// assignID must be called with d.mu held.
func (d *MemoryDirectory) assignID(kind ChangeKind, want int64, taken func(int64) bool) int64 {
	if want > 0 && !taken(want) {
		if want > d.lastID[kind] {
			d.lastID[kind] = want
		}
		return want
	}
	d.lastID[kind]++
	return d.lastID[kind]
}

func (d *MemoryDirectory) Subscribe(fn func(Change)) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.subSeq++
	id := d.subSeq
	d.subs[id] = fn

	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		delete(d.subs, id)
	}
}

func (d *MemoryDirectory) publish(c Change) {
	d.subMu.Lock()
	fns := make([]func(Change), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
