package records

import (
	"context"
	"errors"
	"testing"
)

func TestDemoDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDemoDirectory()

	doctors, _ := d.ListDoctors(ctx)
	if len(doctors) != 2 {
		t.Fatalf("got %d doctors, want 2", len(doctors))
	}
	specs := Specialties(doctors)
	if len(specs) != 2 || specs[0] != "Clínica Geral" || specs[1] != "Pediatria" {
		t.Errorf("Specialties = %v", specs)
	}

	peds := DoctorsBySpecialty(doctors, "Pediatria")
	if len(peds) != 1 || peds[0].ID != 2 {
		t.Errorf("DoctorsBySpecialty = %+v", peds)
	}

	patients, _ := d.ListPatients(ctx)
	if len(patients) != 3 {
		t.Fatalf("got %d patients, want 3", len(patients))
	}
	users, _ := d.ListUsers(ctx)
	if len(users) != 1 || users[0].Name != "Admin" {
		t.Errorf("users = %+v", users)
	}
}

func TestSearchPatients(t *testing.T) {
	patients, _ := NewDemoDirectory().ListPatients(context.Background())

	tests := []struct {
		term string
		want int
	}{
		{"", 3},
		{"  ", 3},
		{"maria", 1},
		{"MAR", 2},
		{"123.456", 1},
		{"987.654.321-00", 2},
		{"nobody", 0},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			if got := SearchPatients(patients, tt.term); len(got) != tt.want {
				t.Errorf("SearchPatients(%q) returned %d, want %d", tt.term, len(got), tt.want)
			}
		})
	}
}

func TestMemoryDirectory_AssignsIDs(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory()

	var changes []Change
	cancel := d.Subscribe(func(c Change) { changes = append(changes, c) })
	defer cancel()

	first, _ := d.AddPatient(ctx, Patient{Name: "A"})
	explicit, _ := d.AddPatient(ctx, Patient{ID: 10, Name: "B"})
	clash, _ := d.AddPatient(ctx, Patient{ID: 10, Name: "C"})

	if first.ID != 1 || explicit.ID != 10 || clash.ID != 11 {
		t.Fatalf("ids = %d, %d, %d; want 1, 10, 11", first.ID, explicit.ID, clash.ID)
	}
	if len(changes) != 3 || changes[2] != (Change{Kind: ChangePatient, ID: 11}) {
		t.Errorf("changes = %+v", changes)
	}

	doc, _ := d.AddDoctor(ctx, Doctor{Name: "D", Specialty: "Cardiologia"})
	if doc.ID != 1 {
		t.Errorf("doctor ids are counted separately, got %d", doc.ID)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	l := Lookup{Dir: NewDemoDirectory()}

	if ok, err := l.DoctorExists(ctx, 2); err != nil || !ok {
		t.Errorf("DoctorExists(2) = %v, %v", ok, err)
	}
	if ok, err := l.DoctorExists(ctx, 9); err != nil || ok {
		t.Errorf("DoctorExists(9) = %v, %v", ok, err)
	}
	if ok, err := l.PatientExists(ctx, 3); err != nil || !ok {
		t.Errorf("PatientExists(3) = %v, %v", ok, err)
	}

	_, err := l.Dir.GetPatient(ctx, 9)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPatient(9) = %v, want ErrNotFound", err)
	}
}

func TestMemoryIdentityStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdentityStore()

	if _, err := s.Load(ctx, "tok"); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("Load before Save = %v", err)
	}

	want := Identity{ID: 1, Name: "João Silva", Role: RolePatient}
	if err := s.Save(ctx, "tok", want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "tok")
	if err != nil || *got != want {
		t.Fatalf("Load = %+v, %v", got, err)
	}

	if err := s.Clear(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "tok"); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("Load after Clear = %v", err)
	}
}
