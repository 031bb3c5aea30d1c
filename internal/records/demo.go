package records

import (
	"context"
	"time"
)

// NewDemoDirectory returns a MemoryDirectory holding the clinic's demo
// doctors, patients and front-desk user.
func NewDemoDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	ctx := context.Background()

	for _, doc := range []Doctor{
		{ID: 1, Name: "Dr. Carlos Pereira", Email: "doctor@example.com", Phone: "(11) 93456-7890", Specialty: "Clínica Geral", CRM: "SP12345", CPF: "111.222.333-44"},
		{ID: 2, Name: "Dra. Ana Costa", Email: "ana.costa@clinica.com", Phone: "(21) 94567-1234", Specialty: "Pediatria", CRM: "RJ67890", CPF: "555.666.777-88"},
	} {
		_, _ = d.AddDoctor(ctx, doc)
	}

	for _, p := range []Patient{
		{ID: 1, Name: "João Silva", BirthDate: time.Date(1985, 6, 15, 0, 0, 0, 0, time.UTC), CPF: "123.456.789-00", Sex: "Masculino", Email: "joao.silva@example.com", Phone: "(11) 91234-5678"},
		{ID: 2, Name: "Maria Oliveira", BirthDate: time.Date(1992, 11, 30, 0, 0, 0, 0, time.UTC), CPF: "987.654.321-00", Sex: "Feminino", Email: "maria.oliveira@example.com", Phone: "(21) 99876-5432"},
		{ID: 3, Name: "Mario Netto", BirthDate: time.Date(1992, 11, 30, 0, 0, 0, 0, time.UTC), CPF: "987.654.321-00", Sex: "Masculino", Email: "mario@example.com", Phone: "(21) 99876-5432"},
	} {
		_, _ = d.AddPatient(ctx, p)
	}

	_, _ = d.AddUser(ctx, User{ID: 1, Name: "Admin", Email: "admin@clinica.com"})

	return d
}
