package records

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNoIdentity = errors.New("no authenticated identity")
)

type Role string

const (
	RolePatient      Role = "patient"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleReceptionist:
		return true
	}
	return false
}

type Doctor struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
	CRM       string `json:"crm"`
	CPF       string `json:"cpf"`
}

type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BirthDate time.Time `json:"birth_date"`
	CPF       string    `json:"cpf"`
	Sex       string    `json:"sex"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
}

// User is a clinic staff account (receptionists).
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identity is the signed-in principal kept by the session persistence store.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// ChangeKind names the collection a Change refers to.
type ChangeKind string

const (
	ChangeDoctor  ChangeKind = "doctor"
	ChangePatient ChangeKind = "patient"
	ChangeUser    ChangeKind = "user"
)

// Change is published to subscribers after a record is appended.
type Change struct {
	Kind ChangeKind
	ID   int64
}
