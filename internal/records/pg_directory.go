package records

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Change)
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool, subs: make(map[int]func(Change))}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.Specialty, &d.CRM, &d.CPF)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.BirthDate, &p.CPF, &p.Sex, &p.Email, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Doctors

func (r *PgDirectory) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, phone, specialty, crm, cpf
		FROM doctors
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return collect(rows, scanDoctor)
}

func (r *PgDirectory) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, specialty, crm, cpf
		FROM doctors
		WHERE id = $1
	`, id)
	d, err := scanDoctor(row)
	if err != nil {
		return nil, fmt.Errorf("doctor %d: %w", id, err)
	}
	return d, nil
}

func (r *PgDirectory) AddDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (name, email, phone, specialty, crm, cpf)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, email, phone, specialty, crm, cpf
	`, d.Name, d.Email, d.Phone, d.Specialty, d.CRM, d.CPF)
	created, err := scanDoctor(row)
	if err != nil {
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	r.publish(Change{Kind: ChangeDoctor, ID: created.ID})
	return created, nil
}

// Patients

func (r *PgDirectory) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, birth_date, cpf, sex, email, phone
		FROM patients
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return collect(rows, scanPatient)
}

func (r *PgDirectory) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, birth_date, cpf, sex, email, phone
		FROM patients
		WHERE id = $1
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("patient %d: %w", id, err)
	}
	return p, nil
}

func (r *PgDirectory) AddPatient(ctx context.Context, p Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (name, birth_date, cpf, sex, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, birth_date, cpf, sex, email, phone
	`, p.Name, p.BirthDate, p.CPF, p.Sex, p.Email, p.Phone)
	created, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	r.publish(Change{Kind: ChangePatient, ID: created.ID})
	return created, nil
}

// Users

func (r *PgDirectory) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return collect(rows, scanUser)
}

func (r *PgDirectory) AddUser(ctx context.Context, u User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email)
		VALUES ($1, $2)
		RETURNING id, name, email
	`, u.Name, u.Email)
	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	r.publish(Change{Kind: ChangeUser, ID: created.ID})
	return created, nil
}

// Subscribe only sees records appended through this instance.
func (r *PgDirectory) Subscribe(fn func(Change)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.subSeq++
	id := r.subSeq
	r.subs[id] = fn

	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *PgDirectory) publish(c Change) {
	r.subMu.Lock()
	fns := make([]func(Change), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
