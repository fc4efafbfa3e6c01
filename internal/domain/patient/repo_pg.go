package patient

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by PostgreSQL.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	return r.pool
}

const patientCols = `mrn, name, age, sex, admission_status, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.MRN, &p.Name, &p.Age, &p.Sex, &p.AdmissionStatus, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Upsert(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (mrn, name, age, sex, admission_status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mrn) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, patients.name),
			age = COALESCE(EXCLUDED.age, patients.age),
			sex = COALESCE(EXCLUDED.sex, patients.sex),
			admission_status = EXCLUDED.admission_status,
			updated_at = NOW()`,
		p.MRN, p.Name, p.Age, p.Sex, p.AdmissionStatus)
	return err
}

func (r *repoPG) SetAdmissionStatus(ctx context.Context, mrn int64, status AdmissionStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET admission_status = $2, updated_at = NOW()
		WHERE mrn = $1`, mrn, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AppendLabResult(ctx context.Context, mrn int64, testTime time.Time, value float64, prov Provenance) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_results (mrn, test_time, value, provenance)
		VALUES ($1, $2, $3, $4)`, mrn, testTime, value, prov)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503 = foreign_key_violation: the MRN has never been seen.
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *repoPG) GetByMRN(ctx context.Context, mrn int64) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE mrn = $1`, mrn))
}

func (r *repoPG) LabHistory(ctx context.Context, mrn int64) ([]LabResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, mrn, test_time, value, provenance FROM lab_results
		WHERE mrn = $1
		ORDER BY test_time DESC, id DESC`, mrn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LabResult
	for rows.Next() {
		var lr LabResult
		if err := rows.Scan(&lr.ID, &lr.MRN, &lr.TestTime, &lr.Value, &lr.Provenance); err != nil {
			return nil, err
		}
		results = append(results, lr)
	}
	return results, rows.Err()
}

func (r *repoPG) Exists(ctx context.Context, mrn int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE mrn = $1)`, mrn).Scan(&exists)
	return exists, err
}
