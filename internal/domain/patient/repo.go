package patient

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store operations referencing an MRN that has
// never been seen.
var ErrNotFound = errors.New("patient not found")

// Repository is the durable patient store. Once an insert or append call
// returns nil the record survives process restart. The store does not
// arbitrate concurrent writers; the sequencer is the single logical writer
// per MRN.
type Repository interface {
	// Upsert inserts or updates a patient by MRN. Nil demographic fields
	// leave any existing value untouched on update and default to NULL on
	// insert. The admission status is always taken from p.
	Upsert(ctx context.Context, p *Patient) error

	// SetAdmissionStatus updates only the admission status. Returns
	// ErrNotFound when the MRN has never been seen.
	SetAdmissionStatus(ctx context.Context, mrn int64, status AdmissionStatus) error

	// AppendLabResult durably appends one result. Returns ErrNotFound when
	// the MRN has never been seen.
	AppendLabResult(ctx context.Context, mrn int64, testTime time.Time, value float64, prov Provenance) error

	// GetByMRN returns the patient record or ErrNotFound.
	GetByMRN(ctx context.Context, mrn int64) (*Patient, error)

	// LabHistory returns the patient's full result history, most recent
	// test_time first. The slice is a fresh snapshot on every call.
	LabHistory(ctx context.Context, mrn int64) ([]LabResult, error)

	// Exists reports whether the MRN has been seen.
	Exists(ctx context.Context, mrn int64) (bool, error)
}
