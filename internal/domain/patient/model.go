package patient

import (
	"time"
)

// AdmissionStatus is the patient's admission state.
type AdmissionStatus string

const (
	StatusAdmitted   AdmissionStatus = "admitted"
	StatusDischarged AdmissionStatus = "discharged"
)

// Provenance distinguishes preloaded historical lab results from
// live-ingested ones.
type Provenance string

const (
	ProvenanceHistorical Provenance = "historical"
	ProvenanceLive       Provenance = "live"
)

// Patient maps to the patients table. The MRN is the identity and is never
// updated; demographic fields are nullable and only overwritten when a later
// event carries them.
type Patient struct {
	MRN             int64           `db:"mrn" json:"mrn"`
	Name            *string         `db:"name" json:"name,omitempty"`
	Age             *int            `db:"age" json:"age,omitempty"`
	Sex             *string         `db:"sex" json:"sex,omitempty"` // "M" or "F"
	AdmissionStatus AdmissionStatus `db:"admission_status" json:"admission_status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// LabResult maps to the lab_results table. Rows are immutable once stored.
type LabResult struct {
	ID         int64      `db:"id" json:"id"`
	MRN        int64      `db:"mrn" json:"mrn"`
	TestTime   time.Time  `db:"test_time" json:"test_time"`
	Value      float64    `db:"value" json:"value"`
	Provenance Provenance `db:"provenance" json:"provenance"`
}
