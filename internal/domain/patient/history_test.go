package patient

import (
	"context"
	"strings"
	"testing"
)

const historyCSV = `mrn,creatinine_date_0,creatinine_result_0,creatinine_date_1,creatinine_result_1
173305613,2024-01-01 06:12:00,68.58,2024-01-09 11:45:00,70.58
640400,2024-01-05 09:25:00,105.50,,
`

func TestLoadHistory(t *testing.T) {
	repo := NewMemRepo()
	ctx := context.Background()

	patients, results, err := LoadHistory(ctx, strings.NewReader(historyCSV), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patients != 2 {
		t.Errorf("expected 2 patients, got %d", patients)
	}
	if results != 3 {
		t.Errorf("expected 3 results, got %d", results)
	}

	history, err := repo.LabHistory(ctx, 173305613)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 results for 173305613, got %d", len(history))
	}

	// Most recent first.
	if history[0].Value != 70.58 {
		t.Errorf("expected most recent value 70.58, got %v", history[0].Value)
	}
	for _, lr := range history {
		if lr.Provenance != ProvenanceHistorical {
			t.Errorf("expected historical provenance, got %q", lr.Provenance)
		}
	}

	p, err := repo.GetByMRN(ctx, 640400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AdmissionStatus != StatusAdmitted {
		t.Errorf("expected default status admitted, got %q", p.AdmissionStatus)
	}
	if p.Name != nil {
		t.Errorf("expected nil name on minimal record, got %q", *p.Name)
	}
}

func TestLoadHistory_Empty(t *testing.T) {
	repo := NewMemRepo()

	patients, results, err := LoadHistory(context.Background(), strings.NewReader(""), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patients != 0 || results != 0 {
		t.Errorf("expected nothing loaded, got %d patients / %d results", patients, results)
	}
}

func TestLoadHistory_BadRows(t *testing.T) {
	cases := []struct {
		name string
		csv  string
	}{
		{"bad mrn", "mrn,d0,r0\nnot-a-number,2024-01-01 06:12:00,68.58\n"},
		{"bad timestamp", "mrn,d0,r0\n42,yesterday,68.58\n"},
		{"bad value", "mrn,d0,r0\n42,2024-01-01 06:12:00,high\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewMemRepo()
			if _, _, err := LoadHistory(context.Background(), strings.NewReader(tc.csv), repo); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
