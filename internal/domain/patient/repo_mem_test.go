package patient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestMemRepo_UpsertPreservesAbsentFields(t *testing.T) {
	repo := NewMemRepo()
	ctx := context.Background()

	err := repo.Upsert(ctx, &Patient{
		MRN:             42,
		Name:            strPtr("HAWWA HOOPER"),
		Age:             intPtr(26),
		Sex:             strPtr("F"),
		AdmissionStatus: StatusAdmitted,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second upsert without demographics must not erase them.
	if err := repo.Upsert(ctx, &Patient{MRN: 42, AdmissionStatus: StatusAdmitted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := repo.GetByMRN(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name == nil || *p.Name != "HAWWA HOOPER" {
		t.Errorf("expected name preserved, got %v", p.Name)
	}
	if p.Age == nil || *p.Age != 26 {
		t.Errorf("expected age preserved, got %v", p.Age)
	}
	if p.Sex == nil || *p.Sex != "F" {
		t.Errorf("expected sex preserved, got %v", p.Sex)
	}
}

func TestMemRepo_UpsertLastWriteWins(t *testing.T) {
	repo := NewMemRepo()
	ctx := context.Background()

	repo.Upsert(ctx, &Patient{MRN: 42, Name: strPtr("FIRST NAME"), AdmissionStatus: StatusAdmitted})
	repo.Upsert(ctx, &Patient{MRN: 42, Name: strPtr("SECOND NAME"), AdmissionStatus: StatusAdmitted})

	p, err := repo.GetByMRN(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name == nil || *p.Name != "SECOND NAME" {
		t.Errorf("expected last write to win, got %v", p.Name)
	}
}

func TestMemRepo_SetAdmissionStatus(t *testing.T) {
	repo := NewMemRepo()
	ctx := context.Background()

	if err := repo.SetAdmissionStatus(ctx, 42, StatusDischarged); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unseen MRN, got %v", err)
	}

	repo.Upsert(ctx, &Patient{MRN: 42, AdmissionStatus: StatusAdmitted})
	if err := repo.SetAdmissionStatus(ctx, 42, StatusDischarged); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, _ := repo.GetByMRN(ctx, 42)
	if p.AdmissionStatus != StatusDischarged {
		t.Errorf("expected discharged, got %q", p.AdmissionStatus)
	}
}

func TestMemRepo_AppendLabResult_UnknownPatient(t *testing.T) {
	repo := NewMemRepo()

	err := repo.AppendLabResult(context.Background(), 42, time.Now(), 100.0, ProvenanceLive)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemRepo_LabHistoryOrdering(t *testing.T) {
	repo := NewMemRepo()
	ctx := context.Background()
	repo.Upsert(ctx, &Patient{MRN: 42, AdmissionStatus: StatusAdmitted})

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Appended out of chronological order on purpose: the store keeps
	// arrival order and the query sorts by test_time.
	repo.AppendLabResult(ctx, 42, base.Add(2*time.Hour), 90, ProvenanceLive)
	repo.AppendLabResult(ctx, 42, base, 70, ProvenanceHistorical)
	repo.AppendLabResult(ctx, 42, base.Add(4*time.Hour), 110, ProvenanceLive)

	history, err := repo.LabHistory(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 results, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].TestTime.After(history[i-1].TestTime) {
			t.Errorf("history not in descending test_time order at %d", i)
		}
	}
	if history[0].Value != 110 {
		t.Errorf("expected most recent value 110, got %v", history[0].Value)
	}

	// Restartable: a second query returns the same snapshot.
	again, err := repo.LabHistory(ctx, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != len(history) {
		t.Errorf("expected re-query to return same results, got %d vs %d", len(again), len(history))
	}
}

func TestMemRepo_GetByMRN_NotFound(t *testing.T) {
	repo := NewMemRepo()

	_, err := repo.GetByMRN(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
