package patient

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemRepo is a thread-safe, in-memory Repository. It backs tests and local
// runs without a database; it does not satisfy the durability contract.
type MemRepo struct {
	mu       sync.RWMutex
	patients map[int64]*Patient
	results  map[int64][]LabResult
	nextID   int64
}

// NewMemRepo returns an empty in-memory Repository.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		patients: make(map[int64]*Patient),
		results:  make(map[int64][]LabResult),
	}
}

func (r *MemRepo) Upsert(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.patients[p.MRN]
	if !ok {
		cp := *p
		now := time.Now()
		cp.CreatedAt = now
		cp.UpdatedAt = now
		r.patients[p.MRN] = &cp
		return nil
	}

	if p.Name != nil {
		existing.Name = p.Name
	}
	if p.Age != nil {
		existing.Age = p.Age
	}
	if p.Sex != nil {
		existing.Sex = p.Sex
	}
	existing.AdmissionStatus = p.AdmissionStatus
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *MemRepo) SetAdmissionStatus(_ context.Context, mrn int64, status AdmissionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[mrn]
	if !ok {
		return ErrNotFound
	}
	p.AdmissionStatus = status
	p.UpdatedAt = time.Now()
	return nil
}

func (r *MemRepo) AppendLabResult(_ context.Context, mrn int64, testTime time.Time, value float64, prov Provenance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[mrn]; !ok {
		return ErrNotFound
	}
	r.nextID++
	r.results[mrn] = append(r.results[mrn], LabResult{
		ID:         r.nextID,
		MRN:        mrn,
		TestTime:   testTime,
		Value:      value,
		Provenance: prov,
	})
	return nil
}

func (r *MemRepo) GetByMRN(_ context.Context, mrn int64) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[mrn]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemRepo) LabHistory(_ context.Context, mrn int64) ([]LabResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.results[mrn]
	out := make([]LabResult, len(src))
	copy(out, src)

	// Most recent first; insertion order breaks timestamp ties.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TestTime.Equal(out[j].TestTime) {
			return out[i].TestTime.After(out[j].TestTime)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemRepo) Exists(_ context.Context, mrn int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.patients[mrn]
	return ok, nil
}
