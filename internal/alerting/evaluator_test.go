package alerting

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/platform/metrics"
)

type stubClassifier struct {
	positive bool
	err      error
	mu       sync.Mutex
	vectors  []FeatureVector
}

func (c *stubClassifier) Score(_ context.Context, vec FeatureVector) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors = append(c.vectors, vec)
	return c.positive, c.err
}

type countingPager struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPager) Page(_ context.Context, _ int64, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func (p *countingPager) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func seededRepo(t *testing.T) *patient.MemRepo {
	t.Helper()
	ctx := context.Background()
	repo := patient.NewMemRepo()
	age := 26
	sex := "F"
	err := repo.Upsert(ctx, &patient.Patient{
		MRN:             42,
		Age:             &age,
		Sex:             &sex,
		AdmissionStatus: patient.StatusAdmitted,
	})
	if err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	testTime := time.Date(2024, 3, 31, 22, 30, 0, 0, time.UTC)
	if err := repo.AppendLabResult(ctx, 42, testTime, 133.37, patient.ProvenanceLive); err != nil {
		t.Fatalf("seed result: %v", err)
	}
	return repo
}

func runEvaluation(t *testing.T, repo patient.Repository, classifier Classifier, pager Pager) {
	t.Helper()
	deliverer := NewDeliverer(pager, newFakeClock(), 500*time.Millisecond, zerolog.Nop(), metrics.New())
	e := NewEvaluator(repo, classifier, deliverer, nil, 3*time.Second, zerolog.Nop(), metrics.New())
	e.Submit(42, time.Date(2024, 3, 31, 22, 30, 0, 0, time.UTC), 133.37, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEvaluator_PositiveDecisionPagesOnce(t *testing.T) {
	pager := &countingPager{}
	classifier := &stubClassifier{positive: true}
	runEvaluation(t, seededRepo(t), classifier, pager)

	if pager.count() != 1 {
		t.Errorf("expected exactly 1 page attempt, got %d", pager.count())
	}
	if len(classifier.vectors) != 1 {
		t.Fatalf("expected 1 classifier call, got %d", len(classifier.vectors))
	}
	if classifier.vectors[0].CreatinineLatest != 133.37 {
		t.Errorf("unexpected latest value in vector: %v", classifier.vectors[0].CreatinineLatest)
	}
	if classifier.vectors[0].Age != 26 {
		t.Errorf("unexpected age in vector: %v", classifier.vectors[0].Age)
	}
}

func TestEvaluator_NegativeDecisionDoesNotPage(t *testing.T) {
	pager := &countingPager{}
	runEvaluation(t, seededRepo(t), &stubClassifier{positive: false}, pager)

	if pager.count() != 0 {
		t.Errorf("negative decision must not page, got %d attempts", pager.count())
	}
}

func TestEvaluator_ClassifierErrorIsNoAlert(t *testing.T) {
	pager := &countingPager{}
	runEvaluation(t, seededRepo(t), &stubClassifier{positive: true, err: errors.New("scorer down")}, pager)

	if pager.count() != 0 {
		t.Errorf("classifier error must be treated as no-alert, got %d attempts", pager.count())
	}
}

func TestEvaluator_RecordsAcknowledgedPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paged.csv")
	recorder, err := OpenPageLog(path)
	if err != nil {
		t.Fatalf("open page log: %v", err)
	}
	defer recorder.Close()

	deliverer := NewDeliverer(&countingPager{}, newFakeClock(), 500*time.Millisecond, zerolog.Nop(), metrics.New())
	e := NewEvaluator(seededRepo(t), &stubClassifier{positive: true}, deliverer, recorder, 3*time.Second, zerolog.Nop(), metrics.New())
	testTime := time.Date(2024, 3, 31, 22, 30, 0, 0, time.UTC)
	e.Submit(42, testTime, 133.37, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read page log: %v", err)
	}
	if got, want := strings.TrimSpace(string(data)), "42,20240331223000"; got != want {
		t.Errorf("page log line: expected %q, got %q", want, got)
	}
}

func TestHTTPPager_StatusMapping(t *testing.T) {
	var gotBody string
	var gotPath string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotPath = r.URL.Path
		w.WriteHeader(status)
	}))
	defer srv.Close()

	pager := NewHTTPPager(srv.URL, time.Second)
	testTime := time.Date(2024, 3, 31, 22, 30, 0, 0, time.UTC)

	if err := pager.Page(context.Background(), 42, testTime); err != nil {
		t.Fatalf("expected ack on 200, got %v", err)
	}
	if gotPath != "/page" {
		t.Errorf("expected POST to /page, got %q", gotPath)
	}
	if gotBody != "42,20240331223000" {
		t.Errorf("unexpected body %q", gotBody)
	}

	status = http.StatusBadRequest
	if err := pager.Page(context.Background(), 42, testTime); !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected on 400, got %v", err)
	}

	status = http.StatusInternalServerError
	if err := pager.Page(context.Background(), 42, testTime); !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable on 500, got %v", err)
	}
}

func TestHTTPClassifier_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"positive":true}`)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second)
	positive, err := c.Score(context.Background(), FeatureVector{Age: 26, Sex: 1, CreatinineLatest: 133.37})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !positive {
		t.Error("expected positive decision")
	}
}

func TestHTTPClassifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second)
	if _, err := c.Score(context.Background(), FeatureVector{}); err == nil {
		t.Error("expected error on non-200 status")
	}
}
