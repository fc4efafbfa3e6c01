package patient

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// historyTimeLayouts are the timestamp formats accepted in the historical
// results export.
var historyTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadHistory reads a historical creatinine export and appends every result
// with provenance=historical. The expected layout is one row per patient:
// a header row, then `mrn,time1,value1,time2,value2,...` with trailing empty
// cells allowed. A minimal patient record is created for each MRN so the
// rows are not orphaned.
//
// Returns the number of patients touched and results appended.
func LoadHistory(ctx context.Context, r io.Reader, repo Repository) (patients, results int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // rows have a variable number of columns

	// Skip header row.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read history header: %w", err)
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return patients, results, fmt.Errorf("read history line %d: %w", line, err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}

		mrn, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return patients, results, fmt.Errorf("history line %d: bad mrn %q: %w", line, row[0], err)
		}

		if err := repo.Upsert(ctx, &Patient{MRN: mrn, AdmissionStatus: StatusAdmitted}); err != nil {
			return patients, results, fmt.Errorf("history line %d: upsert patient %d: %w", line, mrn, err)
		}
		patients++

		for col := 1; col < len(row); col += 2 {
			if row[col] == "" {
				break
			}
			if col+1 >= len(row) {
				return patients, results, fmt.Errorf("history line %d: time without value", line)
			}

			testTime, err := parseHistoryTime(row[col])
			if err != nil {
				return patients, results, fmt.Errorf("history line %d: %w", line, err)
			}
			value, err := strconv.ParseFloat(row[col+1], 64)
			if err != nil {
				return patients, results, fmt.Errorf("history line %d: bad value %q: %w", line, row[col+1], err)
			}

			if err := repo.AppendLabResult(ctx, mrn, testTime, value, ProvenanceHistorical); err != nil {
				return patients, results, fmt.Errorf("history line %d: append result: %w", line, err)
			}
			results++
		}
	}

	return patients, results, nil
}

func parseHistoryTime(s string) (time.Time, error) {
	for _, layout := range historyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}
