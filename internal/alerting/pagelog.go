package alerting

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// PageLog appends one "mrn,timestamp" line per acknowledged page to a
// file, giving operators a durable record of who was paged and when.
type PageLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenPageLog opens the log for appending, creating it if needed.
func OpenPageLog(path string) (*PageLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open page log: %w", err)
	}
	return &PageLog{f: f}, nil
}

func (l *PageLog) Record(mrn int64, testTime time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.f, "%d,%s\n", mrn, testTime.Format(pageTimeLayout)); err != nil {
		return fmt.Errorf("append page log: %w", err)
	}
	return nil
}

func (l *PageLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
