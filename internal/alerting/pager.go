package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// pageTimeLayout is the timestamp format the paging channel expects.
const pageTimeLayout = "20060102150405"

var (
	// ErrRejected means the channel refused the page outright; retrying
	// the same request will not succeed.
	ErrRejected = errors.New("page rejected")

	// ErrUnreachable means the channel failed or timed out; the request
	// may succeed on retry.
	ErrUnreachable = errors.New("paging channel unreachable")
)

// Pager delivers one page request to the on-call clinician channel.
type Pager interface {
	Page(ctx context.Context, mrn int64, testTime time.Time) error
}

// HTTPPager posts "mrn,timestamp" as text/plain to the channel's /page
// endpoint with a per-call timeout.
type HTTPPager struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPager(baseURL string, timeout time.Duration) *HTTPPager {
	return &HTTPPager{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPager) Page(ctx context.Context, mrn int64, testTime time.Time) error {
	body := fmt.Sprintf("%d,%s", mrn, testTime.Format(pageTimeLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/page", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
}
