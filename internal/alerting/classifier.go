package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Classifier is the external risk scorer. Score returns true for a
// positive AKI risk decision. Errors are non-fatal to the caller and must
// be treated as no-alert.
type Classifier interface {
	Score(ctx context.Context, vec FeatureVector) (bool, error)
}

// HTTPClassifier posts the feature vector as JSON to a scoring service.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier builds a classifier against the given scoring URL with
// a per-call timeout.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreResponse struct {
	Positive bool `json:"positive"`
}

func (c *HTTPClassifier) Score(ctx context.Context, vec FeatureVector) (bool, error) {
	body, err := json.Marshal(vec)
	if err != nil {
		return false, fmt.Errorf("encode feature vector: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("score request: unexpected status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode score response: %w", err)
	}
	return out.Positive, nil
}
