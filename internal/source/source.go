package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/metric"
)

// maxBodyBytes caps upstream response bodies
const maxBodyBytes = 1 << 20

var (
	// ErrNoFeeds is returned when a ThingSpeak channel has no feed entries
	ErrNoFeeds = errors.New("channel returned no feeds")

	// ErrUnexpectedPayload is returned when a response does not have the expected shape
	ErrUnexpectedPayload = errors.New("unexpected payload")
)

// StatusError reports a non-2xx upstream response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Device identifies the device an observation belongs to
type Device struct {
	Name     string
	Source   string
	Location string
	Token    string
}

// Observation is one adapter result: a flat raw metric map observed at one instant
type Observation struct {
	Device     Device
	ObservedAt time.Time
	Values     map[string]any
	Raw        json.RawMessage
}

// Adapter fetches observations for one device
type Adapter interface {
	Device() Device
	Fetch(ctx context.Context) ([]Observation, error)
}

// DeriveDoorStatus adds a door_status label next to a present mag_approach value
func DeriveDoorStatus(values map[string]any) {
	raw, ok := values[metric.KeyMagApproach]
	if !ok || raw == nil {
		return
	}

	v, _ := metric.Coerce(metric.KeyMagApproach, raw)
	if v.Bool {
		values[metric.KeyDoorStatus] = "closed"
	} else {
		values[metric.KeyDoorStatus] = "open"
	}
}

// getJSON performs a GET and returns the body of a 2xx response
func getJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, token included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("GET %s: %w", redactQuery(rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{URL: redactQuery(rawURL), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// redactQuery strips the query string, which carries access tokens
func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
