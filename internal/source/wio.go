package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WioConfig configures a Wio Link board adapter
type WioConfig struct {
	Device  Device
	BaseURL string
	// Sensors maps metric key to the Grove module path under the node API
	Sensors map[string]string
}

// WioAdapter polls one Wio Link board, one HTTP call per metric
type WioAdapter struct {
	cfg    WioConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewWioAdapter creates a Wio Link adapter
func NewWioAdapter(cfg WioConfig, client *http.Client, logger *zap.Logger) *WioAdapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &WioAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("device", cfg.Device.Name)),
		now:    time.Now,
	}
}

// SetClock overrides the adapter clock
func (a *WioAdapter) SetClock(now func() time.Time) {
	a.now = now
}

// Device returns the board the adapter polls
func (a *WioAdapter) Device() Device {
	return a.cfg.Device
}

// Fetch reads every configured sensor. A failing sensor is logged and left
// out of the observation. When ctx runs out of time the sensors read so far
// are returned; cancellation, or a deadline before any sensor was read, fails
// the whole fetch.
func (a *WioAdapter) Fetch(ctx context.Context) ([]Observation, error) {
	keys := make([]string, 0, len(a.cfg.Sensors))
	for k := range a.cfg.Sensors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]any, len(keys)+1)
	raw := make(map[string]json.RawMessage, len(keys))

	for i, key := range keys {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			a.logger.Warn("device deadline reached, keeping sensors read so far",
				zap.Int("read", len(values)),
				zap.Strings("skipped", keys[i:]),
			)
			break
		}

		value, body, err := a.fetchMetric(ctx, a.cfg.Sensors[key])
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			a.logger.Warn("failed to read sensor",
				zap.String("metric", key),
				zap.Error(err),
			)
			continue
		}

		values[key] = value
		raw[key] = body
	}

	if len(values) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	DeriveDoorStatus(values)

	rawPayload, err := json.Marshal(raw)
	if err != nil {
		a.logger.Warn("failed to encode raw payload", zap.Error(err))
		rawPayload = nil
	}

	return []Observation{{
		Device:     a.cfg.Device,
		ObservedAt: a.now().UTC(),
		Values:     values,
		Raw:        rawPayload,
	}}, nil
}

// fetchMetric reads a single-key JSON object such as {"temperature": 23.5}
func (a *WioAdapter) fetchMetric(ctx context.Context, path string) (any, json.RawMessage, error) {
	q := url.Values{}
	q.Set("access_token", a.cfg.Device.Token)

	body, err := getJSON(ctx, a.client, a.cfg.BaseURL+path+"?"+q.Encode())
	if err != nil {
		return nil, nil, err
	}

	if !json.Valid(body) {
		return nil, nil, fmt.Errorf("%w: body is not a single JSON value", ErrUnexpectedPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	if len(payload) != 1 {
		return nil, nil, fmt.Errorf("%w: expected one key, got %d", ErrUnexpectedPayload, len(payload))
	}

	for _, v := range payload {
		return v, json.RawMessage(body), nil
	}
	return nil, nil, ErrUnexpectedPayload
}

var _ Adapter = (*WioAdapter)(nil)
