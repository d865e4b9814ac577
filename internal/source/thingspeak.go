package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LEE-CHIEN-AN/wiolink-uploader/internal/metric"
	"github.com/LEE-CHIEN-AN/wiolink-uploader/tools/timeparser"
	"go.uber.org/zap"
)

// ThingSpeakConfig configures a ThingSpeak channel adapter.
//
// With a zero Window only the latest Results entries are read. With Window
// set, entries older than now-Window are dropped and, when RequireTrue names
// a metric, only entries where that metric is true are kept. IncludeLatest
// keeps the newest entry regardless of those filters.
type ThingSpeakConfig struct {
	Device    Device
	BaseURL   string
	ChannelID string
	ReadKey   string
	// Fields maps feed field (field1..field8) to metric key
	Fields        map[string]string
	Results       int
	Window        time.Duration
	RequireTrue   string
	IncludeLatest bool
}

// ThingSpeakAdapter reads the feed of one ThingSpeak channel
type ThingSpeakAdapter struct {
	cfg    ThingSpeakConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

type feedsResponse struct {
	Feeds []json.RawMessage `json:"feeds"`
}

// NewThingSpeakAdapter creates a ThingSpeak adapter
func NewThingSpeakAdapter(cfg ThingSpeakConfig, client *http.Client, logger *zap.Logger) *ThingSpeakAdapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Results <= 0 {
		cfg.Results = 1
	}
	return &ThingSpeakAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("device", cfg.Device.Name)),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for the backfill window
func (a *ThingSpeakAdapter) SetClock(now func() time.Time) {
	a.now = now
}

// Device returns the channel's device
func (a *ThingSpeakAdapter) Device() Device {
	return a.cfg.Device
}

// Fetch reads the channel feed. Transport, status and decoding errors fail the
// whole fetch; entries with an unparseable created_at are skipped.
func (a *ThingSpeakAdapter) Fetch(ctx context.Context) ([]Observation, error) {
	q := url.Values{}
	q.Set("api_key", a.cfg.ReadKey)
	q.Set("results", strconv.Itoa(a.cfg.Results))

	endpoint := fmt.Sprintf("%s/channels/%s/feeds.json?%s", a.cfg.BaseURL, url.PathEscape(a.cfg.ChannelID), q.Encode())

	body, err := getJSON(ctx, a.client, endpoint)
	if err != nil {
		return nil, err
	}

	var resp feedsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	if len(resp.Feeds) == 0 {
		return nil, ErrNoFeeds
	}

	now := a.now()
	fields := a.sortedFields()

	observations := make([]Observation, 0, len(resp.Feeds))
	for i, entry := range resp.Feeds {
		latest := a.cfg.IncludeLatest && i == len(resp.Feeds)-1
		obs, ok := a.observe(entry, fields, now, !latest)
		if ok {
			observations = append(observations, obs)
		}
	}

	return observations, nil
}

// observe turns a feed entry into an observation. The backfill filters only
// apply when filter is set.
func (a *ThingSpeakAdapter) observe(entry json.RawMessage, fields []string, now time.Time, filter bool) (Observation, bool) {
	dec := json.NewDecoder(bytes.NewReader(entry))
	dec.UseNumber()

	var feed map[string]any
	if err := dec.Decode(&feed); err != nil {
		a.logger.Warn("skipping undecodable feed entry", zap.Error(err))
		return Observation{}, false
	}

	createdAt, _ := feed["created_at"].(string)
	observedAt, err := timeparser.ParseFeedTimestamp(createdAt)
	if err != nil {
		a.logger.Warn("skipping feed entry with invalid created_at",
			zap.String("created_at", createdAt),
			zap.Error(err),
		)
		return Observation{}, false
	}

	if filter && a.cfg.Window > 0 && !timeparser.IsWithinWindow(observedAt, now, a.cfg.Window) {
		return Observation{}, false
	}

	values := make(map[string]any, len(fields))
	for _, field := range fields {
		values[a.cfg.Fields[field]] = feed[field]
	}

	if filter && a.cfg.Window > 0 && a.cfg.RequireTrue != "" {
		v, ok := metric.Coerce(a.cfg.RequireTrue, values[a.cfg.RequireTrue])
		if !ok || v.Kind != metric.KindBool || !v.Bool {
			return Observation{}, false
		}
	}

	return Observation{
		Device:     a.cfg.Device,
		ObservedAt: observedAt,
		Values:     values,
		Raw:        entry,
	}, true
}

func (a *ThingSpeakAdapter) sortedFields() []string {
	fields := make([]string, 0, len(a.cfg.Fields))
	for f := range a.cfg.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

var _ Adapter = (*ThingSpeakAdapter)(nil)
