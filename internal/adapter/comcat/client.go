// Package comcat searches an FDSN event web service for origins near an event.
package comcat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
)

// DefaultBaseURL is the USGS ComCat FDSN event query endpoint.
const DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// ErrCatalogStatus is returned when the catalog answers with an unexpected status.
var ErrCatalogStatus = errors.New("catalog API error")

const queryTimeFormat = "2006-01-02T15:04:05.000"

// Client implements domain.CandidateFinder against an FDSN event service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a catalog client. perSecond caps outgoing requests; zero disables the cap.
func NewClient(baseURL string, timeout time.Duration, perSecond float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		logger:  logger,
	}
}

// FindCandidates queries every search box around ev and returns the merged
// candidates, deduplicated by id and sorted by ascending metric.
func (c *Client) FindCandidates(ctx context.Context, ev domain.Event, w domain.SearchWindow) ([]domain.CandidateOrigin, error) {
	anchor := searchAnchor(ev)

	seen := make(map[string]bool)
	var out []domain.CandidateOrigin
	for _, box := range domain.SearchBoxes(ev.Lat, ev.Lon, w.DistanceKm) {
		features, err := c.search(ctx, box, anchor, w)
		if err != nil {
			return nil, err
		}
		for _, f := range features {
			cand, err := f.candidate()
			if err != nil {
				c.metrics.CatalogRequests.WithLabelValues("error").Inc()
				return nil, err
			}
			if seen[cand.ID] {
				continue
			}
			seen[cand.ID] = true
			out = append(out, cand)
		}
	}

	rank(out, ev, w)
	c.logger.Debug("catalog candidates", "event_id", ev.ID, "count", len(out))
	return out, nil
}

// searchAnchor is the time candidates are measured from: the associated
// origin's time when there is one, else the event's own.
func searchAnchor(ev domain.Event) time.Time {
	if ev.Association != nil {
		return ev.Association.Time
	}
	return ev.Time
}

// rank sets each candidate's separation from ev and sorts by ascending metric.
func rank(cands []domain.CandidateOrigin, ev domain.Event, w domain.SearchWindow) {
	anchor := searchAnchor(ev)
	for i := range cands {
		c := &cands[i]
		c.DistanceKm = domain.SurfaceDistanceKm(ev.Lat, ev.Lon, c.Lat, c.Lon)
		c.TimeDelta = c.Time.Sub(anchor).Seconds()
		c.Metric = domain.Metric(c.DistanceKm, c.TimeDelta, w.DistanceKm, w.Time)
	}
	slices.SortStableFunc(cands, func(a, b domain.CandidateOrigin) int {
		switch {
		case a.Metric < b.Metric:
			return -1
		case a.Metric > b.Metric:
			return 1
		default:
			return 0
		}
	})
}

func (c *Client) search(ctx context.Context, box domain.Box, anchor time.Time, w domain.SearchWindow) ([]feature, error) {
	params := url.Values{
		"format":       {"geojson"},
		"eventtype":    {"earthquake"},
		"minlatitude":  {strconv.FormatFloat(box.MinLat, 'f', 4, 64)},
		"maxlatitude":  {strconv.FormatFloat(box.MaxLat, 'f', 4, 64)},
		"minlongitude": {strconv.FormatFloat(box.MinLon, 'f', 4, 64)},
		"maxlongitude": {strconv.FormatFloat(box.MaxLon, 'f', 4, 64)},
		"starttime":    {anchor.Add(-w.Time).UTC().Format(queryTimeFormat)},
		"endtime":      {anchor.Add(w.Time).UTC().Format(queryTimeFormat)},
	}
	if w.Catalog != "" {
		params.Set("catalog", w.Catalog)
	}
	return c.doRequest(ctx, c.baseURL+"?"+params.Encode())
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]feature, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.CatalogAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.CatalogRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	// FDSN services answer 204 when nothing matches.
	if resp.StatusCode == http.StatusNoContent {
		c.metrics.CatalogRequests.WithLabelValues("empty").Inc()
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.metrics.CatalogRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: status %d: %s", ErrCatalogStatus, resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		c.metrics.CatalogRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(fc.Features) == 0 {
		c.metrics.CatalogRequests.WithLabelValues("empty").Inc()
	} else {
		c.metrics.CatalogRequests.WithLabelValues("success").Inc()
	}
	return fc.Features, nil
}

// GeoJSON response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID       string `json:"id"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth km]
	} `json:"geometry"`
	Properties struct {
		Mag  *float64 `json:"mag"`
		Time int64    `json:"time"` // epoch milliseconds
		IDs  string   `json:"ids"`  // ",us1000abc,ci3714,"
	} `json:"properties"`
}

func (f feature) candidate() (domain.CandidateOrigin, error) {
	if len(f.Geometry.Coordinates) < 3 {
		return domain.CandidateOrigin{}, fmt.Errorf("decode response: feature %q has %d coordinates", f.ID, len(f.Geometry.Coordinates))
	}
	id := f.ID
	if ids := strings.Split(strings.Trim(f.Properties.IDs, ","), ","); ids[0] != "" {
		id = ids[0]
	}
	return domain.CandidateOrigin{
		ID:        id,
		Time:      time.UnixMilli(f.Properties.Time).UTC(),
		Lat:       f.Geometry.Coordinates[1],
		Lon:       f.Geometry.Coordinates[0],
		Depth:     f.Geometry.Coordinates[2] * 1000,
		Magnitude: f.Properties.Mag,
	}, nil
}
