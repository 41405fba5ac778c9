package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/domain"
	"github.com/campus-carbon/carbon-portal/internal/metrics"
	"github.com/campus-carbon/carbon-portal/internal/repository"
	"github.com/campus-carbon/carbon-portal/internal/telemetry"
)

// ErrUpstream wraps failures of the telemetry source.
var ErrUpstream = errors.New("telemetry upstream failed")

const (
	SourceAPI       = "api"
	SourceSynthetic = "synthetic"
)

// BuildingResult is the outcome of one building's upsert.
type BuildingResult struct {
	Building string              `json:"building"`
	Action   domain.UpsertAction `json:"action"`
	ID       int64               `json:"id"`
}

// SkippedBuilding is an upstream row rejected before storage.
type SkippedBuilding struct {
	Building string `json:"building"`
	Reason   string `json:"reason"`
}

// Result describes a successful collection run. It is also the details payload of the log entry.
type Result struct {
	Source    string            `json:"source"`
	Year      int               `json:"year"`
	Month     int               `json:"month"`
	DataCount int               `json:"data_count"`
	Results   []BuildingResult  `json:"results"`
	Skipped   []SkippedBuilding `json:"skipped,omitempty"`
}

type Options struct {
	Repos    *repository.Repos
	Upstream telemetry.Source
	// Fallback is consulted only in development when Upstream fails.
	Fallback    telemetry.Source
	Development bool
	Location    *time.Location
	Now         func() time.Time
}

// Collector performs one fetch-and-upsert run at a time.
type Collector struct {
	mu       sync.Mutex
	repos    *repository.Repos
	upstream telemetry.Source
	fallback telemetry.Source
	dev      bool
	loc      *time.Location
	now      func() time.Time
	validate *validator.Validate
}

func New(opts Options) *Collector {
	c := &Collector{
		repos:    opts.Repos,
		upstream: opts.Upstream,
		fallback: opts.Fallback,
		dev:      opts.Development,
		loc:      opts.Location,
		now:      opts.Now,
		validate: validator.New(),
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.dev && c.fallback == nil {
		c.fallback = telemetry.NewSynthetic(0)
	}
	return c
}

// Collect fetches the current month's building readings, upserts the valid ones in
// one transaction and appends one collection log entry describing the outcome.
// Invalid rows are skipped and listed in the entry's details.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	at := c.now().In(c.loc)
	year, month := at.Year(), int(at.Month())

	buildings, source, err := c.fetch(ctx, year, month)
	if err != nil {
		c.recordFailure(ctx, err)
		metrics.ObserveCollectorRun(string(domain.CollectionError), "none", started)
		return nil, err
	}

	res := &Result{Source: source, Year: year, Month: month, Results: make([]BuildingResult, 0, len(buildings))}
	rows := make([]*domain.EnergyReading, 0, len(buildings))
	for _, b := range buildings {
		if err := c.validate.Struct(b); err != nil {
			log.Warn().Str("building", b.Name).Err(err).Msg("skipping invalid telemetry row")
			res.Skipped = append(res.Skipped, SkippedBuilding{Building: b.Name, Reason: err.Error()})
			continue
		}
		rows = append(rows, &domain.EnergyReading{
			BuildingName: b.Name,
			Year:         year,
			Month:        month,
			Electricity:  b.Electricity,
			Gas:          b.Gas,
			Water:        b.Water,
		})
	}

	if len(rows) > 0 {
		actions, err := c.repos.UpsertEnergyBatch(ctx, rows)
		if err != nil {
			c.recordFailure(ctx, err)
			metrics.ObserveCollectorRun(string(domain.CollectionError), source, started)
			return nil, err
		}
		for i, rd := range rows {
			metrics.UpsertsTotal.WithLabelValues("energy", string(actions[i])).Inc()
			res.Results = append(res.Results, BuildingResult{Building: rd.BuildingName, Action: actions[i], ID: rd.ID})
		}
	}
	res.DataCount = len(res.Results)

	details, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	detailStr := string(details)
	entry := &domain.CollectionLogEntry{Status: domain.CollectionSuccess, DataCount: res.DataCount, Details: &detailStr}
	if err := c.repos.InsertCollectionLog(context.WithoutCancel(ctx), entry); err != nil {
		return nil, fmt.Errorf("write collection log: %w", err)
	}

	metrics.ObserveCollectorRun(string(domain.CollectionSuccess), source, started)
	log.Info().
		Str("source", source).
		Int("year", year).
		Int("month", month).
		Int("buildings", res.DataCount).
		Int("skipped", len(res.Skipped)).
		Msg("collection complete")
	return res, nil
}

type breakerStater interface {
	BreakerState() string
}

// UpstreamState returns the upstream circuit breaker state, or "" when the
// upstream has no breaker.
func (c *Collector) UpstreamState() string {
	if b, ok := c.upstream.(breakerStater); ok {
		return b.BreakerState()
	}
	return ""
}

func (c *Collector) fetch(ctx context.Context, year, month int) ([]domain.BuildingReading, string, error) {
	var upErr error
	if c.upstream == nil {
		upErr = telemetry.ErrNotConfigured
	} else {
		buildings, err := c.upstream.FetchBuildings(ctx, year, month)
		if err == nil {
			return buildings, SourceAPI, nil
		}
		upErr = err
	}

	if !c.dev {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, upErr)
	}

	log.Warn().Err(upErr).Msg("telemetry unavailable, using synthetic readings")
	buildings, err := c.fallback.FetchBuildings(ctx, year, month)
	if err != nil {
		return nil, "", fmt.Errorf("synthetic readings: %w", err)
	}
	return buildings, SourceSynthetic, nil
}

func (c *Collector) recordFailure(ctx context.Context, cause error) {
	msg := cause.Error()
	entry := &domain.CollectionLogEntry{Status: domain.CollectionError, ErrorMessage: &msg}
	if err := c.repos.InsertCollectionLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Msg("write collection error log")
	}
	log.Error().Err(cause).Msg("collection failed")
}
