package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/aggregator"
	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/converter"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/domain"
	"github.com/campus-carbon/carbon-portal/internal/metrics"
	"github.com/campus-carbon/carbon-portal/internal/repository"
)

type Kind string

const (
	Daily   Kind = "daily"
	Monthly Kind = "monthly"
)

// Archiver stores a rendered report under key.
type Archiver interface {
	PutReport(ctx context.Context, key string, body []byte) error
}

// BuildingLine is one building's share of a report period.
type BuildingLine struct {
	Building       string  `json:"building"`
	ElectricityKWh float64 `json:"electricity_kwh"`
	Gas            float64 `json:"gas"`
	Water          float64 `json:"water"`
	EmissionKG     float64 `json:"emission_kg"`
}

type Report struct {
	Kind                   Kind           `json:"kind"`
	Year                   int            `json:"year"`
	Month                  int            `json:"month"`
	GeneratedAt            time.Time      `json:"generated_at"`
	Buildings              int            `json:"buildings"`
	ElectricityKWh         float64        `json:"electricity_kwh"`
	ElectricityMWh         float64        `json:"electricity_mwh"`
	GasTotal               float64        `json:"gas_total"`
	WaterTotal             float64        `json:"water_total"`
	AvgElectricityBuilding float64        `json:"avg_electricity_per_building"`
	SolarGenerationKWh     float64        `json:"solar_generation_kwh"`
	EmissionKG             float64        `json:"emission_kg"`
	EmissionTons           int64          `json:"emission_tons"`
	Lines                  []BuildingLine `json:"lines"`
}

// Generator builds period reports from stored readings and archives them when an Archiver is set.
type Generator struct {
	repos   *repository.Repos
	archive Archiver
	conv    *converter.EnergyConverter
}

func NewGenerator(repos *repository.Repos, archive Archiver) *Generator {
	return &Generator{repos: repos, archive: archive, conv: &converter.EnergyConverter{}}
}

// Build aggregates every building's readings for year/month.
func (g *Generator) Build(ctx context.Context, kind Kind, year, month int, at time.Time) (*Report, error) {
	energy, err := g.repos.ListEnergy(ctx, repository.ReadingFilter{Year: year, Month: month})
	if err != nil {
		return nil, fmt.Errorf("list energy: %w", err)
	}
	solar, err := g.repos.ListSolar(ctx, repository.ReadingFilter{Year: year, Month: month})
	if err != nil {
		return nil, fmt.Errorf("list solar: %w", err)
	}

	elec := make([]aggregator.Point, 0, len(energy))
	gas := make([]aggregator.Point, 0, len(energy))
	water := make([]aggregator.Point, 0, len(energy))
	lines := make([]BuildingLine, 0, len(energy))
	for _, r := range energy {
		elec = append(elec, aggregator.Point{Value: r.Electricity, Timestamp: r.UpdatedAt})
		gas = append(gas, aggregator.Point{Value: r.Gas, Timestamp: r.UpdatedAt})
		water = append(water, aggregator.Point{Value: r.Water, Timestamp: r.UpdatedAt})
		lines = append(lines, BuildingLine{
			Building:       r.BuildingName,
			ElectricityKWh: r.Electricity,
			Gas:            r.Gas,
			Water:          r.Water,
			EmissionKG:     round1(domain.EmissionKG(r.Electricity, r.Gas)),
		})
	}
	gen := make([]aggregator.Point, 0, len(solar))
	for _, s := range solar {
		gen = append(gen, aggregator.Point{Value: s.Generation, Timestamp: s.UpdatedAt})
	}

	rep := &Report{
		Kind:           kind,
		Year:           year,
		Month:          month,
		GeneratedAt:    at,
		Buildings:      len(energy),
		ElectricityKWh: aggregator.Sum(elec),
		GasTotal:       aggregator.Sum(gas),
		WaterTotal:     aggregator.Sum(water),
		Lines:          lines,
	}
	if len(gen) > 0 {
		rep.SolarGenerationKWh = aggregator.Sum(gen)
	}
	if len(elec) > 0 {
		rep.AvgElectricityBuilding = round1(aggregator.Average(elec))
	}
	rep.ElectricityMWh = g.conv.KWhToMWh(rep.ElectricityKWh)
	snap := domain.NewGreenhouseSnapshot(domain.EnergyTotals{
		Year:             year,
		ElectricityTotal: rep.ElectricityKWh,
		GasTotal:         rep.GasTotal,
	})
	rep.EmissionKG = snap.EmissionKG
	rep.EmissionTons = snap.EmissionTons
	return rep, nil
}

// RunDaily reports the month containing at and archives it under reports/daily/YYYY-MM-DD.json.
func (g *Generator) RunDaily(ctx context.Context, at time.Time) error {
	key := "reports/daily/" + at.Format("2006-01-02") + ".json"
	return g.run(ctx, Daily, at.Year(), int(at.Month()), at, key)
}

// RunMonthly reports the calendar month before at and archives it under reports/monthly/YYYY-MM.json.
func (g *Generator) RunMonthly(ctx context.Context, at time.Time) error {
	prev := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location()).AddDate(0, -1, 0)
	key := "reports/monthly/" + prev.Format("2006-01") + ".json"
	return g.run(ctx, Monthly, prev.Year(), int(prev.Month()), at, key)
}

func (g *Generator) run(ctx context.Context, kind Kind, year, month int, at time.Time, key string) error {
	rep, err := g.Build(ctx, kind, year, month, at)
	if err != nil {
		metrics.ReportsGenerated.WithLabelValues(string(kind), "error").Inc()
		return err
	}

	log.Info().
		Str("kind", string(kind)).
		Int("year", year).
		Int("month", month).
		Int("buildings", rep.Buildings).
		Float64("electricity_mwh", rep.ElectricityMWh).
		Int64("emission_tons", rep.EmissionTons).
		Msg("report generated")

	if g.archive != nil {
		body, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		if err := g.archive.PutReport(ctx, key, body); err != nil {
			metrics.ReportsGenerated.WithLabelValues(string(kind), "error").Inc()
			return fmt.Errorf("archive %s: %w", key, err)
		}
		log.Info().Str("key", key).Msg("report archived")
	}
	metrics.ReportsGenerated.WithLabelValues(string(kind), "success").Inc()
	return nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
