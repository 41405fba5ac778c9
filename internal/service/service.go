package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/collector"
	"github.com/campus-carbon/carbon-portal/internal/domain"
	"github.com/campus-carbon/carbon-portal/internal/metrics"
	"github.com/campus-carbon/carbon-portal/internal/realtime"
	"github.com/campus-carbon/carbon-portal/internal/report"
	"github.com/campus-carbon/carbon-portal/internal/repository"
	"github.com/campus-carbon/carbon-portal/internal/telemetry"
)

// ErrInvalid marks readings that fail validation.
var ErrInvalid = errors.New("invalid reading")

type Options struct {
	Telemetry   telemetry.Source
	Archive     report.Archiver
	Notifier    collector.Notifier
	Development bool
	Location    *time.Location
	RetryDelay  time.Duration
	MaxRetries  int
	Intervals   realtime.Intervals
}

// Services wires the repositories and background workers shared by the binaries.
type Services struct {
	Repos      *repository.Repos
	Readings   *ReadingService
	Collector  *collector.Collector
	Supervisor *collector.Supervisor
	Reports    *report.Generator
	Realtime   *realtime.Hub
}

func New(db *sqlx.DB, opts Options) *Services {
	repos := repository.New(db)
	coll := collector.New(collector.Options{
		Repos:       repos,
		Upstream:    opts.Telemetry,
		Development: opts.Development,
		Location:    opts.Location,
	})
	reports := report.NewGenerator(repos, opts.Archive)
	return &Services{
		Repos:     repos,
		Readings:  NewReadingService(repos),
		Collector: coll,
		Supervisor: collector.NewSupervisor(collector.SupervisorOptions{
			Runner:     coll,
			Reporter:   reports,
			Notifier:   opts.Notifier,
			Location:   opts.Location,
			RetryDelay: opts.RetryDelay,
			MaxRetries: opts.MaxRetries,
			Production: !opts.Development,
		}),
		Reports:  reports,
		Realtime: realtime.NewHub(realtime.NewSnapshotter(repos, opts.Location), opts.Intervals),
	}
}

// ReadingService validates readings before they reach the natural-key upsert.
type ReadingService struct {
	repos    *repository.Repos
	validate *validator.Validate
}

func NewReadingService(repos *repository.Repos) *ReadingService {
	return &ReadingService{repos: repos, validate: validator.New()}
}

func (s *ReadingService) Validate(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (s *ReadingService) SaveEnergy(ctx context.Context, rd *domain.EnergyReading) (domain.UpsertAction, error) {
	if err := s.Validate(rd); err != nil {
		return "", err
	}
	action, err := s.repos.UpsertEnergy(ctx, rd)
	if err != nil {
		return "", err
	}
	metrics.UpsertsTotal.WithLabelValues("energy", string(action)).Inc()
	return action, nil
}

func (s *ReadingService) SaveSolar(ctx context.Context, rd *domain.SolarReading) (domain.UpsertAction, error) {
	if err := s.Validate(rd); err != nil {
		return "", err
	}
	action, err := s.repos.UpsertSolar(ctx, rd)
	if err != nil {
		return "", err
	}
	metrics.UpsertsTotal.WithLabelValues("solar", string(action)).Inc()
	return action, nil
}

// FromMQTT ingests one meter message published on topic.
func (s *ReadingService) FromMQTT(ctx context.Context, topic string, payload []byte) error {
	var r struct {
		BuildingName string  `json:"building_name"`
		Year         int     `json:"year"`
		Month        int     `json:"month"`
		Electricity  float64 `json:"electricity"`
		Gas          float64 `json:"gas"`
		Water        float64 `json:"water"`
	}
	if err := json.Unmarshal(payload, &r); err != nil {
		metrics.IngestMessages.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	rd := &domain.EnergyReading{
		BuildingName: r.BuildingName,
		Year:         r.Year,
		Month:        r.Month,
		Electricity:  r.Electricity,
		Gas:          r.Gas,
		Water:        r.Water,
	}
	action, err := s.SaveEnergy(ctx, rd)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("error").Inc()
		return err
	}
	metrics.IngestMessages.WithLabelValues("ok").Inc()
	log.Debug().
		Str("topic", topic).
		Str("building", rd.BuildingName).
		Str("action", string(action)).
		Int64("id", rd.ID).
		Msg("reading ingested")
	return nil
}
