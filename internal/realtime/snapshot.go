package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

// Source is the data layer behind the snapshots.
type Source interface {
	RecentEnergy(ctx context.Context) ([]domain.EnergyReading, error)
	RecentSolar(ctx context.Context) ([]domain.SolarReading, error)
	EnergyTotals(ctx context.Context, year int) (domain.EnergyTotals, error)
}

// Snapshotter turns data-layer reads into stream messages. A failed read becomes a
// message of the same type carrying empty data and the error text.
type Snapshotter struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func NewSnapshotter(src Source, loc *time.Location) *Snapshotter {
	if loc == nil {
		loc = time.UTC
	}
	return &Snapshotter{src: src, loc: loc, now: time.Now}
}

func (s *Snapshotter) Heartbeat() Message {
	return Message{Type: Heartbeat, Timestamp: stamp(s.now())}
}

func (s *Snapshotter) Energy(ctx context.Context) Message {
	rows, err := s.src.RecentEnergy(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("realtime energy snapshot")
		return Message{Type: EnergyUpdate, Timestamp: stamp(s.now()), Data: []domain.EnergyReading{}, Error: err.Error()}
	}
	return Message{Type: EnergyUpdate, Timestamp: stamp(s.now()), Data: rows}
}

func (s *Snapshotter) Solar(ctx context.Context) Message {
	rows, err := s.src.RecentSolar(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("realtime solar snapshot")
		return Message{Type: SolarUpdate, Timestamp: stamp(s.now()), Data: []domain.SolarReading{}, Error: err.Error()}
	}
	return Message{Type: SolarUpdate, Timestamp: stamp(s.now()), Data: rows}
}

// Greenhouse reports emissions for the current calendar year in the configured zone.
func (s *Snapshotter) Greenhouse(ctx context.Context) Message {
	now := s.now()
	year := now.In(s.loc).Year()
	totals, err := s.src.EnergyTotals(ctx, year)
	if err != nil {
		log.Warn().Err(err).Msg("realtime greenhouse snapshot")
		return Message{Type: GreenhouseUpdate, Timestamp: stamp(now), Data: domain.GreenhouseSnapshot{Year: year}, Error: err.Error()}
	}
	return Message{Type: GreenhouseUpdate, Timestamp: stamp(now), Data: domain.NewGreenhouseSnapshot(totals)}
}

func (s *Snapshotter) Take(ctx context.Context, t MessageType) Message {
	switch t {
	case EnergyUpdate:
		return s.Energy(ctx)
	case SolarUpdate:
		return s.Solar(ctx)
	case GreenhouseUpdate:
		return s.Greenhouse(ctx)
	default:
		return s.Heartbeat()
	}
}

// Initial is the one-shot document served to clients before they subscribe.
type Initial struct {
	Timestamp  string            `json:"timestamp"`
	Energy     any               `json:"energy"`
	Solar      any               `json:"solar"`
	Greenhouse any               `json:"greenhouse"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func (s *Snapshotter) Initial(ctx context.Context) Initial {
	out := Initial{Timestamp: stamp(s.now())}
	sections := []struct {
		name string
		msg  Message
		dst  *any
	}{
		{"energy", s.Energy(ctx), &out.Energy},
		{"solar", s.Solar(ctx), &out.Solar},
		{"greenhouse", s.Greenhouse(ctx), &out.Greenhouse},
	}
	for _, sec := range sections {
		*sec.dst = sec.msg.Data
		if sec.msg.Error != "" {
			if out.Errors == nil {
				out.Errors = map[string]string{}
			}
			out.Errors[sec.name] = sec.msg.Error
		}
	}
	return out
}
