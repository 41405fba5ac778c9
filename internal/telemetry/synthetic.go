package telemetry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/campus-carbon/carbon-portal/internal/domain"
)

// FallbackBuildings are the buildings synthesized when the upstream is unavailable in development.
var FallbackBuildings = []string{"공학관", "자연과학관", "도서관"}

// Synthetic generates plausible monthly figures for FallbackBuildings.
type Synthetic struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSynthetic(seed int64) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{rnd: rand.New(rand.NewSource(seed))}
}

func (s *Synthetic) FetchBuildings(_ context.Context, _, _ int) ([]domain.BuildingReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.BuildingReading, 0, len(FallbackBuildings))
	for _, name := range FallbackBuildings {
		out = append(out, domain.BuildingReading{
			Name:        name,
			Electricity: s.between(3000, 8000),
			Gas:         s.between(500, 1500),
			Water:       s.between(50, 200),
		})
	}
	return out, nil
}

func (s *Synthetic) between(lo, hi float64) float64 {
	return math.Round((lo+s.rnd.Float64()*(hi-lo))*10) / 10
}
