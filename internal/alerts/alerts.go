package alerts

import (
	"context"
	"fmt"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
)

const (
	Bus   = "BUS"
	Metro = "METRO"
	Tram  = "TRAM"

	// MajorSeverity is the only level kept.
	MajorSeverity = "Majeure"

	alertRows = 200
)

type Alert struct {
	Line    string `json:"line"`
	Start   string `json:"start"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Buckets groups alerts by mode. All three keys are always present.
type Buckets map[string][]Alert

type Filter struct {
	fetcher feed.Fetcher
	dataset string
	modes   feed.Modes
	logger  logger.Logger
}

func NewFilter(fetcher feed.Fetcher, dataset string, modes feed.Modes, log logger.Logger) *Filter {
	return &Filter{
		fetcher: fetcher,
		dataset: dataset,
		modes:   modes,
		logger:  log.With("component", "alerts"),
	}
}

// ActiveAlerts returns the major disruptions currently published.
func (f *Filter) ActiveAlerts(ctx context.Context) Buckets {
	buckets := Buckets{Bus: []Alert{}, Metro: []Alert{}, Tram: []Alert{}}

	records := f.fetcher.Fetch(ctx, feed.Query{
		Dataset:  f.dataset,
		Facets:   []string{"niveau", "nomcourtligne"},
		Rows:     alertRows,
		Timezone: clock.Zone,
	})
	for _, a := range feed.Decode[models.Alert](f.logger, records) {
		if a.Niveau != MajorSeverity {
			continue
		}
		start, err := clock.ParseFeedTimestamp(a.DebutValidite)
		if err != nil {
			f.logger.Warn("Skipping alert with malformed start", "line", a.NomCourtLigne, "error", err)
			continue
		}
		bucket := Bus
		if f.modes.IsMetroLine(a.NomCourtLigne) {
			bucket = Metro
		}
		buckets[bucket] = append(buckets[bucket], Alert{
			Line:    a.NomCourtLigne,
			Start:   fmt.Sprintf("%d-%d-%d %02d:%02d", start.Day(), int(start.Month()), start.Year(), start.Hour(), start.Minute()),
			Title:   a.Titre,
			Message: a.Description,
		})
	}
	return buckets
}
