package livemap

import (
	"context"
	"sort"

	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/departures"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
)

const positionRows = 200

// VehiclePosition is a bus currently running on a line serving a station.
type VehiclePosition struct {
	Line         string  `json:"line"`
	Vehicle      string  `json:"vehicle"`
	Destination  string  `json:"destination"`
	Direction    int     `json:"direction"`
	Status       string  `json:"status"`
	DelaySeconds int     `json:"delay_seconds"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
}

type Locator struct {
	fetcher feed.Fetcher
	dataset string
	modes   feed.Modes
	index   *departures.LineIndex
	logger  logger.Logger
}

func NewLocator(fetcher feed.Fetcher, dataset string, modes feed.Modes, index *departures.LineIndex, log logger.Logger) *Locator {
	return &Locator{
		fetcher: fetcher,
		dataset: dataset,
		modes:   modes,
		index:   index,
		logger:  log.With("component", "livemap"),
	}
}

// PositionsFor returns the live positions of buses on the lines serving
// station, ordered by line then vehicle number. The metro has no position
// feed and is skipped.
func (l *Locator) PositionsFor(ctx context.Context, station string) []VehiclePosition {
	positions := []VehiclePosition{}

	for _, line := range l.index.SortedLines(ctx, station) {
		if l.modes.IsMetroLine(line) {
			continue
		}
		records := l.fetcher.Fetch(ctx, feed.Query{
			Dataset: l.dataset,
			Refine:  map[string]string{"nomcourtligne": line},
			Facets:  []string{"numerobus", "nomcourtligne", "sens", "destination"},
			Rows:    positionRows,
		})
		for _, v := range feed.Decode[models.Vehicle](l.logger, records) {
			positions = append(positions, VehiclePosition{
				Line:         v.NomCourtLigne,
				Vehicle:      v.NumeroBus,
				Destination:  v.Destination,
				Direction:    v.Sens,
				Status:       v.Etat,
				DelaySeconds: v.EcartSecondes,
				Lat:          v.Coordonnees[0],
				Lon:          v.Coordonnees[1],
			})
		}
	}

	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].Line != positions[j].Line {
			return positions[i].Line < positions[j].Line
		}
		return positions[i].Vehicle < positions[j].Vehicle
	})

	l.logger.Debug("Located vehicles", "station", station, "count", len(positions))
	return positions
}
