package stations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
)

// syncRows is the row cap of the full stop topology download.
const syncRows = 10000

// ErrNoStations is returned when the feed yields no stations at all, so an
// outage never looks like a network without stops.
var ErrNoStations = errors.New("feed returned no stations")

// IncompleteFeedError reports the modes whose stop dataset came back empty
// while others did not. Nothing is written in that case.
type IncompleteFeedError struct {
	Modes []string
}

func (e *IncompleteFeedError) Error() string {
	return fmt.Sprintf("feed returned no stops for %s", strings.Join(e.Modes, ", "))
}

// Writer stores a batch of stations.
type Writer interface {
	Upsert(ctx context.Context, stations []Station) error
}

// Syncer copies the network's stop names from the feed into a Writer.
type Syncer struct {
	fetcher feed.Fetcher
	modes   feed.Modes
	writer  Writer
	network string
	clock   clock.Clock
	logger  logger.Logger
}

func NewSyncer(fetcher feed.Fetcher, modes feed.Modes, writer Writer, network string, clk clock.Clock, log logger.Logger) *Syncer {
	return &Syncer{
		fetcher: fetcher,
		modes:   modes,
		writer:  writer,
		network: network,
		clock:   clk,
		logger:  log.With("component", "station_sync"),
	}
}

// Network is the network name stations are written under.
func (s *Syncer) Network() string {
	return s.network
}

// Datasets lists the stop datasets a sync reads.
func (s *Syncer) Datasets() []string {
	var out []string
	for _, mode := range s.modes.All() {
		out = append(out, mode.StopsDataset)
	}
	return out
}

// Sync downloads every stop of every mode and upserts one Station per
// distinct name. It returns the number of stations written.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	seen := make(map[string]map[string]struct{})
	var empty []string
	for _, mode := range s.modes.All() {
		records := s.fetcher.Fetch(ctx, mode.StopsQuery("", syncRows))
		stops := feed.Decode[models.Stop](s.logger, records)
		if len(stops) == 0 {
			empty = append(empty, mode.Mode.String())
		}
		for _, stop := range stops {
			if seen[stop.NomArret] == nil {
				seen[stop.NomArret] = make(map[string]struct{})
			}
			seen[stop.NomArret][mode.Mode.String()] = struct{}{}
		}
		s.logger.Debug("Fetched stops", "mode", mode.Mode, "records", len(records))
	}

	if len(seen) == 0 {
		return 0, ErrNoStations
	}
	if len(empty) > 0 {
		s.logger.Warn("Stop feed incomplete, keeping previous directory",
			"network", s.network,
			"empty_modes", empty)
		return 0, &IncompleteFeedError{Modes: empty}
	}

	now := s.clock.Now()
	stations := make([]Station, 0, len(seen))
	for name, modes := range seen {
		st := Station{Name: name, Network: s.network, LastSeen: now}
		for m := range modes {
			st.Modes = append(st.Modes, m)
		}
		sort.Strings(st.Modes)
		stations = append(stations, st)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].Name < stations[j].Name })

	if err := s.writer.Upsert(ctx, stations); err != nil {
		return 0, fmt.Errorf("writing stations: %w", err)
	}

	s.logger.Info("Synced station directory", "network", s.network, "stations", len(stations))
	return len(stations), nil
}
