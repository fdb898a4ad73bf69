package topology

import (
	"context"

	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/departures"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
)

const (
	busRouteRows   = 1000
	metroRouteRows = 100
)

// Board gives access to a station's departure board, cached or fresh.
type Board interface {
	Cached(station string) ([]departures.Entry, bool)
	NextDepartures(ctx context.Context, station string) []departures.Entry
}

// Segment is one line path with coordinates in (lat, lon) order.
type Segment struct {
	Line      string         `json:"line"`
	Direction int            `json:"direction"`
	Name      string         `json:"name"`
	Paths     [][][2]float64 `json:"paths"`
}

type Resolver struct {
	fetcher feed.Fetcher
	modes   feed.Modes
	board   Board
	logger  logger.Logger
}

func NewResolver(fetcher feed.Fetcher, modes feed.Modes, board Board, log logger.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		modes:   modes,
		board:   board,
		logger:  log.With("component", "topology"),
	}
}

// TopologyFor returns the paths of the bus lines active at station plus the
// whole metro network.
func (r *Resolver) TopologyFor(ctx context.Context, station string) []Segment {
	active := r.activeLines(ctx, station)

	var segments []Segment
	bus := r.modes.Get(feed.Bus)
	for _, route := range r.routes(ctx, bus.RoutesQuery(busRouteRows)) {
		if _, ok := active[route.NomCourtLigne]; !ok {
			continue
		}
		if seg, ok := r.segment(route); ok {
			segments = append(segments, seg)
		}
	}

	metro := r.modes.Get(feed.Metro)
	for _, route := range r.routes(ctx, metro.RoutesQuery(metroRouteRows)) {
		if seg, ok := r.segment(route); ok {
			segments = append(segments, seg)
		}
	}

	r.logger.Debug("Resolved topology", "station", station, "active_lines", len(active), "segments", len(segments))
	return segments
}

func (r *Resolver) activeLines(ctx context.Context, station string) map[string]struct{} {
	entries, ok := r.board.Cached(station)
	if !ok {
		entries = r.board.NextDepartures(ctx, station)
	}
	active := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		active[e.Line] = struct{}{}
	}
	return active
}

func (r *Resolver) routes(ctx context.Context, q feed.Query) []models.Route {
	return feed.Decode[models.Route](r.logger, r.fetcher.Fetch(ctx, q))
}

func (r *Resolver) segment(route models.Route) (Segment, bool) {
	paths, err := route.Parcours.Lines()
	if err != nil {
		r.logger.Warn("Skipping route with unreadable shape", "line", route.NomCourtLigne, "error", err)
		return Segment{}, false
	}
	return Segment{
		Line:      route.NomCourtLigne,
		Direction: route.Sens,
		Name:      route.LibelleLong,
		Paths:     Invert(paths),
	}, true
}

// Invert swaps every coordinate pair. Applying it twice restores the input.
func Invert(paths [][][2]float64) [][][2]float64 {
	out := make([][][2]float64, len(paths))
	for i, path := range paths {
		out[i] = make([][2]float64, len(path))
		for j, pt := range path {
			out[i][j] = [2]float64{pt[1], pt[0]}
		}
	}
	return out
}
