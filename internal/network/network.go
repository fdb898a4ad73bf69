// Package network assembles the STAR components behind one value per
// transport network.
package network

import (
	"context"

	"github.com/moov-data/internal/alerts"
	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/config"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/departures"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/internal/livemap"
	"github.com/moov-data/internal/ridership"
	"github.com/moov-data/internal/topology"
)

type Network struct {
	name    string
	fetcher feed.Fetcher
	modes   feed.Modes

	index     *departures.LineIndex
	board     *departures.Aggregator
	locator   *livemap.Locator
	topology  *topology.Resolver
	alerts    *alerts.Filter
	ridership *ridership.Binner
}

// New wires every component over one fetcher. The line index and the
// departure cache are shared by the components that need them.
func New(name string, fetcher feed.Fetcher, catalog config.Catalog, clk clock.Clock, log logger.Logger) *Network {
	log = log.With("network", name)
	modes := feed.NewModes(catalog)
	index := departures.NewLineIndex(fetcher, modes, log)
	board := departures.NewAggregator(fetcher, modes, index, clk, log)

	return &Network{
		name:      name,
		fetcher:   fetcher,
		modes:     modes,
		index:     index,
		board:     board,
		locator:   livemap.NewLocator(fetcher, catalog.BusPositions, modes, index, log),
		topology:  topology.NewResolver(fetcher, modes, board, log),
		alerts:    alerts.NewFilter(fetcher, catalog.Alerts, modes, log),
		ridership: ridership.NewBinner(fetcher, catalog.Ridership, clk, log),
	}
}

func (n *Network) Name() string { return n.name }

func (n *Network) Fetcher() feed.Fetcher { return n.fetcher }

func (n *Network) Modes() feed.Modes { return n.modes }

// AlertFilter exposes the filter for the alert notifier.
func (n *Network) AlertFilter() *alerts.Filter { return n.alerts }

// Board returns the next departures at station.
func (n *Network) Board(ctx context.Context, station string) []departures.Entry {
	return n.board.NextDepartures(ctx, station)
}

// Lines returns the sorted short names of the lines serving station.
func (n *Network) Lines(ctx context.Context, station string) []string {
	return n.index.SortedLines(ctx, station)
}

// Map returns live bus positions around station.
func (n *Network) Map(ctx context.Context, station string) []livemap.VehiclePosition {
	return n.locator.PositionsFor(ctx, station)
}

// Topology returns the paths to draw for station, reusing the last board.
func (n *Network) Topology(ctx context.Context, station string) []topology.Segment {
	return n.topology.TopologyFor(ctx, station)
}

func (n *Network) Alerts(ctx context.Context) alerts.Buckets {
	return n.alerts.ActiveAlerts(ctx)
}

func (n *Network) Frequentation(ctx context.Context, line string) ridership.Chart {
	return n.ridership.FrequentationFor(ctx, line)
}
