package departures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxDepartures is the number of times kept per (line, destination).
	MaxDepartures = 3

	fetchConcurrency = 8
)

// Entry is one row of a departure board.
type Entry struct {
	Line           string   `json:"line"`
	Destination    string   `json:"destination"`
	NextDepartures []string `json:"next_departures"`
}

type groupKey struct {
	line        string
	destination string
}

type timedPassage struct {
	passage models.Passage
	at      time.Time
}

// Aggregator builds departure boards for stations. It keeps the last
// computed board in a single-slot cache.
type Aggregator struct {
	fetcher feed.Fetcher
	modes   feed.Modes
	index   *LineIndex
	clock   clock.Clock
	logger  logger.Logger

	mu      sync.Mutex
	station string
	entries []Entry
	cached  bool
}

// NewAggregator builds an Aggregator resolving station topology through
// index.
func NewAggregator(fetcher feed.Fetcher, modes feed.Modes, index *LineIndex, clk clock.Clock, log logger.Logger) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		modes:   modes,
		index:   index,
		clock:   clk,
		logger:  log.With("component", "aggregator"),
	}
}

// NextDepartures returns the upcoming departures at station grouped by
// (line, destination), at most MaxDepartures times each. An unknown station
// yields an empty board.
func (a *Aggregator) NextDepartures(ctx context.Context, station string) []Entry {
	ids := a.index.LineIDs(ctx, station)

	perLine := make([][]models.Passage, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			mode := a.modes.ForLine(id)
			records := a.fetcher.Fetch(gctx, mode.PassagesQuery(id, station))
			perLine[i] = feed.Decode[models.Passage](a.logger, records)
			return nil
		})
	}
	_ = g.Wait()

	now := a.clock.Now()
	order := make([]groupKey, 0)
	groups := make(map[groupKey]*Entry)

	for i, passages := range perLine {
		for _, tp := range a.timed(ids[i], passages) {
			key := groupKey{line: tp.passage.NomCourtLigne, destination: tp.passage.Destination}
			entry, ok := groups[key]
			if !ok {
				entry = &Entry{Line: key.line, Destination: key.destination, NextDepartures: []string{}}
				groups[key] = entry
				order = append(order, key)
			}
			if !clock.IsFuture(tp.at, now) {
				continue
			}
			if len(entry.NextDepartures) >= MaxDepartures {
				continue
			}
			entry.NextDepartures = append(entry.NextDepartures, clock.HHMM(tp.at))
		}
	}

	entries := make([]Entry, 0, len(order))
	for _, key := range order {
		entries = append(entries, *groups[key])
	}

	a.store(station, entries)

	a.logger.Debug("Computed departures",
		"station", station,
		"lines", len(ids),
		"entries", len(entries))

	return entries
}

// Cached returns the last board if it was computed for station.
func (a *Aggregator) Cached(station string) ([]Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cached || a.station != station {
		return nil, false
	}
	return cloneEntries(a.entries), true
}

func (a *Aggregator) store(station string, entries []Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.station = station
	a.entries = cloneEntries(entries)
	a.cached = true
}

// timed parses each passage's departure and orders them chronologically.
// Passages with a malformed timestamp are skipped.
func (a *Aggregator) timed(idLigne string, passages []models.Passage) []timedPassage {
	out := make([]timedPassage, 0, len(passages))
	for _, p := range passages {
		field := a.modes.TimingFieldForLine(p.NomCourtLigne)
		at, err := clock.ParseFeedTimestamp(p.Timing(field))
		if err != nil {
			a.logger.Warn("Skipping passage with malformed departure time",
				"id_ligne", idLigne,
				"line", p.NomCourtLigne,
				"field", field,
				"error", err)
			continue
		}
		out = append(out, timedPassage{passage: p, at: at})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].at.Before(out[j].at)
	})
	return out
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = Entry{
			Line:           e.Line,
			Destination:    e.Destination,
			NextDepartures: append([]string{}, e.NextDepartures...),
		}
	}
	return out
}
