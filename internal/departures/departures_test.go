package departures

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/config"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const station = "République"

var catalog = config.DefaultCatalog()

func now() time.Time {
	return time.Date(2024, 1, 15, 8, 0, 0, 0, clock.Location())
}

func at(hhmm string) string {
	return "2024-01-15T" + hhmm + ":00+01:00"
}

func addStop(s *feed.Stub, dataset, idLigne, line, stop string) {
	s.Add(dataset, map[string]interface{}{
		"idligne":       idLigne,
		"nomcourtligne": line,
		"nomarret":      stop,
	})
}

func addBusPassage(s *feed.Stub, idLigne, line, dest, stop, scheduled string) {
	s.Add(catalog.BusPassages, map[string]interface{}{
		"idligne":         idLigne,
		"nomcourtligne":   line,
		"destination":     dest,
		"nomarret":        stop,
		"departtheorique": scheduled,
	})
}

func addMetroPassage(s *feed.Stub, dest, stop, realtime, scheduled string) {
	s.Add(catalog.MetroPassages, map[string]interface{}{
		"idligne":         catalog.MetroLineID,
		"nomcourtligne":   catalog.MetroLineCode,
		"destination":     dest,
		"nomarret":        stop,
		"depart":          realtime,
		"departtheorique": scheduled,
	})
}

func newAggregator(s *feed.Stub) *Aggregator {
	modes := feed.NewModes(catalog)
	return NewAggregator(s, modes, NewLineIndex(s, modes, logger.Nop()), clock.Fixed(now()), logger.Nop())
}

func find(t *testing.T, entries []Entry, line, dest string) Entry {
	t.Helper()
	for _, e := range entries {
		if e.Line == line && e.Destination == dest {
			return e
		}
	}
	t.Fatalf("no entry for %s -> %s in %+v", line, dest, entries)
	return Entry{}
}

func TestUnknownStationIsEmpty(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)

	entries := newAggregator(s).NextDepartures(context.Background(), "Nowhere")

	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.Zero(t, s.Calls(catalog.BusPassages))
	assert.Zero(t, s.Calls(catalog.MetroPassages))
}

func TestCapsAtThreeInChronologicalOrder(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.BusStops, "0004", "C4", station)
	for _, hhmm := range []string{"08:40", "08:05", "07:55", "08:20", "08:10", "09:00"} {
		addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", station, at(hhmm))
	}

	entries := newAggregator(s).NextDepartures(context.Background(), station)

	require.Len(t, entries, 1)
	assert.Equal(t, []string{"08:05", "08:10", "08:20"}, entries[0].NextDepartures)
	assert.Equal(t, 1, s.Calls(catalog.BusPassages), "duplicate line ids collapse")
}

func TestDropsPastAndCurrentMinute(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addBusPassage(s, "0004", "C4", "Grand Quartier", station, at("07:59"))
	addBusPassage(s, "0004", "C4", "Grand Quartier", station, at("08:00"))
	addBusPassage(s, "0004", "C4", "Grand Quartier", station, at("08:01"))

	entries := newAggregator(s).NextDepartures(context.Background(), station)

	require.Len(t, entries, 1)
	assert.Equal(t, []string{"08:01"}, entries[0].NextDepartures)
}

func TestGroupWithOnlyPastDeparturesIsEmpty(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addBusPassage(s, "0004", "C4", "Grand Quartier", station, at("07:30"))
	addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", station, at("08:30"))

	entries := newAggregator(s).NextDepartures(context.Background(), station)

	require.Len(t, entries, 2)
	assert.Empty(t, find(t, entries, "C4", "Grand Quartier").NextDepartures)
	assert.NotNil(t, find(t, entries, "C4", "Grand Quartier").NextDepartures)
	assert.Equal(t, []string{"08:30"}, find(t, entries, "C4", "ZA Saint-Sulpice").NextDepartures)
}

func TestIdenticalTimesAreBothKept(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addBusPassage(s, "0004", "C4", "Grand Quartier", station, at("08:15"))
	addBusPassage(s, "0004", "C4", "Grand Quartier", station, at("08:15"))

	entries := newAggregator(s).NextDepartures(context.Background(), station)

	require.Len(t, entries, 1)
	assert.Equal(t, []string{"08:15", "08:15"}, entries[0].NextDepartures)
}

func TestMetroUsesRealtimeField(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.MetroStops, catalog.MetroLineID, catalog.MetroLineCode, station)
	// scheduled time is in the past, real-time is not
	addMetroPassage(s, "La Poterie", station, at("08:02"), at("07:58"))
	addMetroPassage(s, "J.F. Kennedy", station, at("07:50"), at("08:30"))

	entries := newAggregator(s).NextDepartures(context.Background(), station)

	assert.Equal(t, []string{"08:02"}, find(t, entries, "a", "La Poterie").NextDepartures)
	assert.Empty(t, find(t, entries, "a", "J.F. Kennedy").NextDepartures)
	assert.Equal(t, 1, s.Calls(catalog.MetroPassages))
	assert.Zero(t, s.Calls(catalog.BusPassages))
}

func TestMergesModesAndSkipsMalformed(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.BusStops, "0009", "C3", station)
	addStop(s, catalog.MetroStops, catalog.MetroLineID, catalog.MetroLineCode, station)

	addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", station, at("08:10"))
	addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", station, "soon")
	addBusPassage(s, "0009", "C3", "Henri Fréville", station, at("08:12"))
	addMetroPassage(s, "La Poterie", station, at("08:03"), "")

	entries := newAggregator(s).NextDepartures(context.Background(), station)

	require.Len(t, entries, 3)
	assert.Equal(t, "C4", entries[0].Line, "bus lines first, in topology order")
	assert.Equal(t, "C3", entries[1].Line)
	assert.Equal(t, "a", entries[2].Line)
	assert.Equal(t, []string{"08:10"}, entries[0].NextDepartures)
}

func TestBoardInvariants(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.MetroStops, catalog.MetroLineID, catalog.MetroLineCode, station)
	for i := 0; i < 20; i++ {
		ts := now().Add(time.Duration(i*7-30) * time.Minute)
		dest := []string{"A", "B", "C"}[i%3]
		addBusPassage(s, "0004", "C4", dest, station, ts.Format(time.RFC3339))
		addMetroPassage(s, dest, station, ts.Add(time.Minute).Format(time.RFC3339), "")
	}

	entries := newAggregator(s).NextDepartures(context.Background(), station)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		assert.LessOrEqual(t, len(e.NextDepartures), MaxDepartures)
		var prev time.Time
		for _, hhmm := range e.NextDepartures {
			parsed, err := time.ParseInLocation("2006-01-02 15:04", "2024-01-15 "+hhmm, clock.Location())
			require.NoError(t, err)
			assert.True(t, parsed.After(now()), "%s is not in the future", hhmm)
			assert.False(t, parsed.Before(prev), "%v not chronological", e.NextDepartures)
			prev = parsed
		}
	}
}

func TestSingleSlotCache(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.BusStops, "0004", "C4", "Gares")
	addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", station, at("08:10"))
	addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", "Gares", at("08:14"))

	agg := newAggregator(s)

	_, ok := agg.Cached(station)
	assert.False(t, ok)

	first := agg.NextDepartures(context.Background(), station)
	cached, ok := agg.Cached(station)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	cached[0].NextDepartures[0] = "tampered"
	again, _ := agg.Cached(station)
	assert.Equal(t, "08:10", again[0].NextDepartures[0])

	agg.NextDepartures(context.Background(), "Gares")
	_, ok = agg.Cached(station)
	assert.False(t, ok, "previous station is evicted")
	gares, ok := agg.Cached("Gares")
	require.True(t, ok)
	assert.Equal(t, []string{"08:14"}, gares[0].NextDepartures)
}

func TestConcurrentStations(t *testing.T) {
	s := feed.NewStub()
	stations := make([]string, 6)
	for i := range stations {
		stations[i] = fmt.Sprintf("Stop %d", i)
		addStop(s, catalog.BusStops, "0004", "C4", stations[i])
		addBusPassage(s, "0004", "C4", "Grand Quartier", stations[i], at(fmt.Sprintf("08:1%d", i)))
	}

	agg := newAggregator(s)
	var wg sync.WaitGroup
	for i, name := range stations {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries := agg.NextDepartures(context.Background(), name)
			assert.Equal(t, []string{fmt.Sprintf("08:1%d", i)}, entries[0].NextDepartures)
		}()
	}
	wg.Wait()

	hits := 0
	for _, name := range stations {
		if _, ok := agg.Cached(name); ok {
			hits++
		}
	}
	assert.Equal(t, 1, hits, "exactly one station occupies the slot")
}

func TestLineIndexMemoizes(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.BusStops, "0009", "C3", station)
	addStop(s, catalog.BusStops, "0009", "C3", station)
	addStop(s, catalog.MetroStops, catalog.MetroLineID, catalog.MetroLineCode, station)

	idx := NewLineIndex(s, feed.NewModes(catalog), logger.Nop())

	first := idx.LinesFor(context.Background(), station)
	assert.Equal(t, map[string]struct{}{"C4": {}, "C3": {}, "a": {}}, first)
	assert.Equal(t, 1, s.Calls(catalog.BusStops))
	assert.Equal(t, 1, s.Calls(catalog.MetroStops))

	second := idx.LinesFor(context.Background(), station)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Calls(catalog.BusStops), "second call is a cache hit")
	assert.Equal(t, 1, s.Calls(catalog.MetroStops))

	delete(second, "C4")
	assert.Equal(t, []string{"C3", "C4", "a"}, idx.SortedLines(context.Background(), station))
}

func TestLineIndexUnknownStation(t *testing.T) {
	s := feed.NewStub()
	idx := NewLineIndex(s, feed.NewModes(catalog), logger.Nop())

	assert.Empty(t, idx.LinesFor(context.Background(), "Nowhere"))
	assert.Empty(t, idx.LinesFor(context.Background(), "Nowhere"))
	assert.Equal(t, 1, s.Calls(catalog.BusStops))
}

func TestBoardAndLinesShareTopology(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.BusStops, "0009", "C3", station)
	addBusPassage(s, "0004", "C4", "ZA Saint-Sulpice", station, at("08:10"))

	modes := feed.NewModes(catalog)
	idx := NewLineIndex(s, modes, logger.Nop())
	agg := NewAggregator(s, modes, idx, clock.Fixed(now()), logger.Nop())

	agg.NextDepartures(context.Background(), station)
	agg.NextDepartures(context.Background(), station)
	assert.Equal(t, []string{"C3", "C4"}, idx.SortedLines(context.Background(), station))

	assert.Equal(t, 1, s.Calls(catalog.BusStops))
	assert.Equal(t, 1, s.Calls(catalog.MetroStops))
	assert.Equal(t, 4, s.Calls(catalog.BusPassages), "passages are fetched per board")
}

func TestLineIndexKeepsIdentifiers(t *testing.T) {
	s := feed.NewStub()
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.BusStops, "0009", "C3", station)
	addStop(s, catalog.BusStops, "0004", "C4", station)
	addStop(s, catalog.MetroStops, catalog.MetroLineID, catalog.MetroLineCode, station)

	idx := NewLineIndex(s, feed.NewModes(catalog), logger.Nop())

	assert.Equal(t, []string{"0004", "0009", catalog.MetroLineID}, idx.LineIDs(context.Background(), station))
	refs := idx.Lines(context.Background(), station)
	require.Len(t, refs, 3)
	assert.Equal(t, LineRef{ID: "0009", Name: "C3"}, refs[1])

	refs[0].Name = "tampered"
	assert.Equal(t, "C4", idx.Lines(context.Background(), station)[0].Name)
}
