package departures

import (
	"context"
	"sort"
	"sync"

	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
)

// stopRows bounds the stop topology lookup for one station.
const stopRows = 1000

// LineRef pairs a line identifier with its short name.
type LineRef struct {
	ID   string
	Name string
}

// LineIndex memoizes, per station, the lines serving it. Both the departure
// board and the live map read from it, so a station's topology is fetched
// once. Entries live as long as the index and are never refreshed.
type LineIndex struct {
	fetcher feed.Fetcher
	modes   feed.Modes
	logger  logger.Logger

	mu   sync.RWMutex
	refs map[string][]LineRef
}

func NewLineIndex(fetcher feed.Fetcher, modes feed.Modes, log logger.Logger) *LineIndex {
	return &LineIndex{
		fetcher: fetcher,
		modes:   modes,
		logger:  log.With("component", "line_index"),
		refs:    make(map[string][]LineRef),
	}
}

// Lines returns the lines serving station, one per identifier, in the
// order the modes report them.
func (idx *LineIndex) Lines(ctx context.Context, station string) []LineRef {
	idx.mu.RLock()
	cached, ok := idx.refs[station]
	idx.mu.RUnlock()
	if ok {
		return append([]LineRef{}, cached...)
	}

	seen := make(map[string]struct{})
	refs := []LineRef{}
	for _, mode := range idx.modes.All() {
		records := idx.fetcher.Fetch(ctx, mode.StopsQuery(station, stopRows))
		for _, stop := range feed.Decode[models.Stop](idx.logger, records) {
			if _, ok := seen[stop.IDLigne]; ok {
				continue
			}
			seen[stop.IDLigne] = struct{}{}
			refs = append(refs, LineRef{ID: stop.IDLigne, Name: stop.NomCourtLigne})
		}
	}

	idx.mu.Lock()
	idx.refs[station] = refs
	idx.mu.Unlock()

	idx.logger.Debug("Indexed station lines", "station", station, "lines", len(refs))
	return append([]LineRef{}, refs...)
}

// LineIDs returns the identifiers of the lines serving station, in
// first-seen order.
func (idx *LineIndex) LineIDs(ctx context.Context, station string) []string {
	refs := idx.Lines(ctx, station)
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids
}

// LinesFor returns the set of line names serving station.
func (idx *LineIndex) LinesFor(ctx context.Context, station string) map[string]struct{} {
	lines := make(map[string]struct{})
	for _, ref := range idx.Lines(ctx, station) {
		lines[ref.Name] = struct{}{}
	}
	return lines
}

// SortedLines returns LinesFor as a sorted slice.
func (idx *LineIndex) SortedLines(ctx context.Context, station string) []string {
	set := idx.LinesFor(ctx, station)
	out := make([]string, 0, len(set))
	for line := range set {
		out = append(out, line)
	}
	sort.Strings(out)
	return out
}
