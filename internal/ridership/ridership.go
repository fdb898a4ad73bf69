package ridership

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/moov-data/pkg/star/models"
)

const (
	Weekday  = "Lundi-Vendredi"
	Saturday = "Samedi"
	Sunday   = "Dimanche"

	// NowLabel replaces the label of the current bin.
	NowLabel = "Now"

	ridershipRows = 100
	labelStride   = 5
)

// lineAliases maps short line names to their key in the ridership dataset.
var lineAliases = map[string]string{
	"a": "Métro a",
}

var levels = map[string]int{
	"faible":     1,
	"moyenne":    2,
	"forte":      3,
	"très forte": 4,
}

// Chart is a line's expected crowding across the day.
type Chart struct {
	Labels       []string `json:"labels"`
	Values       []int    `json:"values"`
	CurrentIndex int      `json:"current_index"`
}

// Bin is one time slot of a Chart.
type Bin struct {
	TimeLabel string `json:"time_label"`
	Level     int    `json:"level"`
	IsCurrent bool   `json:"is_current"`
}

type Binner struct {
	fetcher feed.Fetcher
	dataset string
	clock   clock.Clock
	logger  logger.Logger
}

func NewBinner(fetcher feed.Fetcher, dataset string, clk clock.Clock, log logger.Logger) *Binner {
	return &Binner{
		fetcher: fetcher,
		dataset: dataset,
		clock:   clk,
		logger:  log.With("component", "ridership"),
	}
}

// DayType returns the dataset's day category for t.
func DayType(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday:
		return Saturday
	case time.Sunday:
		return Sunday
	default:
		return Weekday
	}
}

// FrequentationFor returns the crowding chart of line. With no data the
// chart is empty and CurrentIndex is -1.
func (b *Binner) FrequentationFor(ctx context.Context, line string) Chart {
	now := b.clock.Now()

	key := line
	if alias, ok := lineAliases[line]; ok {
		key = alias
	}

	// Only weekday profiles are queried, whatever the actual day.
	dayType := DayType(now)
	if dayType != Weekday {
		b.logger.Debug("Using weekday profile", "line", line, "day_type", dayType)
	}
	dayType = Weekday

	records := b.fetcher.Fetch(ctx, feed.Query{
		Dataset: b.dataset,
		Refine:  map[string]string{"ligne": key, "type_jour": dayType},
		Facets:  []string{"ligne", "type_jour", "tranche_horaire"},
		Sort:    "-tranche_horaire",
		Rows:    ridershipRows,
	})

	chart := Chart{Labels: []string{}, Values: []int{}, CurrentIndex: -1}
	for _, r := range feed.Decode[models.Ridership](b.logger, records) {
		if strings.TrimSpace(r.Frequentation) == "" {
			continue
		}
		level, ok := parseLevel(r.Frequentation)
		if !ok {
			b.logger.Warn("Unknown ridership level", "line", line, "level", r.Frequentation)
			continue
		}
		chart.Labels = append(chart.Labels, slotLabel(r.TrancheHoraire))
		chart.Values = append(chart.Values, level)
	}

	if len(chart.Labels) == 0 {
		return chart
	}

	chart.CurrentIndex = currentIndex(chart.Labels, clock.HHMM(now))
	for i := range chart.Labels {
		if i%labelStride != 0 {
			chart.Labels[i] = ""
		}
	}
	chart.Labels[chart.CurrentIndex] = NowLabel

	return chart
}

// Bins renders the chart as one Bin per slot.
func (c Chart) Bins() []Bin {
	bins := make([]Bin, len(c.Labels))
	for i := range c.Labels {
		bins[i] = Bin{
			TimeLabel: c.Labels[i],
			Level:     c.Values[i],
			IsCurrent: i == c.CurrentIndex,
		}
	}
	return bins
}

// currentIndex finds the slot [labels[i], labels[i+1]) containing now,
// falling back to the last slot. Labels are HH:MM and compare as strings.
func currentIndex(labels []string, now string) int {
	for i := 0; i+1 < len(labels); i++ {
		if labels[i] <= now && now < labels[i+1] {
			return i
		}
	}
	return len(labels) - 1
}

// slotLabel keeps the HH:MM start of a slot such as "08:15:00",
// "08:15-08:30" or "8:15". Single digit hours are zero-padded so labels
// keep comparing as strings.
func slotLabel(slot string) string {
	slot = strings.TrimSpace(slot)
	hour, rest, ok := strings.Cut(slot, ":")
	if !ok || len(rest) < 2 {
		return slot
	}
	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return slot
	}
	if _, err := strconv.Atoi(rest[:2]); err != nil {
		return slot
	}
	return fmt.Sprintf("%02d:%s", h, rest[:2])
}

func parseLevel(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if level, ok := levels[s]; ok {
		return level, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	return 0, false
}
