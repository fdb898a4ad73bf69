package feed

import (
	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/config"
)

// Mode is the transport mode of a line.
type Mode int

const (
	Bus Mode = iota
	Metro
)

func (m Mode) String() string {
	switch m {
	case Bus:
		return "bus"
	case Metro:
		return "metro"
	default:
		return "unknown"
	}
}

// ModeConfig carries everything that differs between bus and metro feeds.
type ModeConfig struct {
	Mode            Mode
	StopsDataset    string
	PassagesDataset string
	RoutesDataset   string
	// TimingField is the departure field read from passages. The metro feed
	// only exposes the real-time "depart".
	TimingField string
	RowCap      int
}

// Modes resolves lines to their mode configuration.
type Modes struct {
	metroLineID   string
	metroLineCode string
	bus           ModeConfig
	metro         ModeConfig
}

func NewModes(catalog config.Catalog) Modes {
	return Modes{
		metroLineID:   catalog.MetroLineID,
		metroLineCode: catalog.MetroLineCode,
		bus: ModeConfig{
			Mode:            Bus,
			StopsDataset:    catalog.BusStops,
			PassagesDataset: catalog.BusPassages,
			RoutesDataset:   catalog.BusRoutes,
			TimingField:     "departtheorique",
			RowCap:          catalog.BusRowCap,
		},
		metro: ModeConfig{
			Mode:            Metro,
			StopsDataset:    catalog.MetroStops,
			PassagesDataset: catalog.MetroPassages,
			RoutesDataset:   catalog.MetroRoutes,
			TimingField:     "depart",
			RowCap:          catalog.MetroRowCap,
		},
	}
}

// All returns bus then metro.
func (m Modes) All() []ModeConfig {
	return []ModeConfig{m.bus, m.metro}
}

func (m Modes) Get(mode Mode) ModeConfig {
	if mode == Metro {
		return m.metro
	}
	return m.bus
}

// ForLine selects the mode from a line identifier.
func (m Modes) ForLine(idLigne string) ModeConfig {
	if idLigne == m.metroLineID {
		return m.metro
	}
	return m.bus
}

// IsMetroLine reports whether a short line name is the metro line.
func (m Modes) IsMetroLine(name string) bool {
	return name == m.metroLineCode
}

// MetroLineCode is the short name of the metro line.
func (m Modes) MetroLineCode() string {
	return m.metroLineCode
}

// TimingFieldForLine picks the departure field by short line name.
func (m Modes) TimingFieldForLine(name string) string {
	if m.IsMetroLine(name) {
		return m.metro.TimingField
	}
	return m.bus.TimingField
}

// StopsQuery lists the lines serving a station. An empty station lists all.
func (mc ModeConfig) StopsQuery(station string, rows int) Query {
	q := Query{
		Dataset: mc.StopsDataset,
		Facets:  []string{"libellecourtparcours", "nomcourtligne", "nomarret", "estmonteeautorisee", "estdescenteautorisee"},
		Sort:    "idparcours",
		Rows:    rows,
	}
	if station != "" {
		q.Refine = map[string]string{"nomarret": station}
	}
	return q
}

// PassagesQuery lists upcoming passages of one line at one station, earliest
// first.
func (mc ModeConfig) PassagesQuery(idLigne, station string) Query {
	return Query{
		Dataset:  mc.PassagesDataset,
		Refine:   map[string]string{"idligne": idLigne, "nomarret": station},
		Facets:   []string{"idligne", "nomcourtligne", "sens", "destination", "precision", "nomarret"},
		Sort:     "-" + mc.TimingField,
		Rows:     mc.RowCap,
		Timezone: clock.Zone,
	}
}

// RoutesQuery lists every path of the mode.
func (mc ModeConfig) RoutesQuery(rows int) Query {
	return Query{
		Dataset: mc.RoutesDataset,
		Facets:  []string{"nomcourtligne", "senscommercial", "type"},
		Rows:    rows,
	}
}
