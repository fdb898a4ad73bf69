// Package models holds the typed records of the STAR open-data datasets.
// Field names follow the upstream schema; validate tags are checked at the
// feed client boundary.
package models

import (
	"encoding/json"
	"fmt"
)

// SearchResponse is the body of a records search call.
type SearchResponse struct {
	NHits   int      `json:"nhits"`
	Records []Record `json:"records"`
}

// Record is one upstream record with its raw fields kept for typed decoding.
type Record struct {
	DatasetID string          `json:"datasetid"`
	RecordID  string          `json:"recordid"`
	Fields    json.RawMessage `json:"fields"`
	Geometry  *Geometry       `json:"geometry,omitempty"`
}

// Geometry is the record's point geometry in (lon, lat) order.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Stop is a line serving a stop (dessertes topology).
type Stop struct {
	IDLigne              string `json:"idligne" validate:"required"`
	NomCourtLigne        string `json:"nomcourtligne" validate:"required"`
	NomArret             string `json:"nomarret" validate:"required"`
	IDArret              string `json:"idarret"`
	LibelleCourtParcours string `json:"libellecourtparcours"`
}

// Passage is one live or scheduled departure at a stop.
type Passage struct {
	IDLigne         string `json:"idligne" validate:"required"`
	NomCourtLigne   string `json:"nomcourtligne" validate:"required"`
	Destination     string `json:"destination" validate:"required"`
	NomArret        string `json:"nomarret"`
	Sens            int    `json:"sens"`
	Precision       string `json:"precision"`
	Depart          string `json:"depart"`
	DepartTheorique string `json:"departtheorique"`
}

// Timing returns the value of the named timing field ("depart" or
// "departtheorique").
func (p Passage) Timing(field string) string {
	switch field {
	case "depart":
		return p.Depart
	case "departtheorique":
		return p.DepartTheorique
	default:
		return ""
	}
}

// Route is a line path (parcours topology).
type Route struct {
	IDLigne       string `json:"idligne"`
	NomCourtLigne string `json:"nomcourtligne" validate:"required"`
	Sens          int    `json:"sens"`
	LibelleLong   string `json:"libellelong"`
	Parcours      *Shape `json:"parcours" validate:"required"`
}

// Shape is a GeoJSON LineString or MultiLineString in (lon, lat) order.
type Shape struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Lines returns the shape as a list of polylines.
func (s Shape) Lines() ([][][2]float64, error) {
	switch s.Type {
	case "LineString":
		var line [][2]float64
		if err := json.Unmarshal(s.Coordinates, &line); err != nil {
			return nil, fmt.Errorf("decoding LineString: %w", err)
		}
		return [][][2]float64{line}, nil
	case "MultiLineString":
		var lines [][][2]float64
		if err := json.Unmarshal(s.Coordinates, &lines); err != nil {
			return nil, fmt.Errorf("decoding MultiLineString: %w", err)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("unsupported shape type %q", s.Type)
	}
}

// Alert is a traffic disruption notice.
type Alert struct {
	IDLigne       string `json:"idligne"`
	NomCourtLigne string `json:"nomcourtligne" validate:"required"`
	Niveau        string `json:"niveau" validate:"required"`
	DebutValidite string `json:"debutvalidite" validate:"required"`
	FinValidite   string `json:"finvalidite"`
	Titre         string `json:"titre"`
	Description   string `json:"description"`
}

// Ridership is one time slot of a line's expected crowding.
type Ridership struct {
	Ligne          string `json:"ligne" validate:"required"`
	TrancheHoraire string `json:"tranche_horaire" validate:"required"`
	TypeJour       string `json:"type_jour"`
	Frequentation  string `json:"frequentation"`
}

// Vehicle is a live bus position. Coordonnees is (lat, lon).
type Vehicle struct {
	IDBus         string    `json:"idbus"`
	NumeroBus     string    `json:"numerobus" validate:"required"`
	NomCourtLigne string    `json:"nomcourtligne" validate:"required"`
	Sens          int       `json:"sens"`
	Destination   string    `json:"destination"`
	Etat          string    `json:"etat"`
	EcartSecondes int       `json:"ecartsecondes"`
	Coordonnees   []float64 `json:"coordonnees" validate:"len=2"`
}
