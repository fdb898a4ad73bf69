package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/moov-data/pkg/star/models"
)

// Stub is an in-memory Fetcher keyed by dataset. Refine filters are applied
// against the string form of each record's fields. It counts calls per
// dataset and is safe for concurrent use.
type Stub struct {
	mu       sync.Mutex
	datasets map[string][]models.Record
	calls    map[string]int
}

func NewStub() *Stub {
	return &Stub{
		datasets: make(map[string][]models.Record),
		calls:    make(map[string]int),
	}
}

// Add appends a record built from fields to dataset.
func (s *Stub) Add(dataset string, fields map[string]interface{}) {
	s.AddWithGeometry(dataset, fields, nil)
}

func (s *Stub) AddWithGeometry(dataset string, fields map[string]interface{}, geometry *models.Geometry) {
	raw, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[dataset] = append(s.datasets[dataset], models.Record{
		DatasetID: dataset,
		Fields:    raw,
		Geometry:  geometry,
	})
}

// Reset drops every record of dataset.
func (s *Stub) Reset(dataset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.datasets, dataset)
}

// Calls returns how many times dataset was fetched.
func (s *Stub) Calls(dataset string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[dataset]
}

func (s *Stub) Fetch(ctx context.Context, q Query) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[q.Dataset]++

	var out []models.Record
	for _, rec := range s.datasets[q.Dataset] {
		if !matches(rec, q.Refine) {
			continue
		}
		out = append(out, rec)
		if q.Rows > 0 && len(out) == q.Rows {
			break
		}
	}
	return out
}

func matches(rec models.Record, refine map[string]string) bool {
	if len(refine) == 0 {
		return true
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(rec.Fields, &fields); err != nil {
		return false
	}
	for k, want := range refine {
		got, ok := fields[k]
		if !ok {
			return false
		}
		if s, ok := got.(string); !ok || s != want {
			return false
		}
	}
	return true
}
