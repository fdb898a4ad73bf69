package alerts

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/moov-data/internal/common/config"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addAlert(s *feed.Stub, dataset, level, line, start, title string) {
	s.Add(dataset, map[string]interface{}{
		"niveau":        level,
		"nomcourtligne": line,
		"debutvalidite": start,
		"titre":         title,
		"description":   title + " details",
	})
}

func newFilter(s *feed.Stub) *Filter {
	catalog := config.DefaultCatalog()
	return NewFilter(s, catalog.Alerts, feed.NewModes(catalog), logger.Nop())
}

func TestActiveAlertsClassifies(t *testing.T) {
	ds := config.DefaultCatalog().Alerts
	s := feed.NewStub()
	addAlert(s, ds, "Majeure", "a", "2024-02-03T07:05:00+01:00", "Interruption métro")
	addAlert(s, ds, "Majeure", "C4", "2024-11-09T18:30:00+01:00", "Déviation")
	addAlert(s, ds, "Mineure", "a", "2024-02-03T07:05:00+01:00", "Retards")
	addAlert(s, ds, "Mineure", "C1", "2024-02-03T07:05:00+01:00", "Arrêt déplacé")
	addAlert(s, ds, "Majeure", "C2", "tomorrow", "Grève")

	buckets := newFilter(s).ActiveAlerts(context.Background())

	require.Contains(t, buckets, Tram)
	assert.Empty(t, buckets[Tram])

	require.Len(t, buckets[Metro], 1)
	assert.Equal(t, Alert{
		Line:    "a",
		Start:   "3-2-2024 07:05",
		Title:   "Interruption métro",
		Message: "Interruption métro details",
	}, buckets[Metro][0])

	require.Len(t, buckets[Bus], 1)
	assert.Equal(t, "C4", buckets[Bus][0].Line)
	assert.Equal(t, "9-11-2024 18:30", buckets[Bus][0].Start)

	for _, bucket := range buckets {
		for _, a := range bucket {
			assert.NotEqual(t, "Retards", a.Title, "minor alerts never appear")
		}
	}
}

func TestActiveAlertsEmptyFeed(t *testing.T) {
	buckets := newFilter(feed.NewStub()).ActiveAlerts(context.Background())

	assert.Len(t, buckets, 3)
	for _, key := range []string{Bus, Metro, Tram} {
		assert.NotNil(t, buckets[key])
		assert.Empty(t, buckets[key])
	}
}

type recordingSender struct {
	sent []string
	fail bool
}

func (r *recordingSender) SendTrafficAlert(ctx context.Context, bucket, line, start, title, message string) error {
	if r.fail {
		return errors.New("webhook down")
	}
	r.sent = append(r.sent, bucket+":"+line)
	return nil
}

func TestNotifierSendsOnce(t *testing.T) {
	ds := config.DefaultCatalog().Alerts
	s := feed.NewStub()
	addAlert(s, ds, "Majeure", "C4", "2024-11-09T18:30:00+01:00", "Déviation")
	addAlert(s, ds, "Majeure", "a", "2024-11-09T18:00:00+01:00", "Interruption")

	sender := &recordingSender{fail: true}
	n := NewNotifier(newFilter(s), sender, logger.Nop())

	assert.Equal(t, 0, n.Notify(context.Background()), "failed deliveries are not recorded")

	sender.fail = false
	assert.Equal(t, 2, n.Notify(context.Background()))
	assert.Equal(t, []string{"METRO:a", "BUS:C4"}, sender.sent)

	assert.Equal(t, 0, n.Notify(context.Background()))

	addAlert(s, ds, "Majeure", "C4", "2024-11-09T19:00:00+01:00", "Déviation")
	assert.Equal(t, 1, n.Notify(context.Background()))
}

func TestNotifierFailureIsAWarning(t *testing.T) {
	ds := config.DefaultCatalog().Alerts
	s := feed.NewStub()
	addAlert(s, ds, "Majeure", "C4", "2024-11-09T18:30:00+01:00", "Déviation")

	var buf bytes.Buffer
	n := NewNotifier(newFilter(s), &recordingSender{fail: true}, logger.New(&buf))

	assert.Equal(t, 0, n.Notify(context.Background()))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestNotifierForgetsResolvedAlerts(t *testing.T) {
	ds := config.DefaultCatalog().Alerts
	s := feed.NewStub()
	addAlert(s, ds, "Majeure", "C4", "2024-11-09T18:30:00+01:00", "Déviation")
	addAlert(s, ds, "Majeure", "a", "2024-11-09T18:00:00+01:00", "Interruption")

	sender := &recordingSender{}
	n := NewNotifier(newFilter(s), sender, logger.Nop())
	require.Equal(t, 2, n.Notify(context.Background()))

	s.Reset(ds)
	assert.Equal(t, 0, n.Notify(context.Background()))
	assert.Len(t, n.sent, 2, "an empty pass keeps history")

	addAlert(s, ds, "Majeure", "a", "2024-11-09T18:00:00+01:00", "Interruption")
	assert.Equal(t, 0, n.Notify(context.Background()))
	assert.Len(t, n.sent, 1)

	addAlert(s, ds, "Majeure", "C4", "2024-11-09T18:30:00+01:00", "Déviation")
	assert.Equal(t, 1, n.Notify(context.Background()), "a returning alert is sent again")
	assert.Equal(t, []string{"METRO:a", "BUS:C4", "BUS:C4"}, sender.sent)
}
