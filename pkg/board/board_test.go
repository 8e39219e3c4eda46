package board

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"departureboard/pkg/config"
	"departureboard/pkg/station"
	"departureboard/pkg/types"
)

var tick = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Stations: []config.Station{
			{ID: "b", Title: "U Weberwiese", Row: 1, Col: 0, MaxDepartures: 2, TimeNeeded: 4},
			{ID: "a", Title: "S Ostkreuz", Row: 0, Col: 0, MaxDepartures: 3, TimeNeeded: 8},
		},
		Events:  []config.Event{{Date: "24.10.", Desc: "Hoffest"}},
		Posters: []config.Poster{{Images: []string{"/posters/one.png", "/posters/two.png"}}},
	}
}

func result(st config.Station, failed bool, deps ...types.Departure) station.Result {
	if deps == nil {
		deps = []types.Departure{}
	}
	return station.Result{Station: st, Departures: deps, Failed: failed}
}

func TestBoard_RendersPanelsInGridOrder(t *testing.T) {
	cfg := testConfig()
	b := New(&bytes.Buffer{}, cfg, Options{NoColor: true})

	b.Apply(Snapshot{Time: tick, Stations: []station.Result{
		result(cfg.Stations[0], false, types.Departure{ID: "1", Line: "u5", Product: types.ProductSubway, Direction: "U Hönow", TimeLeft: 6.7, Reachable: true}),
		result(cfg.Stations[1], false,
			types.Departure{ID: "2", Line: "s41", Product: types.ProductSuburban, Direction: "Ringbahn S 41", TimeLeft: 5.2},
			types.Departure{ID: "3", Line: "s3", Product: types.ProductSuburban, Direction: "S Erkner Bhf", TimeLeft: 12.9, Reachable: true},
		),
	}})

	out := b.Render(tick)
	ostkreuz := strings.Index(out, "S Ostkreuz")
	weberwiese := strings.Index(out, "U Weberwiese")
	require.NotEqual(t, -1, ostkreuz)
	require.NotEqual(t, -1, weberwiese)
	assert.Less(t, ostkreuz, weberwiese, "row 0 renders above row 1")

	assert.Contains(t, out, "S41")
	assert.Contains(t, out, "Ringbahn S 41")
	assert.Contains(t, out, "S Erkner .")
	assert.NotContains(t, out, "Bhf")
	assert.Contains(t, out, " 12")
	assert.Contains(t, out, "12:00")
	assert.Contains(t, out, "Hoffest")
	assert.Contains(t, out, "one.png")

	// Ostkreuz shows two departures in three slots, Weberwiese one in two.
	assert.Equal(t, 2, strings.Count(out, placeholder))
}

func TestBoard_UnreachableTimeIsRed(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer
	b := New(&buf, cfg, Options{})
	r := lipgloss.NewRenderer(&buf)
	r.SetColorProfile(termenv.TrueColor)
	b.styles = newStyles(r)

	dep := types.Departure{ID: "1", Line: "s41", Product: types.ProductSuburban, Direction: "Ringbahn", TimeLeft: 5.5}
	unreachable := b.renderSlot(dep)
	assert.Contains(t, unreachable, "38;2;210;34;34")

	dep.Reachable = true
	assert.NotContains(t, b.renderSlot(dep), "38;2;210;34;34")
}

func TestBoard_KeepsLastRowsUntilFailureThreshold(t *testing.T) {
	cfg := testConfig()
	st := cfg.Stations[1]
	b := New(&bytes.Buffer{}, &config.Config{Stations: []config.Station{st}}, Options{NoColor: true, FailureThreshold: 2})

	b.Apply(Snapshot{Time: tick, Stations: []station.Result{
		result(st, false, types.Departure{ID: "1", Line: "s3", Direction: "S Erkner", TimeLeft: 20, Reachable: true}),
	}})

	// One failed tick a minute later: last rows stay, aged by a minute.
	next := tick.Add(time.Minute)
	b.Apply(Snapshot{Time: next, Stations: []station.Result{result(st, true)}})
	out := b.Render(next)
	assert.Contains(t, out, "S Erkner")
	assert.Contains(t, out, " 19")
	assert.NotContains(t, out, fetchFailedText)

	// Second consecutive failure reaches the threshold.
	next = next.Add(time.Minute)
	b.Apply(Snapshot{Time: next, Stations: []station.Result{result(st, true)}})
	out = b.Render(next)
	assert.Contains(t, out, fetchFailedText)
	assert.NotContains(t, out, "S Erkner")

	// A successful tick resets the failure count.
	next = next.Add(time.Minute)
	b.Apply(Snapshot{Time: next, Stations: []station.Result{result(st, false)}})
	assert.NotContains(t, b.Render(next), fetchFailedText)
}

func TestBoard_AgedRowsDropWhenDeparted(t *testing.T) {
	st := config.Station{ID: "a", Title: "S Ostkreuz", MaxDepartures: 2, TimeNeeded: 8}
	b := New(&bytes.Buffer{}, &config.Config{Stations: []config.Station{st}}, Options{NoColor: true})

	b.Apply(Snapshot{Time: tick, Stations: []station.Result{
		result(st, false,
			types.Departure{ID: "1", Line: "s3", Direction: "S Spandau", TimeLeft: 9, Reachable: true},
			types.Departure{ID: "2", Line: "s3", Direction: "S Erkner", TimeLeft: 30, Reachable: true},
		),
	}})

	rows := visibleRows(b.panels[0], tick.Add(5*time.Minute))
	require.Len(t, rows, 2)
	assert.InDelta(t, 4.0, rows[0].TimeLeft, 1e-9)
	assert.False(t, rows[0].Reachable, "4 minutes left is below time needed")

	rows = visibleRows(b.panels[0], tick.Add(10*time.Minute))
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)
}

func TestBoard_RepeatedStationIDs(t *testing.T) {
	west := config.Station{ID: "x", Title: "Westbound", Row: 0, MaxDepartures: 1}
	east := config.Station{ID: "x", Title: "Eastbound", Row: 1, MaxDepartures: 1}
	b := New(&bytes.Buffer{}, &config.Config{Stations: []config.Station{west, east}}, Options{NoColor: true, FailureThreshold: 1})

	b.Apply(Snapshot{Time: tick, Stations: []station.Result{
		result(west, false, types.Departure{ID: "1", Line: "m10", Direction: "Warschauer", TimeLeft: 7}),
		result(east, true),
	}})

	assert.Equal(t, 1, strings.Count(b.Render(tick), fetchFailedText))
}

func TestBoard_UpdateWritesFrame(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer
	b := New(&buf, cfg, Options{NoColor: true, Clear: true})

	b.Update(context.Background(), Snapshot{Time: tick, Stations: []station.Result{
		result(cfg.Stations[0], false), result(cfg.Stations[1], false),
	}})

	var clear bytes.Buffer
	termenv.NewOutput(&clear).ClearScreen()
	require.NotEmpty(t, clear.String())
	assert.True(t, strings.HasPrefix(buf.String(), clear.String()))
	assert.Contains(t, buf.String(), "S Ostkreuz")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestPosterAt(t *testing.T) {
	p := config.Poster{Images: []string{"/p/a.png", "/p/b.png", "/p/c.png"}}
	interval := time.Minute

	assert.Equal(t, "a.png", PosterAt(p, 0, interval))
	assert.Equal(t, "a.png", PosterAt(p, 59*time.Second, interval))
	assert.Equal(t, "b.png", PosterAt(p, time.Minute, interval))
	assert.Equal(t, "c.png", PosterAt(p, 2*time.Minute+time.Second, interval))
	assert.Equal(t, "a.png", PosterAt(p, 3*time.Minute, interval))
	assert.Empty(t, PosterAt(config.Poster{}, time.Minute, interval))
}
