// Package board renders station departures, events and posters as a
// terminal departure board.
package board

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"departureboard/pkg/config"
	"departureboard/pkg/metrics"
	"departureboard/pkg/station"
	"departureboard/pkg/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	DefaultFailureThreshold = 3
	DefaultDirectionWidth   = 28
	DefaultPosterInterval   = 60 * time.Second
)

const (
	colorText        = "#ffffff"
	colorUnreachable = "#d22222"
	colorError       = "#808080"
	colorStation     = "#28282d"
	colorInfo        = "#4070c5"
)

// Snapshot is the output of one refresh tick.
type Snapshot struct {
	Time     time.Time
	Stations []station.Result
}

type Options struct {
	// FailureThreshold is the number of consecutive failed ticks after which
	// a station shows the fetch failure notice instead of its last rows.
	FailureThreshold int
	DirectionWidth   int
	PosterInterval   time.Duration
	// Icons override or extend DefaultIcons, keyed by line or product.
	Icons   map[string]Icon
	NoColor bool
	// Clear redraws in place instead of appending frames.
	Clear bool
}

// panel is the display state of one configured station.
type panel struct {
	station  config.Station
	rows     []types.Departure
	updated  time.Time
	failures int
}

// Board keeps the last known departures per station and draws a frame on
// every update. It is safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	w       io.Writer
	out     *termenv.Output
	opts    Options
	icons   map[string]Icon
	events  []config.Event
	posters []config.Poster
	panels  []*panel
	// started is the time of the first snapshot; posters rotate from it.
	started time.Time
	styles  styles
}

type styles struct {
	panel       lipgloss.Style
	info        lipgloss.Style
	title       lipgloss.Style
	text        lipgloss.Style
	unreachable lipgloss.Style
	err         lipgloss.Style
	clock       lipgloss.Style
}

func New(w io.Writer, cfg *config.Config, opts Options) *Board {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.DirectionWidth <= 0 {
		opts.DirectionWidth = DefaultDirectionWidth
	}
	if opts.PosterInterval <= 0 {
		opts.PosterInterval = DefaultPosterInterval
	}

	icons := make(map[string]Icon, len(DefaultIcons)+len(opts.Icons))
	for k, v := range DefaultIcons {
		icons[k] = v
	}
	for k, v := range opts.Icons {
		icons[k] = v
	}

	stations := slices.Clone(cfg.Stations)
	slices.SortStableFunc(stations, func(a, b config.Station) int {
		return cmp.Or(cmp.Compare(a.Row, b.Row), cmp.Compare(a.Col, b.Col))
	})
	panels := make([]*panel, len(stations))
	for i, st := range stations {
		panels[i] = &panel{station: st}
	}

	renderer := lipgloss.NewRenderer(w)
	if opts.NoColor {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &Board{
		w:       w,
		out:     renderer.Output(),
		opts:    opts,
		icons:   icons,
		events:  cfg.Events,
		posters: cfg.Posters,
		panels:  panels,
		styles:  newStyles(renderer),
	}
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorStation)).
			Padding(0, 1),
		info: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorInfo)).
			Padding(0, 1),
		title:       r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorText)),
		text:        r.NewStyle().Foreground(lipgloss.Color(colorText)),
		unreachable: r.NewStyle().Foreground(lipgloss.Color(colorUnreachable)),
		err:         r.NewStyle().Foreground(lipgloss.Color(colorError)),
		clock:       r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorInfo)),
	}
}

// Update applies snap and writes a new frame.
func (b *Board) Update(_ context.Context, snap Snapshot) {
	b.Apply(snap)

	frame := b.Render(snap.Time)
	if b.opts.Clear {
		b.out.ClearScreen()
	}
	if _, err := fmt.Fprintln(b.w, frame); err != nil {
		slog.Error("Failed to write board frame", "error", err)
	}
}

// Apply records the results of a tick. Failed stations keep their previous
// rows and count towards the failure threshold.
func (b *Board) Apply(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started.IsZero() {
		b.started = snap.Time
	}

	claimed := make(map[*panel]bool, len(b.panels))
	for _, r := range snap.Stations {
		p := b.find(r.Station.ID, claimed)
		if p == nil {
			slog.Debug("Ignoring result for unknown station", "station", r.Station.ID)
			continue
		}
		if r.Failed {
			p.failures++
		} else {
			p.failures = 0
			p.rows = r.Departures
			p.updated = snap.Time
		}
	}
	stale := 0
	for _, p := range b.panels {
		if p.failures >= b.opts.FailureThreshold {
			stale++
		}
	}
	metrics.SetStaleStations(stale)
}

// find matches a result to its panel. Results arrive in configuration order,
// which differs from the display order, so a station id configured twice is
// matched to its panels in turn.
func (b *Board) find(id string, claimed map[*panel]bool) *panel {
	for _, p := range b.panels {
		if p.station.ID == id && !claimed[p] {
			claimed[p] = true
			return p
		}
	}
	return nil
}

// Render draws the board at now.
func (b *Board) Render(now time.Time) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var rows []string
	var current []string
	lastRow := 0
	for i, p := range b.panels {
		if i > 0 && p.station.Row != lastRow {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, current...))
			current = nil
		}
		lastRow = p.station.Row
		current = append(current, b.renderPanel(p, now))
	}
	if len(current) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, current...))
	}

	stations := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return lipgloss.JoinHorizontal(lipgloss.Top, stations, b.renderInfo(now))
}

func (b *Board) renderPanel(p *panel, now time.Time) string {
	lines := []string{b.styles.title.Render(p.station.Title)}

	slots := max(p.station.MaxDepartures, 1)
	if p.failures >= b.opts.FailureThreshold {
		for range slots {
			lines = append(lines, b.styles.err.Width(b.slotWidth()).Render(fetchFailedText))
		}
		return b.styles.panel.Render(strings.Join(lines, "\n"))
	}

	rows := visibleRows(p, now)
	for i := range slots {
		if i < len(rows) {
			lines = append(lines, b.renderSlot(rows[i]))
		} else {
			lines = append(lines, b.renderPlaceholder())
		}
	}
	return b.styles.panel.Render(strings.Join(lines, "\n"))
}

// visibleRows ages the last known rows to now and drops departures that
// have left.
func visibleRows(p *panel, now time.Time) []types.Departure {
	elapsed := 0.0
	if !p.updated.IsZero() {
		elapsed = now.Sub(p.updated).Minutes()
	}

	rows := make([]types.Departure, 0, len(p.rows))
	for _, dep := range p.rows {
		dep.TimeLeft -= elapsed
		if dep.TimeLeft < 0 {
			continue
		}
		dep.Reachable = dep.TimeLeft > p.station.TimeNeeded
		rows = append(rows, dep)
	}
	return rows
}

const (
	badgeWidth = 5
	timeWidth  = 3
)

func (b *Board) slotWidth() int {
	return badgeWidth + 1 + b.opts.DirectionWidth + 1 + timeWidth
}

func (b *Board) renderSlot(dep types.Departure) string {
	icon := resolveIcon(dep, b.icons)
	badge := b.styles.title.
		Foreground(lipgloss.Color(icon.Color)).
		Width(badgeWidth).
		Render(truncateLabel(icon.Label, badgeWidth))

	direction := b.styles.text.Render(FitDirection(FilterDirection(dep.Direction), b.opts.DirectionWidth))

	timeStyle := b.styles.text
	if !dep.Reachable {
		timeStyle = b.styles.unreachable
	}
	label := timeStyle.Width(timeWidth).Align(lipgloss.Right).Render(TimeLabel(dep.TimeLeft))

	return badge + " " + direction + " " + label
}

func (b *Board) renderPlaceholder() string {
	return b.styles.err.Width(b.slotWidth()).Render(strings.Repeat(" ", badgeWidth+1) + placeholder)
}

func truncateLabel(label string, width int) string {
	if len([]rune(label)) <= width {
		return label
	}
	return string([]rune(label)[:width])
}

func (b *Board) renderInfo(now time.Time) string {
	lines := []string{b.styles.clock.Render(now.Format("15:04"))}

	if len(b.events) > 0 {
		lines = append(lines, "", b.styles.title.Render("Events"))
		for _, e := range b.events {
			lines = append(lines, b.styles.text.Render(fmt.Sprintf("%-6s %s", e.Date, e.Desc)))
		}
	}

	if len(b.posters) > 0 {
		lines = append(lines, "", b.styles.title.Render("Posters"))
		for _, p := range b.posters {
			lines = append(lines, b.styles.text.Render(PosterAt(p, now.Sub(b.started), b.opts.PosterInterval)))
		}
	}

	return b.styles.info.Render(strings.Join(lines, "\n"))
}

// PosterAt returns the name of the image of p shown after elapsed.
func PosterAt(p config.Poster, elapsed, interval time.Duration) string {
	if len(p.Images) == 0 {
		return ""
	}
	idx := 0
	if interval > 0 && elapsed > 0 {
		idx = int(elapsed/interval) % len(p.Images)
	}
	return filepath.Base(p.Images[idx])
}
