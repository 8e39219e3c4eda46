package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"departureboard/pkg/timewindow"
	"departureboard/pkg/types"
)

// Config is the board configuration document, loaded once at startup.
type Config struct {
	Stations []Station
	Events   []Event
	Posters  []Poster
}

// Station describes one stop shown on the board and how to query it.
type Station struct {
	ID    string
	Title string
	Row   int
	Col   int

	// MaxDepartures is passed to the API as a result-count hint per direction
	// and bounds the number of board slots. It is not a hard cap.
	MaxDepartures int

	MinTime    float64 // minutes
	MaxTime    float64 // minutes
	TimeNeeded float64 // minutes to walk to the platform

	NightWindow timewindow.Window

	Day   *DirectionsAndProducts // nil: nothing is fetched during the day
	Night *DirectionsAndProducts // nil: nothing is fetched at night
}

// Active returns the options that apply at now, or nil when that window is
// not configured.
func (s Station) Active(now time.Time) *DirectionsAndProducts {
	if s.NightWindow.Contains(now) {
		return s.Night
	}
	return s.Day
}

// IsNight reports whether the night options apply at now.
func (s Station) IsNight(now time.Time) bool {
	return s.NightWindow.Contains(now)
}

// DirectionsAndProducts selects which line branches and modes are queried.
type DirectionsAndProducts struct {
	// Directions are station ids a departure stops at after leaving. An
	// empty string queries every direction.
	Directions []string
	Products   types.Products
}

// Event is an entry of the board's events panel.
type Event struct {
	Date string `json:"date"`
	Desc string `json:"desc"`
}

// Poster is a set of images cycled through on the board.
type Poster struct {
	Images []string
}

// ValidationError reports a configuration problem. These are fatal at startup.
type ValidationError struct {
	Section string // "stations", "events" or "posters"
	Index   int
	Field   string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s[%d]: %v", e.Section, e.Index, e.Err)
	}
	return fmt.Sprintf("%s[%d].%s: %v", e.Section, e.Index, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var errRequired = errors.New("required field missing")

type document struct {
	PosterDir string            `json:"poster_dir"`
	Stations  []stationDocument `json:"stations"`
	Events    []Event           `json:"events"`
	Posters   []posterDocument  `json:"posters"`
}

type stationDocument struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Row           int             `json:"row"`
	Col           int             `json:"col"`
	MaxDepartures *int            `json:"max_departures"`
	MinTime       *float64        `json:"min_time"`
	MaxTime       *float64        `json:"max_time"`
	TimeNeeded    *float64        `json:"time_needed"`
	StartNight    string          `json:"start_night"`
	StopNight     string          `json:"stop_night"`
	Day           *optionsDocument `json:"day"`
	Night         *optionsDocument `json:"night"`
}

type optionsDocument struct {
	Directions []string `json:"directions"`
	Products   []string `json:"products"`
}

type posterDocument struct {
	Images []string `json:"images"`
}

// Load reads and validates the configuration document at path. Poster image
// paths are resolved relative to poster_dir, which is itself relative to the
// document's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte, baseDir string) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if doc.Stations == nil {
		return nil, errors.New("section 'stations' not found")
	}

	cfg := &Config{
		Stations: make([]Station, 0, len(doc.Stations)),
		Events:   make([]Event, 0, len(doc.Events)),
		Posters:  make([]Poster, 0, len(doc.Posters)),
	}

	for i, sd := range doc.Stations {
		st, err := sd.build()
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Index = i
				return nil, verr
			}
			return nil, &ValidationError{Section: "stations", Index: i, Err: err}
		}
		cfg.Stations = append(cfg.Stations, st)
	}

	for i, ev := range doc.Events {
		if strings.TrimSpace(ev.Date) == "" {
			return nil, &ValidationError{Section: "events", Index: i, Field: "date", Err: errRequired}
		}
		cfg.Events = append(cfg.Events, ev)
	}

	posterDir := doc.PosterDir
	if posterDir == "" {
		posterDir = "posters"
	}
	if !filepath.IsAbs(posterDir) {
		posterDir = filepath.Join(baseDir, posterDir)
	}
	for i, pd := range doc.Posters {
		poster, err := pd.build(posterDir)
		if err != nil {
			return nil, &ValidationError{Section: "posters", Index: i, Field: "images", Err: err}
		}
		cfg.Posters = append(cfg.Posters, poster)
	}

	return cfg, nil
}

func (sd stationDocument) build() (Station, error) {
	fail := func(field string, err error) (Station, error) {
		return Station{}, &ValidationError{Section: "stations", Field: field, Err: err}
	}

	if strings.TrimSpace(sd.ID) == "" {
		return fail("id", errRequired)
	}
	if strings.TrimSpace(sd.Title) == "" {
		return fail("title", errRequired)
	}
	if sd.MaxDepartures == nil {
		return fail("max_departures", errRequired)
	}
	if *sd.MaxDepartures <= 0 {
		return fail("max_departures", fmt.Errorf("must be positive, got %d", *sd.MaxDepartures))
	}
	if sd.MinTime == nil {
		return fail("min_time", errRequired)
	}
	if sd.MaxTime == nil {
		return fail("max_time", errRequired)
	}
	if sd.TimeNeeded == nil {
		return fail("time_needed", errRequired)
	}
	if *sd.MinTime < 0 {
		return fail("min_time", fmt.Errorf("must not be negative, got %v", *sd.MinTime))
	}
	if *sd.MinTime >= *sd.MaxTime {
		return fail("max_time", fmt.Errorf("must be greater than min_time (%v), got %v", *sd.MinTime, *sd.MaxTime))
	}
	if *sd.TimeNeeded < 0 {
		return fail("time_needed", fmt.Errorf("must not be negative, got %v", *sd.TimeNeeded))
	}
	if sd.StartNight == "" {
		return fail("start_night", errRequired)
	}
	if sd.StopNight == "" {
		return fail("stop_night", errRequired)
	}

	window, err := timewindow.NewWindow(sd.StartNight, sd.StopNight)
	if err != nil {
		return fail("start_night", err)
	}

	day, err := sd.Day.build()
	if err != nil {
		return fail("day", err)
	}
	night, err := sd.Night.build()
	if err != nil {
		return fail("night", err)
	}

	return Station{
		ID:            sd.ID,
		Title:         sd.Title,
		Row:           sd.Row,
		Col:           sd.Col,
		MaxDepartures: *sd.MaxDepartures,
		MinTime:       *sd.MinTime,
		MaxTime:       *sd.MaxTime,
		TimeNeeded:    *sd.TimeNeeded,
		NightWindow:   window,
		Day:           day,
		Night:         night,
	}, nil
}

func (od *optionsDocument) build() (*DirectionsAndProducts, error) {
	if od == nil {
		return nil, nil
	}
	if len(od.Directions) == 0 {
		return nil, errors.New("directions must not be empty")
	}

	products := make(types.Products, len(types.AllProducts))
	for _, flag := range od.Products {
		p, err := types.ParseProduct(flag)
		if err != nil {
			return nil, fmt.Errorf("products: %w", err)
		}
		products[p] = true
	}

	directions := make([]string, len(od.Directions))
	for i, d := range od.Directions {
		directions[i] = strings.TrimSpace(d)
	}

	return &DirectionsAndProducts{
		Directions: directions,
		Products:   products,
	}, nil
}

func (pd posterDocument) build(dir string) (Poster, error) {
	if len(pd.Images) == 0 {
		return Poster{}, errRequired
	}

	images := make([]string, 0, len(pd.Images))
	for _, img := range pd.Images {
		path := img
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, img)
		}
		info, err := os.Stat(path)
		if err != nil {
			return Poster{}, fmt.Errorf("could not find file %s: %w", path, err)
		}
		if info.IsDir() {
			return Poster{}, fmt.Errorf("%s is a directory", path)
		}
		images = append(images, path)
	}
	return Poster{Images: images}, nil
}
