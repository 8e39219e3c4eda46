package types

import (
	"fmt"
	"strings"
	"time"
)

// Product is the transit mode category reported by the API for a line.
type Product string

const (
	ProductSuburban Product = "suburban"
	ProductSubway   Product = "subway"
	ProductTram     Product = "tram"
	ProductBus      Product = "bus"
	ProductFerry    Product = "ferry"
	ProductExpress  Product = "express"
	ProductRegional Product = "regional"
)

// AllProducts lists every product in API query order.
var AllProducts = []Product{
	ProductSuburban,
	ProductSubway,
	ProductTram,
	ProductBus,
	ProductFerry,
	ProductExpress,
	ProductRegional,
}

// productAliases maps the short flag letters used by station configs to products.
var productAliases = map[string]Product{
	"s": ProductSuburban,
	"u": ProductSubway,
	"t": ProductTram,
	"b": ProductBus,
	"f": ProductFerry,
	"e": ProductExpress,
	"r": ProductRegional,
}

// ParseProduct accepts either a product name ("tram") or its flag letter ("T").
func ParseProduct(s string) (Product, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if p, ok := productAliases[key]; ok {
		return p, nil
	}
	for _, p := range AllProducts {
		if string(p) == key {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown product %q", s)
}

// Products is the set of product flags a direction query is restricted to.
type Products map[Product]bool

// Has reports whether p is enabled.
func (ps Products) Has(p Product) bool {
	return ps[p]
}

// RawDeparture is one departure record as decoded from the API, before any filtering.
type RawDeparture struct {
	TripID    string
	When      *time.Time // nil for cancelled or unscheduled trips
	Direction string
	Delay     *float64 // seconds, as reported by the API
	LineID    string   // empty when the API reports no line id
	Product   Product
}

// Departure is one real-world trip leaving a stop, as shown on the board.
//
// Two departures are the same trip when their IDs match, regardless of the
// other fields. Departures order by TimeLeft only.
type Departure struct {
	ID        string  `json:"id"`
	Line      string  `json:"line"`
	Direction string  `json:"direction"`
	TimeLeft  float64 `json:"time_left"` // minutes
	Delay     float64 `json:"delay"`     // minutes
	Product   Product `json:"product"`
	Reachable bool    `json:"reachable"`
}

// Same reports whether d and o describe the same trip.
func (d Departure) Same(o Departure) bool {
	return d.ID == o.ID
}

// Before reports whether d leaves earlier than o.
func (d Departure) Before(o Departure) bool {
	return d.TimeLeft < o.TimeLeft
}
