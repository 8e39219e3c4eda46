package board

import (
	"math"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// directionFilter is applied in order to every direction before display.
var directionFilter = []struct{ from, to string }{
	{"Schienenersatzverkehr", "SEV"},
	{"Ersatzverkehr", "EV"},
	{"(Berlin)", ""},
	{"Bhf", ""},
	{"Flughafen BER", "BER"},
}

const (
	unknownDirection = "???"
	ellipsis         = "…"
	placeholder      = "–"
	fetchFailedText  = "could not fetch departures"
)

// FilterDirection shortens well-known direction names and collapses the
// whitespace left behind by removed fragments.
func FilterDirection(direction string) string {
	for _, f := range directionFilter {
		direction = strings.ReplaceAll(direction, f.from, f.to)
	}
	return strings.Join(strings.Fields(direction), " ")
}

// FitDirection makes direction exactly width cells wide. Short names are
// filled with a dot leader, long ones are cut with an ellipsis.
func FitDirection(direction string, width int) string {
	if direction == "" {
		direction = unknownDirection
	}

	w := runewidth.StringWidth(direction)
	switch {
	case w > width:
		return runewidth.Truncate(direction, width, ellipsis)
	case width-w > 2:
		return direction + " " + strings.Repeat(".", width-w-1)
	default:
		return direction + strings.Repeat(" ", width-w)
	}
}

// TimeLabel is the whole number of minutes left, rounded down.
func TimeLabel(timeLeft float64) string {
	return strconv.Itoa(int(math.Floor(timeLeft)))
}
