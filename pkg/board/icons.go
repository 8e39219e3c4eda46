package board

import (
	"fmt"
	"math"
	"strings"

	"departureboard/pkg/types"
)

// DefaultIconKey is used when neither the line nor its product has an icon.
const DefaultIconKey = "default"

// Icon is the badge drawn in front of a departure.
type Icon struct {
	// Label replaces the line name when set.
	Label string
	Color string
}

// DefaultIcons carries one badge color per product.
var DefaultIcons = map[string]Icon{
	string(types.ProductSuburban): {Color: "#008d4f"},
	string(types.ProductSubway):   {Color: "#115d91"},
	string(types.ProductTram):     {Color: "#be1414"},
	string(types.ProductBus):      {Color: "#a5027d"},
	string(types.ProductFerry):    {Color: "#0080ba"},
	string(types.ProductExpress):  {Color: "#f01414"},
	string(types.ProductRegional): {Color: "#e5000b"},
}

// IconKey resolves the icon of dep: its line, then its product, then
// DefaultIconKey.
func IconKey(dep types.Departure, icons map[string]Icon) string {
	if _, ok := icons[dep.Line]; ok {
		return dep.Line
	}
	if _, ok := icons[string(dep.Product)]; ok {
		return string(dep.Product)
	}
	return DefaultIconKey
}

// resolveIcon returns the badge for dep. Lines without any configured icon
// get a stable color derived from the line name.
func resolveIcon(dep types.Departure, icons map[string]Icon) Icon {
	key := IconKey(dep, icons)
	icon, ok := icons[key]
	if !ok {
		icon = Icon{Color: lineColor(dep.Line)}
	}
	if icon.Label == "" {
		icon.Label = strings.ToUpper(dep.Line)
	}
	return icon
}

// lineColor hashes a line name onto the hue circle.
func lineColor(line string) string {
	hash := 0
	for _, char := range line {
		hash = int(char) + ((hash << 5) - hash)
	}
	hue := (hash%360 + 360) % 360
	return hslToHex(float64(hue), 0.7, 0.5)
}

func hslToHex(h, s, l float64) string {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	toByte := func(v float64) int { return int(math.Round((v + m) * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", toByte(r), toByte(g), toByte(b))
}
