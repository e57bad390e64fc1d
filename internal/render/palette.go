package render

import (
	"fmt"
	"image/color"

	"github.com/meshlab/meshviz/internal/sim"
)

// Geometry in canvas pixels.
const (
	DefaultScale  = 3.0
	NodeRadius    = 8.0
	BrokerRadius  = 12.0
	HoverRadius   = 16.0
	PacketRadius  = 4.0
	LabelOffset   = 15.0
	LabelSize     = 10.0
	NodeGlow      = 8.0
	HoverGlow     = 16.0
	PacketGlow    = 12.0
	RingWidth     = 2.0
	LineWidth     = 1.0
	DefaultWidth  = 1200
	DefaultHeight = 700
)

// LineDash is the on/off pattern of connection lines.
var LineDash = []float64{5, 5}

var (
	Background = rgb(0x0f, 0x17, 0x2a)
	LineColor  = rgb(0x47, 0x55, 0x69)
	BrokerRing = rgb(0xfb, 0xbf, 0x24)
	HoverRing  = rgb(0xef, 0x44, 0x44)
	LabelColor = rgb(0xff, 0xff, 0xff)

	roleFallback = rgb(0x94, 0xa3, 0xb8)
	phyFallback  = rgb(0xff, 0xff, 0xff)
)

var roleColors = map[sim.Role]color.RGBA{
	sim.RoleSensor:     rgb(0x10, 0xb9, 0x81),
	sim.RoleSubscriber: rgb(0xf5, 0x9e, 0x0b),
	sim.RolePublisher:  rgb(0x14, 0xb8, 0xa6),
	sim.RoleBroker:     rgb(0xec, 0x48, 0x99),
	"mobile":           rgb(0x8b, 0x5c, 0xf6),
}

var phyColors = map[sim.Phy]color.RGBA{
	sim.PhyWiFi:   rgb(0x06, 0xb6, 0xd4),
	sim.PhyBLE:    rgb(0xea, 0xb3, 0x08),
	sim.PhyZigbee: rgb(0xa3, 0xe6, 0x35),
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// RoleColor returns the fill color for a node role.
func RoleColor(r sim.Role) color.RGBA {
	if c, ok := roleColors[r]; ok {
		return c
	}
	return roleFallback
}

// PhyColor returns the fill color for a packet kind.
func PhyColor(p sim.Phy) color.RGBA {
	if c, ok := phyColors[p]; ok {
		return c
	}
	return phyFallback
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
