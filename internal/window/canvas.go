package window

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/meshlab/meshviz/internal/render"
)

// Canvas draws render ops onto the ebiten screen image of the current
// frame. dst is only valid inside Game.Draw.
type Canvas struct {
	dst  *ebiten.Image
	font *text.GoTextFaceSource
}

// NewCanvas loads the label font.
func NewCanvas() (*Canvas, error) {
	src, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	return &Canvas{font: src}, nil
}

func (c *Canvas) face(size float64) *text.GoTextFace {
	return &text.GoTextFace{Source: c.font, Size: size}
}

func (c *Canvas) Clear(bg color.RGBA) {
	c.dst.Fill(bg)
}

func (c *Canvas) Line(x1, y1, x2, y2, width float64, dash []float64, col color.RGBA) {
	b := c.dst.Bounds()
	clip := render.Rect{
		MinX: float64(b.Min.X) - width, MinY: float64(b.Min.Y) - width,
		MaxX: float64(b.Max.X) + width, MaxY: float64(b.Max.Y) + width,
	}
	for _, s := range render.DashSegmentsIn(x1, y1, x2, y2, dash, clip) {
		vector.StrokeLine(c.dst, float32(s.X1), float32(s.Y1), float32(s.X2), float32(s.Y2), float32(width), col, true)
	}
}

// Disc approximates a canvas shadow blur with translucent halos.
func (c *Canvas) Disc(x, y, r, glow float64, col color.RGBA) {
	if glow > 0 {
		halo := col
		halo.A = 0x28
		vector.DrawFilledCircle(c.dst, float32(x), float32(y), float32(r+glow/2), premul(halo), true)
		halo.A = 0x48
		vector.DrawFilledCircle(c.dst, float32(x), float32(y), float32(r+glow/4), premul(halo), true)
	}
	vector.DrawFilledCircle(c.dst, float32(x), float32(y), float32(r), col, true)
}

func (c *Canvas) Ring(x, y, r, width float64, col color.RGBA) {
	vector.StrokeCircle(c.dst, float32(x), float32(y), float32(r), float32(width), col, true)
}

func (c *Canvas) Text(x, y float64, s string, size float64, col color.RGBA) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.PrimaryAlign = text.AlignCenter
	op.SecondaryAlign = text.AlignEnd
	op.ColorScale.ScaleWithColor(col)
	text.Draw(c.dst, s, c.face(size), op)
}

// premul converts a straight-alpha color to the premultiplied form
// color.RGBA is defined to hold.
func premul(c color.RGBA) color.RGBA {
	a := uint16(c.A)
	return color.RGBA{
		R: uint8(uint16(c.R) * a / 0xff),
		G: uint8(uint16(c.G) * a / 0xff),
		B: uint8(uint16(c.B) * a / 0xff),
		A: c.A,
	}
}
