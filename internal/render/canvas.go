package render

import (
	"image/color"
	"sync"

	"github.com/meshlab/meshviz/internal/hittest"
)

// Canvas is the drawing surface a frame is painted on. Coordinates are
// canvas pixels.
type Canvas interface {
	Clear(bg color.RGBA)
	Line(x1, y1, x2, y2, width float64, dash []float64, c color.RGBA)
	Disc(x, y, r, glow float64, c color.RGBA)
	Ring(x, y, r, width float64, c color.RGBA)
	Text(x, y float64, s string, size float64, c color.RGBA)
}

// FrameInfo describes a finished frame.
type FrameInfo struct {
	Seq     uint64
	Nodes   int
	Packets int
	Faults  int
	Tooltip *hittest.Tooltip
}

// Presenter is implemented by canvases that publish a frame once it is
// complete.
type Presenter interface {
	Present(info FrameInfo)
}

// Op is one recorded draw operation.
type Op struct {
	Op    string    `json:"op"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	X2    float64   `json:"x2,omitempty"`
	Y2    float64   `json:"y2,omitempty"`
	R     float64   `json:"r,omitempty"`
	W     float64   `json:"w,omitempty"`
	Glow  float64   `json:"glow,omitempty"`
	Dash  []float64 `json:"dash,omitempty"`
	Color string    `json:"color"`
	Text  string    `json:"text,omitempty"`
	Size  float64   `json:"size,omitempty"`
}

// Frame is a recorded frame ready to ship to a browser.
type Frame struct {
	Seq     uint64           `json:"seq"`
	Width   int              `json:"width"`
	Height  int              `json:"height"`
	Ops     []Op             `json:"ops"`
	Nodes   int              `json:"nodes"`
	Packets int              `json:"packets"`
	Faults  int              `json:"faults"`
	Tooltip *hittest.Tooltip `json:"tooltip,omitempty"`
}

// Recorder is a Canvas that records draw calls as ops and hands each
// completed Frame to a sink.
type Recorder struct {
	width, height int
	sink          func(Frame)

	ops []Op

	mu   sync.RWMutex
	last *Frame
}

// NewRecorder creates a recorder for a width×height canvas. sink may be nil.
func NewRecorder(width, height int, sink func(Frame)) *Recorder {
	return &Recorder{width: width, height: height, sink: sink}
}

func (r *Recorder) Clear(bg color.RGBA) {
	r.ops = r.ops[:0]
	r.ops = append(r.ops, Op{Op: "clear", Color: Hex(bg)})
}

func (r *Recorder) Line(x1, y1, x2, y2, width float64, dash []float64, c color.RGBA) {
	r.ops = append(r.ops, Op{Op: "line", X: x1, Y: y1, X2: x2, Y2: y2, W: width, Dash: dash, Color: Hex(c)})
}

func (r *Recorder) Disc(x, y, radius, glow float64, c color.RGBA) {
	r.ops = append(r.ops, Op{Op: "disc", X: x, Y: y, R: radius, Glow: glow, Color: Hex(c)})
}

func (r *Recorder) Ring(x, y, radius, width float64, c color.RGBA) {
	r.ops = append(r.ops, Op{Op: "ring", X: x, Y: y, R: radius, W: width, Color: Hex(c)})
}

func (r *Recorder) Text(x, y float64, s string, size float64, c color.RGBA) {
	r.ops = append(r.ops, Op{Op: "text", X: x, Y: y, Text: s, Size: size, Color: Hex(c)})
}

// Present freezes the recorded ops into a Frame.
func (r *Recorder) Present(info FrameInfo) {
	f := Frame{
		Seq:     info.Seq,
		Width:   r.width,
		Height:  r.height,
		Ops:     append([]Op(nil), r.ops...),
		Nodes:   info.Nodes,
		Packets: info.Packets,
		Faults:  info.Faults,
		Tooltip: info.Tooltip,
	}

	r.mu.Lock()
	r.last = &f
	r.mu.Unlock()

	if r.sink != nil {
		r.sink(f)
	}
}

// Last returns the most recent frame.
func (r *Recorder) Last() (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Frame{}, false
	}
	return *r.last, true
}
