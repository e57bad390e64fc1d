// Package window hosts the render loop in a native ebiten window.
package window

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"go.uber.org/zap"

	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/poll"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/view"
)

const noticeTTL = 4 * time.Second

var (
	panelColor = color.RGBA{0x1e, 0x29, 0x3b, 0xe6}
	textColor  = color.RGBA{0xe2, 0xe8, 0xf0, 0xff}
	errorColor = color.RGBA{0xf8, 0x71, 0x71, 0xff}
)

// Options configures the window.
type Options struct {
	Width, Height int
	Title         string
	// Metrics, when set, adds delivery figures to the status line.
	Metrics *poll.Feed[sim.Metrics]
	Logger  *zap.Logger
}

// Game is an ebiten game whose Draw runs one render tick. It also acts as
// the render.Driver for the view's loop.
type Game struct {
	ctx    context.Context
	view   *view.View
	canvas *Canvas
	opts   Options
	log    *zap.Logger

	frameMu sync.Mutex
	frame   func()

	cursorX, cursorY int
	inside           bool

	noticeMu sync.Mutex
	notice   view.Notice
	noticeAt time.Time
}

// NewGame creates a game drawing v onto canvas. The game stops when ctx
// is done.
func NewGame(ctx context.Context, v *view.View, canvas *Canvas, opts Options) *Game {
	if opts.Title == "" {
		opts.Title = "meshviz"
	}
	return &Game{
		ctx:     ctx,
		view:    v,
		canvas:  canvas,
		opts:    opts,
		log:     logging.OrNop(opts.Logger),
		cursorX: -1,
		cursorY: -1,
	}
}

// Start implements render.Driver: ebiten calls frame from Draw.
func (g *Game) Start(frame func()) func() {
	g.frameMu.Lock()
	g.frame = frame
	g.frameMu.Unlock()
	return func() {
		g.frameMu.Lock()
		g.frame = nil
		g.frameMu.Unlock()
	}
}

// Notify shows n in the status line.
func (g *Game) Notify(n view.Notice) {
	g.noticeMu.Lock()
	g.notice = n
	g.noticeAt = time.Now()
	g.noticeMu.Unlock()
}

// Run opens the window and blocks until it is closed or ctx is done.
func (g *Game) Run() error {
	ebiten.SetWindowSize(g.opts.Width, g.opts.Height)
	ebiten.SetWindowTitle(g.opts.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	if err := ebiten.RunGame(g); err != nil {
		return fmt.Errorf("run window: %w", err)
	}
	return nil
}

func (g *Game) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}

	x, y := ebiten.CursorPosition()
	inside := x >= 0 && y >= 0 && x < g.opts.Width && y < g.opts.Height
	switch {
	case inside && (x != g.cursorX || y != g.cursorY):
		g.view.PointerMove(float64(x), float64(y))
	case !inside && g.inside:
		g.view.PointerLeave()
	}
	g.cursorX, g.cursorY, g.inside = x, y, inside

	if inside && inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		g.view.Click(view.Local, float64(x), float64(y))
	}

	if _, pending := g.view.PendingDelete(); pending {
		switch {
		case inpututil.IsKeyJustPressed(ebiten.KeyY), inpututil.IsKeyJustPressed(ebiten.KeyEnter):
			// Off the frame goroutine: ConfirmDelete calls the simulator.
			go g.view.ConfirmDelete(view.Local, 0)
		case inpututil.IsKeyJustPressed(ebiten.KeyN), inpututil.IsKeyJustPressed(ebiten.KeyEscape):
			g.view.CancelDelete(view.Local)
		}
	}

	for key, op := range map[ebiten.Key]string{ebiten.KeyS: "start", ebiten.KeyP: "pause", ebiten.KeyR: "reset"} {
		if inpututil.IsKeyJustPressed(key) {
			go g.control(op)
		}
	}
	return nil
}

func (g *Game) control(op string) {
	ctx, cancel := context.WithTimeout(g.ctx, sim.DefaultTimeout)
	defer cancel()
	if err := g.view.Control(ctx, op); err != nil {
		g.log.Debug("control from window failed", zap.String("op", op), zap.Error(err))
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.frameMu.Lock()
	frame := g.frame
	g.frameMu.Unlock()

	if frame != nil {
		g.canvas.dst = screen
		frame()
		g.canvas.dst = nil
	}

	g.drawTooltip(screen)
	g.drawStatus(screen)
}

func (g *Game) drawTooltip(screen *ebiten.Image) {
	tip, ok := g.view.Tooltip()
	if !ok {
		return
	}
	n := tip.Node
	lines := []string{
		fmt.Sprintf("Node %d", n.ID),
		fmt.Sprintf("Role: %s", n.Role),
		fmt.Sprintf("PHY: %s", n.Phy),
		fmt.Sprintf("Position: (%.0f, %.0f)", n.X, n.Y),
		fmt.Sprintf("Energy: %.1f%%", n.Energy),
	}
	g.drawPanel(screen, tip.X+10, tip.Y+10, lines, textColor)
}

func (g *Game) drawStatus(screen *ebiten.Image) {
	var lines []string
	col := textColor

	if n, ok := g.view.PendingDelete(); ok {
		lines = append(lines, fmt.Sprintf("Delete node %d (%s)? [y/n]", n.ID, n.Role))
	} else {
		g.noticeMu.Lock()
		notice, at := g.notice, g.noticeAt
		g.noticeMu.Unlock()
		if notice.Text != "" && notice.Confirm == 0 && time.Since(at) < noticeTTL {
			lines = append(lines, notice.Text)
			if notice.Level == view.LevelError {
				col = errorColor
			}
		}
	}

	st := g.view.Status()
	waiting := ""
	if !st.Ready {
		waiting = " · waiting for nodes"
	}
	delivery := ""
	if g.opts.Metrics != nil {
		if m, ok := g.opts.Metrics.Latest(); ok {
			delivery = fmt.Sprintf(" · PDR %.1f%% · %.1f ms", m.PDR*100, m.AvgLatencyMs)
		}
	}
	lines = append(lines, fmt.Sprintf("%d nodes · %d packets%s · %.0f fps%s · s/p/r start/pause/reset",
		st.Nodes, st.Packets, delivery, ebiten.ActualFPS(), waiting))
	g.drawPanel(screen, 8, float64(g.opts.Height)-8-float64(len(lines))*16-8, lines, col)
}

func (g *Game) drawPanel(screen *ebiten.Image, x, y float64, lines []string, col color.RGBA) {
	face := g.canvas.face(12)
	longest := 0
	for _, l := range lines {
		longest = max(longest, len(l))
	}
	w := float32(longest)*7 + 16
	h := float32(len(lines))*16 + 8
	vector.DrawFilledRect(screen, float32(x), float32(y), w, h, premul(panelColor), false)

	op := &text.DrawOptions{}
	op.GeoM.Translate(x+8, y+4)
	op.LineSpacing = 16
	op.ColorScale.ScaleWithColor(col)
	text.Draw(screen, strings.Join(lines, "\n"), face, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.opts.Width, g.opts.Height
}
