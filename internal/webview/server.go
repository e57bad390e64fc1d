// Package webview serves the browser front end of the viewer: the
// embedded page, the websocket frame stream and a small JSON API.
package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meshlab/meshviz/internal/hub"
	"github.com/meshlab/meshviz/internal/logging"
	"github.com/meshlab/meshviz/internal/render"
	"github.com/meshlab/meshviz/internal/sim"
	"github.com/meshlab/meshviz/internal/view"
)

const commandTimeout = sim.DefaultTimeout

// Actions are the viewer operations the browser can trigger.
type Actions interface {
	PointerMove(x, y float64) (sim.Node, bool)
	PointerLeave()
	Click(owner string, x, y float64) (sim.Node, bool)
	ConfirmDelete(owner string, id int) bool
	CancelDelete(owner string)
	SendTraffic(ctx context.Context, r sim.TrafficRequest) (sim.TrafficResult, error)
	Publish(ctx context.Context, r sim.PublishRequest) (sim.PublishResult, error)
	Control(ctx context.Context, op string) error
	Status() view.Status
}

// FrameSource returns the most recently rendered frame.
type FrameSource interface {
	Last() (render.Frame, bool)
}

// Config holds server configuration.
type Config struct {
	Addr   string
	Assets fs.FS
	Logger *zap.Logger
}

// Server is the watch server.
type Server struct {
	cfg     Config
	actions Actions
	frames  FrameSource
	hub     *hub.Hub
	log     *zap.Logger
	started time.Time
}

// New creates a server. Assets must hold index.html at its root.
func New(cfg Config, actions Actions, frames FrameSource) *Server {
	s := &Server{
		cfg:     cfg,
		actions: actions,
		frames:  frames,
		log:     logging.OrNop(cfg.Logger),
		started: time.Now(),
	}
	s.hub = hub.New(s.handleEvent, s.log)
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// PublishFrame streams a rendered frame to every browser.
func (s *Server) PublishFrame(f render.Frame) {
	if err := s.hub.Broadcast(hub.TypeFrame, f); err != nil {
		s.log.Debug("frame broadcast failed", zap.Error(err))
	}
}

// Notify streams a transient notice to every browser, or only to n.To
// when the notice is addressed.
func (s *Server) Notify(n view.Notice) {
	if n.To != "" {
		if err := s.hub.Send(n.To, hub.TypeNotice, n); err != nil {
			s.log.Debug("notice send failed", zap.String("client", n.To), zap.Error(err))
		}
		return
	}
	if err := s.hub.Broadcast(hub.TypeNotice, n); err != nil {
		s.log.Debug("notice broadcast failed", zap.Error(err))
	}
}

// PublishMetrics streams the latest delivery metrics to every browser.
func (s *Server) PublishMetrics(m sim.Metrics) {
	if err := s.hub.Broadcast(hub.TypeMetrics, m); err != nil {
		s.log.Debug("metrics broadcast failed", zap.Error(err))
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/frame", s.handleFrame)
	api.HandleFunc("POST /api/traffic", s.handleTraffic)
	api.HandleFunc("POST /api/control/{op}", s.handleControl)
	if s.cfg.Assets != nil {
		api.Handle("GET /", http.FileServerFS(s.cfg.Assets))
	}

	mux := http.NewServeMux()
	// The websocket route bypasses the logging wrapper, which cannot hijack.
	mux.Handle("GET /ws", s.hub)
	mux.Handle("/", cors(s.logRequests(api)))
	return mux
}

// Run serves on cfg.Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error {
		s.log.Info("watch server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "running",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.hub.Clients(),
		"view":    s.actions.Status(),
	})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.frames.Last()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := sim.TrafficRequest{Size: 100, N: 1, Kind: sim.PhyWiFi}
	var err error
	if req.Src, err = strconv.Atoi(q.Get("src")); err != nil {
		writeError(w, http.StatusBadRequest, "src must be a node id")
		return
	}
	if req.Dst, err = strconv.Atoi(q.Get("dst")); err != nil {
		writeError(w, http.StatusBadRequest, "dst must be a node id")
		return
	}
	if v := q.Get("n"); v != "" {
		if req.N, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
	}
	if v := q.Get("size"); v != "" {
		if req.Size, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "size must be an integer")
			return
		}
	}
	if v := q.Get("kind"); v != "" {
		req.Kind = sim.Phy(v)
	}

	res, err := s.actions.SendTraffic(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("op")
	switch op {
	case "start", "pause", "reset":
	default:
		writeError(w, http.StatusNotFound, "unknown control "+op)
		return
	}
	if err := s.actions.Control(r.Context(), op); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": op})
}

func (s *Server) handleEvent(clientID string, ev hub.Event) {
	switch ev.Type {
	case "move":
		s.actions.PointerMove(ev.X, ev.Y)
	case "leave":
		s.actions.PointerLeave()
	case "click":
		s.actions.Click(clientID, ev.X, ev.Y)
	case "confirm":
		s.actions.ConfirmDelete(clientID, ev.ID)
	case "cancel":
		s.actions.CancelDelete(clientID)
	case "traffic":
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		s.actions.SendTraffic(ctx, sim.TrafficRequest{Src: ev.Src, Dst: ev.Dst, N: ev.N, Size: ev.Size, Kind: sim.Phy(ev.Kind)})
	case "publish":
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		s.actions.Publish(ctx, sim.PublishRequest{PublisherID: ev.ID, Topic: ev.Topic, Payload: ev.Payload, QoS: ev.QoS, Retained: ev.Retained})
	case "control":
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		s.actions.Control(ctx, ev.Op)
	default:
		s.log.Debug("unknown websocket event", zap.String("client", clientID), zap.String("type", ev.Type))
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the HTTP status code.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.statusCode),
			zap.Duration("duration", time.Since(start)))
	})
}
