// Package dashboard serves the interactive monitor of the twin: a sensor
// chart chosen from a drop-down, the life consumed by the component, the
// detected anomalies, and a button that runs the FEA solver on the current
// dataset.
//
// Every handler maps its input (query, form, current dataset) to a rendered
// component; the only state is the Source, reloaded by Watch.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/a-h/templ"
	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/dataset"
	"github.com/go-digitaltwin/cabintwin/fea"
	"github.com/go-digitaltwin/cabintwin/history"
)

// RunRecorder keeps the history of solver runs.
type RunRecorder interface {
	RecordFEARun(ctx context.Context, in fea.Input, out fea.Output) (string, error)
	ListFEARuns(ctx context.Context, limit int) ([]history.FEARun, error)
}

// Options configure a Server.
type Options struct {
	Solver fea.Solver
	// History is optional.
	History RunRecorder
	// RecentAnomalies bounds the anomaly table; zero means 50.
	RecentAnomalies int
	// RecentRuns bounds the run history table; zero means 10.
	RecentRuns int
}

// Server renders the dashboard.
type Server struct {
	src   *Source
	store *dataset.Store
	opts  Options
}

// NewServer returns a Server rendering src and storing solver files in store.
func NewServer(src *Source, store *dataset.Store, opts Options) *Server {
	if opts.RecentAnomalies == 0 {
		opts.RecentAnomalies = 50
	}
	if opts.RecentRuns == 0 {
		opts.RecentRuns = 10
	}
	return &Server{src: src, store: store, opts: opts}
}

// Handler returns the routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /chart.png", s.sensorChart)
	mux.HandleFunc("GET /life.png", s.lifeChart)
	mux.HandleFunc("POST /fea", s.runFEA)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return otelhttp.NewHandler(mux, "dashboard")
}

// Run serves the dashboard on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Requests log through the logger of ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		component.Logger(ctx).Info("Serving the dashboard", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	selected := cabintwin.Channels()[0]
	if q := r.URL.Query().Get("sensor"); q != "" {
		c, err := cabintwin.ParseChannel(q)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, err)
			return
		}
		selected = c
	}

	data := s.src.Current()
	v := PageView{
		Selected:  selected,
		Readings:  len(data.Readings),
		LoadedAt:  data.LoadedAt,
		Life:      data.LastLife(),
		Anomalies: recentFirst(data.Anomalies, s.opts.RecentAnomalies),
		Counts:    anomaly.CountByChannel(data.Anomalies),
	}

	var out fea.Output
	switch err := s.store.ReadJSON(ctx, fea.OutputKey, &out); {
	case err == nil:
		v.LastFEA = &out
	case !errors.Is(err, dataset.ErrNotFound):
		component.Logger(ctx).Warn("Failed to read the last FEA output", "error", err)
	}
	if s.opts.History != nil {
		runs, err := s.opts.History.ListFEARuns(ctx, s.opts.RecentRuns)
		if err != nil {
			component.Logger(ctx).Warn("Failed to list FEA runs", "error", err)
		}
		v.Runs = runs
	}

	templ.Handler(Page(v)).ServeHTTP(w, r)
}

func (s *Server) sensorChart(w http.ResponseWriter, r *http.Request) {
	c, err := cabintwin.ParseChannel(r.URL.Query().Get("sensor"))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	data := s.src.Current()
	s.png(w, r, func(buf *bytes.Buffer) error {
		return SensorChart(buf, data.Readings, c, data.Anomalies)
	})
}

func (s *Server) lifeChart(w http.ResponseWriter, r *http.Request) {
	data := s.src.Current()
	s.png(w, r, func(buf *bytes.Buffer) error {
		return LifeChart(buf, data.Life)
	})
}

// png renders the whole image before writing, so that a failure can still
// change the status code.
func (s *Server) png(w http.ResponseWriter, r *http.Request, draw func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	err := draw(&buf)
	if errors.Is(err, ErrNoData) {
		s.fail(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) runFEA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := s.src.Current()
	if len(data.Readings) == 0 {
		s.fail(w, r, http.StatusConflict, ErrNoData)
		return
	}

	in := fea.LoadCaseFrom(data.Readings)
	if err := s.store.WriteJSON(ctx, fea.InputKey, in); err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("write load case: %w", err))
		return
	}
	in, out, err := s.opts.Solver.RunFiles(ctx, s.store)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("run solver: %w", err))
		return
	}
	if s.opts.History != nil {
		if _, err := s.opts.History.RecordFEARun(ctx, in, out); err != nil {
			component.Logger(ctx).Warn("Failed to record the FEA run", "error", err)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		component.Logger(r.Context()).Error("Request failed", "path", r.URL.Path, "error", err)
	}
	templ.Handler(ErrorPage(err.Error()), templ.WithStatus(status)).ServeHTTP(w, r)
}

// recentFirst returns up to n of the time-ordered events, newest first.
func recentFirst(events []anomaly.Event, n int) []anomaly.Event {
	if len(events) > n {
		events = events[len(events)-n:]
	}
	out := slices.Clone(events)
	slices.Reverse(out)
	return out
}
