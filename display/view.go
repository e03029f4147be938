package display

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	Mo "github.com/sirius-geo/ringdeform/obvy"
	Mp "github.com/sirius-geo/ringdeform/pipeline"
)

// RunFunc produces a fresh result, normally a closure over pipeline.Run
type RunFunc func(ctx context.Context) (*Mp.Result, error)

// View holds the latest run and serves it over HTTP
type View struct {
	MU         sync.RWMutex      // guards the fields below
	Stats      *Mo.StatsInternal // Internal status for prometheus
	Run        RunFunc
	Supervisor *RunSupervisor

	last    *Mp.Result
	lastErr error
	lastAt  time.Time
	running bool
	server  *http.Server
}

func NewView(stats *Mo.StatsInternal, run RunFunc) *View {
	if stats == nil {
		stats = Mo.NewStatsInternal()
	}
	return &View{Stats: stats, Run: run}
}

// ErrBusy is returned by Refresh while another run is in flight
var ErrBusy = errors.New("a run is already in progress")

// Refresh runs once and stores the outcome. A failed run keeps the previous
// result available and records the error next to it.
func (v *View) Refresh(ctx context.Context) error {
	if v.Run == nil {
		return errors.New("no run configured")
	}
	v.MU.Lock()
	if v.running {
		v.MU.Unlock()
		return ErrBusy
	}
	v.running = true
	v.MU.Unlock()

	res, err := v.Run(ctx)

	v.MU.Lock()
	defer v.MU.Unlock()
	v.running = false
	v.lastAt = time.Now()
	v.lastErr = err
	if err != nil {
		slog.Error("Run failed", slog.Any("error", err))
		return err
	}
	v.last = res
	return nil
}

// Snapshot is the state of the View after its last run
type Snapshot struct {
	Result *Mp.Result // last good result, kept across failures
	Err    error      // error of the last run, nil when it succeeded
	At     time.Time  // when the last run ended
}

func (v *View) Latest() Snapshot {
	v.MU.RLock()
	defer v.MU.RUnlock()
	return Snapshot{Result: v.last, Err: v.lastErr, At: v.lastAt}
}

// RespWriter is a wrapper with StatsMiddleware, used for Prometheus
type RespWriter struct {
	http.ResponseWriter
	Status int
}

func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

func (v *View) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         http.StatusOK,
		}
		next.ServeHTTP(wrapped, r)
		v.Stats.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
	})
}

// Serve listens on addr until ctx is done, then shuts the server down
func (v *View) Serve(ctx context.Context, addr string) error {
	v.server = &http.Server{
		Addr:              addr,
		Handler:           v.SetupMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting ringdeform endpoint...", slog.String("addr", addr))
		if err := v.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return v.server.Shutdown(shutdownCtx)
}
