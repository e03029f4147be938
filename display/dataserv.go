package display

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// SetupMux handles all data serving:
// - Prometheus metric endpoint
// - Version for programmatic use
// - Latest result, health, and an on-demand rerun
func (v *View) SetupMux() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", v.Stats.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.Use(v.StatsMiddleware)
	api.HandleFunc("/version", v.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/health", v.HealthHandler).Methods(http.MethodGet)
	api.HandleFunc("/result", v.ResultHandler).Methods(http.MethodGet)
	api.HandleFunc("/run", v.RunHandler).Methods(http.MethodPost)

	return r
}

var Version = "dev"

func (v *View) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

// HealthHandler is 200 once a run has succeeded and the last one did not fail
func (v *View) HealthHandler(w http.ResponseWriter, r *http.Request) {
	snap := v.Latest()
	body := map[string]string{"status": "ok"}
	status := http.StatusOK
	switch {
	case snap.Err != nil:
		status = http.StatusServiceUnavailable
		body["status"] = "failing"
		body["error"] = snap.Err.Error()
	case snap.Result == nil:
		status = http.StatusServiceUnavailable
		body["status"] = "pending"
	}
	if !snap.At.IsZero() {
		body["lastRun"] = snap.At.UTC().Format(time.RFC3339)
	}
	writeJSON(w, status, body)
}

type SeriesRow struct {
	Time        time.Time `json:"time"`
	RF          float64   `json:"rf"`
	Deformation float64   `json:"deformation"`
	Frequency   float64   `json:"frequency"`
	Residual    float64   `json:"residual"`
}

type ResultData struct {
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Effects        []string    `json:"effects"`
	Samples        int         `json:"samples"`
	ResidualRMS    float64     `json:"residualRMS"`
	ComputedAt     time.Time   `json:"computedAt"`
	Elapsed        string      `json:"elapsed"`
	MissingThermal []string    `json:"missingThermal,omitempty"`
	MissingTidal   []string    `json:"missingTidal,omitempty"`
	Series         []SeriesRow `json:"series,omitempty"`
}

// ResultHandler returns the last good result; ?series=false leaves out the rows
func (v *View) ResultHandler(w http.ResponseWriter, r *http.Request) {
	snap := v.Latest()
	res := snap.Result
	if res == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no result yet"})
		return
	}

	data := ResultData{
		Start:       res.Window.Start,
		End:         res.Window.End,
		Samples:     len(res.Times),
		ResidualRMS: res.ResidualRMS(),
		ComputedAt:  snap.At.UTC(),
		Elapsed:     res.Elapsed.String(),
	}
	for _, e := range res.Effects {
		data.Effects = append(data.Effects, e.String())
	}
	if res.Thermal != nil {
		data.MissingThermal = res.Thermal.Missing
	}
	if res.Tidal != nil {
		data.MissingTidal = res.Tidal.Missing
	}
	if r.URL.Query().Get("series") != "false" {
		data.Series = make([]SeriesRow, len(res.Times))
		for i, ts := range res.Times {
			data.Series[i] = SeriesRow{
				Time:        ts,
				RF:          res.RF[i],
				Deformation: res.Deformation[i],
				Frequency:   res.Frequency[i],
				Residual:    res.Residual[i],
			}
		}
	}
	writeJSON(w, http.StatusOK, data)
}

// RunHandler triggers a run and answers once it is done
func (v *View) RunHandler(w http.ResponseWriter, r *http.Request) {
	err := v.Refresh(r.Context())
	switch {
	case errors.Is(err, ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Response encoding failed", slog.Int("status", status), slog.Any("error", err))
	}
}
