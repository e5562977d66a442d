package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leakwatch/internal/data"
	"leakwatch/internal/history"
	"leakwatch/internal/utils"
	"leakwatch/internal/viewport"
)

type statusResponse struct {
	SignedIn       bool           `json:"signed_in"`
	Attached       bool           `json:"attached"`
	Rooms          []string       `json:"rooms"`
	Pipes          []data.PipeKey `json:"pipes"`
	LastError      string         `json:"last_error,omitempty"`
	Clients        int            `json:"clients"`
	CriticalAlerts int            `json:"critical_alerts"`
}

func (h *APIHandler) status() statusResponse {
	s := statusResponse{
		Attached:  h.Monitor.Attached(),
		Rooms:     h.Monitor.Rooms(),
		Pipes:     h.Monitor.Pipes(),
		LastError: h.Monitor.LastError(),
	}
	if h.Session != nil {
		s.SignedIn = h.Session.SignedIn()
	}
	if h.Hub != nil {
		s.Clients = h.Hub.Clients()
	}
	if h.Alerts != nil {
		s.CriticalAlerts = h.Alerts.CriticalCount()
	}
	return s
}

func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, h.status())
}

type alertsResponse struct {
	Alerts        []data.AlertEntry `json:"alerts"`
	CriticalCount int               `json:"critical_count"`
}

func (h *APIHandler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	entries := h.Alerts.Entries()
	resp := alertsResponse{Alerts: entries}
	for _, e := range entries {
		if e.Level == data.SeverityCritical {
			resp.CriticalCount++
		}
	}
	if resp.Alerts == nil {
		resp.Alerts = []data.AlertEntry{}
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

func pipeKey(r *http.Request) data.PipeKey {
	return data.PipeKey{Room: chi.URLParam(r, "room"), Pipe: chi.URLParam(r, "pipe")}
}

// readings returns the history of the pipe in the URL, or writes a 404.
func (h *APIHandler) readings(w http.ResponseWriter, r *http.Request, limit int) ([]data.Reading, bool) {
	key := pipeKey(r)
	buf := h.History.Get(key)
	if buf == nil {
		utils.RespondWithError(w, data.NewAPIError(data.ErrorCodeNotFound, "no readings for "+key.String(), nil, http.StatusNotFound))
		return nil, false
	}
	return buf.Recent(limit), true
}

type historyResponse struct {
	Room     string         `json:"room"`
	Pipe     string         `json:"pipe"`
	Readings []data.Reading `json:"readings"`
	Stats    history.Stats  `json:"stats"`
}

func (h *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	readings, ok := h.readings(w, r, limit)
	if !ok {
		return
	}
	key := pipeKey(r)
	utils.RespondWithJSON(w, http.StatusOK, historyResponse{
		Room:     key.Room,
		Pipe:     key.Pipe,
		Readings: readings,
		Stats:    history.Compute(readings),
	})
}

type chartResponse struct {
	Metric   string            `json:"metric"`
	Viewport viewport.Viewport `json:"viewport"`
	Points   int               `json:"points"`
	First    int               `json:"first"`
	Last     int               `json:"last"`
	Hover    *hoverPoint       `json:"hover,omitempty"`
	Path     string            `json:"path"`
}

type hoverPoint struct {
	Index int      `json:"index"`
	Value *float64 `json:"value"`
}

var chartMetrics = map[string]func(data.Reading) *float64{
	"flow":     func(r data.Reading) *float64 { return r.Flow },
	"temp":     func(r data.Reading) *float64 { return r.Temp },
	"pressure": func(r data.Reading) *float64 { return r.Pressure },
}

// HandleChart renders the zoomed history of one metric as an SVG path.
func (h *APIHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "flow"
	}
	pick, known := chartMetrics[metric]
	if !known {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "metric must be flow, temp or pressure"))
		return
	}
	scale, ok := floatParam(w, r, "scale", viewport.MinScale)
	if !ok {
		return
	}
	center, ok := floatParam(w, r, "center", 0.5)
	if !ok {
		return
	}
	width, ok := floatParam(w, r, "width", 300)
	if !ok {
		return
	}
	height, ok := floatParam(w, r, "height", 160)
	if !ok {
		return
	}
	readings, ok := h.readings(w, r, 0)
	if !ok {
		return
	}

	values := make([]*float64, len(readings))
	for i, rd := range readings {
		values[i] = pick(rd)
	}
	vp := viewport.ZoomAt(center, scale)
	first, last := vp.Visible(len(values))
	resp := chartResponse{
		Metric:   metric,
		Viewport: vp,
		Points:   len(values),
		First:    first,
		Last:     last,
		Path:     vp.Path(values, width, height),
	}
	if x := r.URL.Query().Get("hover_x"); x != "" && len(values) > 0 {
		hx, err := strconv.ParseFloat(x, 64)
		if err != nil {
			utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "hover_x must be a number"))
			return
		}
		idx := vp.HoverIndex(hx, width, len(values))
		resp.Hover = &hoverPoint{Index: idx, Value: values[idx]}
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	var latest []data.Reading
	for _, pipe := range h.History.Pipes(room) {
		if rd, ok := h.History.Get(data.PipeKey{Room: room, Pipe: pipe}).Latest(); ok {
			latest = append(latest, rd)
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, struct {
		Room string `json:"room"`
		history.Summary
	}{room, history.Summarize(latest)})
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, name+" must be a non-negative integer"))
		return 0, false
	}
	return v, true
}

func floatParam(w http.ResponseWriter, r *http.Request, name string, def float64) (float64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, name+" must be a number"))
		return 0, false
	}
	return v, true
}
