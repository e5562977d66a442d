package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"leakwatch/internal/alerting"
	"leakwatch/internal/anomaly"
	"leakwatch/internal/archive"
	"leakwatch/internal/auth"
	"leakwatch/internal/config"
	"leakwatch/internal/data"
	"leakwatch/internal/history"
	"leakwatch/internal/metrics"
	"leakwatch/internal/monitor"
	"leakwatch/internal/notify"
	"leakwatch/internal/rtdb"
	"leakwatch/internal/utils"
	"leakwatch/internal/websocket"
)

const maxIngestBody = 1 << 16

// Deps are the components the HTTP surface reads from and writes to.
type Deps struct {
	Config   *config.Config
	Store    rtdb.Store
	Auth     *auth.AuthManager
	Session  *auth.Session
	Hub      *websocket.Hub
	Monitor  *monitor.Monitor
	History  *history.Store
	Alerts   *history.AlertLog
	Alerter  *alerting.Alerter
	Notifier notify.Service
	Archive  archive.Repository
}

type APIHandler struct {
	Deps
	// ctx lives as long as the gateway; the monitor is reattached with it.
	ctx context.Context
	now func() time.Time
}

func NewAPIHandler(ctx context.Context, d Deps) *APIHandler {
	if d.Archive == nil {
		d.Archive = archive.Nop{}
	}
	return &APIHandler{Deps: d, ctx: ctx, now: time.Now}
}

// IngestResponse is returned for an accepted reading.
type IngestResponse struct {
	Status string   `json:"status"`
	Flags  []string `json:"flags"`
	Score  int      `json:"score"`
}

// HandleIngest stores a device reading under Readings/{t_ms} and Latest.
func (h *APIHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	body := make(map[string]interface{})
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		log.Printf("[api] error parsing ingest body: %v", err)
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "body must be a JSON object"))
		return
	}

	room, _ := body["room"].(string)
	pipe, _ := body["pipe"].(string)
	_, hasTime := data.ToNumber(body["t_ms"])
	if room == "" || pipe == "" || !hasTime {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeMissingParameter, "missing room, pipe or t_ms"))
		return
	}
	if _, ok := data.TimeMs(body["t_ms"]); !ok {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "t_ms must be a positive epoch time in milliseconds"))
		return
	}
	if !data.ValidKey(room) || !data.ValidKey(pipe) {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "room and pipe must be plain names"))
		return
	}

	now := h.now()
	reading := data.ReadingFromMap(body)
	reading.ServerTsMs = now.UnixMilli()

	if err := h.Store.Set(r.Context(), data.ReadingPath(room, pipe, *reading.TimeMs), reading); err != nil {
		h.storeError(w, err)
		return
	}
	if err := h.Store.Set(r.Context(), data.LatestPath(room, pipe), reading); err != nil {
		h.storeError(w, err)
		return
	}
	metrics.ReadingsIngested.Inc()
	if err := h.Archive.WriteReading(r.Context(), room, pipe, reading); err != nil {
		log.Printf("[api] archive reading %s/%s: %v", room, pipe, err)
	}

	flags, score := anomaly.LeakFlags(h.Config.Anomaly.Heuristics, reading, now)
	if flags == nil {
		flags = []string{}
	}
	utils.RespondWithJSON(w, http.StatusOK, IngestResponse{Status: "ok", Flags: flags, Score: score})
}

func (h *APIHandler) storeError(w http.ResponseWriter, err error) {
	log.Printf("[api] store write failed: %v", err)
	status := http.StatusInternalServerError
	if errors.Is(err, rtdb.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	utils.RespondWithError(w, data.NewAPIError(data.ErrorCodeStoreUnavailable, "server error", nil, status))
}

// HandleWebSocket upgrades connections and registers clients with the hub.
// New clients first receive the alert log.
func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial *websocket.Message
	if h.Alerts != nil {
		initial = &websocket.Message{Type: websocket.TypeHistory, Payload: h.Alerts.Entries()}
	}
	websocket.Serve(h.Hub, w, r, initial)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeMissingParameter, "username and password required"))
		return
	}
	token, exp, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		utils.RespondWithError(w, data.Unauthorized(data.ErrorCodeUnauthorized, "invalid credentials"))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.UnixMilli()})
}

type testAlertRequest struct {
	Room    string `json:"room"`
	Pipe    string `json:"pipe"`
	Message string `json:"message"`
}

// HandleTestAlert writes a manual critical record and a test notification.
func (h *APIHandler) HandleTestAlert(w http.ResponseWriter, r *http.Request) {
	req := testAlertRequest{Room: "Room6", Pipe: "Pipe2", Message: "Manual test alert from app"}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "invalid JSON body"))
		return
	}
	if !data.ValidKey(req.Room) || (req.Pipe != "" && !data.ValidKey(req.Pipe)) {
		utils.RespondWithError(w, data.BadRequest(data.ErrorCodeInvalidFormat, "room and pipe must be plain names"))
		return
	}

	rec := data.AlertRecord{
		Room:       req.Room,
		Pipe:       req.Pipe,
		Level:      data.SeverityCritical,
		Message:    req.Message,
		ServerTsMs: h.now().UnixMilli(),
		FromUID:    auth.Username(r.Context()),
	}
	key, err := h.Alerter.Emit(r.Context(), rec)
	if err != nil {
		h.storeError(w, err)
		return
	}

	id, err := h.Notifier.Schedule(r.Context(), notify.Notification{
		Title: "LeakLens • Test",
		Body:  "Manual test notification",
		Data:  map[string]string{"screen": "notificationlogs", "room": req.Room, "pipe": req.Pipe},
	})
	if err != nil {
		log.Printf("[api] test notification failed: %v", err)
	}
	utils.RespondWithJSON(w, http.StatusCreated, map[string]string{"id": key, "notification_id": id})
}

// HandleRefresh reattaches the monitor, resetting all per-pipe state.
func (h *APIHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Monitor.Refresh(h.ctx); err != nil {
		utils.RespondWithError(w, data.NewAPIError(data.ErrorCodeInternalServerError, err.Error(), nil, http.StatusInternalServerError))
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.status())
}
