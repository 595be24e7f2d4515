package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bashkirian/kpi-engine/internal/alerts"
	"github.com/bashkirian/kpi-engine/internal/engine"
	"github.com/bashkirian/kpi-engine/internal/period"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Querier запросы дашборда
type Querier interface {
	GetOverview(ctx context.Context, w models.Window, opts engine.Options) (*engine.Result, error)
	GetDomainAnalysis(ctx context.Context, domain models.Domain, w models.Window, opts engine.Options) (*engine.Result, error)
	Defaults() engine.Options
}

// Store приём событий, назначений и меню
type Store interface {
	AddEvent(ctx context.Context, event models.Event) (models.Event, error)
	Assign(ctx context.Context, subjectID, entityID string, at time.Time) error
	Release(ctx context.Context, subjectID string, at time.Time) error
	UpsertMenuItem(ctx context.Context, item models.MenuItem) error
	Ping(ctx context.Context) error
}

type Handler struct {
	engine Querier
	store  Store
	log    *zap.Logger
	now    func() time.Time
}

func New(q Querier, s Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{engine: q, store: s, log: log, now: time.Now}
}

// Register маршруты API
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/overview", h.HandleOverview).Methods(http.MethodGet)
	api.HandleFunc("/domains/{domain}", h.HandleDomain).Methods(http.MethodGet)
	api.HandleFunc("/domains/{domain}/rules", h.HandleRules).Methods(http.MethodGet)
	api.HandleFunc("/presets", h.HandlePresets).Methods(http.MethodGet)
	api.HandleFunc("/events", h.HandlePostEvent).Methods(http.MethodPost)
	api.HandleFunc("/intervals", h.HandleAssign).Methods(http.MethodPost)
	api.HandleFunc("/intervals/{subject_id}/close", h.HandleRelease).Methods(http.MethodPost)
	api.HandleFunc("/menu", h.HandlePutMenu).Methods(http.MethodPut)
}

// GET /api/v1/overview - KPI всех доменов
func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	win, opts, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	res, err := h.engine.GetOverview(r.Context(), win, opts)
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

// GET /api/v1/domains/{domain} - анализ одного домена
func (h *Handler) HandleDomain(w http.ResponseWriter, r *http.Request) {
	domain := models.Domain(strings.ToLower(mux.Vars(r)["domain"]))
	if !domain.Valid() {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown domain %q", domain))
		return
	}
	win, opts, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	res, err := h.engine.GetDomainAnalysis(r.Context(), domain, win, opts)
	if err != nil {
		h.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

// GET /api/v1/domains/{domain}/rules - какие алерты умеет выдавать домен
func (h *Handler) HandleRules(w http.ResponseWriter, r *http.Request) {
	domain := models.Domain(strings.ToLower(mux.Vars(r)["domain"]))
	if !domain.Valid() {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown domain %q", domain))
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]any{
		"domain": domain,
		"alerts": alerts.Catalogue(domain),
	})
}

type presetWindow struct {
	Preset period.Preset `json:"preset"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
}

// GET /api/v1/presets - окна пресетов на текущий момент
func (h *Handler) HandlePresets(w http.ResponseWriter, r *http.Request) {
	loc := h.engine.Defaults().Location
	if tz := r.URL.Query().Get("timezone"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "invalid timezone")
			return
		}
		loc = l
	}
	now := h.now()
	out := make([]presetWindow, 0, len(period.Presets))
	for _, p := range period.Presets {
		win, err := period.Resolve(p, now, loc)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		out = append(out, presetWindow{Preset: p, Start: win.Start, End: win.End})
	}
	respondJSON(w, r, http.StatusOK, out)
}

// POST /api/v1/events - принять событие
func (h *Handler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	stored, err := h.store.AddEvent(r.Context(), event)
	if err != nil {
		h.respondStorageError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]string{
		"id":     stored.ID,
		"status": "accepted",
	})
}

type assignRequest struct {
	SubjectID  string    `json:"subject_id"`
	EntityID   string    `json:"entity_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// POST /api/v1/intervals - назначить официанта на счёт
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if req.SubjectID == "" || req.EntityID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "subject_id and entity_id are required")
		return
	}
	if req.AssignedAt.IsZero() {
		req.AssignedAt = h.now()
	}
	if err := h.store.Assign(r.Context(), req.SubjectID, req.EntityID, req.AssignedAt); err != nil {
		h.respondStorageError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, models.AssignmentInterval{
		SubjectID:  req.SubjectID,
		EntityID:   req.EntityID,
		AssignedAt: req.AssignedAt.UTC(),
	})
}

type releaseRequest struct {
	RemovedAt time.Time `json:"removed_at"`
}

// POST /api/v1/intervals/{subject_id}/close - закрыть открытый интервал
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	subjectID := mux.Vars(r)["subject_id"]
	var req releaseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
			return
		}
	}
	if req.RemovedAt.IsZero() {
		req.RemovedAt = h.now()
	}
	if err := h.store.Release(r.Context(), subjectID, req.RemovedAt); err != nil {
		h.respondStorageError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "closed"})
}

// PUT /api/v1/menu - обновить позиции меню
func (h *Handler) HandlePutMenu(w http.ResponseWriter, r *http.Request) {
	var items []models.MenuItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	for _, it := range items {
		if it.ID == "" {
			respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "menu item id is required")
			return
		}
	}
	for _, it := range items {
		if err := h.store.UpsertMenuItem(r.Context(), it); err != nil {
			h.respondStorageError(w, r, err)
			return
		}
	}
	respondJSON(w, r, http.StatusOK, map[string]int{"updated": len(items)})
}

// GET /health - healthcheck
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := queryError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("kpi query failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
	respondError(w, r, status, code, err.Error())
}

func (h *Handler) respondStorageError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := storageError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("storage write failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}
	respondError(w, r, status, code, err.Error())
}

// parseQuery окно и настройки из query string. При ошибке ответ уже записан.
func (h *Handler) parseQuery(w http.ResponseWriter, r *http.Request) (models.Window, engine.Options, bool) {
	win, opts, err := h.windowAndOptions(r)
	if err != nil {
		status, code := http.StatusBadRequest, ErrCodeValidationFailed
		if errors.Is(err, models.ErrInvalidRange) || errors.Is(err, period.ErrInvalidPreset) {
			code = ErrCodeInvalidRequest
		}
		respondError(w, r, status, code, err.Error())
		return models.Window{}, engine.Options{}, false
	}
	return win, opts, true
}

func (h *Handler) windowAndOptions(r *http.Request) (models.Window, engine.Options, error) {
	q := r.URL.Query()
	var opts engine.Options

	if v := q.Get("sla_minutes"); v != "" {
		sla, err := strconv.ParseFloat(v, 64)
		if err != nil || sla <= 0 {
			return models.Window{}, opts, errors.New("sla_minutes must be a positive number")
		}
		opts.SLAMinutes = sla
	}
	if v := q.Get("granularity"); v != "" {
		g := models.Granularity(v)
		if !g.Valid() {
			return models.Window{}, opts, fmt.Errorf("unknown granularity %q", v)
		}
		opts.Granularity = g
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return models.Window{}, opts, errors.New("limit must be a positive integer")
		}
		opts.Limit = n
		opts.RankLimit = n
	}
	opts.Location = h.engine.Defaults().Location
	if v := q.Get("timezone"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return models.Window{}, opts, fmt.Errorf("invalid timezone %q", v)
		}
		opts.Location = loc
	}

	from, to := q.Get("from"), q.Get("to")
	preset, err := period.ParsePreset(q.Get("preset"))
	if err != nil {
		return models.Window{}, opts, err
	}
	if from != "" || to != "" {
		preset = period.PresetCustom
	}
	if preset != period.PresetCustom {
		win, err := period.Resolve(preset, h.now(), opts.Location)
		return win, opts, err
	}

	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return models.Window{}, opts, fmt.Errorf("%w: from must be RFC3339", models.ErrInvalidRange)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return models.Window{}, opts, fmt.Errorf("%w: to must be RFC3339", models.ErrInvalidRange)
	}
	win, err := period.Custom(start, end)
	return win, opts, err
}
