package indexer

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/evm-indexer/pkg/app/errors"
	apphttp "github.com/chainsafe/evm-indexer/pkg/app/http"
	"github.com/chainsafe/evm-indexer/pkg/auth"
	"github.com/chainsafe/evm-indexer/pkg/engine"
	"github.com/chainsafe/evm-indexer/pkg/indexdb"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	defaultStatsSpan = 30 * 24 * time.Hour
)

// Controller is the operational surface of the engine.
type Controller interface {
	Ready() bool
	Status(ctx context.Context) (*engine.Status, error)
	StartIngestion(ctx context.Context) error
	StopIngestion(ctx context.Context) error
	RefreshStats(ctx context.Context) error
	AckAlert(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error)
}

// QueryStore serves the read side of the API and the watch list edits.
type QueryStore interface {
	GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	ListAlerts(ctx context.Context, f indexdb.AlertFilter) ([]*model.Alert, error)

	DailyStats(ctx context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error)
	HourlyStats(ctx context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error)
	TopAddresses(ctx context.Context, limit int) ([]model.AddressActivity, error)

	WatchList(ctx context.Context) ([]model.WatchedAddress, error)
	GetWatched(ctx context.Context, address string) (*model.WatchedAddress, error)
	UpsertWatched(ctx context.Context, w *model.WatchedAddress) error
	RemoveWatched(ctx context.Context, address string) error
}

type handler struct {
	ctrl   Controller
	store  QueryStore
	logger *zap.Logger
}

// routes mounts the /api/v1 endpoints. Mutating routes go through requireAdmin.
func (h *handler) routes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Get("/status", apphttp.HandleError(h.getStatus))
	r.Get("/stats/daily", apphttp.HandleError(h.getPeriodStats(h.store.DailyStats)))
	r.Get("/stats/hourly", apphttp.HandleError(h.getPeriodStats(h.store.HourlyStats)))
	r.Get("/stats/top-addresses", apphttp.HandleError(h.getTopAddresses))
	r.Get("/alerts", apphttp.HandleError(h.listAlerts))
	r.Get("/alerts/{id}", apphttp.HandleError(h.getAlert))
	r.Get("/watchlist", apphttp.HandleError(h.listWatched))
	r.Get("/watchlist/{address}", apphttp.HandleError(h.getWatched))

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/indexer/start", apphttp.HandleError(h.startIngestion))
		r.Post("/indexer/stop", apphttp.HandleError(h.stopIngestion))
		r.Post("/stats/refresh", apphttp.HandleError(h.refreshStats))
		r.Post("/alerts/{id}/ack", apphttp.HandleError(h.ackAlert))
		r.Put("/watchlist/{address}", apphttp.HandleError(h.putWatched))
		r.Delete("/watchlist/{address}", apphttp.HandleError(h.deleteWatched))
	})
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) error {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		return h.internal("Failed to read status", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, st)
}

func (h *handler) startIngestion(w http.ResponseWriter, r *http.Request) error {
	err := h.ctrl.StartIngestion(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrAlreadyRunning):
		return apperrors.ConflictError(err, "ingestion already running")
	case errors.Is(err, indexdb.ErrLeaseHeld):
		return apperrors.LockedError(err, "ingestion lease held by another process")
	case errors.Is(err, engine.ErrNotStarted):
		return apperrors.UnavailableError(err, "engine not started")
	default:
		return h.internal("Failed to start ingestion", err)
	}
	h.logger.Info("Ingestion started via API", h.actor(r))
	return h.writeStatus(w, r, http.StatusAccepted)
}

func (h *handler) stopIngestion(w http.ResponseWriter, r *http.Request) error {
	err := h.ctrl.StopIngestion(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNotRunning):
		return apperrors.ConflictError(err, "ingestion not running")
	default:
		return h.internal("Failed to stop ingestion", err)
	}
	h.logger.Info("Ingestion stopped via API", h.actor(r))
	return h.writeStatus(w, r, http.StatusOK)
}

func (h *handler) writeStatus(w http.ResponseWriter, r *http.Request, code int) error {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		return h.internal("Failed to read status", err)
	}
	return apphttp.WriteJSON(w, code, st)
}

func (h *handler) refreshStats(w http.ResponseWriter, r *http.Request) error {
	err := h.ctrl.RefreshStats(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrStatsDisabled):
		return apperrors.UnavailableError(err, "stats refresh disabled")
	default:
		// previous aggregates stay visible; the refresher already logged the cause
		return apperrors.DependencyError(err, "stats refresh failed")
	}
	return h.writeStatus(w, r, http.StatusOK)
}

func (h *handler) getPeriodStats(query func(ctx context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error)) apphttp.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		to, err := timeParam(r, "to", time.Now().UTC())
		if err != nil {
			return err
		}
		from, err := timeParam(r, "from", to.Add(-defaultStatsSpan))
		if err != nil {
			return err
		}
		if from.After(to) {
			return apperrors.BadRequestError(nil, "from must not be after to")
		}
		limit, err := limitParam(r)
		if err != nil {
			return err
		}

		rows, err := query(r.Context(), from, to, limit)
		if err != nil {
			return h.internal("Failed to query stats", err)
		}
		return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"stats": rows})
	}
}

func (h *handler) getTopAddresses(w http.ResponseWriter, r *http.Request) error {
	limit, err := limitParam(r)
	if err != nil {
		return err
	}
	rows, err := h.store.TopAddresses(r.Context(), limit)
	if err != nil {
		return h.internal("Failed to query top addresses", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"addresses": rows})
}

func (h *handler) listAlerts(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	f := indexdb.AlertFilter{RuleName: q.Get("rule")}

	if v := q.Get("acknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.BadRequestError(err, "acknowledged must be a boolean")
		}
		f.Acknowledged = &b
	}
	if v := q.Get("severity"); v != "" {
		sev, err := model.ParseSeverity(v)
		if err != nil {
			return apperrors.BadRequestError(err, "unknown severity")
		}
		f.Severity = sev
	}
	var err error
	if f.Limit, err = limitParam(r); err != nil {
		return err
	}
	if f.Offset, err = intParam(r, "offset", 0); err != nil {
		return err
	}

	alerts, err := h.store.ListAlerts(r.Context(), f)
	if err != nil {
		return h.internal("Failed to list alerts", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *handler) getAlert(w http.ResponseWriter, r *http.Request) error {
	id, err := alertID(r)
	if err != nil {
		return err
	}
	a, err := h.store.GetAlert(r.Context(), id)
	if errors.Is(err, indexdb.ErrAlertNotFound) {
		return apperrors.ResourceNotFoundError(err, "alert not found")
	}
	if err != nil {
		return h.internal("Failed to get alert", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) ackAlert(w http.ResponseWriter, r *http.Request) error {
	id, err := alertID(r)
	if err != nil {
		return err
	}
	by, _ := auth.SubjectFromContext(r.Context())
	a, err := h.ctrl.AckAlert(r.Context(), id, by)
	if errors.Is(err, indexdb.ErrAlertNotFound) {
		return apperrors.ResourceNotFoundError(err, "alert not found")
	}
	if err != nil {
		return h.internal("Failed to acknowledge alert", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) listWatched(w http.ResponseWriter, r *http.Request) error {
	list, err := h.store.WatchList(r.Context())
	if err != nil {
		return h.internal("Failed to list watched addresses", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"addresses": list})
}

func (h *handler) getWatched(w http.ResponseWriter, r *http.Request) error {
	addr, err := addressParam(r)
	if err != nil {
		return err
	}
	entry, err := h.store.GetWatched(r.Context(), addr)
	if errors.Is(err, indexdb.ErrWatchedAddressNotFound) {
		return apperrors.ResourceNotFoundError(err, "address not watched")
	}
	if err != nil {
		return h.internal("Failed to get watched address", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, entry)
}

type watchRequest struct {
	Label           string `json:"label"`
	Reason          string `json:"reason"`
	Severity        string `json:"severity"`
	AlertOnActivity *bool  `json:"alert_on_activity"`
}

func (h *handler) putWatched(w http.ResponseWriter, r *http.Request) error {
	addr, err := addressParam(r)
	if err != nil {
		return err
	}
	var req watchRequest
	if err := apphttp.DecodeJSON(r, &req); err != nil {
		return err
	}

	entry := &model.WatchedAddress{
		Address:         addr,
		Label:           req.Label,
		Reason:          req.Reason,
		Severity:        model.SeverityWarning,
		AlertOnActivity: true,
	}
	if req.Severity != "" {
		if entry.Severity, err = model.ParseSeverity(req.Severity); err != nil {
			return apperrors.BadRequestError(err, "unknown severity")
		}
	}
	if req.AlertOnActivity != nil {
		entry.AlertOnActivity = *req.AlertOnActivity
	}

	if err := h.store.UpsertWatched(r.Context(), entry); err != nil {
		return h.internal("Failed to update watch list", err)
	}
	h.logger.Info("Watch list entry updated", zap.String("address", addr), h.actor(r))

	saved, err := h.store.GetWatched(r.Context(), addr)
	if err != nil {
		return h.internal("Failed to get watched address", err)
	}
	return apphttp.WriteJSON(w, http.StatusOK, saved)
}

func (h *handler) deleteWatched(w http.ResponseWriter, r *http.Request) error {
	addr, err := addressParam(r)
	if err != nil {
		return err
	}
	err = h.store.RemoveWatched(r.Context(), addr)
	if errors.Is(err, indexdb.ErrWatchedAddressNotFound) {
		return apperrors.ResourceNotFoundError(err, "address not watched")
	}
	if err != nil {
		return h.internal("Failed to update watch list", err)
	}
	h.logger.Info("Watch list entry removed", zap.String("address", addr), h.actor(r))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *handler) internal(msg string, err error) error {
	h.logger.Error(msg, zap.Error(err))
	return apperrors.GeneralError(err)
}

func (h *handler) actor(r *http.Request) zap.Field {
	sub, _ := auth.SubjectFromContext(r.Context())
	return zap.String("actor", sub)
}

func alertID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperrors.BadRequestError(err, "invalid alert id")
	}
	return id, nil
}

func addressParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		return "", apperrors.BadRequestError(nil, "invalid address")
	}
	return model.NormalizeAddress(raw), nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.BadRequestError(err, name+" must be a non-negative integer")
	}
	return n, nil
}

func limitParam(r *http.Request) (int, error) {
	n, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		return 0, err
	}
	return min(n, maxListLimit), nil
}

func timeParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, apperrors.BadRequestError(err, name+" must be an RFC3339 timestamp")
	}
	return t.UTC(), nil
}
