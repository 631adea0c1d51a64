package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/openfinance-sync/internal/api/middleware"
	"github.com/dvloznov/openfinance-sync/internal/banksync"
	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/jobs/inmemory"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// ItemsAPI is the part of the aggregator the HTTP surface calls directly.
type ItemsAPI interface {
	CreateConnectToken(ctx context.Context, clientUserID, itemID string) (pluggy.ConnectToken, error)
	GetItem(ctx context.Context, itemID string) (pluggy.Item, error)
	RefreshItem(ctx context.Context, itemID string) (pluggy.Item, error)
	DeleteItem(ctx context.Context, itemID string) error
}

// QueueStats reports queue occupancy.
type QueueStats interface {
	Stats() inmemory.Stats
}

// PluggyHandler handles the /pluggy endpoints.
type PluggyHandler struct {
	items     ItemsAPI
	publisher jobs.Publisher
	queue     QueueStats
	docs      docstore.Store
	log       zerolog.Logger
}

// NewPluggyHandler creates a new aggregator handler.
func NewPluggyHandler(items ItemsAPI, publisher jobs.Publisher, queue QueueStats, docs docstore.Store, log zerolog.Logger) *PluggyHandler {
	return &PluggyHandler{
		items:     items,
		publisher: publisher,
		queue:     queue,
		docs:      docs,
		log:       log,
	}
}

// userID returns the authenticated caller; Auth runs before every handler.
func userID(r *http.Request) string {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id.UserID
}

// CreateToken handles POST /pluggy/create-token
func (h *PluggyHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"itemId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	token, err := h.items.CreateConnectToken(r.Context(), userID(r), req.ItemID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create connect token")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to create connect token")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"accessToken": token.AccessToken})
}

// ListItems handles GET /pluggy/items
func (h *PluggyHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.storedItems(r.Context(), userID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list items")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// TriggerSync handles POST /pluggy/trigger-sync
// It asks the connector to pull fresh data from the bank; the data sync
// itself is started with POST /pluggy/sync once the item is updated.
func (h *PluggyHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"itemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "itemId is required")
		return
	}

	if _, status, msg := h.ownedItem(r.Context(), userID(r), req.ItemID); status != 0 {
		middleware.WriteError(w, status, msg)
		return
	}

	item, err := h.items.RefreshItem(r.Context(), req.ItemID)
	if err != nil {
		h.log.Error().Err(err).Str("item_id", req.ItemID).Msg("Failed to trigger item refresh")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to trigger item refresh")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"item":    item,
	})
}

// Sync handles POST /pluggy/sync
// The job runs on the queue; the response carries only its id.
func (h *PluggyHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"itemId"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ItemID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "itemId is required")
		return
	}

	uid := userID(r)
	if req.UserID != "" && req.UserID != uid {
		middleware.WriteError(w, http.StatusForbidden, "userId does not match the authenticated user")
		return
	}

	if _, status, msg := h.ownedItem(r.Context(), uid, req.ItemID); status != 0 {
		middleware.WriteError(w, status, msg)
		return
	}

	job, err := h.publisher.Enqueue(r.Context(), uid, req.ItemID)
	if err != nil {
		h.log.Error().Err(err).Str("item_id", req.ItemID).Msg("Failed to enqueue sync job")
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		middleware.WriteError(w, status, "Failed to enqueue sync job")
		return
	}

	h.log.Info().Str("job_id", job.ID).Str("item_id", req.ItemID).Str("user_id", uid).Msg("Sync job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":   true,
		"syncJobId": job.ID,
	})
}

// DeleteItem handles DELETE /pluggy/item/{itemId}
func (h *PluggyHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := chi.URLParam(r, "itemId")
	uid := userID(r)

	_, status, msg := h.ownedItem(ctx, uid, itemID)
	switch status {
	case 0:
		if err := h.items.DeleteItem(ctx, itemID); err != nil && !isNotFound(err) {
			h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to delete item at aggregator")
			middleware.WriteError(w, http.StatusBadGateway, "Failed to delete item")
			return
		}
	case http.StatusNotFound:
		// Already gone upstream; the caller's own records are still removed.
	default:
		middleware.WriteError(w, status, msg)
		return
	}

	removed, err := banksync.RemoveItem(ctx, h.docs, uid, itemID)
	if err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to remove item records")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to remove item records")
		return
	}

	h.log.Info().Str("item_id", itemID).Int("accounts_removed", removed).Msg("Item deleted")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"accountsRemoved": removed,
	})
}

// ItemsStatus handles GET /pluggy/items-status
func (h *PluggyHandler) ItemsStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.storedItems(ctx, userID(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list items")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}

	type itemStatus struct {
		ID              string     `json:"id"`
		Status          string     `json:"status,omitempty"`
		ExecutionStatus string     `json:"executionStatus,omitempty"`
		Connector       string     `json:"connector,omitempty"`
		LastUpdatedAt   *time.Time `json:"lastUpdatedAt,omitempty"`
		LastSyncedAt    time.Time  `json:"lastSyncedAt"`
		Error           string     `json:"error,omitempty"`
	}

	statuses := make([]itemStatus, 0, len(items))
	for _, stored := range items {
		st := itemStatus{ID: stored.ID, LastSyncedAt: stored.LastSyncedAt}
		item, err := h.items.GetItem(ctx, stored.ID)
		if err != nil {
			h.log.Warn().Err(err).Str("item_id", stored.ID).Msg("Failed to fetch item status")
			st.Error = err.Error()
		} else {
			st.Status = item.Status
			st.ExecutionStatus = item.ExecutionStatus
			st.Connector = item.Connector.Name
			st.LastUpdatedAt = item.LastUpdatedAt
		}
		statuses = append(statuses, st)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": statuses,
		"count": len(statuses),
	})
}

// WebhookWorker handles GET /pluggy/webhook-worker
// It is polled by an external scheduler and only reports queue occupancy.
func (h *PluggyHandler) WebhookWorker(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()
	h.log.Info().Int("queued", stats.Queued).Int("in_flight", stats.InFlight).Msg("Webhook worker triggered")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"queue":   stats,
	})
}

// ownedItem fetches the item and checks it was connected by uid. A non-zero
// status is the HTTP error to answer with.
func (h *PluggyHandler) ownedItem(ctx context.Context, uid, itemID string) (pluggy.Item, int, string) {
	item, err := h.items.GetItem(ctx, itemID)
	if err != nil {
		if isNotFound(err) {
			return pluggy.Item{}, http.StatusNotFound, "Item not found"
		}
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to fetch item")
		return pluggy.Item{}, http.StatusBadGateway, "Failed to fetch item"
	}
	if item.ClientUserID != uid {
		h.log.Warn().Str("item_id", itemID).Str("user_id", uid).Msg("Item belongs to another user")
		return pluggy.Item{}, http.StatusForbidden, "Item does not belong to the authenticated user"
	}
	return item, 0, ""
}

func isNotFound(err error) bool {
	var apiErr *pluggy.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (h *PluggyHandler) storedItems(ctx context.Context, uid string) ([]domain.Item, error) {
	snaps, err := h.docs.List(ctx, docstore.UserCollection(uid, domain.CollectionItems))
	if err != nil {
		return nil, err
	}
	items := make([]domain.Item, 0, len(snaps))
	for _, s := range snaps {
		var item domain.Item
		if err := s.DataTo(&item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// JobsHandler handles sync job polling endpoints.
type JobsHandler struct {
	store *jobs.Store
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store *jobs.Store, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /pluggy/sync-jobs/{jobId}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.store.GetJob(r.Context(), userID(r), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /pluggy/sync-jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), userID(r), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
