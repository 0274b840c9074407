// Package handlers contains the HTTP handler implementations for the
// tweetrelay API: batch schedule creation, listing, pending-only edits, and
// the pull delivery endpoint.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tweetrelay/internal/core"
	"tweetrelay/internal/types"
)

// maxBatchSize caps how many items a single create request may carry.
const maxBatchSize = 100

// ScheduleRepo defines the data access contract for schedule operations.
// Mirrors the concrete db.ScheduleRepository methods used by this handler.
type ScheduleRepo interface {
	Insert(ctx context.Context, item *types.ScheduledItem) error
	GetByID(ctx context.Context, id int64) (*types.ScheduledItem, error)
	List(ctx context.Context, filter types.ScheduleFilter) ([]*types.ScheduledItem, error)
	UpdatePending(ctx context.Context, id int64, upd types.PendingUpdate) (*types.ScheduledItem, error)
}

// --- Request/Response Models ---

// CreateScheduleItem is one entry of the batch create request. The local
// wall-clock time and optional offset are normalized to UTC on write.
type CreateScheduleItem struct {
	ExternalRef           string         `json:"externalRef" validate:"required,max=200"`
	Group                 string         `json:"group" validate:"max=200"`
	Payload               string         `json:"payload" validate:"required"`
	LocalDateTime         string         `json:"localDateTime" validate:"required"`
	TimezoneOffsetMinutes *int           `json:"timezoneOffsetMinutes,omitempty"`
	Metadata              types.Metadata `json:"metadata,omitempty"`
}

// CreateScheduleRequest is the request body for POST /v1/schedule.
type CreateScheduleRequest struct {
	Items []CreateScheduleItem `json:"items" validate:"required,min=1,dive"`
}

// BatchItemError describes one failed item of a batch create.
type BatchItemError struct {
	Index       int    `json:"index"`
	ExternalRef string `json:"externalRef,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// CreateScheduleResponse reports per-item results: items succeed or fail
// independently, already-inserted items are never rolled back.
type CreateScheduleResponse struct {
	InsertedCount int              `json:"insertedCount"`
	Errors        []BatchItemError `json:"errors,omitempty"`
}

// UpdateScheduleRequest is the request body for PATCH /v1/schedule/{id}.
// All fields are optional; at least one must be present.
type UpdateScheduleRequest struct {
	Payload               *string         `json:"payload,omitempty"`
	LocalDateTime         *string         `json:"localDateTime,omitempty"`
	TimezoneOffsetMinutes *int            `json:"timezoneOffsetMinutes,omitempty"`
	Metadata              *types.Metadata `json:"metadata,omitempty"`
}

// ScheduleItemView is the wire representation of a scheduled item.
type ScheduleItemView struct {
	ID             int64          `json:"id"`
	ExternalRef    string         `json:"externalRef"`
	Group          string         `json:"group"`
	Payload        string         `json:"payload"`
	Metadata       types.Metadata `json:"metadata,omitempty"`
	ScheduledAtUTC string         `json:"scheduledAtUTC"`
	Status         string         `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"lastError,omitempty"`
	SentAt         *string        `json:"sentAt,omitempty"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
}

func itemView(item *types.ScheduledItem) ScheduleItemView {
	v := ScheduleItemView{
		ID:             item.ID,
		ExternalRef:    item.ExternalRef,
		Group:          item.Group,
		Payload:        item.Content,
		Metadata:       item.Metadata,
		ScheduledAtUTC: item.ScheduledAt.UTC().Format(time.RFC3339),
		Status:         string(item.Status),
		Attempts:       item.Attempts,
		LastError:      item.LastError,
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if item.SentAt != nil {
		s := item.SentAt.UTC().Format(time.RFC3339)
		v.SentAt = &s
	}
	return v
}

// --- Handler ---

// ScheduleHandler manages schedule CRUD for the review UI.
type ScheduleHandler struct {
	repo      ScheduleRepo
	validator *core.Validator
	logger    *slog.Logger

	// loc interprets local times submitted without an explicit offset.
	loc *time.Location
}

// NewScheduleHandler creates a ScheduleHandler with the provided dependencies.
func NewScheduleHandler(repo ScheduleRepo, v *core.Validator, l *slog.Logger, loc *time.Location) *ScheduleHandler {
	if l == nil {
		l = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleHandler{
		repo:      repo,
		validator: v,
		logger:    l,
		loc:       loc,
	}
}

// RegisterRoutes mounts schedule routes on the provided chi.Router.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schedule", func(r chi.Router) {
		r.Post("/", h.CreateBatch)
		r.Get("/", h.List)
		r.Patch("/{id}", h.Update)
	})
}

// CreateBatch handles POST /v1/schedule.
//
// Each item is normalized and inserted independently: a malformed timestamp
// or insert failure on one item never rolls back the others. The response
// carries the inserted count plus a per-index error list for the failures.
func (h *ScheduleHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if len(req.Items) > maxBatchSize {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			"batch exceeds the maximum item count",
			nil,
			map[string]any{"limit": maxBatchSize, "received": len(req.Items)},
		))
		return
	}

	resp := CreateScheduleResponse{}
	for i, in := range req.Items {
		if err := h.createOne(r.Context(), in); err != nil {
			resp.Errors = append(resp.Errors, batchError(i, in.ExternalRef, err))
			h.logger.WarnContext(r.Context(), "batch item rejected",
				"index", i,
				"external_ref", in.ExternalRef,
				"error", err,
			)
			continue
		}
		resp.InsertedCount++
	}

	status := http.StatusCreated
	if len(resp.Errors) > 0 {
		// Partial (or total) failure still returns the per-item results.
		status = http.StatusOK
	}
	core.JSON(w, r, status, resp)
}

func (h *ScheduleHandler) createOne(ctx context.Context, in CreateScheduleItem) error {
	scheduledAt, err := types.NormalizeLocalTime(in.LocalDateTime, in.TimezoneOffsetMinutes, h.loc)
	if err != nil {
		return err
	}

	item := &types.ScheduledItem{
		ExternalRef: in.ExternalRef,
		Group:       in.Group,
		Content:     in.Payload,
		Metadata:    in.Metadata,
		ScheduledAt: scheduledAt,
		Status:      types.StatusPending,
	}
	return h.repo.Insert(ctx, item)
}

func batchError(index int, externalRef string, err error) BatchItemError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return BatchItemError{
			Index:       index,
			ExternalRef: externalRef,
			Code:        string(appErr.Code),
			Message:     appErr.Message,
		}
	}
	return BatchItemError{
		Index:       index,
		ExternalRef: externalRef,
		Code:        string(types.ErrCodeInternalUnexpected),
		Message:     "failed to insert item",
	}
}

// List handles GET /v1/schedule?group=&status=.
//
// status accepts pending, sent, failed, or all (the default). Results are
// ordered by scheduled time ascending.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := types.ScheduleFilter{
		Group:  r.URL.Query().Get("group"),
		Status: types.StatusAll,
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := types.ScheduleStatus(raw)
		if !status.IsValid() && status != types.StatusAll {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidStatus,
				"status must be one of pending, sent, failed, all",
				nil,
				map[string]any{"status": raw},
			))
			return
		}
		filter.Status = status
	}

	items, err := h.repo.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	views := make([]ScheduleItemView, len(items))
	for i, item := range items {
		views[i] = itemView(item)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: views})
}

// Update handles PATCH /v1/schedule/{id}.
//
// Edits are permitted only while the item is pending; a new local time is
// re-run through the normalizer. Empty updates are rejected.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundSchedule,
			"scheduled item not found",
			err,
		))
		return
	}

	var req UpdateScheduleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	upd := types.PendingUpdate{
		Content:  req.Payload,
		Metadata: req.Metadata,
	}
	if req.LocalDateTime != nil {
		scheduledAt, err := types.NormalizeLocalTime(*req.LocalDateTime, req.TimezoneOffsetMinutes, h.loc)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		upd.ScheduledAt = &scheduledAt
	}

	if upd.IsEmpty() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptyUpdate,
			"update must change at least one field",
			nil,
		))
		return
	}

	item, err := h.repo.UpdatePending(r.Context(), id, upd)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: itemView(item)})
}
