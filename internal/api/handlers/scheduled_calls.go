package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/predictive-dialer/internal/domain"
	"github.com/acme/predictive-dialer/internal/service/common"
	apperrors "github.com/acme/predictive-dialer/pkg/errors"
)

type createScheduledCallRequest struct {
	ContactID   int64     `json:"contact_id"`
	CampaignID  int64     `json:"campaign_id"`
	PhoneNumber string    `json:"phone_number"`
	DueAt       time.Time `json:"due_at"`
	Priority    int       `json:"priority"`
}

type scheduledCallResponse struct {
	ID          uuid.UUID                  `json:"id"`
	ContactID   int64                      `json:"contact_id"`
	CampaignID  int64                      `json:"campaign_id"`
	PhoneNumber string                     `json:"phone_number"`
	DueAt       time.Time                  `json:"due_at"`
	Priority    int                        `json:"priority"`
	Status      domain.ScheduledCallStatus `json:"status"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

type callRecordResponse struct {
	ID              uuid.UUID `json:"id"`
	ScheduledCallID uuid.UUID `json:"scheduled_call_id"`
	ContactID       int64     `json:"contact_id"`
	CampaignID      int64     `json:"campaign_id"`
	PhoneNumber     string    `json:"phone_number"`
	Channel         string    `json:"channel"`
	ActionID        string    `json:"action_id"`
	Accepted        bool      `json:"accepted"`
	Error           string    `json:"error,omitempty"`
	OriginatedAt    time.Time `json:"originated_at"`
}

func (h *HandlerSet) createScheduledCall(ctx *fiber.Ctx) error {
	var req createScheduledCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	if req.PhoneNumber == "" {
		return translateError(apperrors.Wrap(apperrors.ErrValidation, "phone_number is required"))
	}
	if req.DueAt.IsZero() {
		return translateError(apperrors.Wrap(apperrors.ErrValidation, "due_at is required"))
	}

	now := time.Now().UTC()
	call := &domain.ScheduledCall{
		ID:          uuid.New(),
		ContactID:   req.ContactID,
		CampaignID:  req.CampaignID,
		PhoneNumber: req.PhoneNumber,
		DueAt:       req.DueAt.UTC(),
		Priority:    req.Priority,
		Status:      domain.ScheduledCallPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.calls.Create(ctx.Context(), call); err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toScheduledCallResponse(call))
}

func (h *HandlerSet) getScheduledCall(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid scheduled call id")
	}

	call, err := h.calls.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toScheduledCallResponse(call))
}

func (h *HandlerSet) cancelScheduledCall(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid scheduled call id")
	}

	if err := h.calls.Cancel(ctx.Context(), id); err != nil {
		return translateError(err)
	}

	call, err := h.calls.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toScheduledCallResponse(call))
}

func (h *HandlerSet) listScheduledCalls(ctx *fiber.Ctx) error {
	limit := parseLimit(ctx.Query("limit"), 50, 200)

	var afterID *uuid.UUID
	if after := ctx.Query("after_id"); after != "" {
		id, err := uuid.Parse(after)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid after_id")
		}
		afterID = &id
	}

	calls, err := h.calls.List(ctx.Context(), afterID, limit)
	if err != nil {
		return translateError(err)
	}

	items := make([]scheduledCallResponse, 0, len(calls))
	for _, call := range calls {
		items = append(items, toScheduledCallResponse(call))
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"items": items})
}

func (h *HandlerSet) listCallRecords(ctx *fiber.Ctx) error {
	campaignID, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit := parseLimit(ctx.Query("limit"), 50, 500)

	var pagingState []byte
	if token := ctx.Query("page_token"); token != "" {
		pagingState, err = common.DecodeBase64(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	records, nextState, err := h.records.ListByCampaign(ctx.Context(), campaignID, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	items := make([]callRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, toCallRecordResponse(record))
	}

	resp := fiber.Map{"items": items}
	if len(nextState) > 0 {
		resp["next_page_token"] = common.EncodeBase64(nextState)
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toScheduledCallResponse(call *domain.ScheduledCall) scheduledCallResponse {
	return scheduledCallResponse{
		ID:          call.ID,
		ContactID:   call.ContactID,
		CampaignID:  call.CampaignID,
		PhoneNumber: call.PhoneNumber,
		DueAt:       call.DueAt,
		Priority:    call.Priority,
		Status:      call.Status,
		CreatedAt:   call.CreatedAt,
		UpdatedAt:   call.UpdatedAt,
	}
}

func toCallRecordResponse(record domain.CallRecord) callRecordResponse {
	return callRecordResponse{
		ID:              record.ID,
		ScheduledCallID: record.ScheduledCallID,
		ContactID:       record.ContactID,
		CampaignID:      record.CampaignID,
		PhoneNumber:     record.PhoneNumber,
		Channel:         record.Channel,
		ActionID:        record.ActionID,
		Accepted:        record.Accepted,
		Error:           record.Error,
		OriginatedAt:    record.OriginatedAt,
	}
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
