package handlers

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle.
type TicketsHandler struct {
	service *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{service: lifecycle}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("employee required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.service.Create(actorContext(c), service.CreateTicketInput{
		Type:        req.Type,
		Channel:     req.Channel,
		Subject:     req.Subject,
		Description: req.Description,
		RequesterID: principal.Employee.ID,
		CustomerID:  req.CustomerID,
		MotiveID:    req.MotiveID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": result})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i], nil))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	details, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(&details.Ticket, details.Active)})
}

// ListAssignments GET /tickets/:id/assignments. A chain whose digests do not
// match is still returned, flagged as unverified.
func (h *TicketsHandler) ListAssignments(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	history, err := h.service.VerifyHistory(c.UserContext(), id)
	verified := err == nil
	if err != nil && !(history != nil && apperrors.HasCode(err, apperrors.CodeChainCorrupted)) {
		return err
	}
	resp := dto.CustodyChainResponse{
		TicketID:    id,
		Verified:    verified,
		Assignments: make([]dto.AssignmentResponse, 0, len(history)),
	}
	for i := range history {
		resp.Assignments = append(resp.Assignments, assignmentResponse(&history[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	result, err := h.service.Escalate(actorContext(c), id, req.AreaID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Derive POST /tickets/:id/derive.
func (h *TicketsHandler) Derive(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.DeriveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AreaID <= 0 {
		return apperrors.NewValidationError("area_id required", nil)
	}
	result, err := h.service.Derive(actorContext(c), id, req.AreaID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Return POST /tickets/:id/return.
func (h *TicketsHandler) Return(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.ReturnRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ReceivingHolderID <= 0 {
		return apperrors.NewValidationError("receiving_holder_id required", nil)
	}
	result, err := h.service.Return(actorContext(c), id, req.ReceivingHolderID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Close POST /tickets/:id/close. The caller is recorded as the closing holder.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("employee required")
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	result, err := h.service.Close(actorContext(c), id, principal.Employee.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// actorContext tags the request context with the authenticated employee so
// lifecycle events record who acted.
func actorContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if principal, ok := auth.PrincipalFromContext(c); ok {
		ctx = service.WithActor(ctx, principal.Employee.ID)
	}
	return ctx
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{}
	for _, part := range splitQuery(c.Query("state")) {
		state := domain.TicketState(strings.ToUpper(part))
		if !state.Valid() {
			return filter, apperrors.NewValidationError("unknown state", map[string]any{"state": part})
		}
		filter.States = append(filter.States, state)
	}
	for _, part := range splitQuery(c.Query("type")) {
		ticketType := domain.TicketType(strings.ToUpper(part))
		if !ticketType.Valid() {
			return filter, apperrors.NewValidationError("unknown type", map[string]any{"type": part})
		}
		filter.Types = append(filter.Types, ticketType)
	}
	if raw := c.Query("channel"); raw != "" {
		channel := domain.Channel(strings.ToUpper(raw))
		if !channel.Valid() {
			return filter, apperrors.NewValidationError("unknown channel", map[string]any{"channel": raw})
		}
		filter.Channel = &channel
	}
	if raw := c.Query("customer_id"); raw != "" {
		customerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid customer_id", nil)
		}
		filter.CustomerID = &customerID
	}
	filter.CreatedFrom = parseTime(c.Query("created_from"))
	filter.CreatedTo = parseTime(c.Query("created_to"))
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket, active *domain.Assignment) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:          ticket.ID,
		Type:        ticket.Type,
		Channel:     ticket.Channel,
		State:       ticket.State,
		Subject:     ticket.Subject,
		Description: ticket.Description,
		CustomerID:  ticket.CustomerID,
		MotiveID:    ticket.MotiveID,
		CreatedAt:   ticket.CreatedAt,
		ClosedAt:    ticket.ClosedAt,
		ClosedBy:    ticket.ClosedBy,
	}
	if active != nil {
		custodian := assignmentResponse(active)
		resp.Custodian = &custodian
	}
	return resp
}

func assignmentResponse(a *domain.Assignment) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		ID:        a.ID,
		HolderID:  a.HolderID,
		AreaID:    a.AreaID,
		StartedAt: a.StartedAt,
		EndedAt:   a.EndedAt,
		ParentID:  a.ParentID,
		Note:      a.Note,
		Digest:    hex.EncodeToString(a.Digest),
	}
}
