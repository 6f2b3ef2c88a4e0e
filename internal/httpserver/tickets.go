package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/armandavtyann/ticket/internal/tickets"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TicketStore is the slice of the item store the handlers need.
type TicketStore interface {
	List(ctx context.Context, page, limit int) (*tickets.Page, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	Create(ctx context.Context, title string, description *string, status domain.TicketStatus) (*domain.Ticket, error)
	Update(ctx context.Context, id uuid.UUID, u tickets.Update) (*domain.Ticket, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type ticketsHandler struct {
	store  TicketStore
	logger *slog.Logger
}

func (h *ticketsHandler) list(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	out, err := h.store.List(c.Request.Context(), page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ticketsHandler) get(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}
	t, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": t})
}

type createTicketRequest struct {
	Title       string              `json:"title"`
	Description *string             `json:"description"`
	Status      domain.TicketStatus `json:"status"`
}

func (h *ticketsHandler) create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validationf("malformed request body: %v", err))
		return
	}
	if req.Title == "" {
		writeError(c, apperr.Validationf("title is required"))
		return
	}
	if req.Status != "" && !validTicketStatus(req.Status) {
		writeError(c, apperr.Validationf("invalid ticket status %q", req.Status))
		return
	}

	t, err := h.store.Create(c.Request.Context(), req.Title, req.Description, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": t})
}

func (h *ticketsHandler) update(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}

	var u tickets.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		writeError(c, apperr.Validationf("malformed request body: %v", err))
		return
	}
	if u.Status != nil && !validTicketStatus(*u.Status) {
		writeError(c, apperr.Validationf("invalid ticket status %q", *u.Status))
		return
	}

	t, err := h.store.Update(c.Request.Context(), id, u)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": t})
}

func (h *ticketsHandler) remove(c *gin.Context) {
	id, ok := h.ticketID(c)
	if !ok {
		return
	}
	if err := h.store.SoftDelete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ticketsHandler) ticketID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, apperr.Validationf("invalid ticket id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func validTicketStatus(s domain.TicketStatus) bool {
	switch s {
	case domain.TicketOpen, domain.TicketInProgress, domain.TicketResolved, domain.TicketClosed:
		return true
	}
	return false
}
