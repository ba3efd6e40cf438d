package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "go-collab/internal/infrastructure/cache/port"
	qport "go-collab/internal/infrastructure/queue/port"
	"go-collab/internal/pkg/collab/application/usecase"
	collab "go-collab/internal/pkg/collab/domain"
	"go-collab/internal/pkg/collab/persistence/repository/adapter"
)

// InviteParticipantController issues a single-use invitation for a
// session.
type InviteParticipantController struct {
	UC *usecase.InviteParticipantUseCase
}

func NewInviteParticipantController(pool *pgxpool.Pool, cache cacheport.Cache, queue qport.Client) *InviteParticipantController {
	repo := adapter.NewPgSessionRepository(pool)
	return &InviteParticipantController{UC: usecase.NewInviteParticipantUseCase(repo, cache, queue)}
}

type inviteRequest struct {
	InviterID      string      `json:"inviter_id" binding:"required"`
	InviteeContact string      `json:"invitee_contact" binding:"required"`
	InviteeName    string      `json:"invitee_name"`
	Role           collab.Role `json:"role" binding:"required"`
	Message        string      `json:"message"`
}

func (h *InviteParticipantController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inviteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := usecase.InviteParticipantInput{
			SessionID:      c.Param("sessionId"),
			InviterID:      req.InviterID,
			InviteeContact: req.InviteeContact,
			InviteeName:    req.InviteeName,
			Role:           req.Role,
			Message:        req.Message,
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		inv, err := h.UC.Execute(ctx, in)
		if err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, usecase.ErrPersistence):
				status = http.StatusInternalServerError
			case errors.Is(err, usecase.ErrForbidden), errors.Is(err, usecase.ErrNotParticipant):
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, inv)
	}
}
