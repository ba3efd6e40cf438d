package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "go-collab/internal/infrastructure/cache/port"
	"go-collab/internal/pkg/collab/application/usecase"
	collab "go-collab/internal/pkg/collab/domain"
	"go-collab/internal/pkg/collab/persistence/repository/adapter"
)

// AcceptInvitationController settles an invitation by token and registers
// the invitee as a participant.
type AcceptInvitationController struct {
	UC *usecase.AcceptInvitationUseCase
}

func NewAcceptInvitationController(pool *pgxpool.Pool, cache cacheport.Cache) *AcceptInvitationController {
	repo := adapter.NewPgSessionRepository(pool)
	return &AcceptInvitationController{UC: usecase.NewAcceptInvitationUseCase(repo, cache)}
}

type acceptInvitationRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	UserName string `json:"user_name"`
}

func (h *AcceptInvitationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req acceptInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := usecase.AcceptInvitationInput{
			Token:    c.Param("token"),
			UserID:   req.UserID,
			UserName: req.UserName,
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		inv, err := h.UC.Execute(ctx, in)
		if err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, usecase.ErrInvitationNotFound):
				status = http.StatusNotFound
			case errors.Is(err, collab.ErrInvitationExpired), errors.Is(err, collab.ErrInvitationSettled):
				status = http.StatusGone
			case errors.Is(err, usecase.ErrPersistence):
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, inv)
	}
}
