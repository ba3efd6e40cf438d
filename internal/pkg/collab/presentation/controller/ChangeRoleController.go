package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-collab/internal/pkg/collab/application/usecase"
	collab "go-collab/internal/pkg/collab/domain"
	"go-collab/internal/pkg/collab/persistence/repository/adapter"
)

// ChangeRoleController applies an audited role transition to a
// participant.
type ChangeRoleController struct {
	UC *usecase.ChangeParticipantRoleUseCase
}

func NewChangeRoleController(pool *pgxpool.Pool) *ChangeRoleController {
	repo := adapter.NewPgSessionRepository(pool)
	return &ChangeRoleController{UC: usecase.NewChangeParticipantRoleUseCase(repo)}
}

type changeRoleRequest struct {
	ActorID string      `json:"actor_id" binding:"required"`
	Role    collab.Role `json:"role" binding:"required"`
}

func (h *ChangeRoleController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := usecase.ChangeParticipantRoleInput{
			SessionID: c.Param("sessionId"),
			ActorID:   req.ActorID,
			UserID:    c.Param("userId"),
			NewRole:   req.Role,
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.UC.Execute(ctx, in); err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, usecase.ErrForbidden):
				status = http.StatusForbidden
			case errors.Is(err, usecase.ErrNotParticipant):
				status = http.StatusNotFound
			case errors.Is(err, usecase.ErrPersistence):
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
