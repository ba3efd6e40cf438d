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

// CreateSessionController handles the session creation endpoint.
// One controller per endpoint.
type CreateSessionController struct {
	UC *usecase.CreateSessionUseCase
}

func NewCreateSessionController(pool *pgxpool.Pool) *CreateSessionController {
	repo := adapter.NewPgSessionRepository(pool)
	return &CreateSessionController{UC: usecase.NewCreateSessionUseCase(repo)}
}

type createSessionRequest struct {
	Title       string                  `json:"title" binding:"required"`
	Description string                  `json:"description"`
	Kind        collab.SessionKind      `json:"kind" binding:"required"`
	OwnerID     string                  `json:"owner_id" binding:"required"`
	OwnerName   string                  `json:"owner_name"`
	Settings    *collab.SessionSettings `json:"settings"`
}

func (h *CreateSessionController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		in := usecase.CreateSessionInput{
			Title:       req.Title,
			Description: req.Description,
			Kind:        req.Kind,
			OwnerID:     req.OwnerID,
			OwnerName:   req.OwnerName,
			Settings:    req.Settings,
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		s, err := h.UC.Execute(ctx, in)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, s)
	}
}
