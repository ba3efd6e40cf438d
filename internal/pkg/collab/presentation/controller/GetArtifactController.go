package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-collab/internal/pkg/collab/application/usecase"
	"go-collab/internal/pkg/collab/persistence/repository/adapter"
)

// GetArtifactController serves the authoritative artifact state for a
// session, including recent version history.
type GetArtifactController struct {
	UC *usecase.GetArtifactUseCase
}

func NewGetArtifactController(pool *pgxpool.Pool) *GetArtifactController {
	repo := adapter.NewPgSessionRepository(pool)
	return &GetArtifactController{UC: usecase.NewGetArtifactUseCase(repo)}
}

func (h *GetArtifactController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		a, err := h.UC.Execute(ctx, sessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}
