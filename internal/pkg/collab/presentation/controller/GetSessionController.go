package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-collab/internal/infrastructure/realtime"
	"go-collab/internal/pkg/collab/application/usecase"
	collab "go-collab/internal/pkg/collab/domain"
	"go-collab/internal/pkg/collab/persistence/repository/adapter"
)

// GetSessionController serves full session state: metadata, participants
// and the artifact reference. Clients use it for both the initial join and
// full-state resync. Participant status is overlaid from the hub so the
// response tells who holds a live socket right now.
type GetSessionController struct {
	UC  *usecase.GetSessionUseCase
	Hub *realtime.Hub
}

func NewGetSessionController(pool *pgxpool.Pool, hub *realtime.Hub) *GetSessionController {
	repo := adapter.NewPgSessionRepository(pool)
	return &GetSessionController{UC: usecase.NewGetSessionUseCase(repo), Hub: hub}
}

func (h *GetSessionController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		s, err := h.UC.Execute(ctx, sessionID)
		if err != nil {
			status := http.StatusNotFound
			if !errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": "session not found"})
			return
		}

		if h.Hub != nil {
			online := make(map[string]bool)
			for _, id := range h.Hub.Members(sessionID) {
				online[id] = true
			}
			for i := range s.Participants {
				if online[s.Participants[i].UserID] {
					s.Participants[i].Status = collab.StatusOnline
				} else {
					s.Participants[i].Status = collab.StatusOffline
				}
			}
		}
		c.JSON(http.StatusOK, s)
	}
}
