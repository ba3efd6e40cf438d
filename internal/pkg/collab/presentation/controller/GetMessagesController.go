package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-collab/internal/pkg/collab/persistence/repository/adapter"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// GetMessagesController pages through a session's chat history, newest
// first.
type GetMessagesController struct {
	Repo repository.SessionRepository
}

func NewGetMessagesController(pool *pgxpool.Pool) *GetMessagesController {
	return &GetMessagesController{Repo: adapter.NewPgSessionRepository(pool)}
}

func (h *GetMessagesController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		msgs, err := h.Repo.GetMessagesBySession(ctx, sessionID, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}
