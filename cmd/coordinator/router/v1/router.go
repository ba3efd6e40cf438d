package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	cacheport "go-collab/internal/infrastructure/cache/port"
	qport "go-collab/internal/infrastructure/queue/port"
	"go-collab/internal/infrastructure/realtime"
	httpHandler "go-collab/internal/pkg/collab/presentation/http"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1.
func RegisterRoutes(r *gin.Engine, pool *pgxpool.Pool, cache cacheport.Cache, queue qport.Client, hub *realtime.Hub, log logrus.FieldLogger) {
	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(v1, pool, cache, queue, hub, log)
}
