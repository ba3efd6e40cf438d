package http

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	cacheport "go-collab/internal/infrastructure/cache/port"
	qport "go-collab/internal/infrastructure/queue/port"
	"go-collab/internal/infrastructure/realtime"
	"go-collab/internal/pkg/collab/presentation/controller"
)

// RegisterRoutes registers session endpoints under the given router group.
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, pool *pgxpool.Pool, cache cacheport.Cache, queue qport.Client, hub *realtime.Hub, log logrus.FieldLogger) {
	createCtl := controller.NewCreateSessionController(pool)
	getCtl := controller.NewGetSessionController(pool, hub)
	artifactCtl := controller.NewGetArtifactController(pool)
	messagesCtl := controller.NewGetMessagesController(pool)
	inviteCtl := controller.NewInviteParticipantController(pool, cache, queue)
	acceptCtl := controller.NewAcceptInvitationController(pool, cache)
	roleCtl := controller.NewChangeRoleController(pool)
	socketCtl := controller.NewSessionSocketController(pool, hub, log)

	// POST /api/v1/session -> create a session with its primary artifact
	g.POST("/session", createCtl.Handle())

	// GET /api/v1/session/:sessionId -> full session state
	g.GET("/session/:sessionId", getCtl.Handle())

	// GET /api/v1/session/:sessionId/artifact -> authoritative artifact state
	g.GET("/session/:sessionId/artifact", artifactCtl.Handle())

	// GET /api/v1/session/:sessionId/messages -> chat history
	g.GET("/session/:sessionId/messages", messagesCtl.Handle())

	// POST /api/v1/session/:sessionId/invitation -> issue an invitation
	g.POST("/session/:sessionId/invitation", inviteCtl.Handle())

	// POST /api/v1/invitation/:token/accept -> settle an invitation
	g.POST("/invitation/:token/accept", acceptCtl.Handle())

	// PUT /api/v1/session/:sessionId/participant/:userId/role -> audited role change
	g.PUT("/session/:sessionId/participant/:userId/role", roleCtl.Handle())

	// GET /api/v1/session/ws -> websocket endpoint for realtime traffic
	g.GET("/session/ws", socketCtl.Handle())
}
