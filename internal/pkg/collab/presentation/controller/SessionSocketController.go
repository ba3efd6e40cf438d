package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"go-collab/internal/infrastructure/realtime"
	"go-collab/internal/pkg/collab/application/usecase"
	collab "go-collab/internal/pkg/collab/domain"
	repoAdapter "go-collab/internal/pkg/collab/persistence/repository/adapter"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
	"go-collab/internal/pkg/collab/protocol"
)

// coordinatorUserID marks frames originated by the coordinator itself,
// e.g. the authoritative state pushed back after a version conflict.
const coordinatorUserID = "coordinator"

const socketReadTimeout = 60 * time.Second

// SessionSocketController handles the websocket endpoint for realtime
// session traffic: presence, cursors, chat, comments and version-stamped
// artifact updates.
type SessionSocketController struct {
	hub             *realtime.Hub
	log             logrus.FieldLogger
	repo            repository.SessionRepository
	applyUpdateUC   *usecase.ApplyArtifactUpdateUseCase
	chatUC          *usecase.PostChatMessageUseCase
	commentUC       *usecase.AddCommentUseCase
	inflightTimeout time.Duration
}

func NewSessionSocketController(pool *pgxpool.Pool, hub *realtime.Hub, log logrus.FieldLogger) *SessionSocketController {
	repo := repoAdapter.NewPgSessionRepository(pool)
	return &SessionSocketController{
		hub:             hub,
		log:             log,
		repo:            repo,
		applyUpdateUC:   usecase.NewApplyArtifactUpdateUseCase(repo),
		chatUC:          usecase.NewPostChatMessageUseCase(repo),
		commentUC:       usecase.NewAddCommentUseCase(repo),
		inflightTimeout: 5 * time.Second,
	}
}

var sessionUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when auth lands.
		return true
	},
}

// Handle upgrades the HTTP connection and processes frames until the
// client disconnects. Membership is verified before the upgrade so
// strangers never hold a socket.
func (ctl *SessionSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		userID := c.Query("user_id")
		if sessionID == "" || userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and user_id are required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
		participant, err := ctl.repo.GetParticipant(ctx, sessionID, userID)
		cancel()
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "user is not a session participant"})
			return
		}

		ws, err := sessionUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}

		conn := realtime.NewConnection(userID, ws)
		ctl.hub.Attach(conn)

		// Only a deliberate exit removes the participant from peer views.
		// An abrupt drop says nothing: the participant keeps their entry
		// (role, last cursor) on every peer until they reconnect.
		deliberate := false
		leaveAnnounced := false
		defer func() {
			ctl.hub.Detach(conn)
			if deliberate && !leaveAnnounced {
				ctl.broadcastEvent(sessionID, userID, protocol.ParticipantLeftBody{}, userID)
			}
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(socketReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(socketReadTimeout))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if closeIsDeliberate(err) {
					deliberate = true
				} else if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived) {
					ctl.log.WithError(err).WithField("user_id", userID).Debug("socket read failed")
				}
				return
			}

			event, err := protocol.Decode(data)
			if err != nil {
				ctl.replyError(conn, sessionID, "bad_request", "malformed frame")
				continue
			}
			if event.SessionID != sessionID {
				ctl.replyError(conn, sessionID, "bad_request", "frame session mismatch")
				continue
			}

			switch body := event.Body.(type) {
			case protocol.JoinBody:
				ctl.handleJoin(sessionID, userID, participant, conn, body)
			case protocol.LeaveBody:
				deliberate = true
				leaveAnnounced = true
				ctl.hub.Leave(sessionID, conn)
				ctl.broadcastEvent(sessionID, userID, protocol.ParticipantLeftBody{}, userID)
			case protocol.CursorBody:
				// Cursors are ephemeral: fan out, never persist.
				ctl.broadcastEvent(sessionID, userID, body, userID)
			case protocol.ChatBody:
				ctl.handleChat(c, sessionID, userID, conn, body)
			case protocol.CommentAddBody:
				ctl.handleComment(c, sessionID, userID, conn, body)
			case protocol.DocumentUpdateBody:
				ctl.handleArtifactUpdate(c, sessionID, userID, conn, body.ArtifactUpdate, protocol.KindDocumentUpdate)
			case protocol.WhiteboardUpdateBody:
				ctl.handleArtifactUpdate(c, sessionID, userID, conn, body.ArtifactUpdate, protocol.KindWhiteboardUpdate)
			default:
				ctl.replyError(conn, sessionID, "unsupported_type", "unknown frame type")
			}
		}
	}
}

// closeIsDeliberate reports whether the read error means the client ended
// the session on purpose (close handshake) rather than dropping off the
// network.
func closeIsDeliberate(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}

func (ctl *SessionSocketController) handleJoin(sessionID, userID string, p *collab.Participant, conn *realtime.Connection, body protocol.JoinBody) {
	ctl.hub.Join(sessionID, conn)

	name := body.UserName
	if name == "" {
		name = p.DisplayName
	}
	// The stored role is authoritative; the frame's role is advisory.
	ctl.broadcastEvent(sessionID, userID, protocol.ParticipantJoinedBody{
		UserName: name,
		Role:     p.Role,
	}, userID)
}

func (ctl *SessionSocketController) handleChat(c *gin.Context, sessionID, userID string, conn *realtime.Connection, body protocol.ChatBody) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	msg, err := ctl.chatUC.Execute(ctx, usecase.PostChatMessageInput{
		SessionID:   sessionID,
		AuthorID:    userID,
		Content:     body.Content,
		RecipientID: body.RecipientID,
		ParentID:    body.ParentID,
	})
	if err != nil {
		ctl.replyUseCaseError(conn, sessionID, err)
		return
	}

	out := protocol.ChatBody{
		MessageID:   msg.ID,
		Content:     msg.Content,
		RecipientID: msg.RecipientID,
		ParentID:    msg.ParentID,
	}
	if msg.RecipientID != "" {
		ctl.notifyUser(msg.RecipientID, sessionID, userID, out)
		return
	}
	ctl.broadcastEvent(sessionID, userID, out, userID)
}

func (ctl *SessionSocketController) handleComment(c *gin.Context, sessionID, userID string, conn *realtime.Connection, body protocol.CommentAddBody) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	comment, err := ctl.commentUC.Execute(ctx, usecase.AddCommentInput{
		SessionID:  sessionID,
		AuthorID:   userID,
		Content:    body.Content,
		StartIndex: body.StartIndex,
		EndIndex:   body.EndIndex,
	})
	if err != nil {
		ctl.replyUseCaseError(conn, sessionID, err)
		return
	}

	ctl.broadcastEvent(sessionID, userID, protocol.CommentAddedBody{CommentPayload: protocol.CommentPayload{
		CommentID:  comment.ID,
		ArtifactID: comment.ArtifactID,
		Content:    comment.Content,
		StartIndex: comment.StartIndex,
		EndIndex:   comment.EndIndex,
	}}, userID)
}

func (ctl *SessionSocketController) handleArtifactUpdate(c *gin.Context, sessionID, userID string, conn *realtime.Connection, update protocol.ArtifactUpdate, kind protocol.Kind) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	newVersion, err := ctl.applyUpdateUC.Execute(ctx, usecase.ApplyArtifactUpdateInput{
		SessionID:   sessionID,
		ArtifactID:  update.ArtifactID,
		AuthorID:    userID,
		BaseVersion: update.BaseVersion,
		Content:     update.Content,
		Summary:     update.Summary,
	})
	if errors.Is(err, usecase.ErrVersionConflict) {
		// The author lost the race. Push the authoritative state back so
		// the client rolls its tentative content back deterministically.
		ctl.replyError(conn, sessionID, "version_conflict", "artifact changed since the declared base version")
		ctl.pushAuthoritativeState(ctx, conn, sessionID, kind)
		return
	}
	if err != nil {
		ctl.replyUseCaseError(conn, sessionID, err)
		return
	}

	accepted := protocol.ArtifactUpdate{
		ArtifactID: update.ArtifactID,
		Version:    newVersion,
		Content:    update.Content,
		Summary:    update.Summary,
	}
	// Fan out to the whole room including the author: the echo doubles as
	// the author's acknowledgement.
	ctl.broadcastEvent(sessionID, userID, wrapUpdate(kind, accepted), "")
}

func (ctl *SessionSocketController) pushAuthoritativeState(ctx context.Context, conn *realtime.Connection, sessionID string, kind protocol.Kind) {
	a, err := ctl.repo.GetArtifact(ctx, sessionID)
	if err != nil {
		ctl.log.WithError(err).WithField("session_id", sessionID).Warn("artifact fetch for conflict reply failed")
		return
	}
	state := protocol.ArtifactUpdate{
		ArtifactID: a.ID,
		Version:    a.Version,
		Content:    a.Content,
	}
	raw, err := protocol.Encode(protocol.Event{
		SessionID: sessionID,
		UserID:    coordinatorUserID,
		Timestamp: time.Now().UnixMilli(),
		Body:      wrapUpdate(kind, state),
	})
	if err == nil {
		_ = conn.Send(raw)
	}
}

func wrapUpdate(kind protocol.Kind, update protocol.ArtifactUpdate) protocol.Body {
	if kind == protocol.KindWhiteboardUpdate {
		return protocol.WhiteboardUpdateBody{ArtifactUpdate: update}
	}
	return protocol.DocumentUpdateBody{ArtifactUpdate: update}
}

func (ctl *SessionSocketController) broadcastEvent(sessionID, userID string, body protocol.Body, excludeUserID string) {
	raw, err := protocol.Encode(protocol.Event{
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Body:      body,
	})
	if err != nil {
		ctl.log.WithError(err).Warn("broadcast frame encode failed")
		return
	}
	ctl.hub.Broadcast(sessionID, raw, excludeUserID)
}

func (ctl *SessionSocketController) notifyUser(recipientID, sessionID, userID string, body protocol.Body) {
	raw, err := protocol.Encode(protocol.Event{
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Body:      body,
	})
	if err != nil {
		return
	}
	_ = ctl.hub.NotifyUser(recipientID, raw)
}

func (ctl *SessionSocketController) replyUseCaseError(conn *realtime.Connection, sessionID string, err error) {
	switch {
	case errors.Is(err, usecase.ErrPersistence):
		ctl.replyError(conn, sessionID, "internal_error", "unexpected persistence error")
	case errors.Is(err, usecase.ErrForbidden):
		ctl.replyError(conn, sessionID, "forbidden", err.Error())
	case errors.Is(err, usecase.ErrNotParticipant):
		ctl.replyError(conn, sessionID, "forbidden", "user is not a session participant")
	default:
		ctl.replyError(conn, sessionID, "bad_request", err.Error())
	}
}

func (ctl *SessionSocketController) replyError(conn *realtime.Connection, sessionID, code, message string) {
	raw, err := protocol.Encode(protocol.Event{
		SessionID: sessionID,
		UserID:    coordinatorUserID,
		Timestamp: time.Now().UnixMilli(),
		Body:      protocol.ErrorBody{Code: code, Message: message},
	})
	if err == nil {
		_ = conn.Send(raw)
	}
}
