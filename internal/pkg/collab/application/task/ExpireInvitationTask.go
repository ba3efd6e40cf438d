package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	qport "go-collab/internal/infrastructure/queue/port"
	"go-collab/internal/pkg/collab/application/usecase"
	repoAdapter "go-collab/internal/pkg/collab/persistence/repository/adapter"
)

// RegisterExpireInvitationTask binds the scheduled invitation-expiry
// handler to the provided server. The task is enqueued with
// ProcessAt = expiry when the invitation is issued, so the handler runs at
// most once per invitation plus retries; the conditional update inside the
// use case keeps it idempotent.
func RegisterExpireInvitationTask(srv qport.Server, pool *pgxpool.Pool, log logrus.FieldLogger) {
	srv.Register(usecase.ExpireInvitationTaskType, func(ctx context.Context, t qport.Task) error {
		var p usecase.ExpireInvitationPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// Malformed payload: retrying cannot help.
			return err
		}

		repo := repoAdapter.NewPgSessionRepository(pool)
		uc := usecase.NewExpireInvitationUseCase(repo)

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		expired, err := uc.Execute(ctx, p.InvitationID)
		if err != nil {
			return err
		}
		if log != nil && expired {
			log.WithField("invitation_id", p.InvitationID).Info("invitation expired")
		}
		return nil
	})
}
