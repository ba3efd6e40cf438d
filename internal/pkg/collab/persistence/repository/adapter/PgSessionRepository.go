package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// PgSessionRepository persists the collaboration domain in Postgres under
// the "collab" schema.
type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

var _ repository.SessionRepository = (*PgSessionRepository)(nil)

func (r *PgSessionRepository) CreateSession(ctx context.Context, s collab.Session) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgSessionRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO collab.session (kind, title, description, owner_id, status, max_participants, created_at)
		VALUES ($1, $2, $3, $4::uuid, $5, $6, $7)
		RETURNING id::text
	`, s.Kind, s.Title, s.Description, s.OwnerID, s.Status, s.Settings.MaxParticipants, s.CreatedAt).Scan(&id)
	return id, err
}

func (r *PgSessionRepository) GetSession(ctx context.Context, id string) (*collab.Session, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgSessionRepository: nil pool")
	}
	var s collab.Session
	s.Settings = collab.DefaultSettings()
	err := r.pool.QueryRow(ctx, `
		SELECT s.id::text, s.kind, s.title, s.description, s.owner_id::text, s.status,
		       s.max_participants, s.created_at, COALESCE(a.id::text, '')
		FROM collab.session s
		LEFT JOIN collab.artifact a ON a.session_id = s.id
		WHERE s.id = $1::uuid
	`, id).Scan(&s.ID, &s.Kind, &s.Title, &s.Description, &s.OwnerID, &s.Status,
		&s.Settings.MaxParticipants, &s.CreatedAt, &s.ArtifactID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text, display_name, role, joined_at
		FROM collab.participant
		WHERE session_id = $1::uuid
		ORDER BY joined_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p collab.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Role, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.Status = collab.StatusOffline
		s.Participants = append(s.Participants, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return &s, nil
}

func (r *PgSessionRepository) CreateArtifact(ctx context.Context, a collab.Artifact) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgSessionRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO collab.artifact (session_id, kind, version, content)
		VALUES ($1::uuid, $2, $3, $4)
		RETURNING id::text
	`, a.SessionID, a.Kind, a.Version, a.Content).Scan(&id)
	return id, err
}

func (r *PgSessionRepository) GetArtifact(ctx context.Context, sessionID string) (*collab.Artifact, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgSessionRepository: nil pool")
	}
	var a collab.Artifact
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, session_id::text, kind, version, content
		FROM collab.artifact
		WHERE session_id = $1::uuid
	`, sessionID).Scan(&a.ID, &a.SessionID, &a.Kind, &a.Version, &a.Content)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgSessionRepository) ApplyArtifactUpdate(ctx context.Context, artifactID string, baseVersion int64, content, authorID, summary string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgSessionRepository: nil pool")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The WHERE clause on version is the entire conflict check: a stale
	// base matches zero rows.
	var newVersion int64
	err = tx.QueryRow(ctx, `
		UPDATE collab.artifact
		SET content = $2, version = version + 1
		WHERE id = $1::uuid AND version = $3
		RETURNING version
	`, artifactID, content, baseVersion).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrVersionConflict
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO collab.artifact_version (artifact_id, version, author_id, summary, created_at)
		VALUES ($1::uuid, $2, $3::uuid, $4, now())
	`, artifactID, newVersion, authorID, summary)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (r *PgSessionRepository) GetArtifactHistory(ctx context.Context, artifactID string, limit int) ([]collab.VersionEntry, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgSessionRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT version, author_id::text, created_at, summary
		FROM collab.artifact_version
		WHERE artifact_id = $1::uuid
		ORDER BY version DESC
		LIMIT $2
	`, artifactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []collab.VersionEntry
	for rows.Next() {
		var e collab.VersionEntry
		if err := rows.Scan(&e.Version, &e.AuthorID, &e.CreatedAt, &e.Summary); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func (r *PgSessionRepository) AddParticipant(ctx context.Context, sessionID string, p collab.Participant) error {
	if r == nil || r.pool == nil {
		return errors.New("PgSessionRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO collab.participant (session_id, user_id, display_name, role, joined_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5)
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET display_name = EXCLUDED.display_name
	`, sessionID, p.UserID, p.DisplayName, p.Role, p.JoinedAt)
	return err
}

func (r *PgSessionRepository) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgSessionRepository: nil pool")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM collab.participant
			WHERE session_id = $1::uuid AND user_id = $2::uuid
		)
	`, sessionID, userID).Scan(&exists)
	return exists, err
}

func (r *PgSessionRepository) GetParticipant(ctx context.Context, sessionID, userID string) (*collab.Participant, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgSessionRepository: nil pool")
	}
	var p collab.Participant
	err := r.pool.QueryRow(ctx, `
		SELECT user_id::text, display_name, role, joined_at
		FROM collab.participant
		WHERE session_id = $1::uuid AND user_id = $2::uuid
	`, sessionID, userID).Scan(&p.UserID, &p.DisplayName, &p.Role, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgSessionRepository) UpdateParticipantRole(ctx context.Context, sessionID, userID string, from, to collab.Role, at time.Time) error {
	if r == nil || r.pool == nil {
		return errors.New("PgSessionRepository: nil pool")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE collab.participant
		SET role = $3
		WHERE session_id = $1::uuid AND user_id = $2::uuid AND role = $4
	`, sessionID, userID, to, from)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO collab.role_change (session_id, user_id, from_role, to_role, changed_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5)
	`, sessionID, userID, from, to, at)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgSessionRepository) SaveChatMessage(ctx context.Context, m collab.ChatMessage) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgSessionRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO collab.chat_message (session_id, author_id, content, created_at, recipient_id, parent_id, edited)
		VALUES ($1::uuid, $2::uuid, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, '')::uuid, $7)
		RETURNING id::text
	`, m.SessionID, m.AuthorID, m.Content, m.CreatedAt, m.RecipientID, m.ParentID, m.Edited).Scan(&id)
	return id, err
}

func (r *PgSessionRepository) GetMessagesBySession(ctx context.Context, sessionID string, limit, offset int) ([]collab.ChatMessage, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgSessionRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, session_id::text, author_id::text, content, created_at,
		       COALESCE(recipient_id::text, ''), COALESCE(parent_id::text, ''), edited
		FROM collab.chat_message
		WHERE session_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []collab.ChatMessage
	for rows.Next() {
		var m collab.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.AuthorID, &m.Content, &m.CreatedAt,
			&m.RecipientID, &m.ParentID, &m.Edited); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgSessionRepository) SaveComment(ctx context.Context, c collab.Comment) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgSessionRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO collab.comment (artifact_id, author_id, content, start_index, end_index, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
		RETURNING id::text
	`, c.ArtifactID, c.AuthorID, c.Content, c.StartIndex, c.EndIndex, c.CreatedAt).Scan(&id)
	return id, err
}

func (r *PgSessionRepository) ResolveComment(ctx context.Context, commentID, userID string, at time.Time) error {
	if r == nil || r.pool == nil {
		return errors.New("PgSessionRepository: nil pool")
	}
	// Resolution is idempotent: an already-resolved comment keeps its
	// original resolver.
	_, err := r.pool.Exec(ctx, `
		UPDATE collab.comment
		SET resolved = TRUE, resolved_by = $2::uuid, resolved_at = $3
		WHERE id = $1::uuid AND NOT resolved
	`, commentID, userID, at)
	return err
}

func (r *PgSessionRepository) CreateInvitation(ctx context.Context, inv collab.Invitation) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgSessionRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO collab.invitation (session_id, inviter_id, invitee_contact, invitee_name, role, message, status, token, created_at, expires_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text
	`, inv.SessionID, inv.InviterID, inv.InviteeContact, inv.InviteeName, inv.Role,
		inv.Message, inv.Status, inv.Token, inv.CreatedAt, inv.ExpiresAt).Scan(&id)
	return id, err
}

func (r *PgSessionRepository) GetInvitationByToken(ctx context.Context, token string) (*collab.Invitation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgSessionRepository: nil pool")
	}
	var inv collab.Invitation
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, session_id::text, inviter_id::text, invitee_contact, invitee_name,
		       role, message, status, token, created_at, expires_at
		FROM collab.invitation
		WHERE token = $1
	`, token).Scan(&inv.ID, &inv.SessionID, &inv.InviterID, &inv.InviteeContact, &inv.InviteeName,
		&inv.Role, &inv.Message, &inv.Status, &inv.Token, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *PgSessionRepository) SettleInvitation(ctx context.Context, id string, to collab.InvitationStatus) error {
	if r == nil || r.pool == nil {
		return errors.New("PgSessionRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE collab.invitation
		SET status = $2
		WHERE id = $1::uuid AND status = $3
	`, id, to, collab.InvitationPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgSessionRepository) ExpireInvitation(ctx context.Context, id string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgSessionRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE collab.invitation
		SET status = $2
		WHERE id = $1::uuid AND status = $3
	`, id, collab.InvitationExpired, collab.InvitationPending)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
