package usecase

import (
	"context"
	"fmt"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// AddCommentInput anchors a comment to a span of the session's artifact.
type AddCommentInput struct {
	SessionID  string
	AuthorID   string
	Content    string
	StartIndex int
	EndIndex   int
}

// AddCommentUseCase validates membership and role, resolves the session's
// artifact and persists the comment.
type AddCommentUseCase struct {
	Repo repository.SessionRepository
}

func NewAddCommentUseCase(repo repository.SessionRepository) *AddCommentUseCase {
	return &AddCommentUseCase{Repo: repo}
}

func (uc *AddCommentUseCase) Execute(ctx context.Context, in AddCommentInput) (*collab.Comment, error) {
	if in.SessionID == "" || in.AuthorID == "" {
		return nil, fmt.Errorf("sessionId and authorId are required")
	}

	author, err := uc.Repo.GetParticipant(ctx, in.SessionID, in.AuthorID)
	if err != nil {
		return nil, ErrNotParticipant
	}
	if !author.Role.CanComment() {
		return nil, fmt.Errorf("%w: %s cannot comment", ErrForbidden, author.Role)
	}

	artifact, err := uc.Repo.GetArtifact(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	comment, err := collab.NewComment(collab.Comment{
		ArtifactID: artifact.ID,
		AuthorID:   in.AuthorID,
		Content:    in.Content,
		StartIndex: in.StartIndex,
		EndIndex:   in.EndIndex,
	})
	if err != nil {
		return nil, err
	}

	id, err := uc.Repo.SaveComment(ctx, *comment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	comment.ID = id
	return comment, nil
}
