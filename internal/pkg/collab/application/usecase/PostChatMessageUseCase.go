package usecase

import (
	"context"
	"fmt"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// PostChatMessageInput carries the data to post a session chat message.
type PostChatMessageInput struct {
	SessionID   string
	AuthorID    string
	Content     string
	RecipientID string
	ParentID    string
}

// PostChatMessageUseCase validates membership and role, then persists the
// message. Broadcast to live connections happens at the presentation layer.
type PostChatMessageUseCase struct {
	Repo repository.SessionRepository
}

func NewPostChatMessageUseCase(repo repository.SessionRepository) *PostChatMessageUseCase {
	return &PostChatMessageUseCase{Repo: repo}
}

func (uc *PostChatMessageUseCase) Execute(ctx context.Context, in PostChatMessageInput) (*collab.ChatMessage, error) {
	if in.SessionID == "" || in.AuthorID == "" {
		return nil, fmt.Errorf("sessionId and authorId are required")
	}

	author, err := uc.Repo.GetParticipant(ctx, in.SessionID, in.AuthorID)
	if err != nil {
		return nil, ErrNotParticipant
	}
	if !author.Role.CanComment() {
		return nil, fmt.Errorf("%w: %s cannot chat", ErrForbidden, author.Role)
	}

	msg, err := collab.NewChatMessage(collab.ChatMessage{
		SessionID:   in.SessionID,
		AuthorID:    in.AuthorID,
		Content:     in.Content,
		RecipientID: in.RecipientID,
		ParentID:    in.ParentID,
	})
	if err != nil {
		return nil, err
	}

	id, err := uc.Repo.SaveChatMessage(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msg.ID = id
	return msg, nil
}
