package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository persists conversation threads and their messages.
type ConversationRepository struct {
	db *bun.DB
}

func NewConversationRepository(db *bun.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*Conversation, error) {
	conv := new(Conversation)
	err := r.db.NewSelect().Model(conv).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepository) Create(ctx context.Context, workspaceID, userID string, now time.Time) (*Conversation, error) {
	conv := &Conversation{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		CreatedAt:   now.UTC(),
	}
	if _, err := r.db.NewInsert().Model(conv).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetOrCreate returns the conversation when it exists in the workspace,
// otherwise starts a new one.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, workspaceID, userID, conversationID string, now time.Time) (*Conversation, error) {
	if conversationID != "" {
		conv, err := r.Get(ctx, conversationID)
		if err == nil && conv.WorkspaceID == workspaceID {
			return conv, nil
		}
		if err != nil && !errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}
	}
	return r.Create(ctx, workspaceID, userID, now)
}

func (r *ConversationRepository) AddMessage(ctx context.Context, conversationID, role, content string, now time.Time) error {
	msg := &ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now.UTC(),
	}
	if _, err := r.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return fmt.Errorf("add conversation message: %w", err)
	}
	ts := now.UTC()
	_, err := r.db.NewUpdate().
		Model((*Conversation)(nil)).
		Set("updated_at = ?", ts).
		Where("id = ?", conversationID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) Messages(ctx context.Context, conversationID string) ([]ConversationMessage, error) {
	var msgs []ConversationMessage
	err := r.db.NewSelect().
		Model(&msgs).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	return msgs, nil
}
