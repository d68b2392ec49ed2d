package repos

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/types"
)

// ConversationActivity is one row of the sessions listing: a conversation
// id with the timestamp of its most recent turn.
type ConversationActivity struct {
	ConversationID string    `json:"conversation_id"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// ChatMessageRepo is the durable history store. Every read filters by both
// conversation id and user id; a conversation id alone never crosses user
// boundaries.
type ChatMessageRepo interface {
	Append(ctx context.Context, tx *gorm.DB, conversationID, userID, role, content string) (*types.ChatMessage, error)
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID, userID string) ([]*types.ChatMessage, error)
	ListConversationIDs(ctx context.Context, tx *gorm.DB, userID string) ([]string, error)
	ListLastActivity(ctx context.Context, tx *gorm.DB, userID string) ([]ConversationActivity, error)
	DeleteConversation(ctx context.Context, tx *gorm.DB, conversationID, userID string) error
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	repoLog := baseLog.With("repo", "ChatMessageRepo")
	return &chatMessageRepo{db: db, log: repoLog}
}

func (r *chatMessageRepo) Append(ctx context.Context, tx *gorm.DB, conversationID, userID, role, content string) (*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierr.Validation("message content is empty")
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, apierr.Validation("conversation id is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apierr.Validation("user id is empty")
	}

	msg := &types.ChatMessage{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
	}
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, apierr.Storage(err)
	}

	r.log.Debug("Appended chat message",
		"conversation_id", conversationID,
		"user_id", userID,
		"role", role,
	)
	return msg, nil
}

func (r *chatMessageRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID, userID string) ([]*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	results := []*types.ChatMessage{}
	if err := transaction.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, apierr.Storage(err)
	}
	return results, nil
}

func (r *chatMessageRepo) ListConversationIDs(ctx context.Context, tx *gorm.DB, userID string) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []string
	if err := transaction.WithContext(ctx).
		Model(&types.ChatMessage{}).
		Where("user_id = ?", userID).
		Distinct().
		Pluck("conversation_id", &ids).Error; err != nil {
		return nil, apierr.Storage(err)
	}
	return ids, nil
}

func (r *chatMessageRepo) ListLastActivity(ctx context.Context, tx *gorm.DB, userID string) ([]ConversationActivity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// Aggregating MAX(created_at) in SQL loses the datetime column type on
	// sqlite, so rows are read ordered and deduplicated here instead.
	var rows []types.ChatMessage
	if err := transaction.WithContext(ctx).
		Select("conversation_id, created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, apierr.Storage(err)
	}

	seen := map[string]bool{}
	results := []ConversationActivity{}
	for _, row := range rows {
		if seen[row.ConversationID] {
			continue
		}
		seen[row.ConversationID] = true
		results = append(results, ConversationActivity{
			ConversationID: row.ConversationID,
			LastMessageAt:  row.CreatedAt,
		})
	}
	return results, nil
}

func (r *chatMessageRepo) DeleteConversation(ctx context.Context, tx *gorm.DB, conversationID, userID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&types.ChatMessage{}).Error; err != nil {
		return apierr.Storage(err)
	}
	return nil
}
