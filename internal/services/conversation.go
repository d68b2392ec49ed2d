package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/repos"
	"github.com/healthpredictor/healthpredictor-backend/internal/types"
)

// Turn is the client-facing projection of one stored message.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is everything a streaming chat flow needs after the
// user turn has been durably recorded: the resolved id, the rendered
// transcript (which ends with the current user turn), and a callback that
// appends the assistant turn to the same conversation.
type ConversationContext struct {
	ConversationID string
	Transcript     string
	SaveAssistant  func(string) error
}

type ConversationService interface {
	Begin(ctx context.Context, conversationID, userID, userInput string) (*ConversationContext, error)
	History(ctx context.Context, conversationID, userID string) ([]Turn, error)
	Sessions(ctx context.Context, userID string) ([]repos.ConversationActivity, error)
	Clear(ctx context.Context, conversationID, userID string) error
}

type conversationService struct {
	log      *logger.Logger
	messages repos.ChatMessageRepo
}

func NewConversationService(log *logger.Logger, messages repos.ChatMessageRepo) ConversationService {
	return &conversationService{
		log:      log.With("service", "ConversationService"),
		messages: messages,
	}
}

// Begin records the user turn and prepares the model-facing transcript.
// The append happens before anything else: if it fails the model is never
// called, so history can never be missing a turn the model answered.
func (s *conversationService) Begin(ctx context.Context, conversationID, userID, userInput string) (*ConversationContext, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, apierr.Validation("user input is empty")
	}

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
		s.log.Info("Started new conversation", "conversation_id", conversationID, "user_id", userID)
	}

	if _, err := s.messages.Append(ctx, nil, conversationID, userID, types.RoleUser, userInput); err != nil {
		return nil, err
	}

	turns, err := s.messages.ListByConversation(ctx, nil, conversationID, userID)
	if err != nil {
		return nil, err
	}

	saveAssistant := func(content string) error {
		_, err := s.messages.Append(context.Background(), nil, conversationID, userID, types.RoleAssistant, content)
		return err
	}

	return &ConversationContext{
		ConversationID: conversationID,
		Transcript:     renderTranscript(turns),
		SaveAssistant:  saveAssistant,
	}, nil
}

func (s *conversationService) History(ctx context.Context, conversationID, userID string) ([]Turn, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, apierr.Validation("conversation id is empty")
	}
	msgs, err := s.messages.ListByConversation(ctx, nil, conversationID, userID)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	return turns, nil
}

func (s *conversationService) Sessions(ctx context.Context, userID string) ([]repos.ConversationActivity, error) {
	return s.messages.ListLastActivity(ctx, nil, userID)
}

func (s *conversationService) Clear(ctx context.Context, conversationID, userID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return apierr.Validation("conversation id is empty")
	}
	return s.messages.DeleteConversation(ctx, nil, conversationID, userID)
}

// renderTranscript flattens stored turns into the prompt form the model
// sees: "User: ..." / "Assistant: ..." lines in chronological order.
func renderTranscript(turns []*types.ChatMessage) string {
	var b strings.Builder
	for _, t := range turns {
		label := "Assistant"
		if t.Role == types.RoleUser {
			label = "User"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
